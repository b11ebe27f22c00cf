package domain

import (
	"fmt"
	"strings"
)

const (
	MaxDimension = 8000

	DefaultJPEGQuality = 85
	DefaultWebPQuality = 80
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// ParseFormat matches the closed output format set case-insensitively. "jpg" is
// accepted as an alias of jpeg.
func ParseFormat(raw string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "png":
		return FormatPNG, true
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "webp":
		return FormatWebP, true
	default:
		return "", false
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

func (f Format) Extension() string {
	return string(f)
}

// OutputSpec is a validated output request. Values are comparable, so a spec is
// its own deduplication key.
type OutputSpec struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format Format `json:"format"`
}

func (s OutputSpec) String() string {
	return fmt.Sprintf("%dx%d %s", s.Width, s.Height, s.Format)
}

type FitMode string

const (
	FitCover   FitMode = "cover"
	FitContain FitMode = "contain"
)

type RenderOptions struct {
	MaintainAspect bool
	Fit            FitMode
	JPEGQuality    int
	WebPQuality    int
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		MaintainAspect: true,
		Fit:            FitCover,
		JPEGQuality:    DefaultJPEGQuality,
		WebPQuality:    DefaultWebPQuality,
	}
}
