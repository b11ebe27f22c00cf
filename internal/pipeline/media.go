package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	"github.com/dunamismax/resizeflow/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var supportedMediaTypes = map[string]bool{
	"image/png":      true,
	"image/jpeg":     true,
	"image/jpg":      true,
	"image/pjpeg":    true,
	"image/webp":     true,
	"image/gif":      true,
	"image/bmp":      true,
	"image/x-ms-bmp": true,
	"image/tiff":     true,
}

var heifMediaTypes = map[string]bool{
	"image/heic":          true,
	"image/heif":          true,
	"image/heic-sequence": true,
	"image/heif-sequence": true,
}

// ResolveMediaType validates the declared upload type, sniffing the bytes when
// the client declared nothing useful.
func ResolveMediaType(declared string, data []byte) (string, error) {
	mediaType := ""
	if strings.TrimSpace(declared) != "" {
		parsed, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedMedia, declared)
		}
		mediaType = strings.ToLower(parsed)
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = strings.ToLower(http.DetectContentType(data))
		if i := strings.IndexByte(mediaType, ';'); i >= 0 {
			mediaType = strings.TrimSpace(mediaType[:i])
		}
	}

	if heifMediaTypes[mediaType] {
		return "", fmt.Errorf("%w: HEIC/HEIF images are not supported", domain.ErrUnsupportedMedia)
	}
	if !supportedMediaTypes[mediaType] {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, mediaType)
	}
	return mediaType, nil
}

type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// Probe reads image dimensions from the header without a full decode.
func Probe(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", domain.ErrSourceUnreadable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("%w: missing width or height", domain.ErrSourceUnreadable)
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}
