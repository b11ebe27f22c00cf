package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/gen2brain/webp"
)

// stdlibEngine renders in pure Go. JPEG output is baseline with 4:2:0 chroma
// subsampling; progressive JPEG needs the govips build.
type stdlibEngine struct{}

type stdlibSource struct {
	img *image.NRGBA
}

func (s *stdlibSource) Width() int  { return s.img.Bounds().Dx() }
func (s *stdlibSource) Height() int { return s.img.Bounds().Dy() }
func (s *stdlibSource) Close()      {}

func (stdlibEngine) Decode(ctx context.Context, data []byte) (Source, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.New("source image has invalid dimensions")
	}

	return &stdlibSource{img: imaging.Clone(img)}, nil
}

func (stdlibEngine) Render(ctx context.Context, src Source, spec domain.OutputSpec, opts domain.RenderOptions) ([]byte, error) {
	source, ok := src.(*stdlibSource)
	if !ok {
		return nil, fmt.Errorf("unexpected source type %T", src)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	resized := resizeImage(imaging.Clone(source.img), spec.Width, spec.Height, opts)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return encodeImage(resized, spec.Format, opts)
}

func resizeImage(img *image.NRGBA, width, height int, opts domain.RenderOptions) *image.NRGBA {
	if !opts.MaintainAspect {
		return imaging.Resize(img, width, height, imaging.Lanczos)
	}
	if opts.Fit == domain.FitContain {
		return containImage(img, width, height)
	}
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
}

// containImage scales img to fit inside width x height (up or down) and
// centers it on a transparent canvas of exactly that size.
func containImage(img *image.NRGBA, width, height int) *image.NRGBA {
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	scale := math.Min(float64(width)/float64(srcW), float64(height)/float64(srcH))
	fitW := min(width, max(1, int(math.Round(float64(srcW)*scale))))
	fitH := min(height, max(1, int(math.Round(float64(srcH)*scale))))

	fitted := imaging.Resize(img, fitW, fitH, imaging.Lanczos)
	canvas := imaging.New(width, height, color.NRGBA{})
	return imaging.PasteCenter(canvas, fitted)
}

func encodeImage(img *image.NRGBA, format domain.Format, opts domain.RenderOptions) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case domain.FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case domain.FormatJPEG:
		quality := encoderQuality(opts.JPEGQuality, domain.DefaultJPEGQuality)
		if err := jpeg.Encode(&buf, flattenOnWhite(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case domain.FormatWebP:
		quality := encoderQuality(opts.WebPQuality, domain.DefaultWebPQuality)
		if err := webp.Encode(&buf, img, webp.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}

// flattenOnWhite composites img over an opaque white background.
func flattenOnWhite(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}
