//go:build govips && cgo

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/resizeflow/internal/domain"
)

type govipsEngine struct{}

type govipsSource struct {
	ref *vips.ImageRef
}

func (s *govipsSource) Width() int  { return s.ref.Width() }
func (s *govipsSource) Height() int { return s.ref.Height() }
func (s *govipsSource) Close()      { s.ref.Close() }

func (govipsEngine) Decode(ctx context.Context, data []byte) (Source, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	if err := ref.AutoRotate(); err != nil {
		ref.Close()
		return nil, fmt.Errorf("auto-rotate source image: %w", err)
	}
	if ref.Width() <= 0 || ref.Height() <= 0 {
		ref.Close()
		return nil, errors.New("source image has invalid dimensions")
	}

	return &govipsSource{ref: ref}, nil
}

func (govipsEngine) Render(ctx context.Context, src Source, spec domain.OutputSpec, opts domain.RenderOptions) ([]byte, error) {
	source, ok := src.(*govipsSource)
	if !ok {
		return nil, fmt.Errorf("unexpected source type %T", src)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := source.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy source image: %w", err)
	}
	defer img.Close()

	if err := applyGovipsResize(img, spec.Width, spec.Height, opts); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return exportGovipsImage(img, spec.Format, opts)
}

func applyGovipsResize(img *vips.ImageRef, width, height int, opts domain.RenderOptions) error {
	if !opts.MaintainAspect {
		if err := img.ThumbnailWithSize(width, height, vips.InterestingNone, vips.SizeForce); err != nil {
			return fmt.Errorf("stretch image: %w", err)
		}
		return nil
	}

	if opts.Fit != domain.FitContain {
		if err := img.Thumbnail(width, height, vips.InterestingCentre); err != nil {
			return fmt.Errorf("cover image: %w", err)
		}
		return nil
	}

	if err := img.Thumbnail(width, height, vips.InterestingNone); err != nil {
		return fmt.Errorf("contain image: %w", err)
	}
	if !img.HasAlpha() {
		if err := img.AddAlpha(); err != nil {
			return fmt.Errorf("add alpha channel: %w", err)
		}
	}
	left := max(0, (width-img.Width())/2)
	top := max(0, (height-img.Height())/2)
	if err := img.EmbedBackgroundRGBA(left, top, width, height, &vips.ColorRGBA{}); err != nil {
		return fmt.Errorf("pad image: %w", err)
	}
	return nil
}

func exportGovipsImage(img *vips.ImageRef, format domain.Format, opts domain.RenderOptions) ([]byte, error) {
	switch format {
	case domain.FormatPNG:
		params := vips.NewPngExportParams()
		params.Compression = 9
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case domain.FormatJPEG:
		if img.HasAlpha() {
			if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return nil, fmt.Errorf("flatten alpha: %w", err)
			}
		}
		params := vips.NewJpegExportParams()
		params.Quality = encoderQuality(opts.JPEGQuality, domain.DefaultJPEGQuality)
		params.Interlace = true
		params.SubsampleMode = vips.VipsForeignSubsampleOn
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case domain.FormatWebP:
		params := vips.NewWebpExportParams()
		params.Quality = encoderQuality(opts.WebPQuality, domain.DefaultWebPQuality)
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
