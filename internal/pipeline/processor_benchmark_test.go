package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/dunamismax/resizeflow/internal/domain"
)

func BenchmarkProcessorRenderJPEG(b *testing.B) {
	processor := NewProcessor(stdlibEngine{})
	src, err := processor.Decode(context.Background(), benchmarkPNG(b, 1920, 1080))
	if err != nil {
		b.Fatalf("decode source: %v", err)
	}
	defer src.Close()

	spec := domain.OutputSpec{Width: 640, Height: 360, Format: domain.FormatJPEG}
	opts := domain.DefaultRenderOptions()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.Render(context.Background(), src, "bench", spec, opts); err != nil {
			b.Fatalf("render: %v", err)
		}
	}
}

func BenchmarkProcessorArchive(b *testing.B) {
	processor := NewProcessor(stdlibEngine{})
	src, err := processor.Decode(context.Background(), benchmarkPNG(b, 1024, 1024))
	if err != nil {
		b.Fatalf("decode source: %v", err)
	}
	defer src.Close()

	specs := []domain.OutputSpec{
		{Width: 16, Height: 16, Format: domain.FormatPNG},
		{Width: 32, Height: 32, Format: domain.FormatPNG},
		{Width: 180, Height: 180, Format: domain.FormatWebP},
		{Width: 512, Height: 512, Format: domain.FormatJPEG},
	}
	opts := domain.DefaultRenderOptions()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if _, err := processor.StreamArchive(context.Background(), &buf, src, "bench", specs, opts); err != nil {
			b.Fatalf("stream archive: %v", err)
		}
	}
}

func benchmarkPNG(b *testing.B, w, h int) []byte {
	b.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		b.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}
