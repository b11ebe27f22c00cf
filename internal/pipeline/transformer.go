package pipeline

import (
	"context"

	"github.com/dunamismax/resizeflow/internal/domain"
)

// Engine is the image decode/resize/encode capability behind the pipeline.
type Engine interface {
	// Decode reads an uploaded image, applying any embedded orientation.
	Decode(ctx context.Context, data []byte) (Source, error)
	// Render resizes a private copy of src and encodes it. src is never modified.
	Render(ctx context.Context, src Source, spec domain.OutputSpec, opts domain.RenderOptions) ([]byte, error)
}

// Source is a decoded upload. It is owned by one request.
type Source interface {
	Width() int
	Height() int
	Close()
}

func encoderQuality(quality, fallback int) int {
	if quality <= 0 {
		quality = fallback
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// DefaultEngine returns the engine selected at build time: libvips with the
// govips tag, pure Go otherwise.
func DefaultEngine() (Engine, error) {
	return newEngine()
}
