package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/stretchr/testify/require"
)

func buildTestPNG(t *testing.T, w, h int, fill color.NRGBA) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeSource struct {
	w, h int
}

func (s fakeSource) Width() int  { return s.w }
func (s fakeSource) Height() int { return s.h }
func (s fakeSource) Close()      {}

// fakeEngine returns the spec string as the encoded bytes unless told to fail.
type fakeEngine struct {
	mu       sync.Mutex
	rendered []domain.OutputSpec
	failOn   map[domain.OutputSpec]error
	empty    map[domain.OutputSpec]bool
}

func (e *fakeEngine) Decode(_ context.Context, data []byte) (Source, error) {
	if len(data) == 0 {
		return nil, errors.New("no data")
	}
	return fakeSource{w: 10, h: 10}, nil
}

func (e *fakeEngine) Render(_ context.Context, _ Source, spec domain.OutputSpec, _ domain.RenderOptions) ([]byte, error) {
	e.mu.Lock()
	e.rendered = append(e.rendered, spec)
	e.mu.Unlock()

	if err := e.failOn[spec]; err != nil {
		return nil, err
	}
	if e.empty[spec] {
		return nil, nil
	}
	return []byte(spec.String()), nil
}

func (e *fakeEngine) calls() []domain.OutputSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.OutputSpec(nil), e.rendered...)
}
