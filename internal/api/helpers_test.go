package api

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync/atomic"
	"testing"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/dunamismax/resizeflow/internal/pipeline"
	"github.com/dunamismax/resizeflow/internal/ratelimit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 180, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, file *upload, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="logo"; filename="`+file.filename+`"`)
		if file.contentType != "" {
			header.Set("Content-Type", file.contentType)
		}
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func newResizeRequest(t *testing.T, file *upload, fields map[string]string) *http.Request {
	t.Helper()

	body, contentType := multipartBody(t, file, fields)
	req := httptest.NewRequest(http.MethodPost, "/resize", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func pngUpload(t *testing.T) *upload {
	return &upload{filename: "logo.png", contentType: "image/png", data: buildTestPNG(t, 100, 100)}
}

func testOptions() Options {
	return Options{
		Logger: zerolog.Nop(),
		Engine: &countingEngine{next: mustDefaultEngine()},
		Guard: ratelimit.NewGuard(
			ratelimit.NewConcurrencyLimiter(2),
			nil,
		),
	}
}

func mustDefaultEngine() pipeline.Engine {
	engine, err := pipeline.DefaultEngine()
	if err != nil {
		panic(err)
	}
	return engine
}

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// countingEngine counts decode and render calls made through it.
type countingEngine struct {
	next    pipeline.Engine
	decodes atomic.Int64
	renders atomic.Int64
}

func (e *countingEngine) Decode(ctx context.Context, data []byte) (pipeline.Source, error) {
	e.decodes.Add(1)
	return e.next.Decode(ctx, data)
}

func (e *countingEngine) Render(ctx context.Context, src pipeline.Source, spec domain.OutputSpec, opts domain.RenderOptions) ([]byte, error) {
	e.renders.Add(1)
	return e.next.Render(ctx, src, spec, opts)
}

// blockingEngine parks every render until release is closed.
type blockingEngine struct {
	next    pipeline.Engine
	started chan struct{}
	release chan struct{}
}

func (e *blockingEngine) Decode(ctx context.Context, data []byte) (pipeline.Source, error) {
	return e.next.Decode(ctx, data)
}

func (e *blockingEngine) Render(ctx context.Context, src pipeline.Source, spec domain.OutputSpec, opts domain.RenderOptions) ([]byte, error) {
	e.started <- struct{}{}
	select {
	case <-e.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.next.Render(ctx, src, spec, opts)
}

// failingEngine decodes normally and fails renders of one format.
type failingEngine struct {
	next   pipeline.Engine
	format domain.Format
	empty  bool
}

func (e *failingEngine) Decode(ctx context.Context, data []byte) (pipeline.Source, error) {
	return e.next.Decode(ctx, data)
}

func (e *failingEngine) Render(ctx context.Context, src pipeline.Source, spec domain.OutputSpec, opts domain.RenderOptions) ([]byte, error) {
	if spec.Format == e.format {
		if e.empty {
			return []byte{}, nil
		}
		return nil, errors.New("encoder crashed")
	}
	return e.next.Render(ctx, src, spec, opts)
}
