package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dunamismax/resizeflow/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RenderObserver is notified after every render attempt.
type RenderObserver func(spec domain.OutputSpec, elapsed time.Duration, err error)

type Option func(*Processor)

func WithRenderObserver(observer RenderObserver) Option {
	return func(p *Processor) {
		p.observer = observer
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

type Processor struct {
	engine   Engine
	tracer   trace.Tracer
	observer RenderObserver
}

func NewProcessor(engine Engine, opts ...Option) *Processor {
	p := &Processor{
		engine: engine,
		tracer: otel.Tracer("resizeflow/pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDefaultProcessor builds a processor on the engine selected at build time.
func NewDefaultProcessor(opts ...Option) (*Processor, error) {
	engine, err := DefaultEngine()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return NewProcessor(engine, opts...), nil
}

func (p *Processor) Decode(ctx context.Context, data []byte) (Source, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.decode")
	defer span.End()

	src, err := p.engine.Decode(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnreadable, err)
	}
	span.SetAttributes(
		attribute.Int("image.width", src.Width()),
		attribute.Int("image.height", src.Height()),
	)
	return src, nil
}

type Aggregation struct {
	Archive bool
	Single  Result
	Entries []Result
}

func (a Aggregation) Results() []Result {
	if a.Archive {
		return a.Entries
	}
	return []Result{a.Single}
}

// IsArchive reports whether specs aggregate into a zip archive.
func IsArchive(specs []domain.OutputSpec, forceSingle bool) bool {
	return !forceSingle && len(specs) > 1
}

// Aggregate renders every spec in order. With forceSingle, or exactly one
// spec, only the first spec is rendered and returned as a single file. Any
// failure aborts the whole aggregation.
func (p *Processor) Aggregate(ctx context.Context, src Source, base string, specs []domain.OutputSpec, opts domain.RenderOptions, forceSingle bool) (Aggregation, error) {
	if len(specs) == 0 {
		return Aggregation{}, fmt.Errorf("%w: at least one output required", domain.ErrValidation)
	}

	if !IsArchive(specs, forceSingle) {
		result, err := p.render(ctx, src, base, specs[0], opts)
		if err != nil {
			return Aggregation{}, err
		}
		return Aggregation{Single: result}, nil
	}

	entries := make([]Result, 0, len(specs))
	for _, spec := range specs {
		result, err := p.render(ctx, src, base, spec, opts)
		if err != nil {
			return Aggregation{}, err
		}
		entries = append(entries, result)
	}
	return Aggregation{Archive: true, Entries: entries}, nil
}

// StreamArchive renders each spec and appends it to a zip written to w as
// soon as it is ready. On error the archive is left unfinalized and the
// caller must abandon the response.
func (p *Processor) StreamArchive(ctx context.Context, w io.Writer, src Source, base string, specs []domain.OutputSpec, opts domain.RenderOptions) ([]Result, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one output required", domain.ErrValidation)
	}

	archive := NewArchiveWriter(w)
	written := make([]Result, 0, len(specs))
	for _, spec := range specs {
		result, err := p.render(ctx, src, base, spec, opts)
		if err != nil {
			return written, err
		}
		if err := archive.Append(result.Filename, result.Data); err != nil {
			return written, err
		}
		written = append(written, Result{Spec: result.Spec, Filename: result.Filename, ContentType: result.ContentType})
	}
	if err := archive.Finalize(); err != nil {
		return written, err
	}
	return written, nil
}

func (p *Processor) render(ctx context.Context, src Source, base string, spec domain.OutputSpec, opts domain.RenderOptions) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.render", trace.WithAttributes(
		attribute.Int("output.width", spec.Width),
		attribute.Int("output.height", spec.Height),
		attribute.String("output.format", string(spec.Format)),
	))
	defer span.End()

	start := time.Now()
	result, err := p.Render(ctx, src, base, spec, opts)
	if p.observer != nil {
		p.observer(spec, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("output.bytes", len(result.Data)))
	return result, nil
}

// IsCanceled reports whether err stems from the request context ending.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
