package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dunamismax/resizeflow/internal/domain"
)

const fallbackBaseName = "logo"

type Result struct {
	Spec        domain.OutputSpec
	Filename    string
	ContentType string
	Data        []byte
}

// BaseName strips any directory and the last extension from an upload's
// filename and reduces it to a header-safe token.
func BaseName(filename string) string {
	name := strings.TrimSpace(filename)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		return fallbackBaseName
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if strings.TrimSpace(name) == "" {
		return fallbackBaseName
	}
	return sanitizePathToken(name)
}

func OutputFilename(base string, spec domain.OutputSpec) string {
	return fmt.Sprintf("%s_%dx%d.%s", base, spec.Width, spec.Height, spec.Format.Extension())
}

func ArchiveFilename(base string) string {
	return base + "_resized.zip"
}

// Render produces one encoded output. An empty encoding is a failure.
func (p *Processor) Render(ctx context.Context, src Source, base string, spec domain.OutputSpec, opts domain.RenderOptions) (Result, error) {
	data, err := p.engine.Render(ctx, src, spec, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("render %s: %w", spec, ctxErr)
		}
		return Result{}, fmt.Errorf("%w: render %s: %w", domain.ErrRenderFailure, spec, err)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: render %s", domain.ErrEmptyRender, spec)
	}

	return Result{
		Spec:        spec,
		Filename:    OutputFilename(base, spec),
		ContentType: spec.Format.ContentType(),
		Data:        data,
	}, nil
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return fallbackBaseName
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
