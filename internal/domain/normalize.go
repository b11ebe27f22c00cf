package domain

import (
	"encoding/json"
	"strings"
)

// FallbackOutput holds the single width/height/format form fields used when no
// outputs list was sent.
type FallbackOutput struct {
	Width  string
	Height string
	Format string
}

func (f FallbackOutput) present() bool {
	return strings.TrimSpace(f.Width) != "" || strings.TrimSpace(f.Height) != ""
}

// NormalizeOutputs turns the requested outputs into validated, deduplicated
// specs in first-seen order. raw may be a JSON-encoded string or an already
// structured sequence. Any invalid candidate fails the whole request.
func NormalizeOutputs(raw any, fallback FallbackOutput, maxOutputs int) ([]OutputSpec, error) {
	candidates, err := outputCandidates(raw)
	if err != nil {
		return nil, err
	}

	if candidates == nil && fallback.present() {
		spec, err := fallbackSpec(fallback)
		if err != nil {
			return nil, err
		}
		return []OutputSpec{spec}, nil
	}

	if len(candidates) == 0 {
		return nil, validationf("at least one output required")
	}

	specs := make([]OutputSpec, 0, len(candidates))
	seen := make(map[OutputSpec]struct{}, len(candidates))
	for i, candidate := range candidates {
		spec, err := candidateSpec(i, candidate)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[spec]; dup {
			continue
		}
		seen[spec] = struct{}{}
		specs = append(specs, spec)
	}

	if maxOutputs > 0 && len(specs) > maxOutputs {
		return nil, validationf("at most %d distinct outputs allowed, got %d", maxOutputs, len(specs))
	}
	return specs, nil
}

// outputCandidates returns nil when the outputs field is absent.
func outputCandidates(raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, validationf("outputs must be a valid JSON array")
		}
		list, ok := decoded.([]any)
		if !ok {
			return nil, validationf("outputs must be a JSON array")
		}
		return emptyNotNil(list), nil
	case []any:
		return emptyNotNil(v), nil
	case []map[string]any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, item)
		}
		return out, nil
	case []OutputSpec:
		out := make([]any, 0, len(v))
		for _, spec := range v {
			out = append(out, map[string]any{
				"width":  spec.Width,
				"height": spec.Height,
				"format": string(spec.Format),
			})
		}
		return out, nil
	default:
		return nil, validationf("outputs must be an array")
	}
}

func emptyNotNil(list []any) []any {
	if list == nil {
		return []any{}
	}
	return list
}

func candidateSpec(index int, candidate any) (OutputSpec, error) {
	fields, ok := candidate.(map[string]any)
	if !ok {
		return OutputSpec{}, validationf("outputs[%d] must be an object", index)
	}

	width, ok := ClampDimension(fields["width"])
	if !ok {
		return OutputSpec{}, validationf("outputs[%d].width must be a positive number", index)
	}
	height, ok := ClampDimension(fields["height"])
	if !ok {
		return OutputSpec{}, validationf("outputs[%d].height must be a positive number", index)
	}

	rawFormat, _ := fields["format"].(string)
	format, ok := ParseFormat(rawFormat)
	if !ok {
		return OutputSpec{}, validationf("outputs[%d].format must be one of png, jpeg, webp", index)
	}

	return OutputSpec{Width: width, Height: height, Format: format}, nil
}

func fallbackSpec(f FallbackOutput) (OutputSpec, error) {
	width, ok := ClampDimension(f.Width)
	if !ok {
		return OutputSpec{}, validationf("width must be a positive number")
	}
	height, ok := ClampDimension(f.Height)
	if !ok {
		return OutputSpec{}, validationf("height must be a positive number")
	}

	format := FormatPNG
	if strings.TrimSpace(f.Format) != "" {
		parsed, ok := ParseFormat(f.Format)
		if !ok {
			return OutputSpec{}, validationf("format must be one of png, jpeg, webp")
		}
		format = parsed
	}

	return OutputSpec{Width: width, Height: height, Format: format}, nil
}
