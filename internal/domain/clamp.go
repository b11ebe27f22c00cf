package domain

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ClampDimension coerces a wire value (string or number) into a dimension.
// Non-numeric, non-finite and non-positive values are rejected; values above
// MaxDimension saturate to MaxDimension; fractional values are floored.
func ClampDimension(raw any) (int, bool) {
	var value float64
	switch v := raw.(type) {
	case nil, bool:
		return 0, false
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := cast.ToFloat64E(trimmed)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		parsed, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, false
		}
		value = parsed
	}

	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0, false
	}
	if value > MaxDimension {
		return MaxDimension, true
	}

	floored := int(math.Floor(value))
	if floored < 1 {
		return 0, false
	}
	return floored, true
}

// SanitizeQuality runs an encoder quality value through ClampDimension and
// falls back when the value is absent or invalid.
func SanitizeQuality(raw any, fallback int) int {
	if quality, ok := ClampDimension(raw); ok {
		return quality
	}
	return fallback
}
