package domain

import (
	"strings"

	"github.com/spf13/cast"
)

// ParseFlag maps the accepted wire forms of a boolean (a bool, or a string such
// as "true", "false", "1", "0") to a bool. Blank or absent values yield fallback.
func ParseFlag(name string, raw any, fallback bool) (bool, error) {
	switch v := raw.(type) {
	case nil:
		return fallback, nil
	case bool:
		return v, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			return fallback, nil
		}
		parsed, err := cast.ToBoolE(trimmed)
		if err != nil {
			return false, validationf("%s must be true or false", name)
		}
		return parsed, nil
	default:
		return false, validationf("%s must be true or false", name)
	}
}

// ParseFit selects contain only when explicitly requested.
func ParseFit(raw string) FitMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(FitContain)) {
		return FitContain
	}
	return FitCover
}
