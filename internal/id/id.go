package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random request identifier.
func New() string {
	return uuid.NewString()
}

// FromHeader keeps a caller-supplied identifier when it is a well-formed UUID.
func FromHeader(value string) string {
	value = strings.TrimSpace(value)
	if parsed, err := uuid.Parse(value); err == nil {
		return parsed.String()
	}
	return New()
}
