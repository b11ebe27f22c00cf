package ratelimit

import (
	"context"
	"strings"
	"time"
)

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter caps the request rate of a subject.
type Limiter interface {
	Allow(ctx context.Context, subject string) (Decision, error)
}

func normalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "anonymous"
	}
	return subject
}
