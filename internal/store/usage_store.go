package store

import (
	"context"

	"github.com/dunamismax/resizeflow/internal/domain"
)

// UsageStore records one entry per completed resize request.
type UsageStore interface {
	Record(ctx context.Context, entry domain.UsageLog) error
	Recent(ctx context.Context, limit int) ([]domain.UsageLog, error)
	Close() error
}
