package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresUsageStore_RecordAndRecent(t *testing.T) {
	dsn := os.Getenv("RESIZEFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RESIZEFLOW_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewPostgresUsageStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	entry := domain.UsageLog{
		RequestID:      uuid.NewString(),
		ClientID:       "203.0.113.7",
		Outputs:        2,
		Archive:        true,
		PixelsProduced: 64*64 + 128*128,
		BytesIn:        1024,
		BytesOut:       4096,
		ComputeTimeMS:  12,
		CreatedAt:      time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.Record(ctx, entry))
	require.NoError(t, s.Record(ctx, entry))

	recent, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, entry.RequestID, recent[0].RequestID)
	assert.True(t, recent[0].Archive)
}
