package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUsageStore_RingOverwritesOldest(t *testing.T) {
	s, err := NewMemoryUsageStore(3)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Record(ctx, domain.UsageLog{RequestID: fmt.Sprintf("req-%d", i)}))
	}

	assert.Equal(t, 3, s.Len())

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "req-5", recent[0].RequestID)
	assert.Equal(t, "req-4", recent[1].RequestID)
	assert.Equal(t, "req-3", recent[2].RequestID)
}

func TestMemoryUsageStore_RecentLimit(t *testing.T) {
	s, err := NewMemoryUsageStore(10)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Record(ctx, domain.UsageLog{RequestID: "a"}))
	require.NoError(t, s.Record(ctx, domain.UsageLog{RequestID: "b"}))

	recent, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].RequestID)

	all, err := s.Recent(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryUsageStore_Empty(t *testing.T) {
	s, err := NewMemoryUsageStore(2)
	require.NoError(t, err)

	recent, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestNewMemoryUsageStore_RejectsZeroCapacity(t *testing.T) {
	_, err := NewMemoryUsageStore(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}
