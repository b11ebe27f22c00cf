package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllowsBurstThenRejects(t *testing.T) {
	b, err := NewTokenBucket(2, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		dec, err := b.Allow(context.Background(), "client")
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
	}

	dec, err := b.Allow(context.Background(), "client")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.InDelta(t, 30*time.Second, dec.RetryAfter, float64(time.Second))

	now = now.Add(31 * time.Second)
	dec, err = b.Allow(context.Background(), "client")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestTokenBucketCleanupRecreatesIdleLimiter(t *testing.T) {
	b, err := NewTokenBucket(1, time.Second)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }

	before := b.limiter("k", now)
	now = now.Add(5 * time.Second)
	b.Cleanup()
	after := b.limiter("k", now)

	assert.NotSame(t, before, after)
}
