package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowCapsRequestsPerWindow(t *testing.T) {
	w, err := NewSlidingWindow(3, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	w.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		dec, err := w.Allow(context.Background(), "client")
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
		assert.Equal(t, int64(2-i), dec.Remaining)
		now = now.Add(10 * time.Second)
	}

	dec, err := w.Allow(context.Background(), "client")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 30*time.Second, dec.RetryAfter)

	dec, err = w.Allow(context.Background(), "other")
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "limits are per subject")

	// The first hit leaves the window 60s after it was recorded.
	now = time.Unix(1_700_000_000, 0).Add(time.Minute + time.Millisecond)
	dec, err = w.Allow(context.Background(), "client")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestSlidingWindowCleanupEvictsIdleSubjects(t *testing.T) {
	w, err := NewSlidingWindow(60, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	w.now = func() time.Time { return now }

	_, _ = w.Allow(context.Background(), "a")
	_, _ = w.Allow(context.Background(), "b")
	assert.Equal(t, 2, w.subjects())

	now = now.Add(2 * time.Minute)
	_, _ = w.Allow(context.Background(), "b")
	w.Cleanup()
	assert.Equal(t, 1, w.subjects())
}

func TestNewSlidingWindowValidates(t *testing.T) {
	_, err := NewSlidingWindow(0, time.Minute)
	assert.Error(t, err)
	_, err = NewSlidingWindow(1, 0)
	assert.Error(t, err)
}
