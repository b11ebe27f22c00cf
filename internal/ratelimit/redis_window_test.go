package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScriptDecision(t *testing.T) {
	dec, err := parseScriptDecision([]any{int64(0), int64(0), int64(2500)})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 2500*time.Millisecond, dec.RetryAfter)

	dec, err = parseScriptDecision([]any{int64(1), "41", int64(0)})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, int64(41), dec.Remaining)

	_, err = parseScriptDecision([]any{int64(1)})
	assert.Error(t, err)
	_, err = parseScriptDecision("nope")
	assert.Error(t, err)
}

func TestNewRedisSlidingWindowRequiresClient(t *testing.T) {
	_, err := NewRedisSlidingWindow(nil, 60, time.Minute, "")
	assert.Error(t, err)
}

func TestRedisSlidingWindow_Live(t *testing.T) {
	addr := os.Getenv("RESIZEFLOW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RESIZEFLOW_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	limiter, err := NewRedisSlidingWindow(client, 2, time.Minute, "resizeflow:test:"+uuid.NewString())
	require.NoError(t, err)

	first, err := limiter.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, int64(1), first.Remaining)

	second, err := limiter.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, second.Allowed)

	third, err := limiter.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Positive(t, third.RetryAfter)

	other, err := limiter.Allow(ctx, "203.0.113.10")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}
