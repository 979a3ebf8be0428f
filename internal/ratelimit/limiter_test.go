package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwater-ai/smartwater-backend/internal/monitoring"
)

func newFallbackLimiter(t *testing.T, config Config) *RateLimiter {
	t.Helper()
	client, err := NewRedisClient("", "", 0)
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	return NewRateLimiter(client, config, monitoring.NewMetrics())
}

func TestFallbackAllowsWithinBudget(t *testing.T) {
	rl := newFallbackLimiter(t, DefaultConfig())

	result, err := rl.AllowIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 120, result.Limit)
}

func TestFallbackBlocksAfterBurst(t *testing.T) {
	config := Config{RequestsPerMinute: 3, ScoringPerMinute: 2, BurstMultiplier: 1}
	rl := newFallbackLimiter(t, config)

	ctx := context.Background()
	blocked := false
	// Burst floor is 5, so the sixth immediate request must be rejected.
	for i := 0; i < 10; i++ {
		result, err := rl.AllowIP(ctx, "10.0.0.2")
		require.NoError(t, err)
		if !result.Allowed {
			blocked = true
			assert.Greater(t, result.RetryAfter, time.Duration(0))
			break
		}
	}
	assert.True(t, blocked, "burst exhaustion should block")
}

func TestFallbackIsolatesClients(t *testing.T) {
	config := Config{RequestsPerMinute: 1, ScoringPerMinute: 1, BurstMultiplier: 1}
	rl := newFallbackLimiter(t, config)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		rl.AllowIP(ctx, "10.0.0.3")
	}

	result, err := rl.AllowIP(ctx, "10.0.0.4")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "another IP keeps its own budget")
}

func TestScoringBudgetIsSeparate(t *testing.T) {
	rl := newFallbackLimiter(t, DefaultConfig())
	ctx := context.Background()

	general, err := rl.AllowIP(ctx, "10.0.0.5")
	require.NoError(t, err)
	scoring, err := rl.AllowScoring(ctx, "10.0.0.5")
	require.NoError(t, err)

	assert.Equal(t, 120, general.Limit)
	assert.Equal(t, 20, scoring.Limit)
}

func TestInvalidateIP(t *testing.T) {
	config := Config{RequestsPerMinute: 1, ScoringPerMinute: 1, BurstMultiplier: 1}
	rl := newFallbackLimiter(t, config)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		rl.AllowIP(ctx, "10.0.0.6")
	}

	require.NoError(t, rl.InvalidateIP(ctx, "10.0.0.6"))

	result, err := rl.AllowIP(ctx, "10.0.0.6")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "invalidation resets the budget")
}

func TestGetStats(t *testing.T) {
	rl := newFallbackLimiter(t, DefaultConfig())
	rl.AllowIP(context.Background(), "10.0.0.7")

	stats := rl.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.NotNil(t, stats["fallback_limiters"])
}
