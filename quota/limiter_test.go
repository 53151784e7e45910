package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, tiers map[string]TierLimits) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, tiers, nil), mr
}

func TestLimiterAllowsUnderLimit(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]TierLimits{"free": {RequestsPerHour: 3, TokensPerDay: 100}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))
	}
}

func TestLimiterRejectsOverLimit(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]TierLimits{"free": {RequestsPerHour: 2, TokensPerDay: 100}})
	ctx := context.Background()

	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))
	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))

	err := l.CheckAndIncrement(ctx, "org1", "free")
	require.Error(t, err)

	var qErr *QuotaExceededError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, "org1", qErr.OrgID)
	assert.Equal(t, int64(2), qErr.Limit)
	assert.Equal(t, int64(3), qErr.Current)
	assert.Equal(t, "requests_per_hour", qErr.Scope)

	// The rejected increment is not rolled back.
	usage := l.GetUsage(ctx, "org1")
	assert.Equal(t, int64(3), usage.HourRequests)
}

func TestLimiterHourBoundaryReset(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]TierLimits{"free": {RequestsPerHour: 1, TokensPerDay: 100}})
	ctx := context.Background()

	current := time.Date(2026, 8, 28, 10, 59, 0, 0, time.UTC)
	l.WithClock(func() time.Time { return current })

	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))
	require.Error(t, l.CheckAndIncrement(ctx, "org1", "free"))

	// Crossing the wall-clock hour starts a fresh fixed window.
	current = time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))

	// The daily counter keeps accumulating across hours.
	usage := l.GetUsage(ctx, "org1")
	assert.Equal(t, int64(1), usage.HourRequests)
	assert.Equal(t, int64(3), usage.DayRequests)
}

func TestLimiterTenantsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]TierLimits{"free": {RequestsPerHour: 1, TokensPerDay: 100}})
	ctx := context.Background()

	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))
	require.Error(t, l.CheckAndIncrement(ctx, "org1", "free"))
	require.NoError(t, l.CheckAndIncrement(ctx, "org2", "free"))
}

func TestLimiterUnknownTierFallsBackToFree(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]TierLimits{"free": {RequestsPerHour: 1, TokensPerDay: 100}})
	ctx := context.Background()

	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "platinum"))
	err := l.CheckAndIncrement(ctx, "org1", "platinum")
	require.Error(t, err)
}

func TestLimiterFailsOpenWhenStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	l := NewLimiter(client, map[string]TierLimits{"free": {RequestsPerHour: 1, TokensPerDay: 100}}, nil)
	ctx := context.Background()

	mr.Close()

	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))
	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))
	require.NoError(t, l.CheckTokenBudget(ctx, "org1", "free"))

	usage := l.GetUsage(ctx, "org1")
	assert.Equal(t, int64(0), usage.HourRequests)
}

func TestLimiterTokenBudget(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]TierLimits{"free": {RequestsPerHour: 10, TokensPerDay: 1000}})
	ctx := context.Background()

	require.NoError(t, l.CheckTokenBudget(ctx, "org1", "free"))

	l.AddTokenUsage(ctx, "org1", 600)
	require.NoError(t, l.CheckTokenBudget(ctx, "org1", "free"))

	l.AddTokenUsage(ctx, "org1", 500)
	err := l.CheckTokenBudget(ctx, "org1", "free")
	require.Error(t, err)

	var qErr *QuotaExceededError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, "tokens_per_day", qErr.Scope)
	assert.Equal(t, int64(1100), qErr.Current)

	usage := l.GetUsage(ctx, "org1")
	assert.Equal(t, int64(1100), usage.DayTokens)
}

func TestLimiterCountersExpire(t *testing.T) {
	l, mr := newTestLimiter(t, map[string]TierLimits{"free": {RequestsPerHour: 5, TokensPerDay: 100}})
	ctx := context.Background()

	require.NoError(t, l.CheckAndIncrement(ctx, "org1", "free"))
	mr.FastForward(49 * time.Hour)

	usage := l.GetUsage(ctx, "org1")
	assert.Equal(t, int64(0), usage.HourRequests)
	assert.Equal(t, int64(0), usage.DayRequests)
}
