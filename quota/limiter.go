package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// QuotaExceededError reports which limit a tenant ran into.
type QuotaExceededError struct {
	OrgID   string `json:"org_id"`
	Tier    string `json:"tier"`
	Limit   int64  `json:"limit"`
	Current int64  `json:"current"`
	Scope   string `json:"scope"` // "requests_per_hour" or "tokens_per_day"
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for org %s (tier %s): %s %d/%d", e.OrgID, e.Tier, e.Scope, e.Current, e.Limit)
}

// Usage reports a tenant's counters for the current windows.
type Usage struct {
	OrgID        string `json:"org_id"`
	HourRequests int64  `json:"hour_requests"`
	DayRequests  int64  `json:"day_requests"`
	DayTokens    int64  `json:"day_tokens"`
}

// Limiter implements fixed-window rate limiting on shared Redis counters.
// Windows are keyed by wall-clock hour and day, which approximates but does
// not implement a sliding window: a tenant can burst up to twice the hourly
// limit across a boundary. The counter is incremented before the limit check
// and never rolled back, so the stored count may overshoot slightly.
//
// On any Redis failure the limiter fails open and logs, trading strict
// enforcement for availability.
type Limiter struct {
	client redis.UniversalClient
	tiers  map[string]TierLimits
	logger *zap.Logger
	now    func() time.Time
}

func NewLimiter(client redis.UniversalClient, tiers map[string]TierLimits, logger *zap.Logger) *Limiter {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		client: client,
		tiers:  tiers,
		logger: logger.With(zap.String("component", "quota.limiter")),
		now:    time.Now,
	}
}

// WithClock overrides the limiter's clock. Tests use it to cross window
// boundaries.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func hourKey(orgID string, t time.Time) string {
	return fmt.Sprintf("quota:req:hour:%s:%s", orgID, t.UTC().Format("2006010215"))
}

func dayKey(orgID string, t time.Time) string {
	return fmt.Sprintf("quota:req:day:%s:%s", orgID, t.UTC().Format("20060102"))
}

func tokenKey(orgID string, t time.Time) string {
	return fmt.Sprintf("quota:tok:day:%s:%s", orgID, t.UTC().Format("20060102"))
}

// CheckAndIncrement counts one request for the tenant and fails with
// QuotaExceededError when the post-increment hourly count exceeds the tier
// limit. The increment is intentionally not rolled back on rejection.
func (l *Limiter) CheckAndIncrement(ctx context.Context, orgID, tier string) error {
	limits := limitsFor(l.tiers, tier)
	now := l.now()

	pipe := l.client.TxPipeline()
	hourIncr := pipe.Incr(ctx, hourKey(orgID, now))
	pipe.Expire(ctx, hourKey(orgID, now), 2*time.Hour)
	pipe.Incr(ctx, dayKey(orgID, now))
	pipe.Expire(ctx, dayKey(orgID, now), 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("counter store unavailable, failing open",
			zap.String("org_id", orgID),
			zap.Error(err))
		return nil
	}

	count := hourIncr.Val()
	if count > int64(limits.RequestsPerHour) {
		return &QuotaExceededError{
			OrgID:   orgID,
			Tier:    tier,
			Limit:   int64(limits.RequestsPerHour),
			Current: count,
			Scope:   "requests_per_hour",
		}
	}
	return nil
}

// AddTokenUsage adds to the tenant's daily token counter. Failures are
// logged and swallowed so accounting never blocks a request.
func (l *Limiter) AddTokenUsage(ctx context.Context, orgID string, tokens int) {
	if tokens <= 0 {
		return
	}
	now := l.now()

	pipe := l.client.TxPipeline()
	pipe.IncrBy(ctx, tokenKey(orgID, now), int64(tokens))
	pipe.Expire(ctx, tokenKey(orgID, now), 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("token usage update failed",
			zap.String("org_id", orgID),
			zap.Error(err))
	}
}

// CheckTokenBudget fails with QuotaExceededError when the tenant's daily
// token counter has already crossed the tier budget. It does not reserve
// tokens; callers record consumption after the fact with AddTokenUsage.
func (l *Limiter) CheckTokenBudget(ctx context.Context, orgID, tier string) error {
	limits := limitsFor(l.tiers, tier)

	used, err := l.client.Get(ctx, tokenKey(orgID, l.now())).Int64()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		l.logger.Warn("counter store unavailable, failing open",
			zap.String("org_id", orgID),
			zap.Error(err))
		return nil
	}
	if used >= int64(limits.TokensPerDay) {
		return &QuotaExceededError{
			OrgID:   orgID,
			Tier:    tier,
			Limit:   int64(limits.TokensPerDay),
			Current: used,
			Scope:   "tokens_per_day",
		}
	}
	return nil
}

// GetUsage returns the tenant's counters for the current hour and day.
// Missing keys read as zero; store failures also read as zero with a log, in
// line with the fail-open policy.
func (l *Limiter) GetUsage(ctx context.Context, orgID string) Usage {
	now := l.now()
	usage := Usage{OrgID: orgID}

	pipe := l.client.Pipeline()
	hour := pipe.Get(ctx, hourKey(orgID, now))
	day := pipe.Get(ctx, dayKey(orgID, now))
	tokens := pipe.Get(ctx, tokenKey(orgID, now))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		l.logger.Warn("usage lookup failed",
			zap.String("org_id", orgID),
			zap.Error(err))
		return usage
	}

	usage.HourRequests, _ = hour.Int64()
	usage.DayRequests, _ = day.Int64()
	usage.DayTokens, _ = tokens.Int64()
	return usage
}
