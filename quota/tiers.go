// Package quota enforces per-tenant usage limits against a shared Redis
// counter store so every gateway process sees the same totals.
package quota

// TierLimits holds the per-tier quota configuration.
type TierLimits struct {
	RequestsPerHour int `yaml:"requests_per_hour" json:"requests_per_hour"`
	TokensPerDay    int `yaml:"tokens_per_day" json:"tokens_per_day"`
}

// DefaultTiers returns the built-in tier table. Deployments may override it
// through configuration.
func DefaultTiers() map[string]TierLimits {
	return map[string]TierLimits{
		"free":       {RequestsPerHour: 50, TokensPerDay: 100_000},
		"starter":    {RequestsPerHour: 500, TokensPerDay: 1_000_000},
		"pro":        {RequestsPerHour: 2_000, TokensPerDay: 5_000_000},
		"enterprise": {RequestsPerHour: 10_000, TokensPerDay: 50_000_000},
	}
}

// limitsFor resolves a tier name, falling back to free for unknown tiers so
// an unmapped tenant gets the most conservative limits.
func limitsFor(tiers map[string]TierLimits, tier string) TierLimits {
	if t, ok := tiers[tier]; ok {
		return t
	}
	return tiers["free"]
}

// Limits returns the effective limits for a tier, applying the free
// fallback for unknown tiers.
func (l *Limiter) Limits(tier string) TierLimits {
	return limitsFor(l.tiers, tier)
}
