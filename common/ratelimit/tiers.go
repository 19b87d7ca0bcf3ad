package ratelimit

// Tier classifies authenticated API traffic by cost. Ledger submissions
// serialize on a single wallet session, so they get the tightest budget.
type Tier string

const (
	// TierRead covers catalog and history reads
	TierRead Tier = "read"
	// TierSubmit covers operations that broadcast ledger transactions
	TierSubmit Tier = "submit"
)

// TierConfig defines rate limits for each traffic tier
type TierConfig struct {
	Tier          Tier
	Limit         int64  // Requests allowed per window
	WindowSeconds int    // Time window in seconds
	Description   string // Human-readable description
}

// Default tier configurations
var DefaultTierConfigs = map[Tier]TierConfig{
	TierRead: {
		Tier:          TierRead,
		Limit:         300,
		WindowSeconds: 60,
		Description:   "Catalog and history reads - 300 requests/minute",
	},
	TierSubmit: {
		Tier:          TierSubmit,
		Limit:         10,
		WindowSeconds: 60,
		Description:   "Ledger-writing operations - 10 requests/minute",
	},
}

// GetLimitForTier returns the rate limit for a given tier
func GetLimitForTier(tier Tier) int64 {
	if config, exists := DefaultTierConfigs[tier]; exists {
		return config.Limit
	}
	// Fallback to most restrictive tier
	return DefaultTierConfigs[TierSubmit].Limit
}

// GetWindowForTier returns the time window for a given tier
func GetWindowForTier(tier Tier) int {
	if config, exists := DefaultTierConfigs[tier]; exists {
		return config.WindowSeconds
	}
	return DefaultTierConfigs[TierSubmit].WindowSeconds
}

// GetAllTiers returns all configured tiers for documentation/API responses
func GetAllTiers() []TierConfig {
	return []TierConfig{
		DefaultTierConfigs[TierRead],
		DefaultTierConfigs[TierSubmit],
	}
}
