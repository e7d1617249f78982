package models

// Tier is a pricing/capability level, purchased as a token.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
	TierTop      Tier = "top"
)

// Tiers lists every tier in ascending order of capability.
var Tiers = []Tier{TierStandard, TierPremium, TierTop}

func (t Tier) Valid() bool {
	_, ok := TierLimitTable[t]
	return ok
}

// TierLimits are the ceilings a campaign of a tier is clamped to at creation.
type TierLimits struct {
	MaxWords       int  `json:"max_words"`
	MaxRewards     int  `json:"max_rewards"`
	MaxClaims      int  `json:"max_claims"`
	MaxDays        int  `json:"max_days"`
	BrandLink      bool `json:"brand_link"`
	AffiliateLinks bool `json:"affiliate_links"`
}

var TierLimitTable = map[Tier]TierLimits{
	TierStandard: {MaxWords: 15, MaxRewards: 3, MaxClaims: 100, MaxDays: 7},
	TierPremium:  {MaxWords: 25, MaxRewards: 6, MaxClaims: 500, MaxDays: 30, BrandLink: true},
	TierTop:      {MaxWords: 30, MaxRewards: 10, MaxClaims: 2000, MaxDays: 90, BrandLink: true, AffiliateLinks: true},
}

// ClampClaims bounds a requested claim cap to [1, MaxClaims].
func (l TierLimits) ClampClaims(n int) int {
	return clamp(n, 1, l.MaxClaims)
}

// ClampDays bounds a requested duration to [1, MaxDays].
func (l TierLimits) ClampDays(n int) int {
	return clamp(n, 1, l.MaxDays)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// TokenBalance maps each tier to the number of unspent tokens.
type TokenBalance map[Tier]int64
