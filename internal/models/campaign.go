package models

import (
	"sort"
	"time"
)

// CampaignStatus is the stored lifecycle state of a campaign. Expiry and
// exhaustion are derived from the clock and the claim counter, never stored.
type CampaignStatus string

const (
	StatusPending  CampaignStatus = "pending"
	StatusActive   CampaignStatus = "active"
	StatusRejected CampaignStatus = "rejected"
)

// CanTransitionTo reports whether moving from s to next is a legal transition.
// Only pending campaigns move, and only to active or rejected.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	return s == StatusPending && (next == StatusActive || next == StatusRejected)
}

type RewardType string

const (
	RewardTypeCoupon   RewardType = "coupon"
	RewardTypeSecret   RewardType = "secret"
	RewardTypeGiveaway RewardType = "giveaway"
	RewardTypeMessage  RewardType = "message"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardTypeCoupon, RewardTypeSecret, RewardTypeGiveaway, RewardTypeMessage:
		return true
	}
	return false
}

// Reward is a hidden prize attached to one word position.
type Reward struct {
	ID            string     `json:"id"`
	Type          RewardType `json:"type"`
	Value         string     `json:"value,omitempty"` // secret payload, only revealed after claim
	Description   string     `json:"description"`     // public teaser
	AffiliateLink string     `json:"affiliate_link,omitempty"`
}

// Campaign is a brand-sponsored typing challenge with hidden rewards.
type Campaign struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	BrandName   string `json:"brand_name"`
	CreatorID   string `json:"creator_id"`
	CommunityID string `json:"community_id"`

	Words       []string       `json:"words"`
	RewardWords map[int]Reward `json:"reward_words"` // word index -> reward

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	MaxClaims  int `json:"max_claims"`
	ClaimCount int `json:"claim_count"`

	Status         CampaignStatus `json:"status"`
	Tier           Tier           `json:"tier"`
	ExternalPostID string         `json:"external_post_id,omitempty"`
	BrandLink      string         `json:"brand_link,omitempty"`
}

// IsExpired reports whether the campaign window has closed at now.
func (c *Campaign) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *Campaign) IsExhausted() bool {
	return c.ClaimCount >= c.MaxClaims
}

// IsAvailable is the effective availability of a campaign: active, inside its
// window and below its claim cap.
func (c *Campaign) IsAvailable(now time.Time) bool {
	return c.Status == StatusActive && !c.IsExpired(now) && !c.IsExhausted()
}

// RewardIndices returns the reward-bearing word indices in ascending order.
func (c *Campaign) RewardIndices() []int {
	indices := make([]int, 0, len(c.RewardWords))
	for idx := range c.RewardWords {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// RewardByID finds a reward and its word index by reward id.
func (c *Campaign) RewardByID(rewardID string) (int, Reward, bool) {
	for idx, r := range c.RewardWords {
		if r.ID == rewardID {
			return idx, r, true
		}
	}
	return 0, Reward{}, false
}

func (c *Campaign) HasAffiliateLinks() bool {
	for _, r := range c.RewardWords {
		if r.AffiliateLink != "" {
			return true
		}
	}
	return false
}

// RewardTeaser is what players see of a reward before claiming it.
type RewardTeaser struct {
	ID          string     `json:"id"`
	Type        RewardType `json:"type"`
	Description string     `json:"description"`
}

func (r Reward) Teaser() RewardTeaser {
	return RewardTeaser{ID: r.ID, Type: r.Type, Description: r.Description}
}

// PublicCampaign is the player-facing view of a campaign. It carries neither
// reward values nor the word positions rewards are attached to.
type PublicCampaign struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	BrandName         string         `json:"brand_name"`
	CommunityID       string         `json:"community_id"`
	Words             []string       `json:"words"`
	Rewards           []RewardTeaser `json:"rewards"`
	CreatedAt         time.Time      `json:"created_at"`
	ExpiresAt         time.Time      `json:"expires_at"`
	MaxClaims         int            `json:"max_claims"`
	ClaimCount        int            `json:"claim_count"`
	Status            CampaignStatus `json:"status"`
	Tier              Tier           `json:"tier"`
	ExternalPostID    string         `json:"external_post_id,omitempty"`
	HasBrandLink      bool           `json:"has_brand_link"`
	HasAffiliateLinks bool           `json:"has_affiliate_links"`
}

func (c *Campaign) Public() PublicCampaign {
	out := PublicCampaign{
		ID:                c.ID,
		Title:             c.Title,
		BrandName:         c.BrandName,
		CommunityID:       c.CommunityID,
		Words:             append([]string(nil), c.Words...),
		Rewards:           make([]RewardTeaser, 0, len(c.RewardWords)),
		CreatedAt:         c.CreatedAt,
		ExpiresAt:         c.ExpiresAt,
		MaxClaims:         c.MaxClaims,
		ClaimCount:        c.ClaimCount,
		Status:            c.Status,
		Tier:              c.Tier,
		ExternalPostID:    c.ExternalPostID,
		HasBrandLink:      c.BrandLink != "",
		HasAffiliateLinks: c.HasAffiliateLinks(),
	}
	for _, idx := range c.RewardIndices() {
		out.Rewards = append(out.Rewards, c.RewardWords[idx].Teaser())
	}
	return out
}

// CampaignSummary is the listing projection of a campaign.
type CampaignSummary struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	BrandName   string         `json:"brand_name"`
	CreatorID   string         `json:"creator_id"`
	CommunityID string         `json:"community_id"`
	WordCount   int            `json:"word_count"`
	RewardCount int            `json:"reward_count"`
	Tier        Tier           `json:"tier"`
	ClaimCount  int            `json:"claim_count"`
	MaxClaims   int            `json:"max_claims"`
	Status      CampaignStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

func (c *Campaign) Summary() CampaignSummary {
	return CampaignSummary{
		ID:          c.ID,
		Title:       c.Title,
		BrandName:   c.BrandName,
		CreatorID:   c.CreatorID,
		CommunityID: c.CommunityID,
		WordCount:   len(c.Words),
		RewardCount: len(c.RewardWords),
		Tier:        c.Tier,
		ClaimCount:  c.ClaimCount,
		MaxClaims:   c.MaxClaims,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		ExpiresAt:   c.ExpiresAt,
	}
}

// VaultItem is one claimed reward in a player's vault.
type VaultItem struct {
	ID            string    `json:"id"`
	Reward        Reward    `json:"reward"`
	CampaignID    string    `json:"campaign_id"`
	CampaignTitle string    `json:"campaign_title"`
	BrandName     string    `json:"brand_name"`
	ClaimedAt     time.Time `json:"claimed_at"`
	Redeemed      bool      `json:"redeemed"`
}

// FulfillmentRecord marks an external order as credited. Its existence is the
// idempotency guard for payment callbacks.
type FulfillmentRecord struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Tier        Tier      `json:"tier"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

type Analytics struct {
	Plays       int64   `json:"plays"`
	Completions int64   `json:"completions"`
	TotalClaims int64   `json:"total_claims"`
	ClaimRate   float64 `json:"claim_rate"`
}

type LinkAnalytics struct {
	BrandLinkClicks int64            `json:"brand_link_clicks"`
	AffiliateClicks map[string]int64 `json:"affiliate_clicks"` // reward id -> clicks
}
