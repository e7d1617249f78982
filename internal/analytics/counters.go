// Package analytics keeps per-campaign play, completion, claim and link-click
// counters. Counters are monotonic and best-effort: callers log failures and
// carry on.
package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/models"
)

const (
	fieldPlays       = "plays"
	fieldCompletions = "completions"
	fieldTotalClaims = "totalClaims"

	fieldBrandClicks     = "brand"
	affiliateFieldPrefix = "aff:"
)

// completeScript counts a completion once per player, and only for players
// who actually started the campaign.
var completeScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	if redis.call('SET', KEYS[2], '1', 'NX', 'PX', ARGV[1]) == false then
		return 0
	end
	redis.call('HINCRBY', KEYS[3], 'completions', 1)
	return 1
`)

type Counters struct {
	redis *redis.Client
}

func NewCounters(redisClient *redis.Client) *Counters {
	return &Counters{redis: redisClient}
}

// Init creates the counters of a freshly approved campaign without clobbering
// any that already exist.
func (c *Counters) Init(ctx context.Context, campaignID string) error {
	key := keys.Analytics(campaignID)
	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldPlays, 0)
		pipe.HSetNX(ctx, key, fieldCompletions, 0)
		pipe.HSetNX(ctx, key, fieldTotalClaims, 0)
		return nil
	})
	return err
}

func (c *Counters) IncrPlays(ctx context.Context, campaignID string) error {
	return c.redis.HIncrBy(ctx, keys.Analytics(campaignID), fieldPlays, 1).Err()
}

func (c *Counters) IncrClaims(ctx context.Context, campaignID string) error {
	return c.redis.HIncrBy(ctx, keys.Analytics(campaignID), fieldTotalClaims, 1).Err()
}

// RecordCompletion increments completions for a player's finished run. It
// returns false when the player never started the campaign or was already
// counted.
func (c *Counters) RecordCompletion(ctx context.Context, campaignID, userID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	res, err := completeScript.Run(ctx, c.redis,
		[]string{
			keys.Played(campaignID, userID),
			keys.Finished(campaignID, userID),
			keys.Analytics(campaignID),
		},
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("record completion: %w", err)
	}
	return res == 1, nil
}

// Get returns the counters of a campaign. Missing counters read as zero.
func (c *Counters) Get(ctx context.Context, campaignID string) (models.Analytics, error) {
	raw, err := c.redis.HGetAll(ctx, keys.Analytics(campaignID)).Result()
	if err != nil {
		return models.Analytics{}, fmt.Errorf("analytics: %w", err)
	}

	a := models.Analytics{
		Plays:       parseCount(raw[fieldPlays]),
		Completions: parseCount(raw[fieldCompletions]),
		TotalClaims: parseCount(raw[fieldTotalClaims]),
	}
	if a.Plays > 0 {
		a.ClaimRate = float64(a.TotalClaims) / float64(a.Plays)
	}
	return a, nil
}

// Links returns the link-click counters of a campaign.
func (c *Counters) Links(ctx context.Context, campaign *models.Campaign) (models.LinkAnalytics, error) {
	out := models.LinkAnalytics{AffiliateClicks: map[string]int64{}}

	raw, err := c.redis.HGetAll(ctx, keys.LinkClicks(campaign.ID)).Result()
	if err != nil {
		return out, fmt.Errorf("link analytics: %w", err)
	}

	out.BrandLinkClicks = parseCount(raw[fieldBrandClicks])
	for _, r := range campaign.RewardWords {
		if r.AffiliateLink == "" {
			continue
		}
		out.AffiliateClicks[r.ID] = parseCount(raw[affiliateFieldPrefix+r.ID])
	}
	return out, nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
