package analytics

import (
	"context"
	"net/url"

	"github.com/go-redis/redis/v8"

	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
)

const utmMedium = "golden_challenge"

// Attribution appends UTM parameters to outbound links.
type Attribution struct {
	Source string
}

// Apply returns link with the campaign (and reward, if any) attribution set.
// Links that are not absolute URLs are returned unchanged.
func (a Attribution) Apply(link, campaignID, rewardID string) string {
	u, err := url.Parse(link)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return link
	}

	q := u.Query()
	q.Set("utm_source", a.Source)
	q.Set("utm_medium", utmMedium)
	q.Set("utm_campaign", campaignID)
	if rewardID != "" {
		q.Set("utm_content", rewardID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// TrackBrandClick counts a brand link click and returns the attributed
// destination. Campaigns without a brand link return models.ErrNotFound.
func (c *Counters) TrackBrandClick(ctx context.Context, attr Attribution, campaign *models.Campaign) (string, error) {
	if campaign.BrandLink == "" {
		return "", models.ErrNotFound
	}

	if err := c.redis.HIncrBy(ctx, keys.LinkClicks(campaign.ID), fieldBrandClicks, 1).Err(); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("campaign_id", campaign.ID).Msg("brand click not counted")
	}
	return attr.Apply(campaign.BrandLink, campaign.ID, ""), nil
}

// TrackAffiliateClick counts a click on a reward's affiliate link. Affiliate
// clicks also count towards the campaign's total link clicks.
func (c *Counters) TrackAffiliateClick(ctx context.Context, attr Attribution, campaign *models.Campaign, rewardID string) (string, error) {
	_, reward, ok := campaign.RewardByID(rewardID)
	if !ok || reward.AffiliateLink == "" {
		return "", models.ErrNotFound
	}

	key := keys.LinkClicks(campaign.ID)
	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, affiliateFieldPrefix+rewardID, 1)
		pipe.HIncrBy(ctx, key, fieldBrandClicks, 1)
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("campaign_id", campaign.ID).Str("reward_id", rewardID).Msg("affiliate click not counted")
	}
	return attr.Apply(reward.AffiliateLink, campaign.ID, rewardID), nil
}
