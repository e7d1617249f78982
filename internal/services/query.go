package services

import (
	"context"
	"errors"
	"time"

	"github.com/typeers/backend/internal/analytics"
	"github.com/typeers/backend/internal/campaigns"
	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/ledger"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
	"github.com/typeers/backend/internal/rewards"
)

const maxListing = 100

// Listings stop paging through an index after this many entries even when
// fewer than the requested number were available.
const maxScan = 1000

// QueryService serves the read-only projections. Store failures are logged
// and degrade to empty results.
type QueryService struct {
	store    *campaigns.Store
	counters *analytics.Counters
	ledger   *ledger.Ledger
	engine   *rewards.Engine
	now      func() time.Time
}

func NewQueryService(store *campaigns.Store, counters *analytics.Counters, l *ledger.Ledger, engine *rewards.Engine) *QueryService {
	return &QueryService{store: store, counters: counters, ledger: l, engine: engine, now: time.Now}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListing {
		return maxListing
	}
	return limit
}

func (s *QueryService) load(ctx context.Context, index string, limit int) []*models.Campaign {
	ids, err := s.store.IDs(ctx, index, limit)
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("index", index).Msg("listing failed")
		return nil
	}
	return s.fetch(ctx, ids)
}

func (s *QueryService) fetch(ctx context.Context, ids []string) []*models.Campaign {
	out := make([]*models.Campaign, 0, len(ids))
	for _, id := range ids {
		c, err := s.store.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				logger.FromContext(ctx).Warn().Err(err).Str("campaign_id", id).Msg("listing skipped campaign")
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// available pages through index until limit playable campaigns are found.
// Exhausted and expired entries linger until the sweep removes them.
func (s *QueryService) available(ctx context.Context, index string, limit int) []models.CampaignSummary {
	limit = clampLimit(limit)
	now := s.now()
	out := []models.CampaignSummary{}

	for offset := 0; offset < maxScan; offset += limit {
		ids, err := s.store.Page(ctx, index, offset, limit)
		if err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("index", index).Msg("listing failed")
			return out
		}
		for _, c := range s.fetch(ctx, ids) {
			if c.IsAvailable(now) {
				out = append(out, c.Summary())
				if len(out) == limit {
					return out
				}
			}
		}
		if len(ids) < limit {
			break
		}
	}
	return out
}

// ActiveCampaigns lists playable campaigns, newest first.
func (s *QueryService) ActiveCampaigns(ctx context.Context, limit int) []models.CampaignSummary {
	return s.available(ctx, keys.ActiveIndex(), limit)
}

// CommunityCampaigns lists playable campaigns of one community, newest first.
func (s *QueryService) CommunityCampaigns(ctx context.Context, communityID string, limit int) []models.CampaignSummary {
	return s.available(ctx, keys.CommunityIndex(communityID), limit)
}

// PendingCampaigns lists campaigns awaiting review. Moderators see reward
// values so they can vet them.
func (s *QueryService) PendingCampaigns(ctx context.Context, limit int) []*models.Campaign {
	out := []*models.Campaign{}
	for _, c := range s.load(ctx, keys.PendingIndex(), clampLimit(limit)) {
		if c.Status == models.StatusPending {
			out = append(out, c)
		}
	}
	return out
}

// PublicCampaign is the player view of one campaign.
func (s *QueryService) PublicCampaign(ctx context.Context, campaignID string) (*models.PublicCampaign, error) {
	c, err := s.store.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	view := c.Public()
	return &view, nil
}

// PlayerCampaign is what a player needs to render a campaign post.
type PlayerCampaign struct {
	Campaign       models.PublicCampaign `json:"campaign"`
	Available      bool                  `json:"available"`
	HasPlayed      bool                  `json:"has_played"`
	ClaimedIndices []int                 `json:"claimed_indices"`
}

// CampaignForPost resolves the campaign behind an external post. userID may
// be empty for anonymous viewers.
func (s *QueryService) CampaignForPost(ctx context.Context, postID, userID string) (*PlayerCampaign, error) {
	id, err := s.store.IDForPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &PlayerCampaign{
		Campaign:       c.Public(),
		Available:      c.IsAvailable(s.now()),
		ClaimedIndices: []int{},
	}
	if userID != "" {
		out.HasPlayed, _ = s.engine.HasPlayed(ctx, c.ID, userID)
		if claimed, err := s.engine.ClaimedIndices(ctx, c.ID, userID); err == nil {
			out.ClaimedIndices = claimed
		}
	}
	return out, nil
}

// CreatorCampaign joins a creator's campaign with its counters.
type CreatorCampaign struct {
	models.CampaignSummary
	Available         bool                 `json:"available"`
	Analytics         models.Analytics     `json:"analytics"`
	LinkAnalytics     models.LinkAnalytics `json:"link_analytics"`
	HasAffiliateLinks bool                 `json:"has_affiliate_links"`
}

type DashboardTotals struct {
	Campaigns   int   `json:"campaigns"`
	Active      int   `json:"active"`
	Plays       int64 `json:"plays"`
	Completions int64 `json:"completions"`
	Claims      int64 `json:"claims"`
	LinkClicks  int64 `json:"link_clicks"`
}

type CreatorDashboard struct {
	IsCreator bool                `json:"is_creator"`
	Balance   models.TokenBalance `json:"balance"`
	Totals    DashboardTotals     `json:"totals"`
	Campaigns []CreatorCampaign   `json:"campaigns"`
}

// Dashboard returns the creator's campaigns with joined analytics and
// their token balance.
func (s *QueryService) Dashboard(ctx context.Context, userID string) *CreatorDashboard {
	d := &CreatorDashboard{Campaigns: []CreatorCampaign{}}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("balance unavailable for dashboard")
	}
	d.Balance = balance

	now := s.now()
	for _, c := range s.load(ctx, keys.CreatorIndex(userID), 0) {
		if c.CreatorID != userID {
			continue
		}
		row := CreatorCampaign{
			CampaignSummary:   c.Summary(),
			Available:         c.IsAvailable(now),
			HasAffiliateLinks: c.HasAffiliateLinks(),
		}
		if a, err := s.counters.Get(ctx, c.ID); err == nil {
			row.Analytics = a
		}
		if l, err := s.counters.Links(ctx, c); err == nil {
			row.LinkAnalytics = l
		}

		d.Totals.Campaigns++
		if row.Available {
			d.Totals.Active++
		}
		d.Totals.Plays += row.Analytics.Plays
		d.Totals.Completions += row.Analytics.Completions
		d.Totals.Claims += row.Analytics.TotalClaims
		d.Totals.LinkClicks += row.LinkAnalytics.BrandLinkClicks
		d.Campaigns = append(d.Campaigns, row)
	}
	d.IsCreator = d.Totals.Campaigns > 0
	return d
}

// CampaignAnalytics returns one campaign's counters to its creator. Other
// callers get models.ErrNotFound.
func (s *QueryService) CampaignAnalytics(ctx context.Context, campaignID, userID string) (*CreatorCampaign, error) {
	if userID == "" {
		return nil, models.ErrNotAuthenticated
	}
	c, err := s.store.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.CreatorID != userID {
		return nil, models.ErrNotFound
	}

	row := &CreatorCampaign{
		CampaignSummary:   c.Summary(),
		Available:         c.IsAvailable(s.now()),
		HasAffiliateLinks: c.HasAffiliateLinks(),
	}
	if row.Analytics, err = s.counters.Get(ctx, c.ID); err != nil {
		return nil, err
	}
	if row.LinkAnalytics, err = s.counters.Links(ctx, c); err != nil {
		return nil, err
	}
	return row, nil
}

// Vault lists the player's vault; empty on failure.
func (s *QueryService) Vault(ctx context.Context, userID string) []models.VaultItem {
	items, err := s.engine.Vault().List(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("vault unavailable")
		return []models.VaultItem{}
	}
	return items
}

// Balance returns the caller's token balance.
func (s *QueryService) Balance(ctx context.Context, userID string) (models.TokenBalance, error) {
	if userID == "" {
		return nil, models.ErrNotAuthenticated
	}
	return s.ledger.Balance(ctx, userID)
}
