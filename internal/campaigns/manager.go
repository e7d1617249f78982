package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/typeers/backend/internal/analytics"
	"github.com/typeers/backend/internal/audit"
	"github.com/typeers/backend/internal/locks"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
	"github.com/typeers/backend/internal/platform"
)

const (
	moderationLockTTL = 30 * time.Second
	postTitleLen      = 60
	idSlugLen         = 24
)

// TokenLedger is the part of the ledger a submission spends from.
type TokenLedger interface {
	Debit(ctx context.Context, userID string, tier models.Tier) (bool, error)
	Recredit(ctx context.Context, userID string, tier models.Tier) error
}

// Notifier is told about campaigns that just went live.
type Notifier interface {
	CampaignApproved(c *models.Campaign)
}

// RewardInput is one proposed reward in a submission.
type RewardInput struct {
	WordIndex     int               `json:"word_index"`
	Type          models.RewardType `json:"type"`
	Value         string            `json:"value"`
	Description   string            `json:"description"`
	AffiliateLink string            `json:"affiliate_link,omitempty"`
}

// SubmitRequest is a creator's campaign proposal. Every field is clamped to the
// tier's limits; nothing here is trusted as-is.
type SubmitRequest struct {
	Title        string        `json:"title"`
	BrandName    string        `json:"brand_name"`
	Message      string        `json:"message"`
	Rewards      []RewardInput `json:"rewards"`
	Tier         models.Tier   `json:"tier"`
	MaxClaims    int           `json:"max_claims"`
	DurationDays int           `json:"duration_days"`
	CommunityID  string        `json:"community_id"`
	BrandLink    string        `json:"brand_link,omitempty"`
}

// Manager runs the campaign lifecycle: submission, approval and rejection.
type Manager struct {
	store    *Store
	ledger   TokenLedger
	platform platform.ContentPlatform
	counters *analytics.Counters
	locks    *locks.LockManager
	audit    *audit.Logger
	notifier Notifier
	now      func() time.Time
}

func NewManager(store *Store, ledger TokenLedger, contentPlatform platform.ContentPlatform, counters *analytics.Counters, lockManager *locks.LockManager, auditLogger *audit.Logger) *Manager {
	return &Manager{
		store:    store,
		ledger:   ledger,
		platform: contentPlatform,
		counters: counters,
		locks:    lockManager,
		audit:    auditLogger,
		now:      time.Now,
	}
}

func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// IsAvailable reports whether players can currently play and claim c.
func (m *Manager) IsAvailable(c *models.Campaign) bool {
	return c.IsAvailable(m.now())
}

// Submit spends one tier token and stores a pending campaign. If anything
// after the debit fails, the token is returned before the error is.
func (m *Manager) Submit(ctx context.Context, creatorID string, req SubmitRequest) (*models.Campaign, error) {
	if creatorID == "" {
		return nil, models.ErrNotAuthenticated
	}
	limits, ok := models.TierLimitTable[req.Tier]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tier %q", models.ErrInvalidContent, req.Tier)
	}

	debited, err := m.ledger.Debit(ctx, creatorID, req.Tier)
	if err != nil {
		return nil, err
	}
	if !debited {
		m.audit.Log(ctx, &audit.LogEntry{UserID: creatorID, Action: audit.ActionDebit, Tier: string(req.Tier), Result: audit.ResultFailed, ErrorCode: "insufficient_tokens"})
		return nil, models.ErrInsufficientTokens
	}
	m.audit.Log(ctx, &audit.LogEntry{UserID: creatorID, Action: audit.ActionDebit, Tier: string(req.Tier), Result: audit.ResultSuccess})

	c, err := m.build(creatorID, req, limits)
	if err == nil {
		err = m.store.Create(ctx, c)
	}
	if err != nil {
		m.compensate(ctx, creatorID, req.Tier, err)
		m.audit.LogResult(ctx, &audit.LogEntry{UserID: creatorID, Action: audit.ActionSubmit, Tier: string(req.Tier)}, err, models.ErrorCode)
		return nil, err
	}

	m.audit.Log(ctx, &audit.LogEntry{
		UserID:     creatorID,
		Action:     audit.ActionSubmit,
		CampaignID: c.ID,
		Tier:       string(c.Tier),
		Result:     audit.ResultSuccess,
		Details:    map[string]interface{}{"words": len(c.Words), "rewards": len(c.RewardWords), "max_claims": c.MaxClaims},
	})
	logger.FromContext(ctx).Info().Str("campaign_id", c.ID).Str("tier", string(c.Tier)).Msg("campaign submitted")
	return c, nil
}

func (m *Manager) compensate(ctx context.Context, userID string, tier models.Tier, cause error) {
	log := logger.FromContext(ctx)
	if err := m.ledger.Recredit(ctx, userID, tier); err != nil {
		log.Error().Err(err).AnErr("cause", cause).Str("tier", string(tier)).Msg("submission compensation failed, token lost")
		m.audit.Log(ctx, &audit.LogEntry{UserID: userID, Action: audit.ActionCompensate, Tier: string(tier), Result: audit.ResultFailed, ErrorMessage: err.Error()})
		return
	}
	log.Warn().AnErr("cause", cause).Str("tier", string(tier)).Msg("submission failed, token returned")
	m.audit.Log(ctx, &audit.LogEntry{UserID: userID, Action: audit.ActionCompensate, Tier: string(tier), Result: audit.ResultSuccess})
}

// build runs the validation and clamping steps of a submission.
func (m *Manager) build(creatorID string, req SubmitRequest, limits models.TierLimits) (*models.Campaign, error) {
	words := Tokenize(req.Message)
	if len(words) < minWords {
		return nil, models.ErrInvalidContent
	}
	if len(words) > limits.MaxWords {
		words = words[:limits.MaxWords]
	}

	rewards := make(map[int]models.Reward)
	for _, r := range req.Rewards {
		if len(rewards) >= limits.MaxRewards {
			break
		}
		if r.WordIndex < 0 || r.WordIndex >= len(words) {
			continue
		}
		if _, taken := rewards[r.WordIndex]; taken {
			continue
		}
		value := strings.TrimSpace(r.Value)
		description := strings.TrimSpace(r.Description)
		if value == "" || description == "" || !r.Type.Valid() {
			continue
		}

		reward := models.Reward{
			ID:          "rw_" + uuid.NewString()[:8],
			Type:        r.Type,
			Value:       value,
			Description: description,
		}
		if limits.AffiliateLinks {
			reward.AffiliateLink = truncate(r.AffiliateLink, maxLinkLen)
		}
		rewards[r.WordIndex] = reward
	}
	if len(rewards) == 0 {
		return nil, models.ErrNoRewards
	}

	now := m.now().UTC()
	days := limits.ClampDays(req.DurationDays)

	c := &models.Campaign{
		ID:          newCampaignID(req.Title),
		Title:       truncate(req.Title, maxTitleLen),
		BrandName:   truncate(req.BrandName, maxBrandLen),
		CreatorID:   creatorID,
		CommunityID: req.CommunityID,
		Words:       words,
		RewardWords: rewards,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(days) * 24 * time.Hour),
		MaxClaims:   limits.ClampClaims(req.MaxClaims),
		ClaimCount:  0,
		Status:      models.StatusPending,
		Tier:        req.Tier,
	}
	if limits.BrandLink {
		c.BrandLink = truncate(req.BrandLink, maxLinkLen)
	}
	return c, nil
}

func newCampaignID(title string) string {
	suffix := uuid.NewString()[:8]
	s := slug.Make(title)
	if len(s) > idSlugLen {
		s = strings.Trim(s[:idSlugLen], "-")
	}
	if s == "" {
		return "gc_" + suffix
	}
	return "gc_" + s + "_" + suffix
}

// Approve publishes a pending campaign: it creates the external post, flips
// the campaign to active and initializes its analytics. The announcement
// comment is best-effort.
func (m *Manager) Approve(ctx context.Context, campaignID, moderatorID string) (*models.Campaign, error) {
	var approved *models.Campaign
	err := locks.WithLock(ctx, m.locks, locks.ResourceCampaign, campaignID, moderationLockTTL, func() error {
		c, err := m.store.Get(ctx, campaignID)
		if err != nil {
			return err
		}
		if !c.Status.CanTransitionTo(models.StatusActive) {
			return models.ErrWrongState
		}

		postID, err := m.platform.CreatePost(ctx, c.CommunityID, postTitle(c))
		if err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		if err := m.store.Activate(ctx, c, postID); err != nil {
			return err
		}
		c.Status = models.StatusActive
		c.ExternalPostID = postID
		approved = c
		return nil
	})
	if errors.Is(err, locks.ErrLockNotAcquired) {
		err = models.ErrWrongState
	}
	m.audit.LogResult(ctx, &audit.LogEntry{UserID: moderatorID, Action: audit.ActionApprove, CampaignID: campaignID}, err, models.ErrorCode)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	if err := m.counters.Init(ctx, approved.ID); err != nil {
		log.Warn().Err(err).Str("campaign_id", approved.ID).Msg("analytics init failed")
	}
	if err := m.platform.PostComment(ctx, approved.ExternalPostID, announcement(approved)); err != nil {
		log.Warn().Err(err).Str("campaign_id", approved.ID).Msg("announcement comment failed")
	}
	if m.notifier != nil {
		m.notifier.CampaignApproved(approved)
	}

	log.Info().Str("campaign_id", approved.ID).Str("post_id", approved.ExternalPostID).Msg("campaign approved")
	return approved, nil
}

// Reject moves a pending campaign to its terminal rejected state.
func (m *Manager) Reject(ctx context.Context, campaignID, moderatorID string) error {
	err := locks.WithLock(ctx, m.locks, locks.ResourceCampaign, campaignID, moderationLockTTL, func() error {
		return m.store.Reject(ctx, campaignID)
	})
	if errors.Is(err, locks.ErrLockNotAcquired) {
		err = models.ErrWrongState
	}
	m.audit.LogResult(ctx, &audit.LogEntry{UserID: moderatorID, Action: audit.ActionReject, CampaignID: campaignID}, err, models.ErrorCode)
	if err == nil {
		logger.FromContext(ctx).Info().Str("campaign_id", campaignID).Msg("campaign rejected")
	}
	return err
}

func postTitle(c *models.Campaign) string {
	return fmt.Sprintf("✨ Golden Challenge: %s by %s", truncate(c.Title, postTitleLen), c.BrandName)
}

func announcement(c *models.Campaign) string {
	return fmt.Sprintf("✨ **Golden Challenge by %s!** Type %d words and discover hidden rewards! %d rewards are hidden in the message. Can you find them all? 🎁",
		c.BrandName, len(c.Words), len(c.RewardWords))
}
