// Package rewards hands out per-session shuffled reward positions and
// records claims against the campaign-wide cap.
package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/typeers/backend/internal/analytics"
	"github.com/typeers/backend/internal/audit"
	"github.com/typeers/backend/internal/campaigns"
	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
)

// Play and completion markers outlive the longest campaign window.
const playRecordTTL = 120 * 24 * time.Hour

// claimScript re-checks availability and records a claim in one step:
// per-user claim set, capped campaign counter and vault append. Only
// players holding a play record may claim.
// Returns the new claim count, or -1 missing, -2 not active, -3 already
// claimed, -4 exhausted, -5 never played.
var claimScript = redis.NewScript(`
	local h = redis.call('HMGET', KEYS[1], 'status', 'expires_at', 'claim_count', 'max_claims')
	if not h[1] then
		return -1
	end
	if h[1] ~= 'active' or tonumber(h[2]) <= tonumber(ARGV[2]) then
		return -2
	end
	if redis.call('EXISTS', KEYS[4]) == 0 then
		return -5
	end
	if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
		return -3
	end
	if tonumber(h[3]) >= tonumber(h[4]) then
		return -4
	end
	redis.call('SADD', KEYS[2], ARGV[1])
	local n = redis.call('HINCRBY', KEYS[1], 'claim_count', 1)
	redis.call('RPUSH', KEYS[3], ARGV[3])
	return n
`)

// playScript sets the play marker once and, when a session key is given,
// stores the session alongside it so neither exists without the other.
// Returns 0 if the marker was already set.
var playScript = redis.NewScript(`
	if not redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
		return 0
	end
	if KEYS[2] then
		redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[4])
	end
	return 1
`)

// Notifier is told about successful claims.
type Notifier interface {
	RewardClaimed(c *models.Campaign, claimCount int)
}

// Session is a server-held shuffle for one player's single play.
type Session struct {
	ID         string      `json:"id"`
	CampaignID string      `json:"campaign_id"`
	UserID     string      `json:"user_id"`
	Positions  []int       `json:"positions"`
	Mapping    map[int]int `json:"mapping"` // shuffled position -> original reward index
	StartedAt  time.Time   `json:"started_at"`
}

// SessionView is what a player receives when starting a session.
type SessionView struct {
	SessionID string                      `json:"session_id"`
	Campaign  models.PublicCampaign       `json:"campaign"`
	Positions []int                       `json:"positions"`
	Mapping   map[int]int                 `json:"mapping"`
	Teasers   map[int]models.RewardTeaser `json:"teasers"` // by shuffled position
}

type Engine struct {
	redis      *redis.Client
	store      *campaigns.Store
	counters   *analytics.Counters
	vault      *Vault
	audit      *audit.Logger
	notifier   Notifier
	sessionTTL time.Duration
	intn       func(int) int
	now        func() time.Time
}

func NewEngine(redisClient *redis.Client, store *campaigns.Store, counters *analytics.Counters, vault *Vault, auditLogger *audit.Logger, sessionTTL time.Duration) *Engine {
	if sessionTTL <= 0 {
		sessionTTL = 2 * time.Hour
	}
	return &Engine{
		redis:      redisClient,
		store:      store,
		counters:   counters,
		vault:      vault,
		audit:      auditLogger,
		sessionTTL: sessionTTL,
		intn:       cryptoIntn,
		now:        time.Now,
	}
}

func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Vault exposes the player vault the engine writes into.
func (e *Engine) Vault() *Vault {
	return e.vault
}

// Claim grants the reward at originalIndex to userID, at most once per user
// and within the campaign's claim cap.
func (e *Engine) Claim(ctx context.Context, campaignID, userID string, originalIndex int) (models.Reward, error) {
	reward, err := e.claim(ctx, campaignID, userID, originalIndex)
	e.audit.LogResult(ctx, &audit.LogEntry{
		UserID:     userID,
		Action:     audit.ActionClaim,
		CampaignID: campaignID,
		TargetID:   strconv.Itoa(originalIndex),
	}, err, models.ErrorCode)
	return reward, err
}

func (e *Engine) claim(ctx context.Context, campaignID, userID string, originalIndex int) (models.Reward, error) {
	if userID == "" {
		return models.Reward{}, models.ErrNotAuthenticated
	}

	c, err := e.store.Get(ctx, campaignID)
	if err != nil {
		return models.Reward{}, err
	}
	now := e.now()
	if c.Status != models.StatusActive || c.IsExpired(now) {
		return models.Reward{}, models.ErrNotActive
	}
	reward, ok := c.RewardWords[originalIndex]
	if !ok {
		return models.Reward{}, models.ErrNoReward
	}

	_, raw, err := e.vault.newItem(c, reward, now)
	if err != nil {
		return models.Reward{}, fmt.Errorf("vault item: %w", err)
	}

	res, err := claimScript.Run(ctx, e.redis,
		[]string{keys.Campaign(c.ID), keys.Claimed(c.ID, userID), keys.VaultItems(userID), keys.Played(c.ID, userID)},
		originalIndex, now.UnixMilli(), raw,
	).Int64()
	if err != nil {
		return models.Reward{}, fmt.Errorf("claim: %w", err)
	}

	switch res {
	case -1:
		return models.Reward{}, models.ErrNotFound
	case -2:
		return models.Reward{}, models.ErrNotActive
	case -3:
		return models.Reward{}, models.ErrAlreadyClaimed
	case -4:
		return models.Reward{}, models.ErrExhausted
	case -5:
		return models.Reward{}, models.ErrNotPlayed
	}

	if err := e.counters.IncrClaims(ctx, c.ID); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("campaign_id", c.ID).Msg("claim counter not updated")
	}
	if e.notifier != nil {
		e.notifier.RewardClaimed(c, int(res))
	}
	return reward, nil
}

// RecordPlayStart marks userID as having started campaignID. It returns
// false if they already had.
func (e *Engine) RecordPlayStart(ctx context.Context, campaignID, userID string) (bool, error) {
	return e.markPlayed(ctx, campaignID, userID, nil)
}

// markPlayed writes the play marker and the optional session atomically.
func (e *Engine) markPlayed(ctx context.Context, campaignID, userID string, session *Session) (bool, error) {
	keyList := []string{keys.Played(campaignID, userID)}
	args := []interface{}{e.now().UnixMilli(), playRecordTTL.Milliseconds()}
	if session != nil {
		raw, err := json.Marshal(session)
		if err != nil {
			return false, err
		}
		keyList = append(keyList, keys.Session(session.ID))
		args = append(args, raw, e.sessionTTL.Milliseconds())
	}

	res, err := playScript.Run(ctx, e.redis, keyList, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("record play: %w", err)
	}
	if res == 0 {
		return false, nil
	}
	if err := e.counters.IncrPlays(ctx, campaignID); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("campaign_id", campaignID).Msg("play counter not updated")
	}
	return true, nil
}

func (e *Engine) HasPlayed(ctx context.Context, campaignID, userID string) (bool, error) {
	n, err := e.redis.Exists(ctx, keys.Played(campaignID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimedIndices lists the original reward indices userID has claimed.
func (e *Engine) ClaimedIndices(ctx context.Context, campaignID, userID string) ([]int, error) {
	members, err := e.redis.SMembers(ctx, keys.Claimed(campaignID, userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(members))
	for _, m := range members {
		if idx, err := strconv.Atoi(m); err == nil {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out, nil
}

// StartSession records the player's single play and deals them a fresh
// shuffle of reward positions.
func (e *Engine) StartSession(ctx context.Context, campaignID, userID string) (*SessionView, error) {
	if userID == "" {
		return nil, models.ErrNotAuthenticated
	}

	c, err := e.store.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if !c.IsAvailable(now) {
		if c.Status == models.StatusActive && !c.IsExpired(now) {
			return nil, models.ErrExhausted
		}
		return nil, models.ErrNotActive
	}

	positions, mapping := Shuffle(len(c.Words), c.RewardIndices(), e.intn)
	session := &Session{
		ID:         "gs_" + uuid.NewString(),
		CampaignID: c.ID,
		UserID:     userID,
		Positions:  positions,
		Mapping:    mapping,
		StartedAt:  now.UTC(),
	}
	first, err := e.markPlayed(ctx, c.ID, userID, session)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, models.ErrAlreadyPlayed
	}

	teasers := make(map[int]models.RewardTeaser, len(mapping))
	for pos, orig := range mapping {
		teasers[pos] = c.RewardWords[orig].Teaser()
	}

	return &SessionView{
		SessionID: session.ID,
		Campaign:  c.Public(),
		Positions: positions,
		Mapping:   mapping,
		Teasers:   teasers,
	}, nil
}

func (e *Engine) session(ctx context.Context, sessionID, userID string) (*Session, error) {
	raw, err := e.redis.Get(ctx, keys.Session(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.UserID != userID {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

// ClaimFromSession resolves a shuffled position through the session's
// mapping and claims the underlying reward.
func (e *Engine) ClaimFromSession(ctx context.Context, sessionID, userID string, position int) (models.Reward, error) {
	if userID == "" {
		return models.Reward{}, models.ErrNotAuthenticated
	}
	s, err := e.session(ctx, sessionID, userID)
	if err != nil {
		return models.Reward{}, err
	}
	orig, ok := s.Mapping[position]
	if !ok {
		return models.Reward{}, models.ErrNoReward
	}
	return e.Claim(ctx, s.CampaignID, userID, orig)
}

// FinishSession counts a completed play once per player.
func (e *Engine) FinishSession(ctx context.Context, campaignID, userID string, completed bool) (bool, error) {
	if userID == "" {
		return false, models.ErrNotAuthenticated
	}
	if !completed {
		return false, nil
	}
	return e.counters.RecordCompletion(ctx, campaignID, userID, playRecordTTL)
}

// Redeem reveals a vault item's value.
func (e *Engine) Redeem(ctx context.Context, userID, itemID string) (models.VaultItem, error) {
	if userID == "" {
		return models.VaultItem{}, models.ErrNotAuthenticated
	}
	item, flipped, err := e.vault.Redeem(ctx, userID, itemID)
	if err == nil && !flipped {
		return item, nil
	}
	e.audit.LogResult(ctx, &audit.LogEntry{
		UserID:     userID,
		Action:     audit.ActionRedeem,
		CampaignID: item.CampaignID,
		TargetID:   itemID,
	}, err, models.ErrorCode)
	return item, err
}
