package campaigns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/models"
	"github.com/typeers/backend/internal/secrets"
)

// Hash fields of a campaign record. Everything that changes after creation
// lives outside the JSON doc so it can be updated by single-key scripts.
const (
	fieldDoc        = "doc"
	fieldStatus     = "status"
	fieldClaimCount = "claim_count"
	fieldMaxClaims  = "max_claims"
	fieldExpiresAt  = "expires_at"
	fieldPostID     = "post_id"
)

// document is the immutable part of a campaign.
type document struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	BrandName   string                `json:"brand_name"`
	CreatorID   string                `json:"creator_id"`
	CommunityID string                `json:"community_id"`
	Words       []string              `json:"words"`
	RewardWords map[int]models.Reward `json:"reward_words"`
	CreatedAt   time.Time             `json:"created_at"`
	Tier        models.Tier           `json:"tier"`
	BrandLink   string                `json:"brand_link,omitempty"`
}

// activateScript moves a pending campaign to active and indexes it.
// Returns -1 when missing, 0 when not pending, 1 on success.
var activateScript = redis.NewScript(`
	local status = redis.call('HGET', KEYS[1], 'status')
	if not status then
		return -1
	end
	if status ~= 'pending' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'active', 'post_id', ARGV[2])
	redis.call('ZREM', KEYS[2], ARGV[1])
	redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
	redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
	redis.call('SET', KEYS[5], ARGV[1])
	return 1
`)

var rejectScript = redis.NewScript(`
	local status = redis.call('HGET', KEYS[1], 'status')
	if not status then
		return -1
	end
	if status ~= 'pending' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'rejected')
	redis.call('ZREM', KEYS[2], ARGV[1])
	return 1
`)

// Store persists campaigns and their listing indices in Redis. Reward values
// are sealed before they are written.
type Store struct {
	redis  *redis.Client
	sealer *secrets.Sealer
}

func NewStore(redisClient *redis.Client, sealer *secrets.Sealer) *Store {
	return &Store{redis: redisClient, sealer: sealer}
}

// Create writes a new pending campaign and adds it to the pending and
// creator indices.
func (s *Store) Create(ctx context.Context, c *models.Campaign) error {
	doc := document{
		ID:          c.ID,
		Title:       c.Title,
		BrandName:   c.BrandName,
		CreatorID:   c.CreatorID,
		CommunityID: c.CommunityID,
		Words:       c.Words,
		RewardWords: make(map[int]models.Reward, len(c.RewardWords)),
		CreatedAt:   c.CreatedAt,
		Tier:        c.Tier,
		BrandLink:   c.BrandLink,
	}
	for idx, r := range c.RewardWords {
		sealed, err := s.sealer.Seal(r.Value)
		if err != nil {
			return fmt.Errorf("seal reward: %w", err)
		}
		r.Value = sealed
		doc.RewardWords[idx] = r
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	score := float64(c.CreatedAt.UnixMilli())
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keys.Campaign(c.ID),
			fieldDoc, raw,
			fieldStatus, string(c.Status),
			fieldClaimCount, c.ClaimCount,
			fieldMaxClaims, c.MaxClaims,
			fieldExpiresAt, c.ExpiresAt.UnixMilli(),
			fieldPostID, c.ExternalPostID,
		)
		pipe.ZAdd(ctx, keys.PendingIndex(), &redis.Z{Score: score, Member: c.ID})
		pipe.ZAdd(ctx, keys.CreatorIndex(c.CreatorID), &redis.Z{Score: score, Member: c.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Get loads a campaign with reward values opened. Missing campaigns return
// models.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Campaign, error) {
	fields, err := s.redis.HGetAll(ctx, keys.Campaign(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	if len(fields) == 0 || fields[fieldDoc] == "" {
		return nil, models.ErrNotFound
	}

	var doc document
	if err := json.Unmarshal([]byte(fields[fieldDoc]), &doc); err != nil {
		return nil, fmt.Errorf("decode campaign %s: %w", id, err)
	}

	c := &models.Campaign{
		ID:             doc.ID,
		Title:          doc.Title,
		BrandName:      doc.BrandName,
		CreatorID:      doc.CreatorID,
		CommunityID:    doc.CommunityID,
		Words:          doc.Words,
		RewardWords:    make(map[int]models.Reward, len(doc.RewardWords)),
		CreatedAt:      doc.CreatedAt,
		Tier:           doc.Tier,
		BrandLink:      doc.BrandLink,
		Status:         models.CampaignStatus(fields[fieldStatus]),
		ExternalPostID: fields[fieldPostID],
	}
	c.ClaimCount, _ = strconv.Atoi(fields[fieldClaimCount])
	c.MaxClaims, _ = strconv.Atoi(fields[fieldMaxClaims])
	if ms, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64); err == nil {
		c.ExpiresAt = time.UnixMilli(ms).UTC()
	}

	for idx, r := range doc.RewardWords {
		value, err := s.sealer.Open(r.Value)
		if err != nil {
			return nil, fmt.Errorf("open reward %s: %w", r.ID, err)
		}
		r.Value = value
		c.RewardWords[idx] = r
	}
	return c, nil
}

// Activate flips a pending campaign to active, records its post and adds it
// to the active and community indices.
func (s *Store) Activate(ctx context.Context, c *models.Campaign, postID string) error {
	res, err := activateScript.Run(ctx, s.redis,
		[]string{
			keys.Campaign(c.ID),
			keys.PendingIndex(),
			keys.ActiveIndex(),
			keys.CommunityIndex(c.CommunityID),
			keys.PostCampaign(postID),
		},
		c.ID, postID, c.CreatedAt.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("activate campaign: %w", err)
	}
	return transitionResult(res)
}

// Reject flips a pending campaign to rejected and drops it from review.
func (s *Store) Reject(ctx context.Context, id string) error {
	res, err := rejectScript.Run(ctx, s.redis,
		[]string{keys.Campaign(id), keys.PendingIndex()},
		id,
	).Int64()
	if err != nil {
		return fmt.Errorf("reject campaign: %w", err)
	}
	return transitionResult(res)
}

func transitionResult(res int64) error {
	switch res {
	case -1:
		return models.ErrNotFound
	case 0:
		return models.ErrWrongState
	}
	return nil
}

// IDForPost resolves an external post id to its campaign.
func (s *Store) IDForPost(ctx context.Context, postID string) (string, error) {
	id, err := s.redis.Get(ctx, keys.PostCampaign(postID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("post lookup: %w", err)
	}
	return id, nil
}

// IDs returns up to limit ids from an index, newest first. limit <= 0 means all.
func (s *Store) IDs(ctx context.Context, index string, limit int) ([]string, error) {
	return s.Page(ctx, index, 0, limit)
}

// Page returns up to count ids starting at offset, newest first. count <= 0
// means the rest of the index.
func (s *Store) Page(ctx context.Context, index string, offset, count int) ([]string, error) {
	stop := int64(-1)
	if count > 0 {
		stop = int64(offset + count - 1)
	}
	return s.redis.ZRevRange(ctx, index, int64(offset), stop).Result()
}

// Unindex removes a campaign from the player-facing listings.
func (s *Store) Unindex(ctx context.Context, c *models.Campaign) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, keys.ActiveIndex(), c.ID)
		pipe.ZRem(ctx, keys.CommunityIndex(c.CommunityID), c.ID)
		return nil
	})
	return err
}

// DropFromActive removes an id whose record no longer exists from the
// global active index.
func (s *Store) DropFromActive(ctx context.Context, id string) error {
	return s.redis.ZRem(ctx, keys.ActiveIndex(), id).Err()
}
