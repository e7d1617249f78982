package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/models"
	"github.com/typeers/backend/internal/secrets"
)

// Vault is a player's append-only list of claimed rewards. Items are stored
// with their value sealed; redemption is tracked in a separate set so the
// list itself is never rewritten.
type Vault struct {
	redis  *redis.Client
	sealer *secrets.Sealer
}

func NewVault(redisClient *redis.Client, sealer *secrets.Sealer) *Vault {
	return &Vault{redis: redisClient, sealer: sealer}
}

// newItem builds the stored form of a freshly claimed reward.
func (v *Vault) newItem(c *models.Campaign, reward models.Reward, now time.Time) (models.VaultItem, []byte, error) {
	item := models.VaultItem{
		ID:            "vi_" + uuid.NewString()[:12],
		Reward:        reward,
		CampaignID:    c.ID,
		CampaignTitle: c.Title,
		BrandName:     c.BrandName,
		ClaimedAt:     now.UTC(),
	}

	sealed, err := v.sealer.Seal(reward.Value)
	if err != nil {
		return item, nil, err
	}
	stored := item
	stored.Reward.Value = sealed

	raw, err := json.Marshal(stored)
	if err != nil {
		return item, nil, err
	}
	return item, raw, nil
}

func (v *Vault) load(ctx context.Context, userID string) ([]models.VaultItem, map[string]bool, error) {
	var (
		itemsCmd    *redis.StringSliceCmd
		redeemedCmd *redis.StringSliceCmd
	)
	_, err := v.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		itemsCmd = pipe.LRange(ctx, keys.VaultItems(userID), 0, -1)
		redeemedCmd = pipe.SMembers(ctx, keys.VaultRedeemed(userID))
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load vault: %w", err)
	}

	redeemed := make(map[string]bool)
	for _, id := range redeemedCmd.Val() {
		redeemed[id] = true
	}

	items := make([]models.VaultItem, 0, len(itemsCmd.Val()))
	for _, raw := range itemsCmd.Val() {
		var item models.VaultItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			continue
		}
		item.Redeemed = redeemed[item.ID]
		items = append(items, item)
	}
	return items, redeemed, nil
}

// List returns the player's vault, newest first. Values are only included
// for redeemed items.
func (v *Vault) List(ctx context.Context, userID string) ([]models.VaultItem, error) {
	items, _, err := v.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.VaultItem, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if item.Redeemed {
			value, err := v.sealer.Open(item.Reward.Value)
			if err != nil {
				return nil, err
			}
			item.Reward.Value = value
		} else {
			item.Reward.Value = ""
		}
		out = append(out, item)
	}
	return out, nil
}

// Redeem reveals an item's value, marking it redeemed. The returned bool is
// true only for the call that flipped the item.
func (v *Vault) Redeem(ctx context.Context, userID, itemID string) (models.VaultItem, bool, error) {
	items, _, err := v.load(ctx, userID)
	if err != nil {
		return models.VaultItem{}, false, err
	}

	for _, item := range items {
		if item.ID != itemID {
			continue
		}

		added, err := v.redis.SAdd(ctx, keys.VaultRedeemed(userID), itemID).Result()
		if err != nil {
			return models.VaultItem{}, false, fmt.Errorf("redeem: %w", err)
		}
		value, err := v.sealer.Open(item.Reward.Value)
		if err != nil {
			return models.VaultItem{}, false, err
		}
		item.Reward.Value = value
		item.Redeemed = true
		return item, added == 1, nil
	}
	return models.VaultItem{}, false, models.ErrNotFound
}
