// Package ledger keeps per-user tier token balances and the fulfillment
// records that make payment callbacks idempotent.
package ledger

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
)

// TokenCost is the number of tokens a campaign submission spends, per tier.
var TokenCost = map[models.Tier]int64{
	models.TierStandard: 1,
	models.TierPremium:  1,
	models.TierTop:      1,
}

// Fulfillment records are the idempotency guard; balances alone don't decide.
var creditScript = redis.NewScript(`
	if redis.call('SETNX', KEYS[2], ARGV[2]) == 0 then
		return 0
	end
	redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
	return 1
`)

var debitScript = redis.NewScript(`
	local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
	local cost = tonumber(ARGV[2])
	if current < cost then
		return 0
	end
	redis.call('HINCRBY', KEYS[1], ARGV[1], -cost)
	return 1
`)

// ErrOrderMismatch means a refund named a different user or tier than the
// order was fulfilled for.
var ErrOrderMismatch = errors.New("refund does not match the fulfilled order")

// refundScript only removes the record it was shown, so a concurrent refund
// of the same order reverses it once.
var refundScript = redis.NewScript(`
	if redis.call('GET', KEYS[2]) ~= ARGV[2] then
		return 0
	end
	redis.call('DEL', KEYS[2])
	local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
	if current > 0 then
		redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
	end
	return 1
`)

// Ledger is the Redis-backed token ledger.
type Ledger struct {
	redis *redis.Client
	now   func() time.Time
}

func New(redisClient *redis.Client) *Ledger {
	return &Ledger{redis: redisClient, now: time.Now}
}

// Credit adds one token of tier for orderID. It returns false when the order
// was already fulfilled.
func (l *Ledger) Credit(ctx context.Context, userID string, tier models.Tier, orderID string) (bool, error) {
	if !tier.Valid() {
		return false, fmt.Errorf("credit: unknown tier %q", tier)
	}
	record, err := json.Marshal(models.FulfillmentRecord{
		OrderID:     orderID,
		UserID:      userID,
		Tier:        tier,
		FulfilledAt: l.now().UTC(),
	})
	if err != nil {
		return false, err
	}

	res, err := creditScript.Run(ctx, l.redis,
		[]string{keys.Balance(userID), keys.Order(orderID)},
		string(tier), record,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("credit: %w", err)
	}
	return res == 1, nil
}

// Debit spends TokenCost[tier] tokens. It returns false when the balance is short.
func (l *Ledger) Debit(ctx context.Context, userID string, tier models.Tier) (bool, error) {
	cost, ok := TokenCost[tier]
	if !ok {
		return false, fmt.Errorf("debit: unknown tier %q", tier)
	}

	res, err := debitScript.Run(ctx, l.redis, []string{keys.Balance(userID)}, string(tier), cost).Int64()
	if err != nil {
		return false, fmt.Errorf("debit: %w", err)
	}
	return res == 1, nil
}

// Refund reverses a fulfilled order. The balance is decremented but never
// below zero; it returns false when no fulfillment exists for orderID and
// ErrOrderMismatch when the record belongs to another user or tier.
func (l *Ledger) Refund(ctx context.Context, userID string, tier models.Tier, orderID string) (bool, error) {
	record, raw, err := l.fulfillment(ctx, orderID)
	if err != nil || record == nil {
		return false, err
	}
	if record.UserID != userID || record.Tier != tier {
		return false, fmt.Errorf("refund %s: %w", orderID, ErrOrderMismatch)
	}

	res, err := refundScript.Run(ctx, l.redis,
		[]string{keys.Balance(userID), keys.Order(orderID)},
		string(tier), raw,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("refund: %w", err)
	}
	return res == 1, nil
}

// Recredit returns tokens spent by a submission that could not be persisted.
func (l *Ledger) Recredit(ctx context.Context, userID string, tier models.Tier) error {
	cost, ok := TokenCost[tier]
	if !ok {
		return fmt.Errorf("recredit: unknown tier %q", tier)
	}
	return l.redis.HIncrBy(ctx, keys.Balance(userID), string(tier), cost).Err()
}

// Balance returns the user's token counts with every tier present.
func (l *Ledger) Balance(ctx context.Context, userID string) (models.TokenBalance, error) {
	balance := make(models.TokenBalance, len(models.Tiers))
	for _, t := range models.Tiers {
		balance[t] = 0
	}

	raw, err := l.redis.HGetAll(ctx, keys.Balance(userID)).Result()
	if err != nil {
		return balance, fmt.Errorf("balance: %w", err)
	}
	for _, t := range models.Tiers {
		n, _ := strconv.ParseInt(raw[string(t)], 10, 64)
		if n > 0 {
			balance[t] = n
		}
	}
	return balance, nil
}

// Fulfillment looks up the record for an order; nil when none exists.
func (l *Ledger) Fulfillment(ctx context.Context, orderID string) (*models.FulfillmentRecord, error) {
	record, _, err := l.fulfillment(ctx, orderID)
	return record, err
}

func (l *Ledger) fulfillment(ctx context.Context, orderID string) (*models.FulfillmentRecord, []byte, error) {
	raw, err := l.redis.Get(ctx, keys.Order(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("fulfillment: %w", err)
	}

	var record models.FulfillmentRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, nil, fmt.Errorf("fulfillment: %w", err)
	}
	return &record, raw, nil
}
