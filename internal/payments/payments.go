// Package payments turns payment gateway callbacks into ledger credits and
// refunds.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/typeers/backend/internal/audit"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
)

var (
	ErrInvalidOrder = errors.New("order id and user id are required")
	ErrBadSignature = errors.New("invalid payment signature")
)

// SKUTiers maps purchasable products to the token tier they grant.
var SKUTiers = map[string]models.Tier{
	"standard_tier": models.TierStandard,
	"premium_tier":  models.TierPremium,
	"top_tier":      models.TierTop,
}

// SKUToTier resolves a product SKU.
func SKUToTier(sku string) (models.Tier, bool) {
	t, ok := SKUTiers[sku]
	return t, ok
}

// SKUForTier is the inverse of SKUToTier.
func SKUForTier(tier models.Tier) string {
	for sku, t := range SKUTiers {
		if t == tier {
			return sku
		}
	}
	return ""
}

type Product struct {
	SKU string `json:"sku"`
}

// Order is the body of a gateway fulfill or refund callback.
type Order struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Products []Product `json:"products"`
}

// Ledger is the subset of the token ledger payments need.
type Ledger interface {
	Credit(ctx context.Context, userID string, tier models.Tier, orderID string) (bool, error)
	Refund(ctx context.Context, userID string, tier models.Tier, orderID string) (bool, error)
	Fulfillment(ctx context.Context, orderID string) (*models.FulfillmentRecord, error)
}

type Processor struct {
	ledger Ledger
	audit  *audit.Logger
}

func NewProcessor(ledger Ledger, auditLogger *audit.Logger) *Processor {
	return &Processor{ledger: ledger, audit: auditLogger}
}

// Fulfill credits the order's products. Unknown SKUs are skipped and a
// replayed order credits nothing. It returns the number of tokens credited.
func (p *Processor) Fulfill(ctx context.Context, order Order) (int, error) {
	if order.ID == "" || order.UserID == "" {
		return 0, ErrInvalidOrder
	}
	log := logger.FromContext(ctx)

	credited := 0
	for _, product := range order.Products {
		tier, ok := SKUToTier(product.SKU)
		if !ok {
			log.Warn().Str("order_id", order.ID).Str("sku", product.SKU).Msg("unknown sku skipped")
			continue
		}

		ok, err := p.ledger.Credit(ctx, order.UserID, tier, order.ID)
		entry := &audit.LogEntry{
			UserID:   order.UserID,
			Action:   audit.ActionCredit,
			TargetID: order.ID,
			Tier:     string(tier),
		}
		if err != nil {
			p.audit.LogResult(ctx, entry, err, models.ErrorCode)
			return credited, err
		}
		if !ok {
			entry.Result = audit.ResultSkipped
			p.audit.Log(ctx, entry)
			continue
		}
		entry.Result = audit.ResultSuccess
		entry.IdempotencyKey = "credit:" + order.ID
		p.recordLedgerEntry(ctx, entry)
		credited++
	}

	log.Info().Str("order_id", order.ID).Str("user_id", order.UserID).Int("credited", credited).Msg("order fulfilled")
	return credited, nil
}

// Refund reverses the order's products. Errors are logged and swallowed so
// gateways never retry a refund; it returns the number of tokens reversed.
func (p *Processor) Refund(ctx context.Context, order Order) int {
	log := logger.FromContext(ctx)
	if order.ID == "" || order.UserID == "" {
		log.Warn().Str("order_id", order.ID).Msg("refund without order or user ignored")
		return 0
	}

	refunded := 0
	for _, product := range order.Products {
		tier, ok := SKUToTier(product.SKU)
		if !ok {
			continue
		}
		ok, err := p.ledger.Refund(ctx, order.UserID, tier, order.ID)
		entry := &audit.LogEntry{
			UserID:   order.UserID,
			Action:   audit.ActionRefund,
			TargetID: order.ID,
			Tier:     string(tier),
		}
		switch {
		case err != nil:
			log.Error().Err(err).Str("order_id", order.ID).Msg("refund failed")
			p.audit.LogResult(ctx, entry, err, models.ErrorCode)
		case ok:
			entry.Result = audit.ResultSuccess
			entry.IdempotencyKey = "refund:" + order.ID
			p.recordLedgerEntry(ctx, entry)
			refunded++
		default:
			entry.Result = audit.ResultSkipped
			p.audit.Log(ctx, entry)
		}
	}
	return refunded
}

// recordLedgerEntry writes a balance change synchronously so its
// idempotency key is checked against earlier entries.
func (p *Processor) recordLedgerEntry(ctx context.Context, entry *audit.LogEntry) {
	if _, err := p.audit.LogSync(ctx, entry); err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("idempotency_key", entry.IdempotencyKey).
			Msg("ledger audit entry not written")
	}
}

// RefundRecorded refunds an order using the user and tier from its
// fulfillment record. Unknown orders are ignored.
func (p *Processor) RefundRecorded(ctx context.Context, orderID string) int {
	record, err := p.ledger.Fulfillment(ctx, orderID)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("order_id", orderID).Msg("fulfillment lookup failed")
		return 0
	}
	if record == nil {
		logger.FromContext(ctx).Info().Str("order_id", orderID).Msg("refund for unknown order ignored")
		return 0
	}
	return p.Refund(ctx, Order{
		ID:       record.OrderID,
		UserID:   record.UserID,
		Products: []Product{{SKU: SKUForTier(record.Tier)}},
	})
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an X-Payment-Signature header, with or without a
// "sha256=" prefix.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" || header == "" {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil {
		return ErrBadSignature
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	return nil
}
