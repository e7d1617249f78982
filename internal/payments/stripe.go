package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/typeers/backend/internal/logger"
)

// StripeWebhook maps verified Stripe events onto the processor.
type StripeWebhook struct {
	processor *Processor
	secret    string
}

func NewStripeWebhook(processor *Processor, secret string) *StripeWebhook {
	return &StripeWebhook{processor: processor, secret: secret}
}

// Handle verifies and applies one webhook delivery. Only signature and
// decoding failures are returned; everything else is acknowledged.
func (s *StripeWebhook) Handle(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	log := logger.FromContext(ctx).With().Str("event_id", event.ID).Str("event_type", string(event.Type)).Logger()

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		order := Order{
			ID:       sess.ID,
			UserID:   sess.ClientReferenceID,
			Products: []Product{{SKU: sess.Metadata["sku"]}},
		}
		_, err := s.processor.Fulfill(ctx, order)
		if errors.Is(err, ErrInvalidOrder) {
			log.Warn().Str("order_id", order.ID).Msg("checkout session without client reference ignored")
			return nil
		}
		if err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("checkout fulfillment failed")
			return err
		}

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return fmt.Errorf("decode charge: %w", err)
		}
		orderID := charge.Metadata["order_id"]
		if orderID == "" {
			log.Warn().Str("charge_id", charge.ID).Msg("refunded charge has no order id")
			return nil
		}
		s.processor.RefundRecorded(ctx, orderID)

	default:
		log.Debug().Msg("stripe event ignored")
	}
	return nil
}
