package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/payments"
	"github.com/typeers/backend/internal/services"
)

const maxWebhookBody = 64 * 1024

type PaymentHandler struct {
	services *services.Container
}

func NewPaymentHandler(s *services.Container) *PaymentHandler {
	return &PaymentHandler{services: s}
}

// readSigned reads the body and checks its X-Payment-Signature.
func (h *PaymentHandler) readSigned(c *gin.Context) (payments.Order, bool) {
	var order payments.Order
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "read body")
		return order, false
	}
	if err := payments.VerifySignature(h.services.Config.PaymentWebhookSecret, body, c.GetHeader("X-Payment-Signature")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "bad_signature"})
		return order, false
	}
	if err := json.Unmarshal(body, &order); err != nil {
		badRequest(c, "invalid order")
		return order, false
	}
	return order, true
}

// Fulfill credits the tokens of a completed purchase.
func (h *PaymentHandler) Fulfill(c *gin.Context) {
	order, ok := h.readSigned(c)
	if !ok {
		return
	}

	credited, err := h.services.Payments.Fulfill(c.Request.Context(), order)
	if errors.Is(err, payments.ErrInvalidOrder) {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "credited": credited})
}

// Refund reverses a purchase. It always acknowledges once the signature checks out.
func (h *PaymentHandler) Refund(c *gin.Context) {
	order, ok := h.readSigned(c)
	if !ok {
		return
	}
	refunded := h.services.Payments.Refund(c.Request.Context(), order)
	c.JSON(http.StatusOK, gin.H{"success": true, "refunded": refunded})
}

// Stripe receives Stripe webhook deliveries.
func (h *PaymentHandler) Stripe(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "read body")
		return
	}

	err = h.services.Stripe.Handle(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, payments.ErrBadSignature):
		logger.FromContext(c.Request.Context()).Warn().Err(err).Msg("stripe signature rejected")
		badRequest(c, "invalid signature")
	case err != nil:
		respondError(c, err)
	default:
		c.Status(http.StatusOK)
	}
}
