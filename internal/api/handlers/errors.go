package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/typeers/backend/internal/auth"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
)

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNoReward):
		return http.StatusNotFound
	case errors.Is(err, models.ErrWrongState),
		errors.Is(err, models.ErrAlreadyClaimed),
		errors.Is(err, models.ErrAlreadyPlayed),
		errors.Is(err, models.ErrExhausted):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotPlayed):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInsufficientTokens):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrInvalidContent), errors.Is(err, models.ErrNoRewards):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotActive):
		return http.StatusGone
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error", "code"}. Unexpected errors are logged
// and reported without detail.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error", "code": models.ErrorCode(err)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": models.ErrorCode(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}

func getUserID(c *gin.Context) string {
	return auth.GetUserID(c)
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return n
}
