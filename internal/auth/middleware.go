package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
)

const (
	ctxUserID = "user_id"
	ctxClaims = "claims"
)

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func setIdentity(c *gin.Context, claims *Claims) {
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxClaims, claims)
	c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
}

// AuthMiddleware returns a Gin middleware for JWT authentication
func AuthMiddleware(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Validate(bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing token",
				"code":  models.ErrorCode(models.ErrNotAuthenticated),
			})
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and lets anonymous requests through.
func OptionalAuth(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := tokens.Validate(bearerToken(c)); err == nil {
			setIdentity(c, claims)
		}
		c.Next()
	}
}

// RequireRole rejects authenticated callers without one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  models.ErrorCode(models.ErrNotAuthenticated),
			})
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient role",
			"code":  "forbidden",
		})
	}
}

// UserRateLimitMiddleware rate limits by authenticated user, falling back to
// the client IP.
func UserRateLimitMiddleware(limiter *RateLimiter, config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			result *RateLimitResult
			err    error
		)
		if userID := GetUserID(c); userID != "" {
			result, err = limiter.CheckUser(c.Request.Context(), userID, config)
		} else {
			result, err = limiter.CheckIP(c.Request.Context(), c.ClientIP(), config)
		}
		if err != nil {
			// Redis trouble should not take the API down with it
			logger.FromContext(c.Request.Context()).Warn().Err(err).Msg("rate limit check failed")
			c.Next()
			return
		}

		limiter.SetRateLimitHeaders(c.Writer, result)
		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       models.ErrRateLimited.Error(),
				"code":        models.ErrorCode(models.ErrRateLimited),
				"retry_after": result.RetryAfter.Seconds(),
			})
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id, or "" for anonymous callers.
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetClaims extracts claims from gin context
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
