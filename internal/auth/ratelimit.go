package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	Requests  int           // Maximum requests
	Window    time.Duration // Time window
	BurstSize int           // Additional burst capacity
}

// PerMinute is a fixed budget of n requests per rolling minute.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{Requests: n, Window: time.Minute}
}

// slidingWindowScript removes old entries, then admits and records the
// request if the window has room. Returns {allowed, remaining, retryAfterMs}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local burst = tonumber(ARGV[5])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current_count = redis.call('ZCARD', key)
	local total_allowed = max_requests + burst

	if current_count < total_allowed then
		redis.call('ZADD', key, now, ARGV[6])
		redis.call('PEXPIRE', key, window_ms)
		return {1, total_allowed - current_count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_after = 0
	if #oldest >= 2 then
		retry_after = tonumber(oldest[2]) + window_ms - now
	end
	return {0, 0, retry_after}
`)

// RateLimiter implements sliding window rate limiting with Redis
type RateLimiter struct {
	redis     *redis.Client
	keyPrefix string
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:     redisClient,
		keyPrefix: "typeers:ratelimit:",
	}
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	ResetAfter time.Duration `json:"reset_after"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Limit      int           `json:"limit"`
	Window     time.Duration `json:"window"`
}

// Check performs a rate limit check using sliding window algorithm
func (r *RateLimiter) Check(ctx context.Context, identifier string, config RateLimitConfig) (*RateLimitResult, error) {
	now := time.Now()

	values, err := slidingWindowScript.Run(ctx, r.redis, []string{r.keyPrefix + identifier},
		now.UnixMilli(),
		now.Add(-config.Window).UnixMilli(),
		config.Requests,
		config.Window.Milliseconds(),
		config.BurstSize,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("rate limit check failed: unexpected reply %v", values)
	}

	return &RateLimitResult{
		Allowed:    values[0] == 1,
		Remaining:  int(values[1]),
		ResetAfter: config.Window,
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
		Limit:      config.Requests + config.BurstSize,
		Window:     config.Window,
	}, nil
}

// CheckIP rate limits by IP address
func (r *RateLimiter) CheckIP(ctx context.Context, ip string, config RateLimitConfig) (*RateLimitResult, error) {
	return r.Check(ctx, "ip:"+ip, config)
}

// CheckUser rate limits by user ID
func (r *RateLimiter) CheckUser(ctx context.Context, userID string, config RateLimitConfig) (*RateLimitResult, error) {
	return r.Check(ctx, "user:"+userID, config)
}

// SetRateLimitHeaders adds rate limit headers to HTTP response
func (r *RateLimiter) SetRateLimitHeaders(w http.ResponseWriter, result *RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(result.ResetAfter).Unix(), 10))

	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(result.RetryAfter.Seconds()), 10))
	}
}
