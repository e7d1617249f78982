package models

import "errors"

// Domain errors. All are user-facing and recoverable.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotFound           = errors.New("not found")
	ErrWrongState         = errors.New("action not valid for current campaign status")
	ErrInsufficientTokens = errors.New("insufficient tokens for tier")
	ErrInvalidContent     = errors.New("message needs at least 3 valid words")
	ErrNoRewards          = errors.New("need at least 1 valid reward word")
	ErrNotActive          = errors.New("campaign is not active")
	ErrNoReward           = errors.New("no reward at this word")
	ErrAlreadyClaimed     = errors.New("reward already claimed")
	ErrExhausted          = errors.New("all rewards have been claimed")
	ErrAlreadyPlayed      = errors.New("campaign already played")
	ErrNotPlayed          = errors.New("start a play before claiming")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// ErrorCode returns the stable wire name of a domain error, or "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrWrongState):
		return "wrong_state"
	case errors.Is(err, ErrInsufficientTokens):
		return "insufficient_tokens"
	case errors.Is(err, ErrInvalidContent):
		return "invalid_content"
	case errors.Is(err, ErrNoRewards):
		return "no_rewards"
	case errors.Is(err, ErrNotActive):
		return "not_active"
	case errors.Is(err, ErrNoReward):
		return "no_reward"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrAlreadyPlayed):
		return "already_played"
	case errors.Is(err, ErrNotPlayed):
		return "not_played"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return "internal"
}
