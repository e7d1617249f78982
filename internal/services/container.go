package services

import (
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/typeers/backend/internal/analytics"
	"github.com/typeers/backend/internal/audit"
	"github.com/typeers/backend/internal/auth"
	"github.com/typeers/backend/internal/campaigns"
	"github.com/typeers/backend/internal/config"
	"github.com/typeers/backend/internal/ledger"
	"github.com/typeers/backend/internal/locks"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/payments"
	"github.com/typeers/backend/internal/platform"
	"github.com/typeers/backend/internal/rewards"
	"github.com/typeers/backend/internal/secrets"
	"github.com/typeers/backend/internal/websocket"
)

// Container holds all service instances
type Container struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	WSHub  *websocket.Hub

	// Infrastructure
	Tokens      *auth.TokenService
	RateLimiter *auth.RateLimiter
	Locks       *locks.LockManager
	Audit       *audit.Logger
	Platform    platform.ContentPlatform

	// Golden challenge
	Ledger      *ledger.Ledger
	Store       *campaigns.Store
	Campaigns   *campaigns.Manager
	Counters    *analytics.Counters
	Attribution analytics.Attribution
	Rewards     *rewards.Engine
	Payments    *payments.Processor
	Stripe      *payments.StripeWebhook
	Query       *QueryService
}

// NewContainer wires the services. db and wsHub may be nil: without a
// database the audit trail is disabled, without a hub no live events are sent.
func NewContainer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, wsHub *websocket.Hub) (*Container, error) {
	sealer, err := secrets.NewSealer(secrets.Config{Key: cfg.RewardSecretKey})
	if err != nil {
		return nil, fmt.Errorf("reward sealer: %w", err)
	}

	contentPlatform, err := newContentPlatform(cfg)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:      cfg,
		DB:          db,
		Redis:       redisClient,
		WSHub:       wsHub,
		Tokens:      auth.NewTokenService(cfg.JWTSecret),
		RateLimiter: auth.NewRateLimiter(redisClient),
		Locks:       locks.NewLockManager(redisClient),
		Platform:    contentPlatform,
		Attribution: analytics.Attribution{Source: cfg.UTMSource},
	}
	if db != nil {
		c.Audit = audit.NewLogger(db)
	} else {
		logger.Warn().Msg("no database, audit trail disabled")
	}

	c.Ledger = ledger.New(redisClient)
	c.Store = campaigns.NewStore(redisClient, sealer)
	c.Counters = analytics.NewCounters(redisClient)
	c.Campaigns = campaigns.NewManager(c.Store, c.Ledger, contentPlatform, c.Counters, c.Locks, c.Audit)
	c.Rewards = rewards.NewEngine(redisClient, c.Store, c.Counters, rewards.NewVault(redisClient, sealer), c.Audit, cfg.SessionTTL)
	c.Payments = payments.NewProcessor(c.Ledger, c.Audit)
	c.Stripe = payments.NewStripeWebhook(c.Payments, cfg.StripeWebhookSecret)
	c.Query = NewQueryService(c.Store, c.Counters, c.Ledger, c.Rewards)

	if wsHub != nil {
		c.Campaigns.SetNotifier(wsHub)
		c.Rewards.SetNotifier(wsHub)
	}
	return c, nil
}

func newContentPlatform(cfg *config.Config) (platform.ContentPlatform, error) {
	if cfg.ContentPlatformURL == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("CONTENT_PLATFORM_URL is required in production")
		}
		logger.Warn().Msg("no content platform configured, approval posts stay in memory")
		return platform.NewLocalPlatform(), nil
	}
	client, err := platform.NewHTTPClient(cfg.ContentPlatformURL, cfg.ContentPlatformToken)
	if err != nil {
		return nil, fmt.Errorf("content platform: %w", err)
	}
	return client, nil
}

// Close flushes the audit trail.
func (c *Container) Close() {
	c.Audit.Stop()
}
