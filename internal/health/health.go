package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const checkTimeout = 3 * time.Second

// Checker manages health checks. Redis holds all game state and is
// required; the audit database is reported but only degrades readiness.
type Checker struct {
	db          *gorm.DB
	redis       *redis.Client
	version     string
	isReady     bool
	readyMu     sync.RWMutex
	startupTime time.Time
}

// NewChecker creates a new health checker. db may be nil when the audit
// trail is disabled.
func NewChecker(db *gorm.DB, redisClient *redis.Client, version string) *Checker {
	return &Checker{
		db:          db,
		redis:       redisClient,
		version:     version,
		startupTime: time.Now(),
	}
}

// SetReady marks the service as ready
func (c *Checker) SetReady(ready bool) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	c.isReady = ready
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()
	return c.isReady
}

// CheckStatus contains detailed health status
type CheckStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents a single health check
type Check struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

func (c Check) healthy() bool { return c.Status == "healthy" }

// Healthz handles liveness probe - is the process alive?
func (c *Checker) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}

// Readyz handles readiness probe. Only Redis gates traffic.
func (c *Checker) Readyz(ctx *gin.Context) {
	if !c.IsReady() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"timestamp": time.Now().UTC(),
			"message":   "service is starting up",
		})
		return
	}

	status := c.run(ctx.Request.Context())
	switch {
	case !status.Checks["redis"].healthy():
		status.Status = "not_ready"
		ctx.JSON(http.StatusServiceUnavailable, status)
	case !status.Checks["database"].healthy():
		status.Status = "degraded"
		ctx.JSON(http.StatusOK, status)
	default:
		status.Status = "ready"
		ctx.JSON(http.StatusOK, status)
	}
}

// Health provides detailed health status
func (c *Checker) Health(ctx *gin.Context) {
	status := c.run(ctx.Request.Context())
	status.Status = "healthy"
	for _, check := range status.Checks {
		if !check.healthy() {
			status.Status = "unhealthy"
			ctx.JSON(http.StatusServiceUnavailable, status)
			return
		}
	}
	ctx.JSON(http.StatusOK, status)
}

func (c *Checker) run(ctx context.Context) CheckStatus {
	return CheckStatus{
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(c.startupTime).Round(time.Second).String(),
		Version:   c.version,
		Checks: map[string]Check{
			"redis":    c.checkRedis(ctx),
			"database": c.checkDatabase(ctx),
		},
	}
}

func (c *Checker) checkDatabase(ctx context.Context) Check {
	if c.db == nil {
		return Check{Status: "healthy", Message: "audit database not configured"}
	}

	start := time.Now()
	sqlDB, err := c.db.DB()
	if err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}
	return Check{Status: "healthy", Duration: time.Since(start).String()}
}

func (c *Checker) checkRedis(ctx context.Context) Check {
	if c.redis == nil {
		return Check{Status: "unhealthy", Message: "redis not configured"}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.redis.Ping(ctx).Err(); err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}
	return Check{Status: "healthy", Duration: time.Since(start).String()}
}

// RegisterRoutes registers health check routes
func (c *Checker) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", c.Healthz)
	r.GET("/readyz", c.Readyz)
	r.GET("/health", c.Health)
}
