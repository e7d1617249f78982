package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typeers/backend/internal/api/handlers"
	"github.com/typeers/backend/internal/auth"
	"github.com/typeers/backend/internal/health"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/services"
)

type Server struct {
	router   *gin.Engine
	services *services.Container
	health   *health.Checker
}

func NewServer(svc *services.Container, checker *health.Checker) *Server {
	if svc.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		router:   gin.New(),
		services: svc,
		health:   checker,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(logger.GinRecovery())
	s.router.Use(logger.GinMiddleware("/healthz", "/readyz"))
	s.router.Use(s.corsMiddleware())
	s.router.Use(securityHeaders())
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	origin := s.services.Config.CORSOrigin
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func (s *Server) authRequired() gin.HandlerFunc {
	return auth.AuthMiddleware(s.services.Tokens)
}

// writeRateLimit applies the per-user limit to state-changing routes.
func (s *Server) writeRateLimit() gin.HandlerFunc {
	return auth.UserRateLimitMiddleware(s.services.RateLimiter, auth.PerMinute(s.services.Config.RateLimitPerMinute))
}

func (s *Server) setupRoutes() {
	if s.health != nil {
		s.health.RegisterRoutes(s.router)
	}

	campaignHandler := handlers.NewCampaignHandler(s.services)
	playHandler := handlers.NewPlayHandler(s.services)
	vaultHandler := handlers.NewVaultHandler(s.services)
	paymentHandler := handlers.NewPaymentHandler(s.services)

	v1 := s.router.Group("/api/v1")
	{
		golden := v1.Group("/golden")

		// Public
		golden.GET("/tiers", campaignHandler.Tiers)
		golden.GET("/campaigns", campaignHandler.ListActive)
		golden.GET("/campaigns/:id", campaignHandler.Get)

		viewer := golden.Group("")
		viewer.Use(auth.OptionalAuth(s.services.Tokens))
		{
			viewer.GET("/posts/:postId", campaignHandler.ForPost)
			viewer.POST("/campaigns/:id/clicks/brand", playHandler.BrandClick)
			viewer.POST("/campaigns/:id/clicks/rewards/:rewardId", playHandler.AffiliateClick)
		}

		protected := golden.Group("")
		protected.Use(s.authRequired())
		{
			protected.POST("/campaigns", s.writeRateLimit(), campaignHandler.Submit)
			protected.GET("/campaigns/:id/analytics", campaignHandler.Analytics)
			protected.GET("/creator", campaignHandler.Dashboard)

			protected.POST("/campaigns/:id/sessions", s.writeRateLimit(), playHandler.StartSession)
			protected.POST("/sessions/:sessionId/claim", s.writeRateLimit(), playHandler.ClaimFromSession)
			protected.POST("/campaigns/:id/claim", s.writeRateLimit(), playHandler.Claim)
			protected.POST("/campaigns/:id/finish", s.writeRateLimit(), playHandler.Finish)
			protected.GET("/campaigns/:id/played", playHandler.Played)
			protected.GET("/campaigns/:id/claimed", playHandler.Claimed)

			protected.GET("/vault", vaultHandler.List)
			protected.POST("/vault/:itemId/redeem", s.writeRateLimit(), vaultHandler.Redeem)
			protected.GET("/balance", vaultHandler.Balance)
		}

		moderation := golden.Group("/moderation")
		moderation.Use(s.authRequired(), auth.RequireRole(auth.RoleModerator))
		{
			moderation.GET("/pending", campaignHandler.ListPending)
			moderation.POST("/:id/approve", campaignHandler.Approve)
			moderation.POST("/:id/reject", campaignHandler.Reject)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("/fulfill", paymentHandler.Fulfill)
			payments.POST("/refund", paymentHandler.Refund)
			payments.POST("/stripe", paymentHandler.Stripe)
		}

		if s.services.WSHub != nil {
			v1.GET("/ws", s.services.WSHub.ServeWS(s.services.Tokens))
		}
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
