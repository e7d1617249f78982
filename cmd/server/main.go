package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/typeers/backend/internal/api"
	"github.com/typeers/backend/internal/config"
	"github.com/typeers/backend/internal/database"
	"github.com/typeers/backend/internal/health"
	"github.com/typeers/backend/internal/jobs"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/migrations"
	"github.com/typeers/backend/internal/services"
	"github.com/typeers/backend/internal/websocket"
)

const version = "1.0.0"

func main() {
	cfg := config.Load().WithDevDefaults()

	logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: !cfg.IsProduction(),
	})

	log := logger.Get()
	log.Info().
		Str("env", cfg.Env).
		Str("version", version).
		Msg("Starting Typeers golden challenge backend")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	db := connectAuditDB(cfg)

	redisClient := database.ConnectRedis(cfg.RedisURL)

	wsHub := websocket.NewHub(cfg.CORSOrigin)
	go wsHub.Run()
	log.Info().Msg("WebSocket hub started")

	container, err := services.NewContainer(cfg, db, redisClient, wsHub)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build services")
	}

	scheduler := jobs.NewScheduler(container.Store, container.Locks, cfg.SweepSchedule).
		WithAuditRetention(container.Audit, cfg.AuditRetentionDays)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweep scheduler")
	}
	log.Info().Str("schedule", cfg.SweepSchedule).Msg("Sweep scheduler started")

	healthChecker := health.NewChecker(db, redisClient, version)
	server := api.NewServer(container, healthChecker)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	healthChecker.SetReady(true)
	log.Info().Msg("Service is ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	healthChecker.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	scheduler.Stop()
	wsHub.Stop()
	container.Close()

	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error().Err(err).Msg("Database close error")
			}
		}
	}
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("Redis close error")
	}

	log.Info().Msg("Shutdown complete")
}

// connectAuditDB opens the audit database and migrates it in development or
// when RUN_MIGRATIONS is set. Outside production a missing database only
// disables the audit trail.
func connectAuditDB(cfg *config.Config) *gorm.DB {
	log := logger.Get()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		if cfg.IsProduction() {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		log.Warn().Err(err).Msg("Database unavailable, audit trail disabled")
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get SQL DB")
	}

	if !cfg.IsProduction() || os.Getenv("RUN_MIGRATIONS") == "true" {
		if err := migrations.Run(sqlDB, "typeers"); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		return db
	}

	v, dirty, err := migrations.Status(sqlDB, "typeers")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check migration status")
	} else {
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("Migration status")
	}
	return db
}
