package main

import (
	"flag"
	"os"

	"github.com/typeers/backend/internal/config"
	"github.com/typeers/backend/internal/database"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/migrations"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Pretty: !cfg.IsProduction()})

	var (
		command     = flag.String("cmd", "up", "Command: up, down, status")
		databaseURL = flag.String("db", "", "Database URL (or set DATABASE_URL env)")
	)
	flag.Parse()

	dbURL := *databaseURL
	if dbURL == "" {
		dbURL = cfg.DatabaseURL
	}
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required (set via -db flag or DATABASE_URL env)")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to get database handle")
	}
	defer sqlDB.Close()

	switch *command {
	case "up":
		err = migrations.Run(sqlDB, "typeers")
	case "down":
		err = migrations.Rollback(sqlDB, "typeers")
	case "status":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = migrations.Status(sqlDB, "typeers")
		if err == nil {
			logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migration status")
		}
	default:
		logger.Error().Str("cmd", *command).Msg("unknown command")
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal().Err(err).Str("cmd", *command).Msg("migration command failed")
	}
}
