// @title Reaction Timer API
// @version 1.0
// @description Server-authoritative reaction timing: timed challenges, cooldowns, runs and rankings.

// @license.name MIT

// @host localhost:3000
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"context"
	"flag"
	"log"

	"reaction_timer_backend/internal/app"
	"reaction_timer_backend/internal/config"
	"reaction_timer_backend/pkg/logger"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run database migrations and exit")
	configDir := flag.String("config", "configs", "directory holding config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	if *migrateOnly {
		logger.Log.Info("Database migration completed, exiting")
		application.Close(context.Background())
		return
	}

	application.Run()
}
