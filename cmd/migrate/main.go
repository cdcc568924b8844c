package main

import (
	"context"
	"os"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/config"
	"github.com/diagnosis/apartment-reservations/pkg/database"
	"github.com/diagnosis/apartment-reservations/pkg/logger"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Error("Failed to apply migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("Database schema is up to date")
}
