package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"favourites-api/internal/config"
	"favourites-api/internal/db"
	"favourites-api/internal/observability"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := config.Load(true)
		if err != nil {
			return err
		}
		logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		// the opener applies the migrations once connected
		handle := db.NewHandle(db.Opener(cfg.DatabaseURL, db.PoolConfig{MaxOpenConns: 1}, true))
		defer handle.Close()

		if _, err := handle.Get(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		logger.Info("migrations_applied", nil)
		return nil
	},
}
