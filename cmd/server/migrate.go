package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/database"
)

func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
