package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/document-review-service/internal/database"
)

func newMigrateCommand(deps *Deps) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the tracking store schema",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "Read migrations from this directory instead of the embedded set")

	withMigrator := func(cmd *cobra.Command, fn func(m *database.Migrator) error) error {
		cfg, logger, err := setup(deps)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		m, err := database.NewMigrator(db, path, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if err := m.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close migrator")
			}
		}()

		if err := fn(m); err != nil {
			return err
		}
		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
		return err
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m *database.Migrator) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m *database.Migrator) error { return m.Down() })
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations; negative n rolls back (pass as: steps -- -1)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return withMigrator(cmd, func(m *database.Migrator) error { return m.Steps(n) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(*database.Migrator) error { return nil })
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return withMigrator(cmd, func(m *database.Migrator) error { return m.Force(v) })
			},
		},
	)
	return cmd
}
