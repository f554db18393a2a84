package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vclip/vclip/internal/config"
)

const migrationsPath = "file://internal/store/migrations"

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAPIConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runMigrations(cfg.Postgres.DSN)
		},
	}
}

func runMigrations(dsn string) error {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("migrate: init: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Warn().Err(srcErr).Msg("migrate: close source")
		}
		if dbErr != nil {
			log.Warn().Err(dbErr).Msg("migrate: close db")
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("migrate: schema already up to date")
			return nil
		}
		return fmt.Errorf("migrate: up: %w", err)
	}
	log.Info().Msg("migrate: schema applied")
	return nil
}
