package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vclip/vclip/internal/config"
	"github.com/vclip/vclip/internal/janitor"
	"github.com/vclip/vclip/internal/quota"
	"github.com/vclip/vclip/internal/store"
)

func newJanitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "janitor",
		Short: "Run the periodic storage-accounting sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWorkerConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runJanitor(cmd.Context(), cfg)
		},
	}
}

func runJanitor(parent context.Context, cfg *config.WorkerConfig) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	st := store.New(db)
	qm := quota.NewManager(st)

	j, err := janitor.New(qm)
	if err != nil {
		return err
	}
	if err := j.ScheduleStorageRecalculation(ctx, cfg.RecalcSchedule); err != nil {
		return err
	}
	return j.Run(ctx)
}
