// Package janitor runs the periodic maintenance sweeps the worker fleet
// needs outside of job dispatch: storage-accounting recalculation today,
// with room for cache eviction sweeps alongside it.
package janitor

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// QuotaManager is the subset of quota.Manager the janitor drives.
type QuotaManager interface {
	RecalculateAll(ctx context.Context) error
}

// Janitor wraps a gocron scheduler with this service's recurring sweeps.
type Janitor struct {
	scheduler gocron.Scheduler
	quota     QuotaManager
}

func New(quota QuotaManager) (*Janitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("janitor: create scheduler: %w", err)
	}
	return &Janitor{scheduler: scheduler, quota: quota}, nil
}

// ScheduleStorageRecalculation registers the periodic storage-accounting
// sweep at the given cron expression.
func (j *Janitor) ScheduleStorageRecalculation(ctx context.Context, cronExpr string) error {
	_, err := j.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			if err := j.quota.RecalculateAll(ctx); err != nil {
				log.Error().Err(err).Msg("janitor: storage recalculation sweep failed")
			}
		}),
		gocron.WithName("storage-recalculation"),
	)
	if err != nil {
		return fmt.Errorf("janitor: schedule storage recalculation: %w", err)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) error {
	j.scheduler.Start()
	<-ctx.Done()
	return j.scheduler.Shutdown()
}
