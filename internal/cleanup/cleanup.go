package cleanup

import (
	"context"
	"time"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// Cleaner periodically purges notifications that are past their expiry.
// Expired rows are already invisible to every query; the purge just keeps
// the table from growing without bound.
type Cleaner struct {
	store     db.Store
	scheduler gocron.Scheduler
}

func NewCleaner(store db.Store) (*Cleaner, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		store:     store,
		scheduler: scheduler,
	}, nil
}

// Start schedules the hourly purge job and starts the scheduler.
func (c *Cleaner) Start() error {
	_, err := c.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(
			func() {
				c.purgeExpiredNotifications()
			},
		),
	)
	if err != nil {
		return err
	}

	c.scheduler.Start()
	return nil
}

// Stop shuts down the scheduler.
func (c *Cleaner) Stop() error {
	return c.scheduler.Shutdown()
}

func (c *Cleaner) purgeExpiredNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := c.store.DeleteExpiredNotifications(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge expired notifications")
		return
	}

	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("purged expired notifications")
	}
}
