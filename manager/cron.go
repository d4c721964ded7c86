package manager

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/pkg/cron"
	"github.com/absmach/fedcoord/pkg/fl"
)

const defaultCronCheckInterval = time.Second

// CronScheduler starts a training run each time its schedule fires. A run
// still in progress when the schedule fires again is left alone.
type CronScheduler interface {
	Start(ctx context.Context) error
	Stop()
}

type cronScheduler struct {
	schedule      *cron.Schedule
	request       RunRequest
	service       Service
	logger        *slog.Logger
	checkInterval time.Duration
	now           func() time.Time
	stopChan      chan struct{}
}

type CronOption func(*cronScheduler)

func WithCheckInterval(d time.Duration) CronOption {
	return func(cs *cronScheduler) {
		cs.checkInterval = d
	}
}

func WithCronClock(now func() time.Time) CronOption {
	return func(cs *cronScheduler) {
		cs.now = now
	}
}

func NewCronScheduler(schedule *cron.Schedule, req RunRequest, service Service, logger *slog.Logger, opts ...CronOption) CronScheduler {
	cs := &cronScheduler{
		schedule:      schedule,
		request:       req,
		service:       service,
		logger:        logger,
		checkInterval: defaultCronCheckInterval,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(cs)
	}

	return cs
}

func (cs *cronScheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(cs.checkInterval)
	defer ticker.Stop()

	next := cs.schedule.Next(cs.now())
	cs.logger.Info("cron scheduler started",
		slog.String("schedule", cs.schedule.String()),
		slog.Time("next_run", next),
	)

	for {
		select {
		case <-ctx.Done():
			cs.logger.Info("cron scheduler stopping")

			return ctx.Err()
		case <-cs.stopChan:
			cs.logger.Info("cron scheduler stopped")

			return nil
		case <-ticker.C:
			now := cs.now()
			if now.Before(next) {
				continue
			}
			cs.trigger(ctx)
			next = cs.schedule.Next(now)
		}
	}
}

func (cs *cronScheduler) Stop() {
	close(cs.stopChan)
}

func (cs *cronScheduler) trigger(ctx context.Context) {
	run, err := cs.service.StartRun(ctx, cs.request)
	switch {
	case errors.Is(err, fl.ErrRunInProgress):
		cs.logger.Warn("skipping scheduled run, previous run still in progress")
	case err != nil:
		cs.logger.Error("failed to start scheduled run", slog.String("error", err.Error()))
	default:
		cs.logger.Info("scheduled run started",
			slog.String("run_id", run.ID),
			slog.Uint64("rounds", run.Rounds),
		)
	}
}
