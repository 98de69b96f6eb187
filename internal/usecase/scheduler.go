package usecase

import (
	"context"
	"time"

	"github.com/Liyracat/tool-rss-reader/internal/ports"
)

// Scheduler wires the interval driver to a run callback for daemon mode.
// Normal deployments run the binary once per cron invocation instead.
type Scheduler struct {
	driver ports.Scheduler
	run    func(context.Context)
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, run func(context.Context)) *Scheduler {
	return &Scheduler{driver: driver, run: run}
}

// Start registers the run callback with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.run == nil {
		return nil
	}

	job := func(time.Time) {
		s.run(ctx)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
