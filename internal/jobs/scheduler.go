// Package jobs runs timer-driven background work.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/mixelka/chatmirror/internal/tasks"
)

// Job periodic unit of work
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job in its own loop, one loop per job name
type Scheduler struct {
	tasks  *tasks.Registry[string]
	logger *slog.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(registry *tasks.Registry[string], logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tasks:  registry,
		logger: logger.With("component", "scheduler"),
	}
}

// Schedule starts the job, replacing a running job with the same name.
// The job runs once right away and then on every tick.
func (s *Scheduler) Schedule(job Job) {
	s.tasks.Start(job.Name, func(ctx context.Context) {
		logger := s.logger.With("job", job.Name)
		logger.Info("job scheduled", "interval", job.Interval)

		ticker := time.NewTicker(job.Interval)
		defer ticker.Stop()

		for {
			if err := job.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("job failed", "error", err)
			}

			select {
			case <-ctx.Done():
				logger.Info("job stopped")
				return
			case <-ticker.C:
			}
		}
	})
}

// Stop stops every job and waits for running iterations to finish
func (s *Scheduler) Stop() {
	s.tasks.StopAll()
}
