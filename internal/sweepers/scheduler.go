// Package sweepers runs the periodic background jobs: popularity
// aggregation, CF training, and retention cleanup.
package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job is one unit of periodic background work
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives a set of jobs on independent tickers
type Scheduler struct {
	jobs     []Job
	logger   *zerolog.Logger
	stopChan chan struct{}
}

// NewScheduler creates a scheduler for the given jobs
func NewScheduler(logger *zerolog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches one goroutine per job and blocks until the context is
// cancelled or Stop is called. Each job also runs once at startup so a
// restarted service does not wait a full interval for fresh scores.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		go s.runJob(ctx, job)
	}

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Scheduler stopping (context cancelled)")
	case <-s.stopChan:
		s.logger.Info().Msg("Scheduler stopping (stop signal)")
	}
}

// Stop signals the scheduler to stop
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	s.logger.Info().
		Str("job", job.Name).
		Dur("interval", job.Interval).
		Msg("Starting background job")

	s.execute(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.execute(ctx, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Msg("Background job failed")
		return
	}
	s.logger.Debug().
		Str("job", job.Name).
		Dur("duration", time.Since(start)).
		Msg("Background job completed")
}
