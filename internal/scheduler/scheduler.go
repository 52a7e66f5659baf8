// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of scheduled work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a scheduler. Schedules use the standard 5-field cron spec
// plus the @every / @hourly descriptors.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With("component", "scheduler"),
	}
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// AddJob registers a job. Job failures are logged, never propagated, so
// one bad run does not unschedule the job.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := job.Run(); err != nil {
			s.logger.Error("scheduled job failed", "job", job.Name(), "error", err)
			return
		}
		s.logger.Debug("scheduled job completed", "job", job.Name())
	})
	if err != nil {
		return err
	}

	s.logger.Info("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.logger.Info("running job immediately", "job", job.Name())
	return job.Run()
}
