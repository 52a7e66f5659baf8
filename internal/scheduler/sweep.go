package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// sweeper is the slice of the alert service the sweep job needs.
type sweeper interface {
	ProcessAll(ctx context.Context) (*domain.SweepSummary, error)
}

// SweepJob evaluates every active alert rule across all organizations.
type SweepJob struct {
	alerts  sweeper
	logger  *slog.Logger
	timeout time.Duration
}

// NewSweepJob creates the periodic alert sweep job.
func NewSweepJob(alerts sweeper, logger *slog.Logger) *SweepJob {
	return &SweepJob{
		alerts:  alerts,
		logger:  logger.With("job", "alert_sweep"),
		timeout: 10 * time.Minute,
	}
}

// Name returns the job name.
func (j *SweepJob) Name() string {
	return "alert_sweep"
}

// Run executes one sweep across all organizations with active rules.
func (j *SweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	summary, err := j.alerts.ProcessAll(ctx)
	if err != nil {
		return err
	}

	j.logger.Info("alert sweep completed",
		"evaluated", summary.Evaluated,
		"triggered", summary.Triggered,
		"errors", len(summary.Errors),
		"duration", time.Since(start))
	return nil
}
