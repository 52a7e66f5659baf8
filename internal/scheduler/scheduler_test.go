package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskfoundry/kestrel/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingJob struct {
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string { return "counting" }
func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := New(testLogger())
	job := &countingJob{}

	if err := s.AddJob("@every 10ms", job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if job.runs.Load() == 0 {
		t.Error("expected job to run at least once")
	}
}

func TestSchedulerJobFailureDoesNotUnschedule(t *testing.T) {
	s := New(testLogger())
	job := &countingJob{err: errors.New("boom")}

	if err := s.AddJob("@every 10ms", job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if job.runs.Load() < 2 {
		t.Errorf("expected repeated runs despite failures, got %d", job.runs.Load())
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := New(testLogger())
	if err := s.AddJob("not a schedule", &countingJob{}); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}

type fakeSweeper struct {
	summary *domain.SweepSummary
	err     error
	calls   int
}

func (f *fakeSweeper) ProcessAll(ctx context.Context) (*domain.SweepSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func TestSweepJob(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		sw := &fakeSweeper{summary: &domain.SweepSummary{Evaluated: 3, Triggered: 1}}
		job := NewSweepJob(sw, testLogger())

		if err := job.Run(); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if sw.calls != 1 {
			t.Errorf("expected 1 sweep, got %d", sw.calls)
		}
	})

	t.Run("PropagatesFatalError", func(t *testing.T) {
		sw := &fakeSweeper{err: errors.New("database unavailable")}
		job := NewSweepJob(sw, testLogger())

		if err := job.Run(); err == nil {
			t.Error("expected error from failed sweep")
		}
	})
}
