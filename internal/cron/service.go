package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultInterval = 5 * time.Minute

type jobRecorder interface {
	ObserveDuration(job string, duration time.Duration)
	IncSuccess(job string)
	IncFailure(job string)
	IncSkippedCycle()
}

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  jobRecorder
	Interval time.Duration
	// JobTimeout bounds a single job run. Defaults to Interval.
	JobTimeout time.Duration
}

// CycleReport summarizes one pass over the registry.
type CycleReport struct {
	Skipped   bool
	LeaseLost bool
	Succeeded []string
	Failed    []string
}

// Service runs the registered jobs every Interval while holding Lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    jobRecorder
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("job registry required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = interval
	}
	return &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: jobTimeout,
		now:        time.Now,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.runAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Service) runAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
}

// RunOnce performs a single locked pass over every job. A job failure is
// reported in the CycleReport, not as an error.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		report.Skipped = true
		if s.metrics != nil {
			s.metrics.IncSkippedCycle()
		}
		s.logg.Info(ctx, "another cron-worker holds the lease; skipping cycle")
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lease", err)
		}
	}()

	jobs := s.registry.Jobs()
	for i, job := range jobs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
		} else {
			report.Succeeded = append(report.Succeeded, job.Name())
		}
		if i == len(jobs)-1 {
			break
		}
		held, err := s.lock.Refresh(ctx)
		if err != nil {
			return report, fmt.Errorf("lock refresh: %w", err)
		}
		if !held {
			report.LeaseLost = true
			s.logg.Warn(ctx, "cron lease lost mid-cycle; remaining jobs deferred")
			return report, nil
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
	})
	s.logg.Info(logCtx, "scheduled run complete")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	runCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := s.now()
	err := job.Run(runCtx)
	duration := s.now().Sub(start)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if s.metrics != nil {
		s.metrics.ObserveDuration(job.Name(), duration)
	}
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		if s.metrics != nil {
			s.metrics.IncFailure(job.Name())
		}
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	if s.metrics != nil {
		s.metrics.IncSuccess(job.Name())
	}
	return nil
}
