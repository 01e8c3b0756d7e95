package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeLock struct {
	held      bool
	refreshOK bool
	releases  int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Refresh(context.Context) (bool, error) { return f.refreshOK, nil }

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
	ctx  context.Context
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.ctx = ctx
	return t.err
}

type recordingJobMetrics struct {
	success, failure []string
	skipped          int
}

func (r *recordingJobMetrics) ObserveDuration(string, time.Duration) {}
func (r *recordingJobMetrics) IncSuccess(job string)                 { r.success = append(r.success, job) }
func (r *recordingJobMetrics) IncFailure(job string)                 { r.failure = append(r.failure, job) }
func (r *recordingJobMetrics) IncSkippedCycle()                      { r.skipped++ }

func newTestService(t *testing.T, lock Lock, rec jobRecorder, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry:   registry,
		Lock:       lock,
		Metrics:    rec,
		Interval:   time.Minute,
		JobTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsEveryJobEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "pending-payments"}
	failing := &testJob{name: "flaky", err: errors.New("boom")}
	lock := &fakeLock{refreshOK: true}
	rec := &recordingJobMetrics{}
	service := newTestService(t, lock, rec, failing, ok)

	report, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected each job to run once, got ok=%d failing=%d", ok.runs, failing.runs)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "flaky" {
		t.Fatalf("unexpected failed jobs %v", report.Failed)
	}
	if len(report.Succeeded) != 1 || report.Succeeded[0] != "pending-payments" {
		t.Fatalf("unexpected succeeded jobs %v", report.Succeeded)
	}
	if len(rec.success) != 1 || len(rec.failure) != 1 {
		t.Fatalf("expected metrics for both jobs, got %+v", rec)
	}
	if lock.releases != 1 || lock.held {
		t.Fatalf("expected lease released once")
	}
}

func TestRunOnceBoundsJobsWithTimeout(t *testing.T) {
	job := &testJob{name: "pending-payments"}
	service := newTestService(t, &fakeLock{refreshOK: true}, nil, job)

	if _, err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if _, ok := job.ctx.Deadline(); !ok {
		t.Fatal("expected job context to carry a deadline")
	}
}

func TestRunOnceSkipsWhenLeaseTaken(t *testing.T) {
	job := &testJob{name: "pending-payments"}
	rec := &recordingJobMetrics{}
	service := newTestService(t, &fakeLock{held: true}, rec, job)

	report, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !report.Skipped || job.runs != 0 {
		t.Fatalf("expected skipped cycle without runs, report=%+v runs=%d", report, job.runs)
	}
	if rec.skipped != 1 {
		t.Fatalf("expected skipped cycle metric, got %d", rec.skipped)
	}
}

func TestRunOnceStopsWhenLeaseLost(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}
	service := newTestService(t, &fakeLock{refreshOK: false}, nil, first, second)

	report, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !report.LeaseLost {
		t.Fatal("expected lease loss to be reported")
	}
	if first.runs != 1 || second.runs != 0 {
		t.Fatalf("expected only the first job to run, got first=%d second=%d", first.runs, second.runs)
	}
}

func TestNewServiceValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	registry, _ := NewRegistry()
	if _, err := NewService(ServiceParams{Registry: registry, Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected missing logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logg, Registry: registry}); err == nil {
		t.Fatal("expected missing lock error")
	}
	if _, err := NewService(ServiceParams{Logger: logg, Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected missing registry error")
	}
}
