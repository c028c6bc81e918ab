package cron

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/angelmondragon/gpo-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline time.Time
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.deadline, _ = ctx.Deadline()
	return t.err
}

func newCronService(t *testing.T, lock Lock, timeout time.Duration, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry:   NewRegistry(jobs...),
		Lock:       lock,
		JobTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunCycleRunsEveryJobEvenOnFailure(t *testing.T) {
	pool := &testJob{name: "gpo_pooling", err: errors.New("boom")}
	retention := &testJob{name: "outbox_retention"}
	lock := &fakeLock{}
	service := newCronService(t, lock, 0, pool, retention)

	report, err := service.runCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if pool.runs != 1 || retention.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", pool.runs, retention.runs)
	}
	if !reflect.DeepEqual(report.ran, []string{"gpo_pooling", "outbox_retention"}) {
		t.Fatalf("unexpected ran list %v", report.ran)
	}
	if !reflect.DeepEqual(report.failed, []string{"gpo_pooling"}) {
		t.Fatalf("unexpected failed list %v", report.failed)
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("lock must be released after the cycle")
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "gpo_pooling"}
	service := newCronService(t, &fakeLock{held: true}, 0, job)

	report, err := service.runCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if !report.skipped || job.runs != 0 {
		t.Fatalf("expected skipped cycle, got %+v runs=%d", report, job.runs)
	}
}

func TestRunJobAppliesTimeout(t *testing.T) {
	job := &testJob{name: "gpo_pooling"}
	service := newCronService(t, &fakeLock{}, time.Minute, job)

	before := time.Now()
	if _, err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.deadline.IsZero() {
		t.Fatalf("job context must carry a deadline")
	}
	if job.deadline.Before(before.Add(time.Minute)) || job.deadline.After(time.Now().Add(time.Minute)) {
		t.Fatalf("unexpected deadline %s", job.deadline)
	}
}

func TestRunCycleStopsOnCancelledContext(t *testing.T) {
	job := &testJob{name: "gpo_pooling"}
	service := newCronService(t, &fakeLock{}, 0, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := service.runCycle(ctx)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 || len(report.ran) != 0 {
		t.Fatalf("cancelled cycle must not start jobs")
	}
}
