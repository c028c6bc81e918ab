package cron

import (
	"context"
	"testing"
)

type namedJob struct {
	name string
}

func (j *namedJob) Name() string              { return j.name }
func (j *namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry(nil, &namedJob{name: "order-pooling"})
	retention := &namedJob{name: "outbox-retention"}
	if err := registry.Register(retention); err != nil {
		t.Fatalf("register: %v", err)
	}

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[1] != retention {
		t.Fatalf("jobs returned out of order")
	}
	names := registry.Names()
	if names[0] != "order-pooling" || names[1] != "outbox-retention" {
		t.Fatalf("unexpected names %v", names)
	}

	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&namedJob{name: "order-pooling"})
	if err := registry.Register(&namedJob{name: "order-pooling"}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected 1 job, got %d", got)
	}
}
