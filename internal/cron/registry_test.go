package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry, err := NewRegistry(jobA, jobB)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsInvalidJobs(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if err := registry.Register(nil); err == nil {
		t.Fatal("expected nil job to be rejected")
	}
	if err := registry.Register(&stubJob{name: "  "}); err == nil {
		t.Fatal("expected blank name to be rejected")
	}
}

func TestRegistrySelect(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "a"}, &stubJob{name: "b"}, &stubJob{name: "c"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	all, err := registry.Select(nil)
	if err != nil || len(all.Jobs()) != 3 {
		t.Fatalf("expected empty selection to keep all jobs, err=%v", err)
	}

	picked, err := registry.Select([]string{"c", "a"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	jobs := picked.Jobs()
	if len(jobs) != 2 || jobs[0].Name() != "a" || jobs[1].Name() != "c" {
		t.Fatalf("expected [a c] in registration order, got %v", jobs)
	}

	if _, err := registry.Select([]string{"missing"}); err == nil {
		t.Fatal("expected unknown job to be rejected")
	}
}
