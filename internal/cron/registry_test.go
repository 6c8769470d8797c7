package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "abandoned_carts"}
	jobB := &stubJob{name: "outbox_retention"}
	if err := registry.Register(jobA, time.Hour); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register(jobB, 0); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if err := registry.Register(&stubJob{name: "abandoned_carts"}, time.Minute); err == nil {
		t.Fatal("expected duplicate name to be rejected")
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

func TestRegistryDueHonoursCadence(t *testing.T) {
	registry := NewRegistry()
	hourly := &stubJob{name: "hourly"}
	always := &stubJob{name: "always"}
	_ = registry.Register(hourly, time.Hour)
	_ = registry.Register(always, 0)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if due := registry.Due(start); len(due) != 2 {
		t.Fatalf("expected both jobs on first cycle, got %d", len(due))
	}
	due := registry.Due(start.Add(10 * time.Minute))
	if len(due) != 1 || due[0] != always {
		t.Fatalf("expected only the every-cycle job, got %v", due)
	}
	if due := registry.Due(start.Add(time.Hour)); len(due) != 2 {
		t.Fatalf("expected hourly job due again, got %d", len(due))
	}
}
