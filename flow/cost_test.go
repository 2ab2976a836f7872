package flow

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/flowcore/flow/store"
)

func fixedTime(y, m, d int) func() time.Time {
	t := time.Date(y, time.Month(m), d, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

// TestCostGuardDailyLimitScenario is spec scenario 6: perExecutionLimit=10,
// dailyLimit=100, today's spend is already 95. A run totalling 8 would push
// the day to 103 and must be denied for the daily reason (even though it's
// within the per-execution limit); a run totalling 4 stays within both.
func TestCostGuardDailyLimitScenario(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	if err := s.SetBudget(ctx, store.BudgetConfig{PerExecutionLimit: 10, DailyLimit: 100}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	g := NewCostGuard(s, nil)
	g.now = fixedTime(2026, 7, 30)

	if _, err := s.RecordSpend(ctx, "2026-07-30", 95); err != nil {
		t.Fatalf("RecordSpend: %v", err)
	}

	denied, err := g.Estimate(ctx, []NodeCostEstimate{{NodeID: "n1", Estimated: 8}})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if denied.WithinBudget {
		t.Fatal("expected denial: 95+8 > 100 daily limit")
	}
	if denied.Reason != "daily limit exceeded" {
		t.Fatalf("reason = %q, want daily limit exceeded", denied.Reason)
	}

	approved, err := g.Estimate(ctx, []NodeCostEstimate{{NodeID: "n1", Estimated: 4}})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if !approved.WithinBudget {
		t.Fatalf("expected approval: 95+4 <= 100, got reason %q", approved.Reason)
	}
}

func TestCostGuardPerExecutionLimit(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	if err := s.SetBudget(ctx, store.BudgetConfig{PerExecutionLimit: 10, DailyLimit: 1000}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	g := NewCostGuard(s, nil)

	est, err := g.Estimate(ctx, []NodeCostEstimate{{NodeID: "n1", Estimated: 11}})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.WithinBudget {
		t.Fatal("expected denial: 11 > per-execution limit 10")
	}
	if est.Reason != "per-execution limit exceeded" {
		t.Fatalf("reason = %q, want per-execution limit exceeded", est.Reason)
	}
}

func TestCostGuardModelCostFallback(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	g := NewCostGuard(s, stubModelCosts{"gpt-x": 2.5})

	est, err := g.Estimate(ctx, []NodeCostEstimate{{NodeID: "n1", ModelID: "gpt-x"}})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.Total != 2.5 {
		t.Fatalf("expected model-cost fallback of 2.5, got %v", est.Total)
	}
}

type stubModelCosts map[string]float64

func (s stubModelCosts) CostPerUnit(modelID string) (float64, bool) {
	v, ok := s[modelID]
	return v, ok
}
