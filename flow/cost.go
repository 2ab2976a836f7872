package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/flowcore/flow/store"
)

// ModelCostSource is the optional hook the Cost Guard consults for a
// per-model cost-per-unit hint when a node's handler doesn't supply its
// own per-node estimate. The Model Cache implements this.
type ModelCostSource interface {
	CostPerUnit(modelID string) (float64, bool)
}

// NodeCostEstimate is one node's contribution to a run's total estimate.
type NodeCostEstimate struct {
	NodeID    string
	NodeType  string
	ModelID   string // optional; empty if the node type isn't model-backed
	Estimated float64
}

// CostEstimate is the reply shape of cost:estimate.
type CostEstimate struct {
	Total        float64
	Breakdown    []NodeCostEstimate
	WithinBudget bool
	Reason       string // set only when WithinBudget is false
}

// CostGuard enforces the per-execution and daily spend ceilings in
// BudgetConfig. It is advisory only: Estimate reports whether a run would
// exceed budget, but nothing in the engine refuses to run on its account —
// callers decide whether to honor the denial.
type CostGuard struct {
	store      store.Store
	modelCosts ModelCostSource
	now        func() time.Time
}

// NewCostGuard builds a CostGuard over store s. modelCosts may be nil if no
// model cache is wired; per-node estimates are then used exactly as the
// caller supplies them.
func NewCostGuard(s store.Store, modelCosts ModelCostSource) *CostGuard {
	return &CostGuard{store: s, modelCosts: modelCosts, now: time.Now}
}

// Estimate sums perNodeEstimates (falling back to a model-cost hint per
// node when the caller leaves an entry at zero and supplies a ModelID),
// then compares the total against both the per-execution limit and the
// remaining daily budget for today (UTC).
func (g *CostGuard) Estimate(ctx context.Context, nodes []NodeCostEstimate) (CostEstimate, error) {
	breakdown := make([]NodeCostEstimate, len(nodes))
	copy(breakdown, nodes)

	var total float64
	for i, n := range breakdown {
		if n.Estimated == 0 && n.ModelID != "" && g.modelCosts != nil {
			if cost, ok := g.modelCosts.CostPerUnit(n.ModelID); ok {
				breakdown[i].Estimated = cost
			}
		}
		total += breakdown[i].Estimated
	}

	cfg, err := g.store.GetBudget(ctx)
	if err != nil {
		return CostEstimate{}, fmt.Errorf("cost guard: get budget: %w", err)
	}

	if cfg.PerExecutionLimit > 0 && total > cfg.PerExecutionLimit {
		return CostEstimate{
			Total:        total,
			Breakdown:    breakdown,
			WithinBudget: false,
			Reason:       "per-execution limit exceeded",
		}, nil
	}

	if cfg.DailyLimit > 0 {
		today := g.now().UTC().Format("2006-01-02")
		spend, err := g.store.GetDailySpend(ctx, today)
		if err != nil {
			return CostEstimate{}, fmt.Errorf("cost guard: get daily spend: %w", err)
		}
		if spend.Total+total > cfg.DailyLimit {
			return CostEstimate{
				Total:        total,
				Breakdown:    breakdown,
				WithinBudget: false,
				Reason:       "daily limit exceeded",
			}, nil
		}
	}

	return CostEstimate{Total: total, Breakdown: breakdown, WithinBudget: true}, nil
}

// RecordSpend adds amount to today's (UTC) daily spend total.
func (g *CostGuard) RecordSpend(ctx context.Context, amount float64) (store.DailySpend, error) {
	today := g.now().UTC().Format("2006-01-02")
	spend, err := g.store.RecordSpend(ctx, today, amount)
	if err != nil {
		return store.DailySpend{}, fmt.Errorf("cost guard: record spend: %w", err)
	}
	return spend, nil
}

// SetBudget updates the singleton BudgetConfig.
func (g *CostGuard) SetBudget(ctx context.Context, cfg store.BudgetConfig) error {
	if err := g.store.SetBudget(ctx, cfg); err != nil {
		return fmt.Errorf("cost guard: set budget: %w", err)
	}
	return nil
}

// GetBudget returns the current BudgetConfig.
func (g *CostGuard) GetBudget(ctx context.Context) (store.BudgetConfig, error) {
	cfg, err := g.store.GetBudget(ctx)
	if err != nil {
		return store.BudgetConfig{}, fmt.Errorf("cost guard: get budget: %w", err)
	}
	return cfg, nil
}
