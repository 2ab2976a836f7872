package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowforge/flowcore/flow/store"
)

// scenario builds one Store backend to exercise and a cleanup func to
// release it. Every case in this file runs once per scenario so the three
// backends stay behaviorally interchangeable.
type scenario struct {
	name  string
	build func(t *testing.T) (store.Store, func())
}

func scenarios() []scenario {
	return []scenario{
		{
			name: "MemStore",
			build: func(t *testing.T) (store.Store, func()) {
				return store.NewMemStore(), func() {}
			},
		},
		{
			name: "SQLiteStore",
			build: func(t *testing.T) (store.Store, func()) {
				dbPath := filepath.Join(t.TempDir(), "flowcore-test.db")
				s, err := store.NewSQLiteStore(dbPath)
				if err != nil {
					t.Fatalf("NewSQLiteStore: %v", err)
				}
				return s, func() { s.Close() }
			},
		},
		{
			name: "MySQLStore",
			build: func(t *testing.T) (store.Store, func()) {
				dsn := os.Getenv("TEST_MYSQL_DSN")
				if dsn == "" {
					t.Skip("skipping MySQL test: TEST_MYSQL_DSN not set")
				}
				s, err := store.NewMySQLStore(dsn)
				if err != nil {
					t.Fatalf("NewMySQLStore: %v", err)
				}
				return s, func() { s.Close() }
			},
		},
	}
}

// TestSaveWorkflowPreservesExecutionHistoryAcrossStores is the §4.1/§8
// contract every backend must honor: overwriting a workflow's graph must
// not destroy the Execution rows of nodes that survive the overwrite, and
// CurrentOutputID must be restored exactly when its referenced Execution
// still exists. This is the exact scenario the SaveWorkflow FK-relaxation
// bug broke on SQLiteStore (the delete of the old `nodes` row cascaded
// into `executions` because foreign-key enforcement was still on inside
// the transaction, so the restoration step below found nothing to
// restore).
func TestSaveWorkflowPreservesExecutionHistoryAcrossStores(t *testing.T) {
	for _, sc := range scenarios() {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			s, cleanup := sc.build(t)
			defer cleanup()

			wf, err := s.CreateWorkflow(ctx, "wf-"+sc.name, store.GraphDefinition{
				Nodes: []store.Node{{ID: "n1", Type: "text-input"}},
			})
			if err != nil {
				t.Fatalf("CreateWorkflow: %v", err)
			}

			exec, err := s.CreateExecution(ctx, store.Execution{
				NodeID: "n1", WorkflowID: wf.ID, Status: store.ExecutionSuccess,
			})
			if err != nil {
				t.Fatalf("CreateExecution: %v", err)
			}
			if err := s.SetCurrentOutput(ctx, "n1", &exec.ID); err != nil {
				t.Fatalf("SetCurrentOutput: %v", err)
			}

			// Overwrite the graph, keeping node n1's id but changing its
			// position. The prior Execution must survive the delete/reinsert
			// and CurrentOutputID must come back pointed at it.
			overwritten, err := s.SaveWorkflow(ctx, wf.ID, store.GraphDefinition{
				Nodes: []store.Node{{ID: "n1", Type: "text-input", X: 5}},
			})
			if err != nil {
				t.Fatalf("SaveWorkflow: %v", err)
			}
			if len(overwritten.GraphDefinition.Nodes) != 1 {
				t.Fatalf("expected 1 node after overwrite, got %d", len(overwritten.GraphDefinition.Nodes))
			}
			got := overwritten.GraphDefinition.Nodes[0].CurrentOutputID
			if got == nil || *got != exec.ID {
				t.Fatalf("expected currentOutputId %q to survive overwrite, got %v", exec.ID, got)
			}

			if _, err := s.GetExecution(ctx, exec.ID); err != nil {
				t.Fatalf("expected execution %q to survive the graph overwrite, got: %v", exec.ID, err)
			}
			execs, err := s.ListExecutionsByNode(ctx, "n1")
			if err != nil {
				t.Fatalf("ListExecutionsByNode: %v", err)
			}
			if len(execs) != 1 {
				t.Fatalf("expected 1 surviving execution for n1, got %d", len(execs))
			}

			// Overwriting with a brand new node id must not carry the
			// pointer over, since nothing in the new graph references it.
			replaced, err := s.SaveWorkflow(ctx, wf.ID, store.GraphDefinition{
				Nodes: []store.Node{{ID: "n2", Type: "text-input"}},
			})
			if err != nil {
				t.Fatalf("SaveWorkflow (replace): %v", err)
			}
			if replaced.GraphDefinition.Nodes[0].CurrentOutputID != nil {
				t.Fatalf("expected no currentOutputId on a brand new node id, got %v", *replaced.GraphDefinition.Nodes[0].CurrentOutputID)
			}
		})
	}
}

// TestLookupCacheContractAcrossStores verifies the cache-lookup contract
// (most recent success, error-only history reported as ErrNotFound) holds
// identically on every backend.
func TestLookupCacheContractAcrossStores(t *testing.T) {
	for _, sc := range scenarios() {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			s, cleanup := sc.build(t)
			defer cleanup()

			wf, err := s.CreateWorkflow(ctx, "cache-wf-"+sc.name, store.GraphDefinition{
				Nodes: []store.Node{{ID: "n1", Type: "text-input"}},
			})
			if err != nil {
				t.Fatalf("CreateWorkflow: %v", err)
			}

			if _, err := s.CreateExecution(ctx, store.Execution{
				NodeID: "n1", WorkflowID: wf.ID, InputHash: "h", ParamsHash: "p", Status: store.ExecutionError,
			}); err != nil {
				t.Fatalf("CreateExecution (error): %v", err)
			}
			if _, err := s.LookupCache(ctx, "n1", "h", "p"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for error-only history, got %v", err)
			}

			success, err := s.CreateExecution(ctx, store.Execution{
				NodeID: "n1", WorkflowID: wf.ID, InputHash: "h", ParamsHash: "p", Status: store.ExecutionSuccess,
			})
			if err != nil {
				t.Fatalf("CreateExecution (success): %v", err)
			}
			got, err := s.LookupCache(ctx, "n1", "h", "p")
			if err != nil {
				t.Fatalf("LookupCache: %v", err)
			}
			if got.ID != success.ID {
				t.Fatalf("LookupCache returned %q, want %q", got.ID, success.ID)
			}
		})
	}
}

// TestBudgetAndDailySpendRoundTripAcrossStores exercises the cost-guard
// persistence surface (BudgetConfig singleton, additive DailySpend) on
// every backend.
func TestBudgetAndDailySpendRoundTripAcrossStores(t *testing.T) {
	for _, sc := range scenarios() {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			s, cleanup := sc.build(t)
			defer cleanup()

			cfg := store.BudgetConfig{PerExecutionLimit: 10, DailyLimit: 100}
			if err := s.SetBudget(ctx, cfg); err != nil {
				t.Fatalf("SetBudget: %v", err)
			}
			got, err := s.GetBudget(ctx)
			if err != nil {
				t.Fatalf("GetBudget: %v", err)
			}
			if got != cfg {
				t.Fatalf("GetBudget = %+v, want %+v", got, cfg)
			}

			if _, err := s.RecordSpend(ctx, "2026-07-30", 1.5); err != nil {
				t.Fatalf("RecordSpend: %v", err)
			}
			if _, err := s.RecordSpend(ctx, "2026-07-30", 2.5); err != nil {
				t.Fatalf("RecordSpend: %v", err)
			}
			ds, err := s.GetDailySpend(ctx, "2026-07-30")
			if err != nil {
				t.Fatalf("GetDailySpend: %v", err)
			}
			if ds.Total != 4 {
				t.Fatalf("daily spend = %v, want 4", ds.Total)
			}
		})
	}
}

// TestNotFoundContractAcrossStores verifies every backend reports
// ErrNotFound, not a driver-specific error, for missing rows.
func TestNotFoundContractAcrossStores(t *testing.T) {
	for _, sc := range scenarios() {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			s, cleanup := sc.build(t)
			defer cleanup()

			if _, err := s.LoadWorkflow(ctx, "nonexistent"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("LoadWorkflow: expected ErrNotFound, got %v", err)
			}
			if _, err := s.GetNode(ctx, "nonexistent"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("GetNode: expected ErrNotFound, got %v", err)
			}
			if _, err := s.GetExecution(ctx, "nonexistent"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("GetExecution: expected ErrNotFound, got %v", err)
			}
		})
	}
}
