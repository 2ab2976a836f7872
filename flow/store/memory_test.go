package store

import (
	"context"
	"testing"
)

func TestCreateWorkflowNameUniqueness(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	names := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		wf, err := s.CreateWorkflow(ctx, "Untitled", GraphDefinition{})
		if err != nil {
			t.Fatalf("CreateWorkflow: %v", err)
		}
		names = append(names, wf.Name)
	}

	want := []string{"Untitled", "Untitled (2)", "Untitled (3)"}
	for i, w := range want {
		if names[i] != w {
			t.Errorf("name[%d] = %q, want %q", i, names[i], w)
		}
	}
}

func TestSaveWorkflowPreservesCurrentOutputWhenExecutionSurvives(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	graph := GraphDefinition{Nodes: []Node{{ID: "n1", Type: "text-input"}}}
	wf, err := s.CreateWorkflow(ctx, "wf", graph)
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	exec, err := s.CreateExecution(ctx, Execution{NodeID: "n1", WorkflowID: wf.ID, Status: ExecutionSuccess})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if err := s.SetCurrentOutput(ctx, "n1", &exec.ID); err != nil {
		t.Fatalf("SetCurrentOutput: %v", err)
	}

	// Overwrite with the same node id: currentOutputId must survive.
	overwritten, err := s.SaveWorkflow(ctx, wf.ID, GraphDefinition{Nodes: []Node{{ID: "n1", Type: "text-input", X: 5}}})
	if err != nil {
		t.Fatalf("SaveWorkflow: %v", err)
	}
	if overwritten.GraphDefinition.Nodes[0].CurrentOutputID == nil || *overwritten.GraphDefinition.Nodes[0].CurrentOutputID != exec.ID {
		t.Fatalf("expected currentOutputId %q to survive overwrite, got %+v", exec.ID, overwritten.GraphDefinition.Nodes[0].CurrentOutputID)
	}

	// Overwrite replacing the node id entirely: pointer must be gone.
	replaced, err := s.SaveWorkflow(ctx, wf.ID, GraphDefinition{Nodes: []Node{{ID: "n2", Type: "text-input"}}})
	if err != nil {
		t.Fatalf("SaveWorkflow: %v", err)
	}
	if replaced.GraphDefinition.Nodes[0].CurrentOutputID != nil {
		t.Fatalf("expected no currentOutputId on a brand new node id, got %v", *replaced.GraphDefinition.Nodes[0].CurrentOutputID)
	}
}

func TestLookupCacheOnlyMatchesSuccessTiedByCreatedAtDesc(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.CreateExecution(ctx, Execution{ID: "e1", NodeID: "n1", InputHash: "h", ParamsHash: "p", Status: ExecutionError}); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if _, err := s.LookupCache(ctx, "n1", "h", "p"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for error-only history, got %v", err)
	}

	if _, err := s.CreateExecution(ctx, Execution{ID: "e2", NodeID: "n1", InputHash: "h", ParamsHash: "p", Status: ExecutionSuccess}); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	got, err := s.LookupCache(ctx, "n1", "h", "p")
	if err != nil {
		t.Fatalf("LookupCache: %v", err)
	}
	if got.ID != "e2" {
		t.Fatalf("LookupCache returned %q, want e2", got.ID)
	}
}

func TestRecordSpendIsAdditive(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	const n = 20
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			_, _ = s.RecordSpend(ctx, "2026-07-30", 1.5)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	ds, err := s.GetDailySpend(ctx, "2026-07-30")
	if err != nil {
		t.Fatalf("GetDailySpend: %v", err)
	}
	if ds.Total != 1.5*n {
		t.Fatalf("daily spend = %v, want %v", ds.Total, 1.5*n)
	}
}

func TestDuplicateWorkflowNeverReusesNodeIDs(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	graph := GraphDefinition{
		Nodes: []Node{{ID: "n1"}, {ID: "n2"}},
		Edges: []Edge{{ID: "e1", SourceNodeID: "n1", TargetNodeID: "n2"}},
	}
	wf, err := s.CreateWorkflow(ctx, "src", graph)
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	dup, err := s.DuplicateWorkflow(ctx, wf.ID, "")
	if err != nil {
		t.Fatalf("DuplicateWorkflow: %v", err)
	}
	if dup.ID == wf.ID {
		t.Fatalf("duplicate reused the source workflow id")
	}
	if dup.Name != "src (2)" {
		t.Fatalf("duplicate name = %q, want %q", dup.Name, "src (2)")
	}
	for _, n := range dup.GraphDefinition.Nodes {
		if n.ID == "n1" || n.ID == "n2" {
			t.Fatalf("duplicate node id %q was not remapped", n.ID)
		}
	}
}
