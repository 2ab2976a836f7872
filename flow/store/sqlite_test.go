package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestNewSQLiteStoreRecoversFromCorruptFile verifies the backup+reinit
// contract: a file that fails PRAGMA integrity_check is renamed aside and
// a fresh database is initialized in its place, rather than failing open.
func TestNewSQLiteStoreRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	if err := os.WriteFile(path, []byte("not a sqlite database"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: expected recovery, got error: %v", err)
	}
	defer s.Close()

	if _, err := s.CreateWorkflow(context.Background(), "recovered", GraphDefinition{}); err != nil {
		t.Fatalf("expected a usable fresh store after recovery, got: %v", err)
	}

	matches, err := filepath.Glob(path + ".corrupt.*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one backed-up corrupt file, found %v", matches)
	}
}

// TestSQLiteStoreSaveWorkflowDoesNotCascadeDeleteExecutions is a
// white-box regression test for the SaveWorkflow FK-relaxation path:
// plain `PRAGMA foreign_keys=OFF` is a no-op once a transaction is
// already open, which would let the `DELETE FROM nodes` in SaveWorkflow
// cascade into `executions` via its `ON DELETE CASCADE` reference. This
// asserts directly against the underlying table, independent of the
// CurrentOutputID restoration logic already covered by the cross-backend
// suite in common_test.go.
func TestSQLiteStoreSaveWorkflowDoesNotCascadeDeleteExecutions(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	wf, err := s.CreateWorkflow(ctx, "fk-wf", GraphDefinition{Nodes: []Node{{ID: "n1", Type: "text-input"}}})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	exec, err := s.CreateExecution(ctx, Execution{NodeID: "n1", WorkflowID: wf.ID, Status: ExecutionSuccess})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	if _, err := s.SaveWorkflow(ctx, wf.ID, GraphDefinition{Nodes: []Node{{ID: "n1", Type: "text-input", X: 1}}}); err != nil {
		t.Fatalf("SaveWorkflow: %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions WHERE id = ?", exec.ID).Scan(&count); err != nil {
		t.Fatalf("querying executions directly: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the execution row to survive the node delete/reinsert, found %d rows", count)
	}
}
