package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default embedded Store backend. It keeps the whole
// workflow graph, execution history, budget, and model-schema cache in a
// single file, using WAL mode for concurrent readers and a debounced
// persist for bursty writes.
//
// Designed for:
//   - Zero-setup local development and the desktop shell's single-process
//     deployment
//   - Cascade-sensitive workflow overwrites, which switch foreign-key
//     enforcement off for the duration of the delete/reinsert pair
type SQLiteStore struct {
	db     *sql.DB
	path   string
	mu     sync.RWMutex
	closed bool

	debounceMu      sync.Mutex
	debounceTimer   *time.Timer
	debounceDelay   time.Duration
	debouncePending bool
}

// NewSQLiteStore opens or creates the database file at path, running an
// integrity check first. If the check fails, the corrupt file is renamed
// with a ".corrupt.<epoch>" suffix and a fresh database is initialized in
// its place, matching the backup+reinit contract for store corruption.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := checkIntegrityAndRecover(path); err != nil {
			return nil, fmt.Errorf("flowcore: recovering sqlite store at %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("flowcore: opening sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("flowcore: applying %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:            db,
		path:          path,
		debounceDelay: 500 * time.Millisecond,
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("flowcore: creating schema: %w", err)
	}

	return s, nil
}

// checkIntegrityAndRecover runs PRAGMA integrity_check against an existing
// database file and, on failure, renames it aside so a fresh file can be
// initialized in its place. A missing file is not a corruption: it is
// simply the first run.
func checkIntegrityAndRecover(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return backupAndReinit(path)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil || result != "ok" {
		return backupAndReinit(path)
	}
	return nil
}

func backupAndReinit(path string) error {
	backup := fmt.Sprintf("%s.corrupt.%d", path, time.Now().UnixNano())
	if err := os.Rename(path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("renaming corrupt store to %s: %w", backup, err)
	}
	return nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			graph_definition TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_workflows_name ON workflows(name)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			x REAL NOT NULL DEFAULT 0,
			y REAL NOT NULL DEFAULT 0,
			params TEXT NOT NULL DEFAULT '{}',
			current_output_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_workflow_id ON nodes(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			source_node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			source_output TEXT NOT NULL,
			target_node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			target_input TEXT NOT NULL,
			UNIQUE(source_node_id, source_output, target_node_id, target_input)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_workflow_id ON edges(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			input_hash TEXT NOT NULL,
			params_hash TEXT NOT NULL,
			status TEXT NOT NULL,
			result_path TEXT,
			result_metadata TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			score INTEGER,
			starred INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_node_id ON executions(node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_cache_key ON executions(node_id, input_hash, params_hash, status)`,
		`CREATE TABLE IF NOT EXISTS budget_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			per_execution_limit REAL NOT NULL DEFAULT 0,
			daily_limit REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS daily_spend (
			date TEXT PRIMARY KEY,
			total REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS upload_assets (
			id TEXT PRIMARY KEY,
			original_name TEXT NOT NULL,
			stored_path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			mime_type TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS model_schemas (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			display_name TEXT NOT NULL,
			category TEXT NOT NULL,
			params_schema TEXT NOT NULL DEFAULT '{}',
			cost_per_unit REAL,
			synced_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_model_schemas_provider ON model_schemas(provider)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM budget_config").Scan(&count); err != nil {
		return fmt.Errorf("checking budget_config seed: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO budget_config(id, per_execution_limit, daily_limit) VALUES (1, 0, 0)"); err != nil {
			return fmt.Errorf("seeding budget_config: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// transaction runs fn inside a BEGIN/COMMIT, rolling back and propagating
// fn's error on failure, and scheduling a debounced flush on success.
func (s *SQLiteStore) transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.schedulePersist()
	return nil
}

// schedulePersist collapses bursts of writes into a single WAL checkpoint
// at most once per debounce window. Flush forces it immediately.
func (s *SQLiteStore) schedulePersist() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	s.debouncePending = true
	if s.debounceTimer != nil {
		return
	}
	s.debounceTimer = time.AfterFunc(s.debounceDelay, func() {
		_ = s.checkpoint(context.Background())
	})
}

func (s *SQLiteStore) checkpoint(ctx context.Context) error {
	s.debounceMu.Lock()
	s.debounceTimer = nil
	s.debouncePending = false
	s.debounceMu.Unlock()

	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	return err
}

// Flush is the non-debounced variant used at shutdown and after
// transactional boundaries that must be durable immediately.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.checkpoint(ctx)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// --- Workflows ---

func (s *SQLiteStore) CreateWorkflow(ctx context.Context, name string, graph GraphDefinition) (Workflow, error) {
	name = trimAndDedupe(ctx, s.db, name, "")
	id := newID()
	now := time.Now().UTC()
	wf := Workflow{ID: id, Name: name, CreatedAt: now, UpdatedAt: now, GraphDefinition: graph, Status: WorkflowDraft}

	err := s.transaction(ctx, func(tx *sql.Tx) error {
		graphJSON, err := json.Marshal(graph)
		if err != nil {
			return fmt.Errorf("marshaling graph definition: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflows(id, name, graph_definition, status, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
			id, name, graphJSON, string(WorkflowDraft), now, now); err != nil {
			return fmt.Errorf("inserting workflow: %w", err)
		}
		return insertGraph(ctx, tx, id, graph)
	})
	if err != nil {
		return Workflow{}, err
	}
	return wf, nil
}

// trimAndDedupe applies the §4.1 uniqueness rule: trim, then append
// " (n)" with the smallest n >= 2 that makes the name unique, excluding
// excludeID (used when renaming a workflow to a name close to its own).
func trimAndDedupe(ctx context.Context, db *sql.DB, name, excludeID string) string {
	name = trimSpace(name)
	candidate := name
	for n := 2; ; n++ {
		var existingID string
		err := db.QueryRowContext(ctx, "SELECT id FROM workflows WHERE name = ?", candidate).Scan(&existingID)
		if errors.Is(err, sql.ErrNoRows) {
			return candidate
		}
		if err == nil && existingID == excludeID {
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func insertGraph(ctx context.Context, tx *sql.Tx, workflowID string, graph GraphDefinition) error {
	for _, n := range graph.Nodes {
		paramsJSON, err := json.Marshal(n.Params)
		if err != nil {
			return fmt.Errorf("marshaling node params: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes(id, workflow_id, type, x, y, params, current_output_id) VALUES (?,?,?,?,?,?,?)`,
			n.ID, workflowID, n.Type, n.X, n.Y, paramsJSON, n.CurrentOutputID); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}
	for _, e := range graph.Edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edges(id, workflow_id, source_node_id, source_output, target_node_id, target_input) VALUES (?,?,?,?,?,?)`,
			e.ID, workflowID, e.SourceNodeID, e.SourceOutput, e.TargetNodeID, e.TargetInput); err != nil {
			return fmt.Errorf("inserting edge %s: %w", e.ID, err)
		}
	}
	return nil
}

// SaveWorkflow implements the overwrite protocol of §4.1: FK enforcement
// is switched off for the duration of the delete/reinsert so that
// cascading node deletes do not destroy execution history, then
// CurrentOutputID is restored on every surviving node whose execution
// still exists. `PRAGMA foreign_keys=OFF` is a no-op once a transaction
// is pending, so it is issued on the store's single pooled connection
// before the transaction begins and turned back on when SaveWorkflow
// returns. `defer_foreign_keys` would not do: it only postpones the
// constraint checks to COMMIT, while ON DELETE CASCADE still runs at the
// time of the delete.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, workflowID string, graph GraphDefinition) (Workflow, error) {
	if err := s.checkOpen(); err != nil {
		return Workflow{}, err
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return Workflow{}, fmt.Errorf("disabling foreign keys: %w", err)
	}
	defer func() { _, _ = s.db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON") }()

	var survivingOutputs map[string]string
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		prior := map[string]string{}
		rows, err := tx.QueryContext(ctx, "SELECT id, current_output_id FROM nodes WHERE workflow_id = ?", workflowID)
		if err != nil {
			return fmt.Errorf("loading prior nodes: %w", err)
		}
		for rows.Next() {
			var id string
			var out sql.NullString
			if err := rows.Scan(&id, &out); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scanning prior node: %w", err)
			}
			if out.Valid {
				prior[id] = out.String
			}
		}
		_ = rows.Close()

		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE workflow_id = ?", workflowID); err != nil {
			return fmt.Errorf("deleting nodes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE workflow_id = ?", workflowID); err != nil {
			return fmt.Errorf("deleting edges: %w", err)
		}

		if err := insertGraph(ctx, tx, workflowID, graph); err != nil {
			return err
		}

		survivingOutputs = map[string]string{}
		for _, n := range graph.Nodes {
			execID, ok := prior[n.ID]
			if !ok {
				continue
			}
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions WHERE id = ?", execID).Scan(&exists); err != nil {
				return fmt.Errorf("checking execution survival for node %s: %w", n.ID, err)
			}
			if exists == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, "UPDATE nodes SET current_output_id = ? WHERE id = ?", execID, n.ID); err != nil {
				return fmt.Errorf("restoring current_output_id for node %s: %w", n.ID, err)
			}
			survivingOutputs[n.ID] = execID
		}

		graphJSON, err := json.Marshal(graph)
		if err != nil {
			return fmt.Errorf("marshaling graph definition: %w", err)
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, "UPDATE workflows SET graph_definition=?, updated_at=? WHERE id=?", graphJSON, now, workflowID); err != nil {
			return fmt.Errorf("updating workflow graph: %w", err)
		}

		return nil
	})
	if err != nil {
		return Workflow{}, err
	}

	for i := range graph.Nodes {
		if execID, ok := survivingOutputs[graph.Nodes[i].ID]; ok {
			id := execID
			graph.Nodes[i].CurrentOutputID = &id
		} else {
			graph.Nodes[i].CurrentOutputID = nil
		}
	}

	return s.LoadWorkflow(ctx, workflowID)
}

func (s *SQLiteStore) LoadWorkflow(ctx context.Context, workflowID string) (Workflow, error) {
	if err := s.checkOpen(); err != nil {
		return Workflow{}, err
	}
	var wf Workflow
	var graphJSON []byte
	var status string
	row := s.db.QueryRowContext(ctx, "SELECT id, name, graph_definition, status, created_at, updated_at FROM workflows WHERE id = ?", workflowID)
	if err := row.Scan(&wf.ID, &wf.Name, &graphJSON, &status, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workflow{}, ErrNotFound
		}
		return Workflow{}, fmt.Errorf("loading workflow: %w", err)
	}
	wf.Status = WorkflowStatus(status)

	nodes, err := s.Nodes(ctx, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	edges, err := s.Edges(ctx, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	wf.GraphDefinition = GraphDefinition{Nodes: nodes, Edges: edges}
	_ = graphJSON
	return wf, nil
}

func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM workflows ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning workflow id: %w", err)
		}
		ids = append(ids, id)
	}

	out := make([]Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.LoadWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", workflowID)
		if err != nil {
			return fmt.Errorf("deleting workflow: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) RenameWorkflow(ctx context.Context, workflowID, name string) (Workflow, error) {
	name = trimAndDedupe(ctx, s.db, name, workflowID)
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, "UPDATE workflows SET name=?, updated_at=? WHERE id=?", name, now, workflowID)
		if err != nil {
			return fmt.Errorf("renaming workflow: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Workflow{}, err
	}
	return s.LoadWorkflow(ctx, workflowID)
}

func (s *SQLiteStore) DuplicateWorkflow(ctx context.Context, workflowID, newName string) (Workflow, error) {
	src, err := s.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return Workflow{}, err
	}

	idRemap := map[string]string{}
	graph := GraphDefinition{}
	for _, n := range src.GraphDefinition.Nodes {
		newNodeID := newID()
		idRemap[n.ID] = newNodeID
		nn := n
		nn.ID = newNodeID
		nn.CurrentOutputID = nil // duplicated workflow starts with no execution history
		graph.Nodes = append(graph.Nodes, nn)
	}
	for _, e := range src.GraphDefinition.Edges {
		ne := e
		ne.ID = newID()
		ne.SourceNodeID = idRemap[e.SourceNodeID]
		ne.TargetNodeID = idRemap[e.TargetNodeID]
		graph.Edges = append(graph.Edges, ne)
	}

	if newName == "" {
		newName = src.Name
	}
	return s.CreateWorkflow(ctx, newName, graph)
}

// --- Nodes & Edges ---

func (s *SQLiteStore) Nodes(ctx context.Context, workflowID string) ([]Node, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, workflow_id, type, x, y, params, current_output_id FROM nodes WHERE workflow_id = ? ORDER BY id", workflowID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Node
	for rows.Next() {
		var n Node
		var paramsJSON []byte
		var outID sql.NullString
		if err := rows.Scan(&n.ID, &n.WorkflowID, &n.Type, &n.X, &n.Y, &paramsJSON, &outID); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		if outID.Valid {
			v := outID.String
			n.CurrentOutputID = &v
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &n.Params); err != nil {
				return nil, fmt.Errorf("unmarshaling params for node %s: %w", n.ID, err)
			}
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *SQLiteStore) Edges(ctx context.Context, workflowID string) ([]Edge, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, workflow_id, source_node_id, source_output, target_node_id, target_input FROM edges WHERE workflow_id = ? ORDER BY id", workflowID)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.SourceNodeID, &e.SourceOutput, &e.TargetNodeID, &e.TargetInput); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLiteStore) GetNode(ctx context.Context, nodeID string) (Node, error) {
	if err := s.checkOpen(); err != nil {
		return Node{}, err
	}
	var n Node
	var paramsJSON []byte
	var outID sql.NullString
	row := s.db.QueryRowContext(ctx, "SELECT id, workflow_id, type, x, y, params, current_output_id FROM nodes WHERE id = ?", nodeID)
	if err := row.Scan(&n.ID, &n.WorkflowID, &n.Type, &n.X, &n.Y, &paramsJSON, &outID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Node{}, ErrNotFound
		}
		return Node{}, fmt.Errorf("loading node: %w", err)
	}
	if outID.Valid {
		v := outID.String
		n.CurrentOutputID = &v
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &n.Params); err != nil {
			return Node{}, fmt.Errorf("unmarshaling params: %w", err)
		}
	}
	return n, nil
}

func (s *SQLiteStore) SetCurrentOutput(ctx context.Context, nodeID string, executionID *string) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE nodes SET current_output_id = ? WHERE id = ?", executionID, nodeID)
		if err != nil {
			return fmt.Errorf("setting current output: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- Executions ---

func (s *SQLiteStore) CreateExecution(ctx context.Context, exec Execution) (Execution, error) {
	if exec.ID == "" {
		exec.ID = newID()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		metaJSON, err := json.Marshal(exec.ResultMetadata)
		if err != nil {
			return fmt.Errorf("marshaling result metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO executions(id, node_id, workflow_id, input_hash, params_hash, status, result_path, result_metadata, duration_ms, cost, created_at, score, starred)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			exec.ID, exec.NodeID, exec.WorkflowID, exec.InputHash, exec.ParamsHash, string(exec.Status),
			exec.ResultPath, metaJSON, exec.DurationMs, exec.Cost, exec.CreatedAt, exec.Score, boolToInt(exec.Starred))
		if err != nil {
			return fmt.Errorf("inserting execution: %w", err)
		}
		return nil
	})
	if err != nil {
		return Execution{}, err
	}
	return exec, nil
}

func (s *SQLiteStore) FinalizeExecution(ctx context.Context, executionID string, status ExecutionStatus, resultPath *string, resultMetadata map[string]interface{}, durationMs int64, cost float64) (Execution, error) {
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		metaJSON, err := json.Marshal(resultMetadata)
		if err != nil {
			return fmt.Errorf("marshaling result metadata: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE executions SET status=?, result_path=?, result_metadata=?, duration_ms=?, cost=? WHERE id=?`,
			string(status), resultPath, metaJSON, durationMs, cost, executionID)
		if err != nil {
			return fmt.Errorf("finalizing execution: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Execution{}, err
	}
	return s.GetExecution(ctx, executionID)
}

func scanExecution(row interface {
	Scan(dest ...interface{}) error
}) (Execution, error) {
	var e Execution
	var status string
	var resultPath sql.NullString
	var metaJSON []byte
	var score sql.NullInt64
	var starred int
	if err := row.Scan(&e.ID, &e.NodeID, &e.WorkflowID, &e.InputHash, &e.ParamsHash, &status, &resultPath, &metaJSON, &e.DurationMs, &e.Cost, &e.CreatedAt, &score, &starred); err != nil {
		return Execution{}, err
	}
	e.Status = ExecutionStatus(status)
	if resultPath.Valid {
		v := resultPath.String
		e.ResultPath = &v
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.ResultMetadata); err != nil {
			return Execution{}, fmt.Errorf("unmarshaling result metadata: %w", err)
		}
	}
	if score.Valid {
		v := int(score.Int64)
		e.Score = &v
	}
	e.Starred = starred != 0
	return e, nil
}

func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (Execution, error) {
	if err := s.checkOpen(); err != nil {
		return Execution{}, err
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT id, node_id, workflow_id, input_hash, params_hash, status, result_path, result_metadata, duration_ms, cost, created_at, score, starred FROM executions WHERE id = ?", executionID)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, ErrNotFound
	}
	if err != nil {
		return Execution{}, fmt.Errorf("loading execution: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) ListExecutionsByNode(ctx context.Context, nodeID string) ([]Execution, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, node_id, workflow_id, input_hash, params_hash, status, result_path, result_metadata, duration_ms, cost, created_at, score, starred FROM executions WHERE node_id = ? ORDER BY created_at DESC", nodeID)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// LookupCache returns the most recent successful execution for
// (nodeID, inputHash, paramsHash), ties broken by createdAt descending —
// the read path the (node_id, input_hash, params_hash, status) index
// exists to serve.
func (s *SQLiteStore) LookupCache(ctx context.Context, nodeID, inputHash, paramsHash string) (Execution, error) {
	if err := s.checkOpen(); err != nil {
		return Execution{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, node_id, workflow_id, input_hash, params_hash, status, result_path, result_metadata, duration_ms, cost, created_at, score, starred
		 FROM executions WHERE node_id = ? AND input_hash = ? AND params_hash = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		nodeID, inputHash, paramsHash, string(ExecutionSuccess))
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, ErrNotFound
	}
	if err != nil {
		return Execution{}, fmt.Errorf("looking up cache: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) SetScore(ctx context.Context, executionID string, score int) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE executions SET score = ? WHERE id = ?", score, executionID)
		if err != nil {
			return fmt.Errorf("setting score: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) SetStarred(ctx context.Context, executionID string, starred bool) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE executions SET starred = ? WHERE id = ?", boolToInt(starred), executionID)
		if err != nil {
			return fmt.Errorf("setting starred: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteExecution(ctx context.Context, executionID string) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM executions WHERE id = ?", executionID)
		if err != nil {
			return fmt.Errorf("deleting execution: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteExecutionsForNode(ctx context.Context, nodeID string) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM executions WHERE node_id = ?", nodeID)
		if err != nil {
			return fmt.Errorf("deleting executions for node: %w", err)
		}
		return nil
	})
}

// --- Budget ---

func (s *SQLiteStore) GetBudget(ctx context.Context) (BudgetConfig, error) {
	if err := s.checkOpen(); err != nil {
		return BudgetConfig{}, err
	}
	var cfg BudgetConfig
	row := s.db.QueryRowContext(ctx, "SELECT per_execution_limit, daily_limit FROM budget_config WHERE id = 1")
	if err := row.Scan(&cfg.PerExecutionLimit, &cfg.DailyLimit); err != nil {
		return BudgetConfig{}, fmt.Errorf("loading budget: %w", err)
	}
	return cfg, nil
}

func (s *SQLiteStore) SetBudget(ctx context.Context, cfg BudgetConfig) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE budget_config SET per_execution_limit=?, daily_limit=? WHERE id=1", cfg.PerExecutionLimit, cfg.DailyLimit)
		if err != nil {
			return fmt.Errorf("setting budget: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetDailySpend(ctx context.Context, date string) (DailySpend, error) {
	if err := s.checkOpen(); err != nil {
		return DailySpend{}, err
	}
	var ds DailySpend
	ds.Date = date
	row := s.db.QueryRowContext(ctx, "SELECT total FROM daily_spend WHERE date = ?", date)
	err := row.Scan(&ds.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return ds, nil
	}
	if err != nil {
		return DailySpend{}, fmt.Errorf("loading daily spend: %w", err)
	}
	return ds, nil
}

// RecordSpend uses SQLite's upsert (ON CONFLICT DO UPDATE) so that
// concurrent successful executions accumulate atomically regardless of
// interleaving.
func (s *SQLiteStore) RecordSpend(ctx context.Context, date string, amount float64) (DailySpend, error) {
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO daily_spend(date, total) VALUES (?, ?)
			 ON CONFLICT(date) DO UPDATE SET total = total + excluded.total`,
			date, amount)
		if err != nil {
			return fmt.Errorf("recording spend: %w", err)
		}
		return nil
	})
	if err != nil {
		return DailySpend{}, err
	}
	return s.GetDailySpend(ctx, date)
}

// --- Upload assets ---

func (s *SQLiteStore) SaveUploadAsset(ctx context.Context, a UploadAsset) (UploadAsset, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO upload_assets(id, original_name, stored_path, size_bytes, mime_type, created_at) VALUES (?,?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET original_name=excluded.original_name, stored_path=excluded.stored_path, size_bytes=excluded.size_bytes, mime_type=excluded.mime_type`,
			a.ID, a.OriginalName, a.StoredPath, a.SizeBytes, a.MimeType, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("saving upload asset: %w", err)
		}
		return nil
	})
	if err != nil {
		return UploadAsset{}, err
	}
	return a, nil
}

func (s *SQLiteStore) ListUploadAssets(ctx context.Context) ([]UploadAsset, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, original_name, stored_path, size_bytes, mime_type, created_at FROM upload_assets ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing upload assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []UploadAsset
	for rows.Next() {
		var a UploadAsset
		if err := rows.Scan(&a.ID, &a.OriginalName, &a.StoredPath, &a.SizeBytes, &a.MimeType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning upload asset: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SQLiteStore) GetUploadAsset(ctx context.Context, id string) (UploadAsset, error) {
	if err := s.checkOpen(); err != nil {
		return UploadAsset{}, err
	}
	var a UploadAsset
	row := s.db.QueryRowContext(ctx, "SELECT id, original_name, stored_path, size_bytes, mime_type, created_at FROM upload_assets WHERE id = ?", id)
	if err := row.Scan(&a.ID, &a.OriginalName, &a.StoredPath, &a.SizeBytes, &a.MimeType, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UploadAsset{}, ErrNotFound
		}
		return UploadAsset{}, fmt.Errorf("loading upload asset: %w", err)
	}
	return a, nil
}

// --- Model schemas ---

func (s *SQLiteStore) UpsertModelSchema(ctx context.Context, m ModelSchema) (ModelSchema, error) {
	if m.SyncedAt.IsZero() {
		m.SyncedAt = time.Now().UTC()
	}
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		schemaJSON, err := json.Marshal(m.ParamsSchema)
		if err != nil {
			return fmt.Errorf("marshaling params schema: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO model_schemas(id, provider, display_name, category, params_schema, cost_per_unit, synced_at) VALUES (?,?,?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET provider=excluded.provider, display_name=excluded.display_name, category=excluded.category, params_schema=excluded.params_schema, cost_per_unit=excluded.cost_per_unit, synced_at=excluded.synced_at`,
			m.ID, m.Provider, m.DisplayName, m.Category, schemaJSON, m.CostPerUnit, m.SyncedAt)
		if err != nil {
			return fmt.Errorf("upserting model schema: %w", err)
		}
		return nil
	})
	if err != nil {
		return ModelSchema{}, err
	}
	return m, nil
}

func (s *SQLiteStore) GetModelSchema(ctx context.Context, id string) (ModelSchema, error) {
	if err := s.checkOpen(); err != nil {
		return ModelSchema{}, err
	}
	var m ModelSchema
	var schemaJSON []byte
	var cost sql.NullFloat64
	row := s.db.QueryRowContext(ctx, "SELECT id, provider, display_name, category, params_schema, cost_per_unit, synced_at FROM model_schemas WHERE id = ?", id)
	if err := row.Scan(&m.ID, &m.Provider, &m.DisplayName, &m.Category, &schemaJSON, &cost, &m.SyncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ModelSchema{}, ErrNotFound
		}
		return ModelSchema{}, fmt.Errorf("loading model schema: %w", err)
	}
	if cost.Valid {
		v := cost.Float64
		m.CostPerUnit = &v
	}
	if len(schemaJSON) > 0 {
		if err := json.Unmarshal(schemaJSON, &m.ParamsSchema); err != nil {
			return ModelSchema{}, fmt.Errorf("unmarshaling params schema: %w", err)
		}
	}
	return m, nil
}

func (s *SQLiteStore) ListModelSchemas(ctx context.Context) ([]ModelSchema, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM model_schemas ORDER BY provider, display_name")
	if err != nil {
		return nil, fmt.Errorf("listing model schemas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning model schema id: %w", err)
		}
		ids = append(ids, id)
	}

	out := make([]ModelSchema, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetModelSchema(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
