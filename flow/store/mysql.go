package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is an alternate Store backend for team deployments where
// multiple desktop instances share one workflow database. It implements
// the same Store contract as SQLiteStore; the engine never knows which
// backend is active.
//
// The DSN format follows the go-sql-driver/mysql convention:
//
//	user:password@tcp(host:port)/dbname?parseTime=true
//
// parseTime=true is required so TIMESTAMP columns scan into time.Time.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against an existing MySQL schema
// and creates the flowcore tables if absent. Unlike the SQLite backend,
// there is no local file to rename on corruption; a failed Ping closes
// the pool and returns an error with no store.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("flowcore: opening mysql connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("flowcore: mysql store degraded, ping failed: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("flowcore: creating mysql schema: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			graph_definition JSON NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'draft',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(64) NOT NULL,
			type VARCHAR(128) NOT NULL,
			x DOUBLE NOT NULL DEFAULT 0,
			y DOUBLE NOT NULL DEFAULT 0,
			params JSON NOT NULL,
			current_output_id VARCHAR(64),
			INDEX idx_nodes_workflow_id (workflow_id),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(64) NOT NULL,
			source_node_id VARCHAR(64) NOT NULL,
			source_output VARCHAR(128) NOT NULL,
			target_node_id VARCHAR(64) NOT NULL,
			target_input VARCHAR(128) NOT NULL,
			UNIQUE KEY uniq_edge (source_node_id, source_output, target_node_id, target_input),
			INDEX idx_edges_workflow_id (workflow_id),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE,
			FOREIGN KEY (source_node_id) REFERENCES nodes(id) ON DELETE CASCADE,
			FOREIGN KEY (target_node_id) REFERENCES nodes(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id VARCHAR(64) PRIMARY KEY,
			node_id VARCHAR(64) NOT NULL,
			workflow_id VARCHAR(64) NOT NULL,
			input_hash CHAR(64) NOT NULL,
			params_hash CHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			result_path TEXT,
			result_metadata JSON,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			cost DOUBLE NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			score INT,
			starred TINYINT NOT NULL DEFAULT 0,
			INDEX idx_executions_node_id (node_id),
			INDEX idx_executions_workflow_id (workflow_id),
			INDEX idx_executions_created_at (created_at DESC),
			INDEX idx_executions_cache_key (node_id, input_hash, params_hash, status),
			FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE,
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS budget_config (
			id TINYINT PRIMARY KEY,
			per_execution_limit DOUBLE NOT NULL DEFAULT 0,
			daily_limit DOUBLE NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS daily_spend (
			date CHAR(10) PRIMARY KEY,
			total DOUBLE NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS upload_assets (
			id VARCHAR(64) PRIMARY KEY,
			original_name VARCHAR(255) NOT NULL,
			stored_path TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			mime_type VARCHAR(128) NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS model_schemas (
			id VARCHAR(128) PRIMARY KEY,
			provider VARCHAR(64) NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			category VARCHAR(64) NOT NULL,
			params_schema JSON NOT NULL,
			cost_per_unit DOUBLE,
			synced_at DATETIME NOT NULL,
			INDEX idx_model_schemas_provider (provider)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, "INSERT IGNORE INTO budget_config(id, per_execution_limit, daily_limit) VALUES (1, 0, 0)"); err != nil {
		return fmt.Errorf("seeding budget_config: %w", err)
	}
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *MySQLStore) Flush(ctx context.Context) error { return nil }
func (s *MySQLStore) Close() error                    { return s.db.Close() }

func (s *MySQLStore) CreateWorkflow(ctx context.Context, name string, graph GraphDefinition) (Workflow, error) {
	id := newID()
	now := time.Now().UTC()
	name, err := s.dedupeName(ctx, name, "")
	if err != nil {
		return Workflow{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Workflow{}, fmt.Errorf("beginning transaction: %w", err)
	}
	graphJSON, _ := json.Marshal(graph)
	if _, err := tx.ExecContext(ctx, "INSERT INTO workflows(id, name, graph_definition, status, created_at, updated_at) VALUES (?,?,?,?,?,?)",
		id, name, graphJSON, string(WorkflowDraft), now, now); err != nil {
		_ = tx.Rollback()
		return Workflow{}, fmt.Errorf("inserting workflow: %w", err)
	}
	if err := s.insertGraph(ctx, tx, id, graph); err != nil {
		_ = tx.Rollback()
		return Workflow{}, err
	}
	if err := tx.Commit(); err != nil {
		return Workflow{}, fmt.Errorf("committing: %w", err)
	}
	return s.LoadWorkflow(ctx, id)
}

func (s *MySQLStore) dedupeName(ctx context.Context, base, excludeID string) (string, error) {
	name := trimSpace(base)
	candidate := name
	for n := 2; ; n++ {
		var existingID string
		err := s.db.QueryRowContext(ctx, "SELECT id FROM workflows WHERE name = ?", candidate).Scan(&existingID)
		if errors.Is(err, sql.ErrNoRows) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking name uniqueness: %w", err)
		}
		if existingID == excludeID {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
}

func (s *MySQLStore) insertGraph(ctx context.Context, tx *sql.Tx, workflowID string, graph GraphDefinition) error {
	for _, n := range graph.Nodes {
		paramsJSON, _ := json.Marshal(n.Params)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO nodes(id, workflow_id, type, x, y, params, current_output_id) VALUES (?,?,?,?,?,?,?)",
			n.ID, workflowID, n.Type, n.X, n.Y, paramsJSON, n.CurrentOutputID); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}
	for _, e := range graph.Edges {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO edges(id, workflow_id, source_node_id, source_output, target_node_id, target_input) VALUES (?,?,?,?,?,?)",
			e.ID, workflowID, e.SourceNodeID, e.SourceOutput, e.TargetNodeID, e.TargetInput); err != nil {
			return fmt.Errorf("inserting edge %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *MySQLStore) SaveWorkflow(ctx context.Context, workflowID string, graph GraphDefinition) (Workflow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Workflow{}, fmt.Errorf("beginning transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS=0"); err != nil {
		_ = tx.Rollback()
		return Workflow{}, fmt.Errorf("relaxing foreign keys: %w", err)
	}

	prior := map[string]string{}
	rows, err := tx.QueryContext(ctx, "SELECT id, current_output_id FROM nodes WHERE workflow_id = ?", workflowID)
	if err != nil {
		_ = tx.Rollback()
		return Workflow{}, fmt.Errorf("loading prior nodes: %w", err)
	}
	for rows.Next() {
		var id string
		var out sql.NullString
		if err := rows.Scan(&id, &out); err != nil {
			_ = rows.Close()
			_ = tx.Rollback()
			return Workflow{}, fmt.Errorf("scanning prior node: %w", err)
		}
		if out.Valid {
			prior[id] = out.String
		}
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE workflow_id = ?", workflowID); err != nil {
		_ = tx.Rollback()
		return Workflow{}, fmt.Errorf("deleting nodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE workflow_id = ?", workflowID); err != nil {
		_ = tx.Rollback()
		return Workflow{}, fmt.Errorf("deleting edges: %w", err)
	}
	if err := s.insertGraph(ctx, tx, workflowID, graph); err != nil {
		_ = tx.Rollback()
		return Workflow{}, err
	}

	for _, n := range graph.Nodes {
		execID, ok := prior[n.ID]
		if !ok {
			continue
		}
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions WHERE id = ?", execID).Scan(&exists); err != nil {
			_ = tx.Rollback()
			return Workflow{}, fmt.Errorf("checking execution survival: %w", err)
		}
		if exists == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, "UPDATE nodes SET current_output_id = ? WHERE id = ?", execID, n.ID); err != nil {
			_ = tx.Rollback()
			return Workflow{}, fmt.Errorf("restoring current_output_id: %w", err)
		}
	}

	graphJSON, _ := json.Marshal(graph)
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, "UPDATE workflows SET graph_definition=?, updated_at=? WHERE id=?", graphJSON, now, workflowID); err != nil {
		_ = tx.Rollback()
		return Workflow{}, fmt.Errorf("updating workflow: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS=1"); err != nil {
		_ = tx.Rollback()
		return Workflow{}, fmt.Errorf("restoring foreign keys: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Workflow{}, fmt.Errorf("committing: %w", err)
	}
	return s.LoadWorkflow(ctx, workflowID)
}

func (s *MySQLStore) LoadWorkflow(ctx context.Context, workflowID string) (Workflow, error) {
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
	return wf, nil
}

func (s *MySQLStore) ListWorkflows(ctx context.Context) ([]Workflow, error) {
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

func (s *MySQLStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", workflowID)
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) RenameWorkflow(ctx context.Context, workflowID, name string) (Workflow, error) {
	name, err := s.dedupeName(ctx, name, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE workflows SET name=?, updated_at=? WHERE id=?", name, time.Now().UTC(), workflowID)
	if err != nil {
		return Workflow{}, fmt.Errorf("renaming workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Workflow{}, ErrNotFound
	}
	return s.LoadWorkflow(ctx, workflowID)
}

func (s *MySQLStore) DuplicateWorkflow(ctx context.Context, workflowID, newName string) (Workflow, error) {
	src, err := s.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	idRemap := map[string]string{}
	var graph GraphDefinition
	for _, n := range src.GraphDefinition.Nodes {
		newNodeID := newID()
		idRemap[n.ID] = newNodeID
		nn := n
		nn.ID = newNodeID
		nn.CurrentOutputID = nil
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

func (s *MySQLStore) Nodes(ctx context.Context, workflowID string) ([]Node, error) {
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
			_ = json.Unmarshal(paramsJSON, &n.Params)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *MySQLStore) Edges(ctx context.Context, workflowID string) ([]Edge, error) {
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

func (s *MySQLStore) GetNode(ctx context.Context, nodeID string) (Node, error) {
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
		_ = json.Unmarshal(paramsJSON, &n.Params)
	}
	return n, nil
}

func (s *MySQLStore) SetCurrentOutput(ctx context.Context, nodeID string, executionID *string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE nodes SET current_output_id = ? WHERE id = ?", executionID, nodeID)
	if err != nil {
		return fmt.Errorf("setting current output: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) CreateExecution(ctx context.Context, exec Execution) (Execution, error) {
	if exec.ID == "" {
		exec.ID = newID()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}
	metaJSON, _ := json.Marshal(exec.ResultMetadata)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions(id, node_id, workflow_id, input_hash, params_hash, status, result_path, result_metadata, duration_ms, cost, created_at, score, starred)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		exec.ID, exec.NodeID, exec.WorkflowID, exec.InputHash, exec.ParamsHash, string(exec.Status),
		exec.ResultPath, metaJSON, exec.DurationMs, exec.Cost, exec.CreatedAt, exec.Score, boolToInt(exec.Starred))
	if err != nil {
		return Execution{}, fmt.Errorf("inserting execution: %w", err)
	}
	return exec, nil
}

func (s *MySQLStore) FinalizeExecution(ctx context.Context, executionID string, status ExecutionStatus, resultPath *string, resultMetadata map[string]interface{}, durationMs int64, cost float64) (Execution, error) {
	metaJSON, _ := json.Marshal(resultMetadata)
	res, err := s.db.ExecContext(ctx, "UPDATE executions SET status=?, result_path=?, result_metadata=?, duration_ms=?, cost=? WHERE id=?",
		string(status), resultPath, metaJSON, durationMs, cost, executionID)
	if err != nil {
		return Execution{}, fmt.Errorf("finalizing execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Execution{}, ErrNotFound
	}
	return s.GetExecution(ctx, executionID)
}

func (s *MySQLStore) GetExecution(ctx context.Context, executionID string) (Execution, error) {
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

func (s *MySQLStore) ListExecutionsByNode(ctx context.Context, nodeID string) ([]Execution, error) {
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

func (s *MySQLStore) LookupCache(ctx context.Context, nodeID, inputHash, paramsHash string) (Execution, error) {
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

func (s *MySQLStore) SetScore(ctx context.Context, executionID string, score int) error {
	res, err := s.db.ExecContext(ctx, "UPDATE executions SET score = ? WHERE id = ?", score, executionID)
	if err != nil {
		return fmt.Errorf("setting score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) SetStarred(ctx context.Context, executionID string, starred bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE executions SET starred = ? WHERE id = ?", boolToInt(starred), executionID)
	if err != nil {
		return fmt.Errorf("setting starred: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) DeleteExecution(ctx context.Context, executionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE id = ?", executionID)
	if err != nil {
		return fmt.Errorf("deleting execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) DeleteExecutionsForNode(ctx context.Context, nodeID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE node_id = ?", nodeID)
	if err != nil {
		return fmt.Errorf("deleting executions for node: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetBudget(ctx context.Context) (BudgetConfig, error) {
	var cfg BudgetConfig
	row := s.db.QueryRowContext(ctx, "SELECT per_execution_limit, daily_limit FROM budget_config WHERE id = 1")
	if err := row.Scan(&cfg.PerExecutionLimit, &cfg.DailyLimit); err != nil {
		return BudgetConfig{}, fmt.Errorf("loading budget: %w", err)
	}
	return cfg, nil
}

func (s *MySQLStore) SetBudget(ctx context.Context, cfg BudgetConfig) error {
	_, err := s.db.ExecContext(ctx, "UPDATE budget_config SET per_execution_limit=?, daily_limit=? WHERE id=1", cfg.PerExecutionLimit, cfg.DailyLimit)
	if err != nil {
		return fmt.Errorf("setting budget: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetDailySpend(ctx context.Context, date string) (DailySpend, error) {
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

// RecordSpend uses MySQL's INSERT ... ON DUPLICATE KEY UPDATE so that
// concurrent successful executions accumulate atomically.
func (s *MySQLStore) RecordSpend(ctx context.Context, date string, amount float64) (DailySpend, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO daily_spend(date, total) VALUES (?, ?) ON DUPLICATE KEY UPDATE total = total + VALUES(total)",
		date, amount)
	if err != nil {
		return DailySpend{}, fmt.Errorf("recording spend: %w", err)
	}
	return s.GetDailySpend(ctx, date)
}

func (s *MySQLStore) SaveUploadAsset(ctx context.Context, a UploadAsset) (UploadAsset, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_assets(id, original_name, stored_path, size_bytes, mime_type, created_at) VALUES (?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE original_name=VALUES(original_name), stored_path=VALUES(stored_path), size_bytes=VALUES(size_bytes), mime_type=VALUES(mime_type)`,
		a.ID, a.OriginalName, a.StoredPath, a.SizeBytes, a.MimeType, a.CreatedAt)
	if err != nil {
		return UploadAsset{}, fmt.Errorf("saving upload asset: %w", err)
	}
	return a, nil
}

func (s *MySQLStore) ListUploadAssets(ctx context.Context) ([]UploadAsset, error) {
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

func (s *MySQLStore) GetUploadAsset(ctx context.Context, id string) (UploadAsset, error) {
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

func (s *MySQLStore) UpsertModelSchema(ctx context.Context, m ModelSchema) (ModelSchema, error) {
	if m.SyncedAt.IsZero() {
		m.SyncedAt = time.Now().UTC()
	}
	schemaJSON, _ := json.Marshal(m.ParamsSchema)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_schemas(id, provider, display_name, category, params_schema, cost_per_unit, synced_at) VALUES (?,?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE provider=VALUES(provider), display_name=VALUES(display_name), category=VALUES(category), params_schema=VALUES(params_schema), cost_per_unit=VALUES(cost_per_unit), synced_at=VALUES(synced_at)`,
		m.ID, m.Provider, m.DisplayName, m.Category, schemaJSON, m.CostPerUnit, m.SyncedAt)
	if err != nil {
		return ModelSchema{}, fmt.Errorf("upserting model schema: %w", err)
	}
	return m, nil
}

func (s *MySQLStore) GetModelSchema(ctx context.Context, id string) (ModelSchema, error) {
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
		_ = json.Unmarshal(schemaJSON, &m.ParamsSchema)
	}
	return m, nil
}

func (s *MySQLStore) ListModelSchemas(ctx context.Context) ([]ModelSchema, error) {
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
