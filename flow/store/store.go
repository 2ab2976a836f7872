// Package store defines the durable entities of a flowcore workflow graph
// and the Store interface that persists them.
//
// The entity shapes mirror the data model: a Workflow owns Nodes and Edges,
// each Node optionally points at its current Execution, and spend is tracked
// per calendar day against a singleton BudgetConfig. Two backends implement
// Store: SQLiteStore (the default, embedded) and MySQLStore (for shared
// deployments); MemStore backs tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store lookups that find no matching row.
var ErrNotFound = errors.New("flowcore: not found")

// ErrClosed is returned by any Store operation invoked after Close.
var ErrClosed = errors.New("flowcore: store is closed")

// WorkflowStatus is the lifecycle state of a Workflow.
type WorkflowStatus string

const (
	WorkflowDraft    WorkflowStatus = "draft"
	WorkflowReady    WorkflowStatus = "ready"
	WorkflowArchived WorkflowStatus = "archived"
)

// ExecutionStatus is the lifecycle state of an Execution.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// Workflow is a named, versioned DAG of Nodes and Edges.
//
// GraphDefinition is redundant with the Node/Edge tables: the SQL backends
// write both in the same transaction on create and save, but LoadWorkflow
// rebuilds GraphDefinition from the node and edge rows; the stored JSON
// copy is not read back.
type Workflow struct {
	ID              string
	Name            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	GraphDefinition GraphDefinition
	Status          WorkflowStatus
}

// GraphDefinition is the serialized node/edge pair stored alongside a
// Workflow's normalized rows, and the shape of the export format's payload.
type GraphDefinition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a vertex in a workflow's DAG. Params are opaque to the engine;
// only a node-type handler knows how to interpret them.
type Node struct {
	ID              string                 `json:"id"`
	WorkflowID      string                 `json:"workflowId"`
	Type            string                 `json:"type"`
	X               float64                `json:"x"`
	Y               float64                `json:"y"`
	Params          map[string]interface{} `json:"params"`
	CurrentOutputID *string                `json:"currentOutputId,omitempty"`
}

// Edge connects a source node's output handle to a target node's input
// handle. The 4-tuple of (SourceNodeID, SourceOutput, TargetNodeID,
// TargetInput) is unique within a workflow.
type Edge struct {
	ID           string `json:"id"`
	WorkflowID   string `json:"workflowId"`
	SourceNodeID string `json:"sourceNodeId"`
	SourceOutput string `json:"sourceOutput"`
	TargetNodeID string `json:"targetNodeId"`
	TargetInput  string `json:"targetInput"`
}

// Execution is one attempt to run a node. It is immutable once written
// except for the fields finalized on completion (Status, ResultPath,
// ResultMetadata, DurationMs, Cost) and the user-set Score/Starred fields.
type Execution struct {
	ID             string
	NodeID         string
	WorkflowID     string
	InputHash      string
	ParamsHash     string
	Status         ExecutionStatus
	ResultPath     *string
	ResultMetadata map[string]interface{}
	DurationMs     int64
	Cost           float64
	CreatedAt      time.Time
	Score          *int
	Starred        bool
}

// BudgetConfig is the singleton per-execution and per-day spend ceiling.
type BudgetConfig struct {
	PerExecutionLimit float64
	DailyLimit        float64
}

// DailySpend accumulates cost for one calendar day (UTC date, "2006-01-02").
type DailySpend struct {
	Date  string
	Total float64
}

// UploadAsset is a user-imported file tracked outside the node/edge/execution
// graph, surfaced through the storage: request group.
type UploadAsset struct {
	ID           string
	OriginalName string
	StoredPath   string
	SizeBytes    int64
	MimeType     string
	CreatedAt    time.Time
}

// ModelSchema is the entity the Model Cache reads through: a provider's
// description of one AI model, including its parameter shape and optional
// cost-per-unit hint used by the Cost Guard's estimate step.
type ModelSchema struct {
	ID           string
	Provider     string
	DisplayName  string
	Category     string
	ParamsSchema map[string]interface{}
	CostPerUnit  *float64
	SyncedAt     time.Time
}

// Store is the durable persistence contract. All operations are idempotent
// with respect to the invariants of the data model: re-applying the same
// overwrite or upsert leaves the store in the same observable state.
type Store interface {
	// CreateWorkflow inserts a new workflow, applying the name-uniqueness
	// suffix rule if name collides with an existing workflow.
	CreateWorkflow(ctx context.Context, name string, graph GraphDefinition) (Workflow, error)
	// SaveWorkflow overwrites a workflow's graph: deletes and reinserts all
	// Nodes and Edges, then restores CurrentOutputID on every node whose id
	// survives the overwrite and whose referenced Execution still exists.
	SaveWorkflow(ctx context.Context, workflowID string, graph GraphDefinition) (Workflow, error)
	LoadWorkflow(ctx context.Context, workflowID string) (Workflow, error)
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	DeleteWorkflow(ctx context.Context, workflowID string) error
	RenameWorkflow(ctx context.Context, workflowID, name string) (Workflow, error)
	DuplicateWorkflow(ctx context.Context, workflowID, newName string) (Workflow, error)

	Nodes(ctx context.Context, workflowID string) ([]Node, error)
	Edges(ctx context.Context, workflowID string) ([]Edge, error)
	GetNode(ctx context.Context, nodeID string) (Node, error)
	// SetCurrentOutput points a node's CurrentOutputID at an execution id,
	// or clears it when executionID is nil.
	SetCurrentOutput(ctx context.Context, nodeID string, executionID *string) error

	CreateExecution(ctx context.Context, exec Execution) (Execution, error)
	// FinalizeExecution writes the completion fields of an execution that
	// was previously created with status=pending.
	FinalizeExecution(ctx context.Context, executionID string, status ExecutionStatus, resultPath *string, resultMetadata map[string]interface{}, durationMs int64, cost float64) (Execution, error)
	GetExecution(ctx context.Context, executionID string) (Execution, error)
	ListExecutionsByNode(ctx context.Context, nodeID string) ([]Execution, error)
	// LookupCache returns the most recent successful execution for the
	// given cache key, or ErrNotFound.
	LookupCache(ctx context.Context, nodeID, inputHash, paramsHash string) (Execution, error)
	SetScore(ctx context.Context, executionID string, score int) error
	SetStarred(ctx context.Context, executionID string, starred bool) error
	DeleteExecution(ctx context.Context, executionID string) error
	DeleteExecutionsForNode(ctx context.Context, nodeID string) error

	GetBudget(ctx context.Context) (BudgetConfig, error)
	SetBudget(ctx context.Context, cfg BudgetConfig) error
	GetDailySpend(ctx context.Context, date string) (DailySpend, error)
	// RecordSpend atomically adds amount to the named day's total,
	// creating the row on first spend of the day.
	RecordSpend(ctx context.Context, date string, amount float64) (DailySpend, error)

	SaveUploadAsset(ctx context.Context, a UploadAsset) (UploadAsset, error)
	ListUploadAssets(ctx context.Context) ([]UploadAsset, error)
	GetUploadAsset(ctx context.Context, id string) (UploadAsset, error)

	UpsertModelSchema(ctx context.Context, m ModelSchema) (ModelSchema, error)
	GetModelSchema(ctx context.Context, id string) (ModelSchema, error)
	ListModelSchemas(ctx context.Context) ([]ModelSchema, error)

	// Flush forces any debounced writes to disk immediately. Safe to call
	// on backends with no debounce (no-op).
	Flush(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
