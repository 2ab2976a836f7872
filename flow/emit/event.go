// Package emit publishes node-status, edge-status, and progress updates
// from a running workflow to any number of subscribers. The engine treats
// the emitter as a transport-agnostic fan-out: it does not know or care
// how many subscribers exist or how they deliver.
package emit

// NodeStatus is the enum of transient, per-session node states. Status is
// never persisted as a column; it exists only while a client is
// subscribed to the corresponding workflow.
type NodeStatus string

const (
	NodeIdle        NodeStatus = "idle"
	NodeRunning     NodeStatus = "running"
	NodeConfirmed   NodeStatus = "confirmed"
	NodeUnconfirmed NodeStatus = "unconfirmed"
	NodeError       NodeStatus = "error"
)

// EdgeStatus is the enum of edge liveness states.
type EdgeStatus string

const (
	EdgeNoData   EdgeStatus = "no-data"
	EdgeHasData  EdgeStatus = "has-data"
)

// NodeStatusEvent reports a node's status transition, optionally carrying
// the handler failure message.
type NodeStatusEvent struct {
	WorkflowID   string     `json:"workflowId"`
	NodeID       string     `json:"nodeId"`
	Status       NodeStatus `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// EdgeStatusEvent reports whether an edge's target currently has fresh
// upstream data available.
type EdgeStatusEvent struct {
	WorkflowID string     `json:"workflowId"`
	EdgeID     string     `json:"edgeId"`
	Status     EdgeStatus `json:"status"`
}

// ProgressEvent reports a handler-reported completion percentage.
type ProgressEvent struct {
	WorkflowID string `json:"workflowId"`
	NodeID     string `json:"nodeId"`
	Progress   int    `json:"progress"`
	Message    string `json:"message,omitempty"`
}
