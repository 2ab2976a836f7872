// Package flow is the backend execution engine of a local workflow tool:
// it schedules a DAG of nodes, resolves each node's inputs from upstream
// outputs, consults a content-addressed cache, enforces a cost budget,
// and arbitrates retries through a circuit breaker, while streaming
// status to subscribers through an emit.Emitter.
package flow

import (
	"errors"
	"fmt"
)

// EngineError marks a programming error or invariant breach: an unknown
// node type at dispatch, a missing handler, a malformed DAG that should
// have been rejected at edit time. Callers should treat it as fatal,
// not retry it.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("flowcore: %s (%s)", e.Message, e.Code)
}

// ValidationError is returned synchronously at the request boundary when
// a handler's Validate rejects the node's params; execution never starts.
type ValidationError struct {
	NodeID string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("flowcore: validation failed for node %s: %v", e.NodeID, e.Errors)
}

// BudgetDenial describes a budget refusal as an error value. Nothing in
// this module returns it: cost:estimate replies with a CostEstimate whose
// WithinBudget and Reason fields carry the refusal, and the engine never
// blocks a run on budget.
type BudgetDenial struct {
	Reason    string
	Estimated float64
}

func (e *BudgetDenial) Error() string {
	return fmt.Sprintf("flowcore: budget denial: %s (estimated %.4f)", e.Reason, e.Estimated)
}

// HandlerError records a handler failure: the Execution is written with
// status=error and this is the message attached to the node-status error
// event. It halts the remainder of runAll/continueFrom but not runNode.
type HandlerError struct {
	NodeID  string
	Message string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("flowcore: node %s failed: %s", e.NodeID, e.Message)
}

var (
	// ErrAborted is the sentinel a handler or the engine returns on
	// cooperative cancellation.
	ErrAborted = errors.New("flowcore: execution aborted")

	// ErrCircuitTripped is returned by retry() when the breaker has
	// already reached its threshold for the node.
	ErrCircuitTripped = errors.New("flowcore: circuit breaker tripped")

	// ErrStoreCorrupt signals that the store's integrity check failed on
	// open; the caller has already been backed up and reinitialized.
	ErrStoreCorrupt = errors.New("flowcore: store corrupt, reinitialized")

	// ErrUpstreamFailed marks a node synthesized as failed because an
	// upstream node in the same run failed; no Execution row is written
	// for it.
	ErrUpstreamFailed = errors.New("flowcore: upstream node failed")

	// ErrHandlerNotFound is the programming-error case of step 1 of
	// executeNode: the registry has no handler for the node's type.
	ErrHandlerNotFound = errors.New("flowcore: no handler registered for node type")
)

const skippedUpstreamMessage = "Skipped: upstream node failed"
