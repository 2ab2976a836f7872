package emit

import "context"

// Emitter is the publish side of the three event channels. Delivery is
// best-effort — a slow or absent subscriber may drop events — but
// ordering per (workflowId, nodeId) must be preserved, which is why each
// method is a single synchronous call: implementations must not reorder
// or coalesce across goroutines internally.
type Emitter interface {
	EmitNodeStatus(e NodeStatusEvent)
	EmitEdgeStatus(e EdgeStatusEvent)
	EmitProgress(e ProgressEvent)
	// Flush gives transport-backed emitters (log files, OTel exporters) a
	// chance to drain buffered output; no-op for purely in-memory fan-out.
	Flush(ctx context.Context) error
}
