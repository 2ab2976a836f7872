package emit

import "context"

// Null discards every event. Useful for engine tests that only assert on
// Store side effects and don't want to drain a Broadcaster channel.
type Null struct{}

func (Null) EmitNodeStatus(NodeStatusEvent) {}
func (Null) EmitEdgeStatus(EdgeStatusEvent) {}
func (Null) EmitProgress(ProgressEvent)     {}
func (Null) Flush(context.Context) error    { return nil }
