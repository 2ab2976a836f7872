package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter implements Emitter by writing structured log output to a
// writer. Supports two output modes:
//   - Text mode (default): human-readable key=value pairs.
//   - JSON mode: one JSON object per line (JSONL), for machine parsing.
//
// Useful as the transport layer in cmd/flowcored and in tests that want
// to assert on the literal event sequence without standing up a
// Broadcaster subscriber.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to writer (os.Stdout if nil).
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) EmitNodeStatus(e NodeStatusEvent) {
	if l.jsonMode {
		l.writeJSON("node-status", e)
		return
	}
	if e.ErrorMessage != "" {
		_, _ = fmt.Fprintf(l.writer, "[node-status] workflowId=%s nodeId=%s status=%s error=%q\n", e.WorkflowID, e.NodeID, e.Status, e.ErrorMessage)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "[node-status] workflowId=%s nodeId=%s status=%s\n", e.WorkflowID, e.NodeID, e.Status)
}

func (l *LogEmitter) EmitEdgeStatus(e EdgeStatusEvent) {
	if l.jsonMode {
		l.writeJSON("edge-status", e)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "[edge-status] workflowId=%s edgeId=%s status=%s\n", e.WorkflowID, e.EdgeID, e.Status)
}

func (l *LogEmitter) EmitProgress(e ProgressEvent) {
	if l.jsonMode {
		l.writeJSON("progress", e)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "[progress] workflowId=%s nodeId=%s progress=%d%% message=%q\n", e.WorkflowID, e.NodeID, e.Progress, e.Message)
}

func (l *LogEmitter) writeJSON(kind string, payload interface{}) {
	data, err := json.Marshal(struct {
		Kind    string      `json:"kind"`
		Payload interface{} `json:"payload"`
	}{Kind: kind, Payload: payload})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

// Flush is a no-op: LogEmitter writes directly without internal
// buffering. Wrap the writer in a bufio.Writer and flush it yourself if
// you need buffering.
func (l *LogEmitter) Flush(_ context.Context) error {
	return nil
}
