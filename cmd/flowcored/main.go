package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/flowforge/flowcore/flow/emit"
)

// eventLine is the framing every live-status event is written to stdout
// in, distinguishing it from a request's Response by the "event" field.
type eventLine struct {
	Event string      `json:"event"`
	Kind  string      `json:"kind"`
	Data  interface{} `json:"data"`
}

func main() {
	dsn := flag.String("dsn", ":memory:", "store DSN (sqlite://path, mysql://dsn, or bare path)")
	flag.Parse()

	app, err := NewApp(*dsn)
	if err != nil {
		log.Fatalf("flowcored: %v", err)
	}
	defer app.Store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer app.TracingShutdown(context.Background())

	events, unsubscribe := app.Broadcast.Subscribe()
	defer unsubscribe()

	out := json.NewEncoder(os.Stdout)
	var outMu sync.Mutex

	go streamEvents(ctx, events, out, &outMu)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			outMu.Lock()
			out.Encode(Response{Error: fmt.Sprintf("flowcored: malformed request: %v", err)})
			outMu.Unlock()
			continue
		}

		resp := app.Dispatch(ctx, req)
		outMu.Lock()
		if err := out.Encode(resp); err != nil {
			log.Printf("flowcored: write response: %v", err)
		}
		outMu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("flowcored: read stdin: %v", err)
	}
}

// streamEvents forwards every broadcaster envelope to stdout as an
// eventLine, interleaved with request/response traffic under the same
// mutex so lines on stdout never partially overlap.
func streamEvents(ctx context.Context, events <-chan emit.Envelope, out *json.Encoder, mu *sync.Mutex) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			line := envelopeToEventLine(env)
			mu.Lock()
			out.Encode(line)
			mu.Unlock()
		}
	}
}

func envelopeToEventLine(env emit.Envelope) eventLine {
	switch env.Kind {
	case emit.KindNodeStatus:
		return eventLine{Event: "node-status", Kind: string(env.NodeStatus.Status), Data: env.NodeStatus}
	case emit.KindEdgeStatus:
		return eventLine{Event: "edge-status", Kind: string(env.EdgeStatus.Status), Data: env.EdgeStatus}
	case emit.KindProgress:
		return eventLine{Event: "progress", Data: env.Progress}
	default:
		return eventLine{Event: "unknown"}
	}
}
