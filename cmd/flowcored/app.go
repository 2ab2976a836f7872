// Command flowcored is a thin line-delimited-JSON dispatcher standing in
// for the real desktop-app IPC transport: it wires a Store, an Emitter, a
// Registry of deterministic mock handlers, an Engine, a CostGuard, and a
// Model Cache together, then maps named requests to method calls on them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowcore/flow"
	"github.com/flowforge/flowcore/flow/emit"
	"github.com/flowforge/flowcore/flow/modelcache"
	"github.com/flowforge/flowcore/flow/store"
)

// App bundles every collaborator a running flowcore instance needs. It is
// the single long-lived object main.go dispatches requests against.
type App struct {
	Store           store.Store
	Broadcast       *emit.Broadcaster
	Registry        *flow.Registry
	Engine          *flow.Engine
	Cost            *flow.CostGuard
	Models          *modelcache.Cache
	TracingShutdown func(context.Context) error
}

// NewApp opens the store at dsn, registers the built-in mock handlers, and
// wires the Engine, CostGuard, and Model Cache against it. Events reach
// two destinations simultaneously: the Broadcaster (for main.go's stdout
// event stream) and an OpenTelemetry tracer (for distributed-tracing
// observability of a run), combined through emit.Multi.
func NewApp(dsn string) (*App, error) {
	s, err := store.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("flowcored: open store: %w", err)
	}

	broadcast := emit.NewBroadcaster(64)
	tracingEmitter, tracingShutdown, err := setupTracing()
	if err != nil {
		return nil, fmt.Errorf("flowcored: setup tracing: %w", err)
	}

	registry := buildMockRegistry()
	models := modelcache.New(s)

	engine, err := flow.NewEngine(s, registry, emit.NewMulti(broadcast, tracingEmitter), flow.WithModelCostSource(models))
	if err != nil {
		return nil, fmt.Errorf("flowcored: new engine: %w", err)
	}

	return &App{
		Store:           s,
		Broadcast:       broadcast,
		Registry:        registry,
		Engine:          engine,
		Cost:            flow.NewCostGuard(s, models),
		Models:          models,
		TracingShutdown: tracingShutdown,
	}, nil
}

// buildMockRegistry registers a handful of deterministic mock node types
// so the dispatcher is exercisable without any real model handler wired
// in: "echo" always outputs an empty "text", "transform" always outputs
// the text "(transformed)", and "model-run" simulates a priced LLM call.
// None of them reads its inputs or params.
func buildMockRegistry() *flow.Registry {
	reg := flow.NewRegistry()

	echo := &flow.MockHandler{
		Results: []flow.ExecResult{{Status: flow.ExecSuccess, Outputs: map[string]interface{}{"text": ""}}},
	}
	reg.Register(flow.NodeTypeDef{
		Type:     "echo",
		Inputs:   ioDefs("text"),
		Outputs:  ioDefs("text"),
		Category: "utility",
	}, echo)

	transform := &flow.MockHandler{
		Results: []flow.ExecResult{{Status: flow.ExecSuccess, Outputs: map[string]interface{}{"text": "(transformed)"}}},
	}
	reg.Register(flow.NodeTypeDef{
		Type:     "transform",
		Inputs:   ioDefs("text"),
		Outputs:  ioDefs("text"),
		Category: "utility",
	}, transform)

	modelRun := &flow.MockHandler{
		Cost:    0.01,
		Results: []flow.ExecResult{{Status: flow.ExecSuccess, Outputs: map[string]interface{}{"text": "(model output)"}, Cost: 0.01}},
	}
	modelCost := 0.01
	reg.Register(flow.NodeTypeDef{
		Type:             "model-run",
		Inputs:           ioDefs("prompt"),
		Outputs:          ioDefs("text"),
		Category:         "model",
		CostPerExecution: &modelCost,
	}, modelRun)

	return reg
}

// ioDefs is a small convenience constructor used only by buildMockRegistry
// to keep its NodeTypeDef literals readable.
func ioDefs(key string) []flow.IODef {
	return []flow.IODef{{Key: key, Label: key, DataType: "string"}}
}

// exportedWorkflow is the §6.3 persisted export format.
type exportedWorkflow struct {
	Version         string                `json:"version"`
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	ExportedAt      string                `json:"exportedAt"`
	GraphDefinition store.GraphDefinition `json:"graphDefinition"`
}

// ExportWorkflow serializes a workflow to the §6.3 JSON shape.
func (a *App) ExportWorkflow(ctx context.Context, workflowID string) (exportedWorkflow, error) {
	wf, err := a.Store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return exportedWorkflow{}, fmt.Errorf("flowcored: export workflow: %w", err)
	}
	return exportedWorkflow{
		Version:         "1.0",
		ID:              wf.ID,
		Name:            wf.Name,
		ExportedAt:      time.Now().UTC().Format(time.RFC3339),
		GraphDefinition: wf.GraphDefinition,
	}, nil
}

// ImportWorkflow accepts either the wrapped exportedWorkflow form or a bare
// {nodes, edges} object, allocates a fresh workflow id, remaps every node
// id, and rewrites edges to the remapped ids. Import never reuses an
// exported id, even if the source JSON carries one.
func (a *App) ImportWorkflow(ctx context.Context, name string, data []byte) (store.Workflow, error) {
	var wrapped exportedWorkflow
	graph := store.GraphDefinition{}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.GraphDefinition.Nodes) > 0 {
		graph = wrapped.GraphDefinition
		if name == "" {
			name = wrapped.Name
		}
	} else if err := json.Unmarshal(data, &graph); err != nil {
		return store.Workflow{}, fmt.Errorf("flowcored: import workflow: invalid payload: %w", err)
	}
	if name == "" {
		name = "Imported workflow"
	}

	idMap := make(map[string]string, len(graph.Nodes))
	for _, n := range graph.Nodes {
		idMap[n.ID] = uuid.NewString()
	}

	remapped := store.GraphDefinition{
		Nodes: make([]store.Node, len(graph.Nodes)),
		Edges: make([]store.Edge, len(graph.Edges)),
	}
	for i, n := range graph.Nodes {
		n.ID = idMap[n.ID]
		n.CurrentOutputID = nil // a fresh import carries no execution history
		remapped.Nodes[i] = n
	}
	for i, e := range graph.Edges {
		e.ID = uuid.NewString()
		e.SourceNodeID = idMap[e.SourceNodeID]
		e.TargetNodeID = idMap[e.TargetNodeID]
		remapped.Edges[i] = e
	}

	wf, err := a.Store.CreateWorkflow(ctx, name, remapped)
	if err != nil {
		return store.Workflow{}, fmt.Errorf("flowcored: import workflow: %w", err)
	}
	return wf, nil
}

// runCatalogSync wires provider catalogs from environment API keys and
// runs Sync against whichever ones are configured. A provider with no key
// set is skipped rather than attempted and failed.
func (a *App) runCatalogSync(ctx context.Context) ([]modelcache.SyncResult, error) {
	var sources []modelcache.SchemaSource
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		sources = append(sources, modelcache.NewAnthropicCatalog(key))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		sources = append(sources, modelcache.NewOpenAICatalog(key))
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		sources = append(sources, modelcache.NewGoogleCatalog(key))
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return a.Models.Sync(ctx, sources...)
}
