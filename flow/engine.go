package flow

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/flowcore/flow/emit"
	"github.com/flowforge/flowcore/flow/store"
)

// Engine is the execution engine: it schedules a workflow's DAG, resolves
// each node's inputs, consults the cache, dispatches to the registered
// Handler, and persists the resulting Execution, while emitting status to
// the Emitter and tracking spend and circuit state along the way.
type Engine struct {
	store      store.Store
	registry   *Registry
	emitter    emit.Emitter
	cache      *Cache
	cost       *CostGuard
	breaker    *CircuitBreaker
	downloader *Downloader
	logger     *log.Logger
	cfg        engineConfig

	tokensMu sync.Mutex
	tokens   map[string]chan struct{}
}

// NewEngine wires a Store, Registry, and Emitter into a ready Engine. The
// Cost Guard and circuit breaker are built internally; pass Options to
// customize concurrency, delays, and instrumentation.
func NewEngine(s store.Store, registry *Registry, emitter emit.Emitter, opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("engine: applying option: %w", err)
		}
	}

	return &Engine{
		store:    s,
		registry: registry,
		emitter:  emitter,
		cache:    NewCache(s),
		cost:     NewCostGuard(s, cfg.modelCosts),
		breaker:  NewCircuitBreakerWithThreshold(cfg.circuitThreshold),
		logger:   log.Default(),
		cfg:      cfg,
		tokens:   make(map[string]chan struct{}),
	}, nil
}

// SetDownloader attaches the result-URL downloader used by step 13 of
// executeNode. Optional — a nil downloader simply skips that step.
func (e *Engine) SetDownloader(d *Downloader) {
	e.downloader = d
}

// SetLogger overrides the logger used for best-effort failures (auxiliary
// snapshot writes, downloads) that must never fail the execution itself.
func (e *Engine) SetLogger(l *log.Logger) {
	e.logger = l
}

func cancelTokenKey(workflowID, nodeID string) string {
	return workflowID + "\x00" + nodeID
}

func (e *Engine) registerToken(key string, ch chan struct{}) {
	e.tokensMu.Lock()
	defer e.tokensMu.Unlock()
	e.tokens[key] = ch
}

func (e *Engine) deregisterToken(key string) {
	e.tokensMu.Lock()
	defer e.tokensMu.Unlock()
	delete(e.tokens, key)
}

func buildNodeIndex(nodes []store.Node) map[string]store.Node {
	idx := make(map[string]store.Node, len(nodes))
	for _, n := range nodes {
		idx[n.ID] = n
	}
	return idx
}

func buildDAGEdges(edges []store.Edge) []DAGEdge {
	out := make([]DAGEdge, len(edges))
	for i, e := range edges {
		out[i] = DAGEdge{Source: e.SourceNodeID, Target: e.TargetNodeID}
	}
	return out
}

func inEdgesFor(nodeID string, edges []store.Edge) []store.Edge {
	var out []store.Edge
	for _, e := range edges {
		if e.TargetNodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

func outEdgesFor(nodeID string, edges []store.Edge) []store.Edge {
	var out []store.Edge
	for _, e := range edges {
		if e.SourceNodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// runState tracks which nodes have failed (directly errored or been
// skipped because an upstream failed) within a single runAll/continueFrom
// invocation.
type runState struct {
	mu     sync.Mutex
	failed map[string]bool
}

func newRunState() *runState {
	return &runState{failed: make(map[string]bool)}
}

func (r *runState) markFailed(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[nodeID] = true
}

func (r *runState) isFailed(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[nodeID]
}

func (r *runState) anyFailedAmong(ids []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if r.failed[id] {
			return true
		}
	}
	return false
}

// RunAll runs every node of workflowID in topological-level order, up to
// MAX_PARALLEL_EXECUTIONS concurrently per level. A node whose upstream has
// already failed in this run is marked error with a skip message instead
// of being dispatched. After a level in which any node failed, no further
// node is dispatched; the later levels are still visited so that nodes
// downstream of the failure — however many levels down — get their skip
// status emitted and marked. The cache is consulted, not skipped.
func (e *Engine) RunAll(ctx context.Context, workflowID string) error {
	nodes, edges, err := e.loadGraph(ctx, workflowID)
	if err != nil {
		return err
	}

	nodesByID := buildNodeIndex(nodes)
	nodeIDs := nodeIDsOf(nodes)
	levels := TopologicalLevels(nodeIDs, buildDAGEdges(edges))

	rs := newRunState()
	for _, level := range levels {
		e.runLevel(ctx, workflowID, level, nodesByID, edges, false, rs)
	}
	return nil
}

// RunNode executes exactly nodeID, resolving inputs from current upstream
// outputs, with the cache skipped.
func (e *Engine) RunNode(ctx context.Context, workflowID, nodeID string) (bool, error) {
	nodes, edges, err := e.loadGraph(ctx, workflowID)
	if err != nil {
		return false, err
	}
	nodesByID := buildNodeIndex(nodes)
	node, ok := nodesByID[nodeID]
	if !ok {
		return false, fmt.Errorf("engine: node %s not found in workflow %s", nodeID, workflowID)
	}

	return e.executeNode(ctx, workflowID, node, nodesByID, inEdgesFor(nodeID, edges), outEdgesFor(nodeID, edges), true)
}

// ContinueFrom computes the downstream reachability set from nodeID
// (inclusive) and re-runs it in topological order, restricted to that set.
// After a failure it dispatches nothing further and only emits and marks
// skips for the nodes downstream of it, the same as RunAll. The cache is
// consulted.
func (e *Engine) ContinueFrom(ctx context.Context, workflowID, nodeID string) error {
	nodes, edges, err := e.loadGraph(ctx, workflowID)
	if err != nil {
		return err
	}

	nodesByID := buildNodeIndex(nodes)
	nodeIDs := nodeIDsOf(nodes)
	dagEdges := buildDAGEdges(edges)
	reachable := DownstreamNodes(nodeID, nodeIDs, dagEdges)
	levels := TopologicalLevels(nodeIDs, dagEdges)

	rs := newRunState()
	for _, level := range levels {
		var restricted []string
		for _, id := range level {
			if reachable[id] {
				restricted = append(restricted, id)
			}
		}
		if len(restricted) == 0 {
			continue
		}
		e.runLevel(ctx, workflowID, restricted, nodesByID, edges, false, rs)
	}
	return nil
}

// runLevel dispatches every node in level concurrently (bounded by
// MaxParallel), skipping any node whose direct upstream has already failed
// in rs. Once rs holds a failure from an earlier level, no node of this
// level is dispatched; only the skips are emitted and marked.
func (e *Engine) runLevel(ctx context.Context, workflowID string, level []string, nodesByID map[string]store.Node, edges []store.Edge, skipCache bool, rs *runState) {
	maxParallel := e.cfg.maxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	rs.mu.Lock()
	halted := len(rs.failed) > 0
	rs.mu.Unlock()

	if e.metrics() != nil {
		e.metrics().SetSchedulerQueueDepth(len(level))
	}

	for _, nodeID := range level {
		node := nodesByID[nodeID]
		inEdges := inEdgesFor(nodeID, edges)

		upstreamIDs := make([]string, 0, len(inEdges))
		for _, ie := range inEdges {
			upstreamIDs = append(upstreamIDs, ie.SourceNodeID)
		}

		if rs.anyFailedAmong(upstreamIDs) {
			rs.markFailed(nodeID)
			e.emitter.EmitNodeStatus(emit.NodeStatusEvent{
				WorkflowID:   workflowID,
				NodeID:       nodeID,
				Status:       emit.NodeError,
				ErrorMessage: skippedUpstreamMessage,
			})
			continue
		}
		if halted {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(n store.Node) {
			defer wg.Done()
			defer func() { <-sem }()

			success, err := e.executeNode(ctx, workflowID, n, nodesByID, inEdgesFor(n.ID, edges), outEdgesFor(n.ID, edges), skipCache)
			if err != nil {
				e.logger.Printf("flowcore: node %s failed with engine error: %v", n.ID, err)
				rs.markFailed(n.ID)
				return
			}
			if !success {
				rs.markFailed(n.ID)
			}
		}(node)
	}

	wg.Wait()
}

// Retry perturbs the node's seed parameter and re-executes it with the
// cache skipped, failing immediately without attempting anything if the
// circuit breaker has already tripped for this node.
func (e *Engine) Retry(ctx context.Context, workflowID, nodeID string) error {
	if e.breaker.IsTripped(nodeID) {
		return ErrCircuitTripped
	}

	nodes, edges, err := e.loadGraph(ctx, workflowID)
	if err != nil {
		return err
	}
	nodesByID := buildNodeIndex(nodes)
	node, ok := nodesByID[nodeID]
	if !ok {
		return fmt.Errorf("engine: node %s not found in workflow %s", nodeID, workflowID)
	}

	perturbed := node
	perturbed.Params = perturbSeed(node.Params)

	_, err = e.executeNode(ctx, workflowID, perturbed, nodesByID, inEdgesFor(nodeID, edges), outEdgesFor(nodeID, edges), true)

	tripped := e.breaker.RecordRetry(nodeID)
	if tripped {
		if e.metrics() != nil {
			e.metrics().IncCircuitTrip(nodeID)
		}
		e.emitter.EmitNodeStatus(emit.NodeStatusEvent{WorkflowID: workflowID, NodeID: nodeID, Status: emit.NodeIdle})
	}
	return err
}

// perturbSeed returns a copy of params with "seed" perturbed: a numeric
// seed is bumped by a uniform random amount in [1, 1000]; anything else
// (including absence) is replaced with a random non-negative 31-bit
// integer.
func perturbSeed(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}

	if seed, ok := asFloat64(params["seed"]); ok {
		out["seed"] = seed + float64(1+rand.Intn(1000))
	} else {
		out["seed"] = rand.Int31()
	}
	return out
}

func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Cancel signals the cancellation token for (workflowID, nodeID), if one is
// registered, removes it, and transitions the node to idle. No-op if no
// token exists.
func (e *Engine) Cancel(workflowID, nodeID string) {
	key := cancelTokenKey(workflowID, nodeID)

	e.tokensMu.Lock()
	ch, ok := e.tokens[key]
	if ok {
		delete(e.tokens, key)
	}
	e.tokensMu.Unlock()

	if !ok {
		return
	}
	close(ch)
	e.emitter.EmitNodeStatus(emit.NodeStatusEvent{WorkflowID: workflowID, NodeID: nodeID, Status: emit.NodeIdle})
}

// MarkDownstreamStale emits an idle transition for every node downstream of
// nodeID (exclusive of nodeID itself) — used when the user manually picks
// an older execution as a node's current output.
func (e *Engine) MarkDownstreamStale(ctx context.Context, workflowID, nodeID string) error {
	nodes, edges, err := e.loadGraph(ctx, workflowID)
	if err != nil {
		return err
	}
	nodeIDs := nodeIDsOf(nodes)
	downstream := DownstreamNodes(nodeID, nodeIDs, buildDAGEdges(edges))

	for _, id := range sortedKeys(downstream) {
		if id == nodeID {
			continue
		}
		e.emitter.EmitNodeStatus(emit.NodeStatusEvent{WorkflowID: workflowID, NodeID: id, Status: emit.NodeIdle})
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func nodeIDsOf(nodes []store.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func (e *Engine) loadGraph(ctx context.Context, workflowID string) ([]store.Node, []store.Edge, error) {
	nodes, err := e.store.Nodes(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: load nodes: %w", err)
	}
	edges, err := e.store.Edges(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: load edges: %w", err)
	}
	return nodes, edges, nil
}

func (e *Engine) metrics() *Metrics {
	return e.cfg.metrics
}

// executeNode is the heart of the engine: resolve inputs, consult the
// cache (unless skipCache), dispatch to the handler, and persist the
// outcome. Returns whether the node ended in success.
func (e *Engine) executeNode(ctx context.Context, workflowID string, node store.Node, nodesByID map[string]store.Node, inEdges, outEdges []store.Edge, skipCache bool) (bool, error) {
	handler, err := e.registry.Get(node.Type)
	if err != nil {
		return false, err
	}

	inputs, err := ResolveInputs(ctx, e.store, node, inEdges, nodesByID)
	if err != nil {
		return false, fmt.Errorf("engine: resolve inputs for %s: %w", node.ID, err)
	}

	inputHash := HashInputs(inputs)
	paramsHash := HashParams(node.Params)

	if !skipCache {
		if exec, ok := e.cache.Lookup(ctx, node.ID, inputHash, paramsHash); ok {
			return e.confirmCacheHit(ctx, workflowID, node, nodesByID, outEdges, exec)
		}
		if e.metrics() != nil {
			e.metrics().IncCacheMiss()
		}
	}

	tokenKey := cancelTokenKey(workflowID, node.ID)
	cancelCh := make(chan struct{})
	e.registerToken(tokenKey, cancelCh)
	defer e.deregisterToken(tokenKey)

	e.emitter.EmitNodeStatus(emit.NodeStatusEvent{WorkflowID: workflowID, NodeID: node.ID, Status: emit.NodeRunning})
	if e.metrics() != nil {
		e.metrics().SetActiveExecutions(1)
		defer e.metrics().SetActiveExecutions(0)
	}

	execRow, err := e.store.CreateExecution(ctx, store.Execution{
		NodeID:     node.ID,
		WorkflowID: workflowID,
		InputHash:  inputHash,
		ParamsHash: paramsHash,
		Status:     store.ExecutionPending,
	})
	if err != nil {
		return false, fmt.Errorf("engine: create execution for %s: %w", node.ID, err)
	}

	handlerCtx, cancelHandler := context.WithCancel(ctx)
	defer cancelHandler()
	go func() {
		select {
		case <-cancelCh:
			cancelHandler()
		case <-handlerCtx.Done():
		}
	}()

	start := time.Now()
	req := ExecRequest{
		WorkflowID: workflowID,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Inputs:     inputs,
		Params:     node.Params,
		Cancel:     cancelCh,
		Progress: func(percent int, message string) {
			e.emitter.EmitProgress(emit.ProgressEvent{WorkflowID: workflowID, NodeID: node.ID, Progress: percent, Message: message})
		},
	}
	result, handlerErr := handler.Execute(handlerCtx, req)
	duration := time.Since(start).Milliseconds()
	if result.DurationMs > 0 {
		duration = result.DurationMs
	}

	select {
	case <-cancelCh:
		// Cancel() already transitioned the node to idle; don't overwrite it.
		return false, nil
	default:
	}

	if handlerErr != nil || result.Status == ExecError {
		return e.finalizeFailure(ctx, workflowID, node, execRow.ID, outEdges, result, handlerErr, duration)
	}
	return e.finalizeSuccess(ctx, workflowID, node, nodesByID, execRow.ID, outEdges, result, duration)
}

func (e *Engine) confirmCacheHit(ctx context.Context, workflowID string, node store.Node, nodesByID map[string]store.Node, outEdges []store.Edge, exec store.Execution) (bool, error) {
	if e.metrics() != nil {
		e.metrics().IncCacheHit()
	}

	e.emitter.EmitNodeStatus(emit.NodeStatusEvent{WorkflowID: workflowID, NodeID: node.ID, Status: emit.NodeRunning})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(e.cfg.cacheHitDelay):
	}

	execID := exec.ID
	if err := e.store.SetCurrentOutput(ctx, node.ID, &execID); err != nil {
		return false, fmt.Errorf("engine: set current output (cache hit) for %s: %w", node.ID, err)
	}
	updated := node
	updated.CurrentOutputID = &execID
	nodesByID[node.ID] = updated

	e.emitter.EmitNodeStatus(emit.NodeStatusEvent{WorkflowID: workflowID, NodeID: node.ID, Status: emit.NodeConfirmed})
	for _, oe := range outEdges {
		e.emitter.EmitEdgeStatus(emit.EdgeStatusEvent{WorkflowID: workflowID, EdgeID: oe.ID, Status: emit.EdgeHasData})
	}
	return true, nil
}

func (e *Engine) finalizeFailure(ctx context.Context, workflowID string, node store.Node, executionID string, outEdges []store.Edge, result ExecResult, handlerErr error, duration int64) (bool, error) {
	msg := result.Error
	if msg == "" && handlerErr != nil {
		msg = handlerErr.Error()
	}

	if _, err := e.store.FinalizeExecution(ctx, executionID, store.ExecutionError, nil, result.ResultMetadata, duration, result.Cost); err != nil {
		return false, fmt.Errorf("engine: finalize failed execution for %s: %w", node.ID, err)
	}

	e.persistAuxSnapshot(workflowID, node.ID, executionID, nil, node.Params, result.ResultMetadata)

	if result.Cost > 0 {
		if _, err := e.cost.RecordSpend(ctx, result.Cost); err != nil {
			e.logger.Printf("flowcore: record spend for %s: %v", node.ID, err)
		} else if e.metrics() != nil {
			e.metrics().AddSpend(result.Cost)
		}
	}

	if e.metrics() != nil {
		e.metrics().ObserveNodeDurationMs(node.Type, "error", float64(duration))
	}

	e.emitter.EmitNodeStatus(emit.NodeStatusEvent{WorkflowID: workflowID, NodeID: node.ID, Status: emit.NodeError, ErrorMessage: msg})
	for _, oe := range outEdges {
		e.emitter.EmitEdgeStatus(emit.EdgeStatusEvent{WorkflowID: workflowID, EdgeID: oe.ID, Status: emit.EdgeNoData})
	}
	return false, nil
}

func (e *Engine) finalizeSuccess(ctx context.Context, workflowID string, node store.Node, nodesByID map[string]store.Node, executionID string, outEdges []store.Edge, result ExecResult, duration int64) (bool, error) {
	finalized, err := e.store.FinalizeExecution(ctx, executionID, store.ExecutionSuccess, result.ResultPath, result.ResultMetadata, duration, result.Cost)
	if err != nil {
		return false, fmt.Errorf("engine: finalize successful execution for %s: %w", node.ID, err)
	}

	e.persistAuxSnapshot(workflowID, node.ID, finalized.ID, nil, node.Params, result.ResultMetadata)

	if result.Cost > 0 {
		if _, err := e.cost.RecordSpend(ctx, result.Cost); err != nil {
			e.logger.Printf("flowcore: record spend for %s: %v", node.ID, err)
		} else if e.metrics() != nil {
			e.metrics().AddSpend(result.Cost)
		}
	}

	execID := finalized.ID
	if err := e.store.SetCurrentOutput(ctx, node.ID, &execID); err != nil {
		return false, fmt.Errorf("engine: set current output for %s: %w", node.ID, err)
	}
	updated := node
	updated.CurrentOutputID = &execID
	nodesByID[node.ID] = updated

	if e.downloader != nil {
		if _, dlErr := e.downloader.DownloadResultURLs(ctx, finalized.ID, result.ResultMetadata); dlErr != nil {
			e.logger.Printf("flowcore: download result URLs for execution %s: %v", finalized.ID, dlErr)
		}
	}

	if e.metrics() != nil {
		e.metrics().ObserveNodeDurationMs(node.Type, "success", float64(duration))
	}

	e.emitter.EmitNodeStatus(emit.NodeStatusEvent{WorkflowID: workflowID, NodeID: node.ID, Status: emit.NodeConfirmed})
	for _, oe := range outEdges {
		e.emitter.EmitEdgeStatus(emit.EdgeStatusEvent{WorkflowID: workflowID, EdgeID: oe.ID, Status: emit.EdgeHasData})
	}
	return true, nil
}

// persistAuxSnapshot is a best-effort hook that hands a node's inputs,
// params, and result metadata to the configured SnapshotWriter for an
// execution-scoped directory on disk; failures are logged, never
// propagated, since the Execution row is already the durable record of
// the attempt. Without a SnapshotWriter it does nothing. Both callers,
// finalizeSuccess and finalizeFailure, pass nil for inputs, so the writer
// receives params and result metadata only.
func (e *Engine) persistAuxSnapshot(workflowID, nodeID, executionID string, inputs, params, resultMetadata map[string]interface{}) {
	// On-disk asset management is an external collaborator, wired in
	// through WithSnapshotWriter.
	if e.cfg.snapshotWriter == nil {
		return
	}
	if err := e.cfg.snapshotWriter.WriteSnapshot(workflowID, nodeID, executionID, inputs, params, resultMetadata); err != nil {
		e.logger.Printf("flowcore: persist snapshot for execution %s: %v", executionID, err)
	}
}
