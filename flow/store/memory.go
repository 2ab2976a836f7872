package store

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests. It mirrors SQLiteStore's semantics (including the
// name-uniqueness suffix rule and cascade-preserving overwrite) without
// any disk I/O or debounce.
type MemStore struct {
	mu sync.RWMutex

	workflows map[string]Workflow
	nodes     map[string]Node // nodeID -> Node
	edges     map[string]Edge
	execs     map[string]Execution
	budget    BudgetConfig
	spend     map[string]float64
	uploads   map[string]UploadAsset
	schemas   map[string]ModelSchema

	closed bool
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows: map[string]Workflow{},
		nodes:     map[string]Node{},
		edges:     map[string]Edge{},
		execs:     map[string]Execution{},
		spend:     map[string]float64{},
		uploads:   map[string]UploadAsset{},
		schemas:   map[string]ModelSchema{},
	}
}

func (s *MemStore) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemStore) uniqueName(base, excludeID string) string {
	name := trimSpace(base)
	candidate := name
	for n := 2; ; n++ {
		collision := false
		for id, wf := range s.workflows {
			if wf.Name == candidate && id != excludeID {
				collision = true
				break
			}
		}
		if !collision {
			return candidate
		}
		candidate = name + " (" + itoa(n) + ")"
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func cloneNode(n Node) Node {
	nn := n
	if n.CurrentOutputID != nil {
		v := *n.CurrentOutputID
		nn.CurrentOutputID = &v
	}
	if n.Params != nil {
		nn.Params = make(map[string]interface{}, len(n.Params))
		for k, v := range n.Params {
			nn.Params[k] = v
		}
	}
	return nn
}

func cloneExecution(e Execution) Execution {
	ne := e
	if e.ResultPath != nil {
		v := *e.ResultPath
		ne.ResultPath = &v
	}
	if e.Score != nil {
		v := *e.Score
		ne.Score = &v
	}
	if e.ResultMetadata != nil {
		ne.ResultMetadata = make(map[string]interface{}, len(e.ResultMetadata))
		for k, v := range e.ResultMetadata {
			ne.ResultMetadata[k] = v
		}
	}
	return ne
}

func (s *MemStore) graphFor(workflowID string) GraphDefinition {
	var g GraphDefinition
	for _, n := range s.nodes {
		if n.WorkflowID == workflowID {
			g.Nodes = append(g.Nodes, cloneNode(n))
		}
	}
	for _, e := range s.edges {
		if e.WorkflowID == workflowID {
			g.Edges = append(g.Edges, e)
		}
	}
	return g
}

func (s *MemStore) CreateWorkflow(ctx context.Context, name string, graph GraphDefinition) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return Workflow{}, err
	}

	id := newID()
	now := time.Now().UTC()
	wf := Workflow{ID: id, Name: s.uniqueName(name, ""), CreatedAt: now, UpdatedAt: now, Status: WorkflowDraft}
	s.workflows[id] = wf

	for _, n := range graph.Nodes {
		n.WorkflowID = id
		s.nodes[n.ID] = cloneNode(n)
	}
	for _, e := range graph.Edges {
		e.WorkflowID = id
		s.edges[e.ID] = e
	}

	wf.GraphDefinition = s.graphFor(id)
	return wf, nil
}

func (s *MemStore) SaveWorkflow(ctx context.Context, workflowID string, graph GraphDefinition) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return Workflow{}, err
	}
	wf, ok := s.workflows[workflowID]
	if !ok {
		return Workflow{}, ErrNotFound
	}

	prior := map[string]string{}
	for id, n := range s.nodes {
		if n.WorkflowID == workflowID && n.CurrentOutputID != nil {
			prior[id] = *n.CurrentOutputID
		}
	}

	for id, n := range s.nodes {
		if n.WorkflowID == workflowID {
			delete(s.nodes, id)
		}
	}
	for id, e := range s.edges {
		if e.WorkflowID == workflowID {
			delete(s.edges, id)
		}
	}

	for _, n := range graph.Nodes {
		n.WorkflowID = workflowID
		if execID, ok := prior[n.ID]; ok {
			if _, exists := s.execs[execID]; exists {
				v := execID
				n.CurrentOutputID = &v
			}
		}
		s.nodes[n.ID] = cloneNode(n)
	}
	for _, e := range graph.Edges {
		e.WorkflowID = workflowID
		s.edges[e.ID] = e
	}

	wf.UpdatedAt = time.Now().UTC()
	s.workflows[workflowID] = wf
	wf.GraphDefinition = s.graphFor(workflowID)
	return wf, nil
}

func (s *MemStore) LoadWorkflow(ctx context.Context, workflowID string) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return Workflow{}, ErrNotFound
	}
	wf.GraphDefinition = s.graphFor(workflowID)
	return wf, nil
}

func (s *MemStore) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Workflow, 0, len(s.workflows))
	for id, wf := range s.workflows {
		wf.GraphDefinition = s.graphFor(id)
		out = append(out, wf)
	}
	return out, nil
}

func (s *MemStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[workflowID]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, workflowID)
	for id, n := range s.nodes {
		if n.WorkflowID == workflowID {
			delete(s.nodes, id)
			for eid, e := range s.edges {
				if e.SourceNodeID == id || e.TargetNodeID == id {
					delete(s.edges, eid)
				}
			}
			for exid, ex := range s.execs {
				if ex.NodeID == id {
					delete(s.execs, exid)
				}
			}
		}
	}
	return nil
}

func (s *MemStore) RenameWorkflow(ctx context.Context, workflowID, name string) (Workflow, error) {
	s.mu.Lock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		s.mu.Unlock()
		return Workflow{}, ErrNotFound
	}
	wf.Name = s.uniqueName(name, workflowID)
	wf.UpdatedAt = time.Now().UTC()
	s.workflows[workflowID] = wf
	s.mu.Unlock()
	return s.LoadWorkflow(ctx, workflowID)
}

func (s *MemStore) DuplicateWorkflow(ctx context.Context, workflowID, newName string) (Workflow, error) {
	src, err := s.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return Workflow{}, err
	}
	idRemap := map[string]string{}
	var graph GraphDefinition
	for _, n := range src.GraphDefinition.Nodes {
		newNodeID := newID()
		idRemap[n.ID] = newNodeID
		nn := cloneNode(n)
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

func (s *MemStore) Nodes(ctx context.Context, workflowID string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Node
	for _, n := range s.nodes {
		if n.WorkflowID == workflowID {
			out = append(out, cloneNode(n))
		}
	}
	return out, nil
}

func (s *MemStore) Edges(ctx context.Context, workflowID string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, e := range s.edges {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemStore) GetNode(ctx context.Context, nodeID string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return Node{}, ErrNotFound
	}
	return cloneNode(n), nil
}

func (s *MemStore) SetCurrentOutput(ctx context.Context, nodeID string, executionID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return ErrNotFound
	}
	if executionID != nil {
		v := *executionID
		n.CurrentOutputID = &v
	} else {
		n.CurrentOutputID = nil
	}
	s.nodes[nodeID] = n
	return nil
}

func (s *MemStore) CreateExecution(ctx context.Context, exec Execution) (Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exec.ID == "" {
		exec.ID = newID()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}
	s.execs[exec.ID] = cloneExecution(exec)
	return exec, nil
}

func (s *MemStore) FinalizeExecution(ctx context.Context, executionID string, status ExecutionStatus, resultPath *string, resultMetadata map[string]interface{}, durationMs int64, cost float64) (Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return Execution{}, ErrNotFound
	}
	e.Status = status
	e.ResultPath = resultPath
	e.ResultMetadata = resultMetadata
	e.DurationMs = durationMs
	e.Cost = cost
	s.execs[executionID] = cloneExecution(e)
	return cloneExecution(e), nil
}

func (s *MemStore) GetExecution(ctx context.Context, executionID string) (Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.execs[executionID]
	if !ok {
		return Execution{}, ErrNotFound
	}
	return cloneExecution(e), nil
}

func (s *MemStore) ListExecutionsByNode(ctx context.Context, nodeID string) ([]Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Execution
	for _, e := range s.execs {
		if e.NodeID == nodeID {
			out = append(out, cloneExecution(e))
		}
	}
	sortExecutionsDesc(out)
	return out, nil
}

func sortExecutionsDesc(execs []Execution) {
	for i := 1; i < len(execs); i++ {
		for j := i; j > 0 && execs[j].CreatedAt.After(execs[j-1].CreatedAt); j-- {
			execs[j], execs[j-1] = execs[j-1], execs[j]
		}
	}
}

func (s *MemStore) LookupCache(ctx context.Context, nodeID, inputHash, paramsHash string) (Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Execution
	for _, e := range s.execs {
		if e.NodeID != nodeID || e.InputHash != inputHash || e.ParamsHash != paramsHash || e.Status != ExecutionSuccess {
			continue
		}
		if best == nil || e.CreatedAt.After(best.CreatedAt) {
			cp := cloneExecution(e)
			best = &cp
		}
	}
	if best == nil {
		return Execution{}, ErrNotFound
	}
	return *best, nil
}

func (s *MemStore) SetScore(ctx context.Context, executionID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return ErrNotFound
	}
	e.Score = &score
	s.execs[executionID] = e
	return nil
}

func (s *MemStore) SetStarred(ctx context.Context, executionID string, starred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[executionID]
	if !ok {
		return ErrNotFound
	}
	e.Starred = starred
	s.execs[executionID] = e
	return nil
}

func (s *MemStore) DeleteExecution(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.execs[executionID]; !ok {
		return ErrNotFound
	}
	delete(s.execs, executionID)
	return nil
}

func (s *MemStore) DeleteExecutionsForNode(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.execs {
		if e.NodeID == nodeID {
			delete(s.execs, id)
		}
	}
	return nil
}

func (s *MemStore) GetBudget(ctx context.Context) (BudgetConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.budget, nil
}

func (s *MemStore) SetBudget(ctx context.Context, cfg BudgetConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = cfg
	return nil
}

func (s *MemStore) GetDailySpend(ctx context.Context, date string) (DailySpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DailySpend{Date: date, Total: s.spend[date]}, nil
}

func (s *MemStore) RecordSpend(ctx context.Context, date string, amount float64) (DailySpend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spend[date] += amount
	return DailySpend{Date: date, Total: s.spend[date]}, nil
}

func (s *MemStore) SaveUploadAsset(ctx context.Context, a UploadAsset) (UploadAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.uploads[a.ID] = a
	return a, nil
}

func (s *MemStore) ListUploadAssets(ctx context.Context) ([]UploadAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UploadAsset, 0, len(s.uploads))
	for _, a := range s.uploads {
		out = append(out, a)
	}
	return out, nil
}

func (s *MemStore) GetUploadAsset(ctx context.Context, id string) (UploadAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.uploads[id]
	if !ok {
		return UploadAsset{}, ErrNotFound
	}
	return a, nil
}

func (s *MemStore) UpsertModelSchema(ctx context.Context, m ModelSchema) (ModelSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.SyncedAt.IsZero() {
		m.SyncedAt = time.Now().UTC()
	}
	s.schemas[m.ID] = m
	return m, nil
}

func (s *MemStore) GetModelSchema(ctx context.Context, id string) (ModelSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.schemas[id]
	if !ok {
		return ModelSchema{}, ErrNotFound
	}
	return m, nil
}

func (s *MemStore) ListModelSchemas(ctx context.Context) ([]ModelSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ModelSchema, 0, len(s.schemas))
	for _, m := range s.schemas {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemStore) Flush(ctx context.Context) error {
	return s.checkOpen()
}

func (s *MemStore) Ping(ctx context.Context) error {
	return s.checkOpen()
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
