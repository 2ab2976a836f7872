package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/flowcore/flow"
	"github.com/flowforge/flowcore/flow/store"
)

// Request is one line of the stdin protocol: a method name plus its
// argument object, correlated back to a Response by ID.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is one line of the stdout protocol. Result is omitted on
// error; Error is omitted on success.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Dispatch runs one Request against the App's collaborators and returns
// the Response to write back. It never panics on a malformed request —
// a bad argument object becomes an error Response, not a crash.
func (a *App) Dispatch(ctx context.Context, req Request) Response {
	result, err := a.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Result: result}
}

func (a *App) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "workflow:create":
		var p struct {
			Name  string                `json:"name"`
			Graph store.GraphDefinition `json:"graph"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Store.CreateWorkflow(ctx, p.Name, p.Graph)

	case "workflow:save":
		var p struct {
			WorkflowID string                `json:"workflowId"`
			Graph      store.GraphDefinition `json:"graph"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Store.SaveWorkflow(ctx, p.WorkflowID, p.Graph)

	case "workflow:load":
		var p struct {
			WorkflowID string `json:"workflowId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Store.LoadWorkflow(ctx, p.WorkflowID)

	case "workflow:list":
		return a.Store.ListWorkflows(ctx)

	case "workflow:delete":
		var p struct {
			WorkflowID string `json:"workflowId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Store.DeleteWorkflow(ctx, p.WorkflowID)

	case "workflow:rename":
		var p struct {
			WorkflowID string `json:"workflowId"`
			Name       string `json:"name"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Store.RenameWorkflow(ctx, p.WorkflowID, p.Name)

	case "workflow:duplicate":
		var p struct {
			WorkflowID string `json:"workflowId"`
			Name       string `json:"name"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Store.DuplicateWorkflow(ctx, p.WorkflowID, p.Name)

	case "execution:runAll":
		var p struct {
			WorkflowID string `json:"workflowId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Engine.RunAll(ctx, p.WorkflowID)

	case "execution:runNode":
		var p struct {
			WorkflowID string `json:"workflowId"`
			NodeID     string `json:"nodeId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		ok, err := a.Engine.RunNode(ctx, p.WorkflowID, p.NodeID)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"success": ok}, nil

	case "execution:continueFrom":
		var p struct {
			WorkflowID string `json:"workflowId"`
			NodeID     string `json:"nodeId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Engine.ContinueFrom(ctx, p.WorkflowID, p.NodeID)

	case "execution:retry":
		var p struct {
			WorkflowID string `json:"workflowId"`
			NodeID     string `json:"nodeId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Engine.Retry(ctx, p.WorkflowID, p.NodeID)

	case "execution:cancel":
		var p struct {
			WorkflowID string `json:"workflowId"`
			NodeID     string `json:"nodeId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		a.Engine.Cancel(p.WorkflowID, p.NodeID)
		return nil, nil

	case "history:listByNode":
		var p struct {
			NodeID string `json:"nodeId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Store.ListExecutionsByNode(ctx, p.NodeID)

	case "history:setCurrent":
		var p struct {
			WorkflowID  string `json:"workflowId"`
			NodeID      string `json:"nodeId"`
			ExecutionID string `json:"executionId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if err := a.Store.SetCurrentOutput(ctx, p.NodeID, &p.ExecutionID); err != nil {
			return nil, err
		}
		return nil, a.Engine.MarkDownstreamStale(ctx, p.WorkflowID, p.NodeID)

	case "history:star":
		var p struct {
			ExecutionID string `json:"executionId"`
			Starred     bool   `json:"starred"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Store.SetStarred(ctx, p.ExecutionID, p.Starred)

	case "history:score":
		var p struct {
			ExecutionID string `json:"executionId"`
			Score       int    `json:"score"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Store.SetScore(ctx, p.ExecutionID, p.Score)

	case "history:deleteOne":
		var p struct {
			ExecutionID string `json:"executionId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Store.DeleteExecution(ctx, p.ExecutionID)

	case "history:deleteAllForNode":
		var p struct {
			NodeID string `json:"nodeId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Store.DeleteExecutionsForNode(ctx, p.NodeID)

	case "cost:estimate":
		var p struct {
			Nodes []flow.NodeCostEstimate `json:"nodes"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Cost.Estimate(ctx, p.Nodes)

	case "cost:getBudget":
		return a.Cost.GetBudget(ctx)

	case "cost:setBudget":
		var p store.BudgetConfig
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return nil, a.Cost.SetBudget(ctx, p)

	case "cost:getDailySpend":
		var p struct {
			Date string `json:"date"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Store.GetDailySpend(ctx, p.Date)

	case "storage:listUploads":
		return a.Store.ListUploadAssets(ctx)

	case "storage:workflowExport":
		var p struct {
			WorkflowID string `json:"workflowId"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.ExportWorkflow(ctx, p.WorkflowID)

	case "storage:workflowImport":
		var p struct {
			Name string          `json:"name"`
			Data json.RawMessage `json:"data"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.ImportWorkflow(ctx, p.Name, p.Data)

	case "models:sync":
		return a.runCatalogSync(ctx)

	case "models:list":
		return a.Store.ListModelSchemas(ctx)

	case "models:search":
		var p struct {
			Query    string `json:"query"`
			Category string `json:"category"`
			Provider string `json:"provider"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return a.Models.Search(ctx, p.Query, p.Category, p.Provider)

	case "models:getSchema":
		var p struct {
			ID string `json:"id"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		schema, ok := a.Models.Get(ctx, p.ID)
		if !ok {
			return nil, store.ErrNotFound
		}
		return schema, nil

	default:
		return nil, fmt.Errorf("flowcored: unknown method %q", method)
	}
}

func decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("flowcored: decode params: %w", err)
	}
	return nil
}
