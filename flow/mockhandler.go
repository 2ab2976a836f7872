package flow

import (
	"context"
	"sync"
)

// MockHandler is a test/demo implementation of Handler: it returns a
// configured sequence of results instead of doing real work, records every
// Execute call, and can be made to fail on demand.
//
// Example:
//
//	h := &MockHandler{Results: []ExecResult{{Status: ExecSuccess, Outputs: map[string]interface{}{"text": "hi"}}}}
//	reg.Register(NodeTypeDef{Type: "echo"}, h)
type MockHandler struct {
	// Results is the sequence of results Execute returns, one per call; the
	// last entry repeats once exhausted.
	Results []ExecResult

	// Err, if set, is returned by Execute instead of a result.
	Err error

	// Cost is what EstimateCost always returns.
	Cost float64

	// ValidateResult is what Validate always returns; defaults to valid.
	ValidateResult *ValidationResult

	mu    sync.Mutex
	Calls []ExecRequest
	index int
}

func (m *MockHandler) Execute(ctx context.Context, req ExecRequest) (ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)

	if m.Err != nil {
		return ExecResult{}, m.Err
	}
	if len(m.Results) == 0 {
		return ExecResult{Status: ExecSuccess}, nil
	}

	idx := m.index
	if idx >= len(m.Results) {
		idx = len(m.Results) - 1
	} else {
		m.index++
	}
	return m.Results[idx], nil
}

func (m *MockHandler) EstimateCost(params map[string]interface{}) float64 {
	return m.Cost
}

func (m *MockHandler) Validate(params map[string]interface{}) ValidationResult {
	if m.ValidateResult != nil {
		return *m.ValidateResult
	}
	return ValidationResult{Valid: true}
}

// CallCount reports how many times Execute has been invoked.
func (m *MockHandler) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears call history, for reuse across test cases.
func (m *MockHandler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.index = 0
}
