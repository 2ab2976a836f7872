package flow

import (
	"context"
	"errors"
	"testing"
)

type fakeHandler struct {
	cost float64
}

func (f fakeHandler) Execute(ctx context.Context, req ExecRequest) (ExecResult, error) {
	return ExecResult{Status: ExecSuccess}, nil
}

func (f fakeHandler) EstimateCost(params map[string]interface{}) float64 {
	return f.cost
}

func (f fakeHandler) Validate(params map[string]interface{}) ValidationResult {
	return ValidationResult{Valid: true}
}

func TestRegistryGetMissingType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nonexistent")
	if !errors.Is(err, ErrHandlerNotFound) {
		t.Fatalf("expected ErrHandlerNotFound, got %v", err)
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	h := fakeHandler{cost: 1.5}
	r.Register(NodeTypeDef{Type: "text-gen", Category: "ai"}, h)

	got, err := r.Get("text-gen")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.EstimateCost(nil) != 1.5 {
		t.Fatalf("unexpected handler returned")
	}

	def, ok := r.Def("text-gen")
	if !ok || def.Category != "ai" {
		t.Fatalf("expected def with category ai, got %+v ok=%v", def, ok)
	}
}

func TestRegistryTypesListsAllRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register(NodeTypeDef{Type: "a"}, fakeHandler{})
	r.Register(NodeTypeDef{Type: "b"}, fakeHandler{})

	types := r.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %v", types)
	}
}
