package modelcache

import (
	"context"
	"errors"
	"testing"

	"github.com/flowforge/flowcore/flow/store"
)

type fakeSource struct {
	name    string
	schemas []store.ModelSchema
	err     error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchSchemas(ctx context.Context) ([]store.ModelSchema, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.schemas, nil
}

func ptr(f float64) *float64 { return &f }

func TestGetMissFallsBackToStoreThenMemoizes(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	if _, err := s.UpsertModelSchema(ctx, store.ModelSchema{
		ID: "claude-3-haiku-20240307", Provider: "anthropic", DisplayName: "Claude 3 Haiku",
	}); err != nil {
		t.Fatalf("seed schema: %v", err)
	}

	c := New(s)
	m, ok := c.Get(ctx, "claude-3-haiku-20240307")
	if !ok {
		t.Fatal("expected schema found via store fallback")
	}
	if m.DisplayName != "Claude 3 Haiku" {
		t.Fatalf("unexpected display name %q", m.DisplayName)
	}

	c.mu.RLock()
	_, memoized := c.byID["claude-3-haiku-20240307"]
	c.mu.RUnlock()
	if !memoized {
		t.Fatal("expected schema memoized after store hit")
	}
}

func TestGetMissingReturnsFalse(t *testing.T) {
	c := New(store.NewMemStore())
	_, ok := c.Get(context.Background(), "nonexistent")
	if ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestCostPerUnitReportsHintWhenPresent(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	if _, err := s.UpsertModelSchema(ctx, store.ModelSchema{
		ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", CostPerUnit: ptr(10.0),
	}); err != nil {
		t.Fatalf("seed schema: %v", err)
	}

	c := New(s)
	if _, ok := c.Get(ctx, "gpt-4o"); !ok {
		t.Fatal("expected schema to populate cache")
	}

	cost, ok := c.CostPerUnit("gpt-4o")
	if !ok || cost != 10.0 {
		t.Fatalf("got (%v, %v), want (10.0, true)", cost, ok)
	}
}

func TestCostPerUnitFalseWhenNoHint(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	if _, err := s.UpsertModelSchema(ctx, store.ModelSchema{ID: "custom-model", Provider: "custom"}); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
	c := New(s)
	c.Get(ctx, "custom-model")

	if _, ok := c.CostPerUnit("custom-model"); ok {
		t.Fatal("expected no cost hint for schema without one")
	}
}

func TestSyncMergesMultipleSourcesAndSkipsFailures(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()

	good := &fakeSource{
		name: "anthropic",
		schemas: []store.ModelSchema{
			{ID: "claude-3-opus-20240229", Provider: "anthropic", DisplayName: "Claude 3 Opus", CostPerUnit: ptr(75.0)},
		},
	}
	bad := &fakeSource{name: "openai", err: errors.New("missing api key")}

	c := New(s)
	results, err := c.Sync(ctx, good, bad)
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	var sawGood, sawBad bool
	for _, r := range results {
		switch r.Source {
		case "anthropic":
			sawGood = true
			if r.Fetched != 1 || r.Err != nil {
				t.Fatalf("unexpected good result: %+v", r)
			}
		case "openai":
			sawBad = true
			if r.Err == nil {
				t.Fatal("expected openai result to carry an error")
			}
		}
	}
	if !sawGood || !sawBad {
		t.Fatal("expected results for both sources")
	}

	stored, err := s.ListModelSchemas(ctx)
	if err != nil {
		t.Fatalf("ListModelSchemas: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != "claude-3-opus-20240229" {
		t.Fatalf("unexpected stored schemas: %+v", stored)
	}
}

func TestSyncLastSourceWinsOnIDCollision(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()

	first := &fakeSource{name: "a", schemas: []store.ModelSchema{{ID: "shared", DisplayName: "First"}}}
	second := &fakeSource{name: "b", schemas: []store.ModelSchema{{ID: "shared", DisplayName: "Second"}}}

	c := New(s)
	if _, err := c.Sync(ctx, first, second); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	m, ok := c.Get(ctx, "shared")
	if !ok {
		t.Fatal("expected merged schema present")
	}
	if m.DisplayName != "Second" {
		t.Fatalf("expected last source to win, got %q", m.DisplayName)
	}
}

func TestSearchExactSubstringMatch(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	seed(t, s, store.ModelSchema{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", Category: "chat"})
	seed(t, s, store.ModelSchema{ID: "claude-3-opus", Provider: "anthropic", DisplayName: "Claude 3 Opus", Category: "chat"})

	c := New(s)
	results, err := c.Search(ctx, "claude", "", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "claude-3-opus" {
		t.Fatalf("unexpected search results: %+v", results)
	}
}

func TestSearchFiltersByCategoryAndProvider(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	seed(t, s, store.ModelSchema{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", Category: "chat"})
	seed(t, s, store.ModelSchema{ID: "dall-e-3", Provider: "openai", DisplayName: "DALL-E 3", Category: "image"})

	c := New(s)
	results, err := c.Search(ctx, "", "image", "openai")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "dall-e-3" {
		t.Fatalf("unexpected filtered results: %+v", results)
	}
}

func TestSearchFuzzyMatchTypo(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	seed(t, s, store.ModelSchema{ID: "gemini-1.5-pro", Provider: "google", DisplayName: "Gemini 1.5 Pro", Category: "chat"})

	c := New(s)
	results, err := c.Search(ctx, "gemni", "", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected fuzzy match to find gemini, got %+v", results)
	}
}

func seed(t *testing.T, s store.Store, m store.ModelSchema) {
	t.Helper()
	if _, err := s.UpsertModelSchema(context.Background(), m); err != nil {
		t.Fatalf("seed schema %s: %v", m.ID, err)
	}
}
