// Package modelcache is a read-through cache of AI model schemas, fed by
// one or more provider catalog adapters (Anthropic, OpenAI, Google) and
// backed by the durable store for everything not yet seen in-process.
package modelcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/flowforge/flowcore/flow/store"
)

// SchemaSource fetches the current catalog of models a provider offers.
// Each adapter (Anthropic/OpenAI/Google) implements this against its own
// SDK; Sync fans out to every configured source and merges the results.
type SchemaSource interface {
	// Name identifies the source for logging and ModelSchema.Provider.
	Name() string
	// FetchSchemas returns the provider's current model catalog. A source
	// that cannot reach its API (missing credentials, network error)
	// returns an error; Sync skips it and continues with the rest.
	FetchSchemas(ctx context.Context) ([]store.ModelSchema, error)
}

// Cache is a read-through cache of store.ModelSchema rows keyed by id.
type Cache struct {
	store store.Store

	mu   sync.RWMutex
	byID map[string]store.ModelSchema
}

// New constructs a Cache backed by s. The in-memory index starts empty and
// is populated lazily by Get and eagerly by Sync.
func New(s store.Store) *Cache {
	return &Cache{store: s, byID: make(map[string]store.ModelSchema)}
}

// Get returns the schema for id, checking the in-memory map first and
// falling back to the Store on a miss. A Store hit populates the map so
// subsequent Gets are in-memory.
func (c *Cache) Get(ctx context.Context, id string) (store.ModelSchema, bool) {
	c.mu.RLock()
	m, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return m, true
	}

	m, err := c.store.GetModelSchema(ctx, id)
	if err != nil {
		return store.ModelSchema{}, false
	}

	c.mu.Lock()
	c.byID[m.ID] = m
	c.mu.Unlock()
	return m, true
}

// CostPerUnit implements flow.ModelCostSource: it looks up id and reports
// its cost hint if the schema exists and carries one.
func (c *Cache) CostPerUnit(modelID string) (float64, bool) {
	m, ok := c.Get(context.Background(), modelID)
	if !ok || m.CostPerUnit == nil {
		return 0, false
	}
	return *m.CostPerUnit, true
}

// SyncResult summarizes one Sync call, per source, for logging/diagnostics.
type SyncResult struct {
	Source  string
	Fetched int
	Err     error
}

// Sync fetches the catalog from every source, merges the results (last
// source wins on id collision), upserts each schema into the Store, and
// refreshes the in-memory index. A source that errors is recorded in the
// returned results but does not abort the rest of the sync.
func (c *Cache) Sync(ctx context.Context, sources ...SchemaSource) ([]SyncResult, error) {
	results := make([]SyncResult, 0, len(sources))
	merged := make(map[string]store.ModelSchema)

	for _, src := range sources {
		schemas, err := src.FetchSchemas(ctx)
		if err != nil {
			results = append(results, SyncResult{Source: src.Name(), Err: err})
			continue
		}
		for _, s := range schemas {
			merged[s.ID] = s
		}
		results = append(results, SyncResult{Source: src.Name(), Fetched: len(schemas)})
	}

	for _, m := range merged {
		saved, err := c.store.UpsertModelSchema(ctx, m)
		if err != nil {
			return results, fmt.Errorf("modelcache: upsert %s: %w", m.ID, err)
		}
		c.mu.Lock()
		c.byID[saved.ID] = saved
		c.mu.Unlock()
	}

	return results, nil
}

// scoredSchema pairs a schema with its match score for Search's ranking.
type scoredSchema struct {
	schema store.ModelSchema
	score  float64
}

// Search does a case-insensitive fuzzy match of query against each known
// schema's DisplayName, optionally filtered by category and provider, and
// returns matches ranked best-first. query, category, and provider empty
// strings act as wildcards.
func (c *Cache) Search(ctx context.Context, query, category, provider string) ([]store.ModelSchema, error) {
	all, err := c.store.ListModelSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("modelcache: search: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	scored := make([]scoredSchema, 0, len(all))
	for _, m := range all {
		if category != "" && !strings.EqualFold(m.Category, category) {
			continue
		}
		if provider != "" && !strings.EqualFold(m.Provider, provider) {
			continue
		}
		if q == "" {
			scored = append(scored, scoredSchema{schema: m, score: 1})
			continue
		}
		name := strings.ToLower(m.DisplayName)
		if strings.Contains(name, q) {
			scored = append(scored, scoredSchema{schema: m, score: 1})
			continue
		}
		score := jaroWinkler(q, name)
		if score >= 0.7 {
			scored = append(scored, scoredSchema{schema: m, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].schema.DisplayName < scored[j].schema.DisplayName
	})

	out := make([]store.ModelSchema, len(scored))
	for i, s := range scored {
		out[i] = s.schema
	}
	return out, nil
}

// jaroWinkler is a small, dependency-free approximation of the
// Jaro-Winkler similarity metric, used only to rank fuzzy Search matches;
// it is not a general-purpose string-distance library.
func jaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j <= 0 {
		return j
	}

	prefix := 0
	maxPrefix := 4
	if len(a) < maxPrefix {
		maxPrefix = len(a)
	}
	if len(b) < maxPrefix {
		maxPrefix = len(b)
	}
	for i := 0; i < maxPrefix; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}

	const scalingFactor = 0.1
	return j + float64(prefix)*scalingFactor*(1-j)
}

func jaro(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	matchDistance := la / 2
	if lb/2 > matchDistance {
		matchDistance = lb / 2
	}
	if matchDistance > 0 {
		matchDistance--
	}

	aMatches := make([]bool, la)
	bMatches := make([]bool, lb)

	matches := 0
	for i := 0; i < la; i++ {
		start := i - matchDistance
		if start < 0 {
			start = 0
		}
		end := i + matchDistance + 1
		if end > lb {
			end = lb
		}
		for k := start; k < end; k++ {
			if bMatches[k] || a[i] != b[k] {
				continue
			}
			aMatches[i] = true
			bMatches[k] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := 0; i < la; i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions/2))/m) / 3
}
