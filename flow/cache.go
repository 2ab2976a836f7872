package flow

import (
	"context"
	"errors"

	"github.com/flowforge/flowcore/flow/store"
)

// Cache is the content-addressed lookup in front of node execution: given
// a node and the canonical hashes of its resolved inputs and params, it
// answers whether a prior successful Execution already covers this exact
// call. It never writes — insertion happens implicitly whenever the engine
// persists a new successful Execution row, since the cache key lives on
// the Execution itself.
type Cache struct {
	store store.Store
}

// NewCache wraps a Store as a read-only cache front end.
func NewCache(s store.Store) *Cache {
	return &Cache{store: s}
}

// Lookup returns the most recent successful Execution matching
// (nodeID, inputHash, paramsHash), or ok=false if none exists.
func (c *Cache) Lookup(ctx context.Context, nodeID, inputHash, paramsHash string) (store.Execution, bool) {
	exec, err := c.store.LookupCache(ctx, nodeID, inputHash, paramsHash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return store.Execution{}, false
		}
		return store.Execution{}, false
	}
	return exec, true
}
