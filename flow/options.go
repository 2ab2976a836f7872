package flow

import "time"

// Option configures an Engine at construction time.
//
// Example:
//
//	engine := flow.NewEngine(
//	    s, registry, emitter,
//	    flow.WithMaxParallel(8),
//	    flow.WithCacheHitDelay(200*time.Millisecond),
//	)
type Option func(*engineConfig) error

type engineConfig struct {
	maxParallel      int
	cacheHitDelay    time.Duration
	persistDebounce  time.Duration
	circuitThreshold int
	metrics          *Metrics
	modelCosts       ModelCostSource
	snapshotWriter   SnapshotWriter
}

// SnapshotWriter persists a node execution's inputs, params, and result
// metadata to an execution-scoped location on disk (step 11 of
// executeNode). It is an external collaborator the engine calls
// best-effort; a nil SnapshotWriter simply skips the step. The engine
// passes nil for inputs.
type SnapshotWriter interface {
	WriteSnapshot(workflowID, nodeID, executionID string, inputs, params, resultMetadata map[string]interface{}) error
}

// WithSnapshotWriter attaches the on-disk auxiliary snapshot writer used by
// step 11 of executeNode. Optional.
func WithSnapshotWriter(w SnapshotWriter) Option {
	return func(cfg *engineConfig) error {
		cfg.snapshotWriter = w
		return nil
	}
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		maxParallel:      5,
		cacheHitDelay:    300 * time.Millisecond,
		persistDebounce:  500 * time.Millisecond,
		circuitThreshold: DefaultCircuitThreshold,
	}
}

// WithMaxParallel overrides MAX_PARALLEL_EXECUTIONS, the per-level
// concurrency bound. Default: 5.
func WithMaxParallel(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.maxParallel = n
		return nil
	}
}

// WithCacheHitDelay overrides the perceptual-feedback delay the engine
// waits on a cache hit before confirming the node. Default: 300ms.
func WithCacheHitDelay(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.cacheHitDelay = d
		return nil
	}
}

// WithCircuitThreshold overrides the retry count at which a node's circuit
// trips. Default: 3.
func WithCircuitThreshold(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.circuitThreshold = n
		return nil
	}
}

// WithMetrics attaches a Metrics collector; omit to run without Prometheus
// instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithModelCostSource attaches the optional per-model cost-per-unit hint
// source the Cost Guard falls back to.
func WithModelCostSource(src ModelCostSource) Option {
	return func(cfg *engineConfig) error {
		cfg.modelCosts = src
		return nil
	}
}
