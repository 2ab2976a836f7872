package flow

import "testing"

// TestCircuitBreakerScenario is spec scenario 5: three retries trip the
// breaker; a fourth must fail immediately rather than attempt the node.
func TestCircuitBreakerScenario(t *testing.T) {
	b := NewCircuitBreaker()
	const nodeID = "n1"

	if b.IsTripped(nodeID) {
		t.Fatal("fresh breaker must start closed")
	}

	var tripped bool
	for i := 0; i < 3; i++ {
		tripped = b.RecordRetry(nodeID)
	}
	if !tripped {
		t.Fatal("expected breaker tripped after 3 retries")
	}
	if !b.IsTripped(nodeID) {
		t.Fatal("IsTripped should report open circuit after threshold reached")
	}
}

func TestCircuitBreakerResetClosesCircuit(t *testing.T) {
	b := NewCircuitBreaker()
	const nodeID = "n1"

	b.RecordRetry(nodeID)
	b.RecordRetry(nodeID)
	b.RecordRetry(nodeID)
	if !b.IsTripped(nodeID) {
		t.Fatal("expected tripped before reset")
	}

	b.Reset(nodeID)
	if b.IsTripped(nodeID) {
		t.Fatal("expected closed circuit after reset")
	}
}

func TestCircuitBreakerIsolatedPerNode(t *testing.T) {
	b := NewCircuitBreaker()
	b.RecordRetry("n1")
	b.RecordRetry("n1")
	b.RecordRetry("n1")

	if b.IsTripped("n2") {
		t.Fatal("n2's circuit must be independent of n1's")
	}
}

func TestCircuitBreakerCustomThreshold(t *testing.T) {
	b := NewCircuitBreakerWithThreshold(1)
	if b.RecordRetry("n1") != true {
		t.Fatal("threshold of 1 should trip on first retry")
	}
}
