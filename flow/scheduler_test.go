package flow

import "testing"

func levelIndex(levels [][]string, id string) int {
	for i, level := range levels {
		for _, n := range level {
			if n == id {
				return i
			}
		}
	}
	return -1
}

func TestTopologicalLevelsOrdersEveryEdge(t *testing.T) {
	nodes := []string{"A", "B", "C"}
	edges := []DAGEdge{{Source: "A", Target: "B"}, {Source: "B", Target: "C"}}
	levels := TopologicalLevels(nodes, edges)

	total := 0
	for _, l := range levels {
		total += len(l)
	}
	if total != len(nodes) {
		t.Fatalf("levels cover %d nodes, want %d", total, len(nodes))
	}

	for _, e := range edges {
		if levelIndex(levels, e.Source) >= levelIndex(levels, e.Target) {
			t.Fatalf("edge %s->%s violates level(%s) < level(%s)", e.Source, e.Target, e.Source, e.Target)
		}
	}
}

func TestTopologicalLevelsFanOut(t *testing.T) {
	nodes := []string{"A", "B", "C"}
	edges := []DAGEdge{{Source: "A", Target: "B"}, {Source: "A", Target: "C"}}
	levels := TopologicalLevels(nodes, edges)

	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d: %v", len(levels), levels)
	}
	if levels[0][0] != "A" {
		t.Fatalf("level 0 = %v, want [A]", levels[0])
	}
}

func TestTopologicalLevelsDeterministicOrderWithinLevel(t *testing.T) {
	nodes := []string{"C", "B", "A"} // deliberately out of alpha order
	levels := TopologicalLevels(nodes, nil)
	if len(levels) != 1 {
		t.Fatalf("expected all independent nodes in one level, got %v", levels)
	}
	want := []string{"C", "B", "A"} // must follow input order, not sorted
	for i, n := range want {
		if levels[0][i] != n {
			t.Fatalf("level[0][%d] = %q, want %q (input-order determinism)", i, levels[0][i], n)
		}
	}
}

func TestTopologicalLevelsPartialOnCycle(t *testing.T) {
	nodes := []string{"A", "B", "C"}
	edges := []DAGEdge{{Source: "A", Target: "B"}, {Source: "B", Target: "A"}, {Source: "A", Target: "C"}}
	levels := TopologicalLevels(nodes, edges)

	seen := map[string]bool{}
	for _, l := range levels {
		for _, n := range l {
			seen[n] = true
		}
	}
	if seen["A"] || seen["B"] {
		t.Fatalf("cyclic nodes A/B should never reach in-degree 0, got levels %v", levels)
	}
}

func TestDownstreamNodesInclusiveBFS(t *testing.T) {
	edges := []DAGEdge{{Source: "A", Target: "B"}, {Source: "B", Target: "C"}, {Source: "A", Target: "D"}}
	got := DownstreamNodes("A", []string{"A", "B", "C", "D", "E"}, edges)

	for _, want := range []string{"A", "B", "C", "D"} {
		if !got[want] {
			t.Errorf("expected %s in downstream set, got %v", want, got)
		}
	}
	if got["E"] {
		t.Error("E is unreachable from A but was included")
	}
}

func TestHasCycleDetectsBackEdge(t *testing.T) {
	nodes := []string{"A", "B", "C"}
	edges := []DAGEdge{{Source: "A", Target: "B"}, {Source: "B", Target: "C"}, {Source: "C", Target: "A"}}
	if !HasCycle(nodes, edges) {
		t.Fatal("expected cycle A->B->C->A to be detected")
	}
}

func TestHasCycleFalseOnDAG(t *testing.T) {
	nodes := []string{"A", "B", "C"}
	edges := []DAGEdge{{Source: "A", Target: "B"}, {Source: "A", Target: "C"}, {Source: "B", Target: "C"}}
	if HasCycle(nodes, edges) {
		t.Fatal("expected no cycle on a DAG")
	}
}

func TestHasCycleSelfLoop(t *testing.T) {
	nodes := []string{"A"}
	edges := []DAGEdge{{Source: "A", Target: "A"}}
	if !HasCycle(nodes, edges) {
		t.Fatal("expected self-loop to be detected as a cycle")
	}
}
