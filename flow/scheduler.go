package flow

import "sort"

// DAGEdge is the minimal (source, target) pair the scheduler's pure
// functions operate over — a projection of store.Edge that doesn't drag
// in handle/output-key fields irrelevant to leveling and reachability.
type DAGEdge struct {
	Source string
	Target string
}

// TopologicalLevels partitions nodeIds into levels by a Kahn-style
// peeling of in-degree-0 nodes: level 0 is every node with no in-edges;
// each subsequent level is whatever nodes' remaining in-degree reaches
// zero after removing the previous level's out-edges. If the graph is
// cyclic, the nodes in the cycle never reach in-degree zero and are
// silently omitted — the caller is responsible for rejecting cycles via
// HasCycle before relying on a complete partition.
//
// Order within a level is unspecified by the source graph but must be
// deterministic given the input order of nodeIds, so ties are broken by
// nodeIds' original index.
func TopologicalLevels(nodeIds []string, edges []DAGEdge) [][]string {
	indexOf := make(map[string]int, len(nodeIds))
	for i, id := range nodeIds {
		indexOf[id] = i
	}

	inDegree := make(map[string]int, len(nodeIds))
	outEdges := make(map[string][]string, len(nodeIds))
	for _, id := range nodeIds {
		inDegree[id] = 0
	}
	for _, e := range edges {
		if _, ok := indexOf[e.Source]; !ok {
			continue
		}
		if _, ok := indexOf[e.Target]; !ok {
			continue
		}
		inDegree[e.Target]++
		outEdges[e.Source] = append(outEdges[e.Source], e.Target)
	}

	remaining := make(map[string]int, len(inDegree))
	for k, v := range inDegree {
		remaining[k] = v
	}

	var levels [][]string
	seen := make(map[string]bool, len(nodeIds))

	for {
		var level []string
		for _, id := range nodeIds {
			if seen[id] {
				continue
			}
			if remaining[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			break
		}

		sort.Slice(level, func(i, j int) bool { return indexOf[level[i]] < indexOf[level[j]] })
		levels = append(levels, level)
		for _, id := range level {
			seen[id] = true
		}
		for _, id := range level {
			for _, target := range outEdges[id] {
				remaining[target]--
			}
		}
	}

	return levels
}

// DownstreamNodes returns the breadth-first reachable set of nodes from
// start following out-edges, inclusive of start itself.
func DownstreamNodes(start string, nodeIds []string, edges []DAGEdge) map[string]bool {
	outEdges := make(map[string][]string, len(nodeIds))
	for _, e := range edges {
		outEdges[e.Source] = append(outEdges[e.Source], e.Target)
	}

	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range outEdges[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// HasCycle runs a three-color DFS (white/gray/black) over nodeIds and
// edges, returning true iff a back-edge (an edge into a node still on
// the current DFS stack) is encountered.
func HasCycle(nodeIds []string, edges []DAGEdge) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	outEdges := make(map[string][]string, len(nodeIds))
	for _, e := range edges {
		outEdges[e.Source] = append(outEdges[e.Source], e.Target)
	}

	color := make(map[string]int, len(nodeIds))
	for _, id := range nodeIds {
		color[id] = white
	}

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range outEdges[id] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, id := range nodeIds {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}
