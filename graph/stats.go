package graph

// Stats summarises the shape of a method graph.
type Stats struct {
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	Components int `json:"components"` // weakly connected
	Isolated   int `json:"isolated"`   // nodes with no edges
}

// ComputeStats counts weakly connected components with a BFS over the
// undirected adjacency. Edges to undeclared ids are ignored.
func ComputeStats(g *MethodGraph) Stats {
	st := Stats{Nodes: len(g.Nodes), Edges: len(g.Edges)}
	if len(g.Nodes) == 0 {
		return st
	}

	idIndex := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, ok := idIndex[n.ID]; !ok {
			idIndex[n.ID] = i
		}
	}

	adj := make([][]int, len(g.Nodes))
	for _, e := range g.Edges {
		si, okS := idIndex[e.SourceID]
		ti, okT := idIndex[e.TargetID]
		if !okS || !okT {
			continue
		}
		adj[si] = append(adj[si], ti)
		adj[ti] = append(adj[ti], si)
	}

	visited := make([]bool, len(g.Nodes))
	for i := range g.Nodes {
		if len(adj[i]) == 0 {
			st.Isolated++
		}
		if visited[i] {
			continue
		}
		st.Components++
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range adj[cur] {
				if !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
	}
	return st
}
