package services

import "sort"

// TableGraph is an undirected graph over table names, used to split a
// project's relationships into connected components for view generation.
type TableGraph struct {
	adjacency map[string]map[string]bool
}

// NewTableGraph creates an empty graph.
func NewTableGraph() *TableGraph {
	return &TableGraph{adjacency: make(map[string]map[string]bool)}
}

// AddNode ensures a table is present even without edges.
func (g *TableGraph) AddNode(table string) {
	if _, ok := g.adjacency[table]; !ok {
		g.adjacency[table] = make(map[string]bool)
	}
}

// AddEdge links two tables. Edges are undirected.
func (g *TableGraph) AddEdge(a, b string) {
	g.AddNode(a)
	g.AddNode(b)
	g.adjacency[a][b] = true
	g.adjacency[b][a] = true
}

// Neighbors returns the tables adjacent to the given table, sorted.
func (g *TableGraph) Neighbors(table string) []string {
	var out []string
	for n := range g.adjacency[table] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ConnectedComponents returns the graph's components. Component membership
// and component order are deterministic: nodes are visited in sorted order.
func (g *TableGraph) ConnectedComponents() [][]string {
	nodes := make([]string, 0, len(g.adjacency))
	for n := range g.adjacency {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	visited := make(map[string]bool, len(nodes))
	var components [][]string

	for _, start := range nodes {
		if visited[start] {
			continue
		}
		var component []string
		stack := []string{start}
		visited[start] = true
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, node)
			for _, neighbor := range g.Neighbors(node) {
				if !visited[neighbor] {
					visited[neighbor] = true
					stack = append(stack, neighbor)
				}
			}
		}
		sort.Strings(component)
		components = append(components, component)
	}

	return components
}
