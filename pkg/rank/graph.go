package rank

import (
	"slices"
	"sort"
)

// PathType identifies one of the disjoint traversal paths the ranking engine
// propagates weight along. Each path type carries its own configurable weight
// multiplier.
type PathType string

const (
	// PathRelation follows direct entity-to-entity relationship edges,
	// excluding mention, similarity, and containment edge types.
	PathRelation PathType = "relation"

	// PathSectionSimilarity follows two-hop paths through section-level
	// semantic-similarity edges: entity -> its section -> similar section ->
	// that section's entities.
	PathSectionSimilarity PathType = "section_similarity"

	// PathEntitySimilarity follows direct embedding nearest-neighbor edges
	// between entities.
	PathEntitySimilarity PathType = "entity_similarity"

	// PathBridge follows cross-document bridge paths: entity -> section ->
	// section sharing an entity -> the other section's hub entity.
	PathBridge PathType = "bridge"

	// PathHubExpansion follows section -> designated-hub-entity edges.
	PathHubExpansion PathType = "hub_expansion"
)

// AllPathTypes lists every path type in a fixed order.
var AllPathTypes = []PathType{
	PathRelation,
	PathSectionSimilarity,
	PathEntitySimilarity,
	PathBridge,
	PathHubExpansion,
}

// Edge is a weighted directed edge to another entity.
type Edge struct {
	Target int64
	Weight float64
}

// Graph is an in-memory adjacency snapshot of the entity neighborhood
// reachable from a seed set, partitioned by path type. The five path types
// are typically loaded by concurrent store queries; edges are accumulated
// into maps keyed by node id so the merged result is independent of
// completion order.
type Graph struct {
	adjacency map[PathType]map[int64]map[int64]float64
}

// NewGraph returns an empty adjacency snapshot.
func NewGraph() *Graph {
	return &Graph{
		adjacency: make(map[PathType]map[int64]map[int64]float64),
	}
}

// AddEdge records a directed edge for a path type. Parallel edges between the
// same pair sum their weights, which keeps the merge associative no matter
// which store query delivered them first. Non-positive weights are dropped.
func (g *Graph) AddEdge(path PathType, from, to int64, weight float64) {
	if weight <= 0 || from == to {
		return
	}
	nodes, ok := g.adjacency[path]
	if !ok {
		nodes = make(map[int64]map[int64]float64)
		g.adjacency[path] = nodes
	}
	targets, ok := nodes[from]
	if !ok {
		targets = make(map[int64]float64)
		nodes[from] = targets
	}
	targets[to] += weight
}

// Merge folds another snapshot into g. Used to combine per-path partial
// results collected concurrently.
func (g *Graph) Merge(other *Graph) {
	if other == nil {
		return
	}
	for path, nodes := range other.adjacency {
		for from, targets := range nodes {
			for to, w := range targets {
				g.AddEdge(path, from, to, w)
			}
		}
	}
}

// Edges returns the outgoing edges of a node for a path type, sorted by
// target id so iteration order is stable.
func (g *Graph) Edges(path PathType, from int64) []Edge {
	targets := g.adjacency[path][from]
	if len(targets) == 0 {
		return nil
	}
	edges := make([]Edge, 0, len(targets))
	for to, w := range targets {
		edges = append(edges, Edge{Target: to, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Target < edges[j].Target })
	return edges
}

// Nodes returns every node id that appears in the snapshot as a source or
// target of any edge, sorted ascending.
func (g *Graph) Nodes() []int64 {
	seen := make(map[int64]struct{})
	for _, nodes := range g.adjacency {
		for from, targets := range nodes {
			seen[from] = struct{}{}
			for to := range targets {
				seen[to] = struct{}{}
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Size returns the number of distinct nodes in the snapshot.
func (g *Graph) Size() int {
	return len(g.Nodes())
}
