package community

import (
	"sort"
)

// Relation is an undirected weighted edge between two entities, carrying the
// relationship description for report prompts.
type Relation struct {
	Source      int64
	Target      int64
	Weight      float64
	Description string
}

// Cluster partitions the given entity ids into non-overlapping groups by
// greedy modularity optimization (the local-moving phase of Louvain). The
// result is deterministic: nodes are visited in id order and ties between
// candidate communities are broken by the smallest community label.
//
// Entities without any relation end up in singleton groups; the caller
// filters groups below the minimum-size threshold.
func Cluster(entityIDs []int64, relations []Relation, maxPasses int) [][]int64 {
	if len(entityIDs) == 0 {
		return nil
	}
	if maxPasses <= 0 {
		maxPasses = 10
	}

	nodes := make([]int64, len(entityIDs))
	copy(nodes, entityIDs)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	known := make(map[int64]struct{}, len(nodes))
	for _, id := range nodes {
		known[id] = struct{}{}
	}

	adj := make(map[int64]map[int64]float64, len(nodes))
	totalWeight := 0.0
	degree := make(map[int64]float64, len(nodes))
	for _, r := range relations {
		if r.Source == r.Target {
			continue
		}
		if _, ok := known[r.Source]; !ok {
			continue
		}
		if _, ok := known[r.Target]; !ok {
			continue
		}
		w := r.Weight
		if w <= 0 {
			w = 1
		}
		if adj[r.Source] == nil {
			adj[r.Source] = make(map[int64]float64)
		}
		if adj[r.Target] == nil {
			adj[r.Target] = make(map[int64]float64)
		}
		// Parallel edges sum, so input order never matters.
		adj[r.Source][r.Target] += w
		adj[r.Target][r.Source] += w
		degree[r.Source] += w
		degree[r.Target] += w
		totalWeight += w
	}

	// Every node starts in its own community labelled by its own id.
	label := make(map[int64]int64, len(nodes))
	for _, id := range nodes {
		label[id] = id
	}

	if totalWeight == 0 {
		return groupByLabel(nodes, label)
	}

	m2 := 2 * totalWeight
	communityDegree := make(map[int64]float64, len(nodes))
	for _, id := range nodes {
		communityDegree[id] = degree[id]
	}

	for pass := 0; pass < maxPasses; pass++ {
		moved := false
		for _, id := range nodes {
			current := label[id]

			// Weight from this node into each neighboring community.
			into := make(map[int64]float64)
			for nb, w := range adj[id] {
				into[label[nb]] += w
			}

			communityDegree[current] -= degree[id]

			bestLabel := current
			bestGain := 0.0
			candidates := make([]int64, 0, len(into))
			for c := range into {
				candidates = append(candidates, c)
			}
			sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
			for _, c := range candidates {
				gain := into[c]/totalWeight - communityDegree[c]*degree[id]/(m2*totalWeight)
				base := into[current]/totalWeight - communityDegree[current]*degree[id]/(m2*totalWeight)
				delta := gain - base
				if delta > bestGain {
					bestGain = delta
					bestLabel = c
				}
			}

			communityDegree[bestLabel] += degree[id]
			if bestLabel != current {
				label[id] = bestLabel
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	return groupByLabel(nodes, label)
}

// groupByLabel collects nodes by community label. Groups are ordered by
// their smallest member id and members are sorted ascending.
func groupByLabel(nodes []int64, label map[int64]int64) [][]int64 {
	byLabel := make(map[int64][]int64)
	for _, id := range nodes {
		byLabel[label[id]] = append(byLabel[label[id]], id)
	}

	groups := make([][]int64, 0, len(byLabel))
	for _, members := range byLabel {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		groups = append(groups, members)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}
