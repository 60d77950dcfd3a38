package rank

import (
	"math"
	"sort"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
)

// Config holds the tunable parameters of the personalized ranking engine.
// Thresholds are calibrated against the score distribution this algorithm
// produces; swapping the traversal algorithm requires recalibrating the
// downstream denoising thresholds as well.
type Config struct {
	// PathWeights multiplies edge weights per path type before summation.
	// A missing entry disables that path entirely.
	PathWeights map[PathType]float64

	// Damping is the fraction of each node's score distributed to its
	// neighbors per iteration. The remaining (1 - Damping) mass teleports
	// uniformly back to the seed set, which keeps the ranking query-relevant
	// instead of converging to global importance.
	Damping float64

	// MaxIterations bounds the propagation loop.
	MaxIterations int

	// Epsilon stops iteration once the largest per-node score change falls
	// below it.
	Epsilon float64

	// TopK caps the returned entity count.
	TopK int
}

// DefaultConfig returns the ranking parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		PathWeights: map[PathType]float64{
			PathRelation:          1.0,
			PathSectionSimilarity: 0.6,
			PathEntitySimilarity:  0.8,
			PathBridge:            0.4,
			PathHubExpansion:      0.5,
		},
		Damping:       0.85,
		MaxIterations: 30,
		Epsilon:       1e-6,
		TopK:          25,
	}
}

// Rank computes a personalized importance score over the snapshot by
// iterative weight propagation from the seed set and returns the TopK
// entities with positive score, ordered by score descending with entity id
// as the secondary key so the output is reproducible bit for bit.
//
// An empty seed set returns an empty result, not an error; "the query named
// nothing in the graph" is a no-evidence condition reported upstream.
func Rank(g *Graph, seeds []int64, cfg Config) []common.ScoredEntity {
	seedList := dedupeSorted(seeds)
	if len(seedList) == 0 || g == nil {
		return nil
	}
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		cfg.Damping = 0.85
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 30
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-6
	}

	nodes := g.Nodes()
	nodeSet := make(map[int64]struct{}, len(nodes))
	for _, id := range nodes {
		nodeSet[id] = struct{}{}
	}
	// Seeds may reference entities without a single edge in the snapshot.
	// They still receive teleport mass so they never drop out of the result.
	for _, s := range seedList {
		if _, ok := nodeSet[s]; !ok {
			nodes = append(nodes, s)
			nodeSet[s] = struct{}{}
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	outgoing := buildTransitions(g, nodes, cfg.PathWeights)

	scores := make(map[int64]float64, len(nodes))
	seedShare := 1.0 / float64(len(seedList))
	for _, s := range seedList {
		scores[s] = seedShare
	}

	iterations := 0
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		iterations = iter + 1
		next := make(map[int64]float64, len(scores))

		danglingMass := 0.0
		for _, id := range nodes {
			score := scores[id]
			if score == 0 {
				continue
			}
			trans := outgoing[id]
			if len(trans) == 0 {
				// Nodes with no outgoing mass hand their share back to the
				// seed set rather than leaking it.
				danglingMass += cfg.Damping * score
				continue
			}
			for _, t := range trans {
				next[t.Target] += cfg.Damping * score * t.Weight
			}
		}

		teleport := (1 - cfg.Damping) + danglingMass
		perSeed := teleport * seedShare
		for _, s := range seedList {
			next[s] += perSeed
		}

		delta := 0.0
		for _, id := range nodes {
			d := math.Abs(next[id] - scores[id])
			if d > delta {
				delta = d
			}
		}
		scores = next
		if delta < cfg.Epsilon {
			break
		}
	}

	ranked := make([]common.ScoredEntity, 0, len(scores))
	for _, id := range nodes {
		if s := scores[id]; s > 0 {
			ranked = append(ranked, common.ScoredEntity{ID: id, Score: s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	if cfg.TopK > 0 && len(ranked) > cfg.TopK {
		ranked = ranked[:cfg.TopK]
	}

	logger.Debug("[Rank] Propagation finished",
		"nodes", len(nodes), "iterations", iterations, "returned", len(ranked))
	return ranked
}

type transition struct {
	Target int64
	Weight float64
}

// buildTransitions flattens the per-path adjacency into a single normalized
// transition list per node. Edge weights are first multiplied by their path
// weight, then normalized so each node's outgoing weights sum to 1.
func buildTransitions(g *Graph, nodes []int64, pathWeights map[PathType]float64) map[int64][]transition {
	out := make(map[int64][]transition, len(nodes))
	for _, id := range nodes {
		combined := make(map[int64]float64)
		for _, path := range AllPathTypes {
			pw := pathWeights[path]
			if pw <= 0 {
				continue
			}
			for _, e := range g.Edges(path, id) {
				combined[e.Target] += pw * e.Weight
			}
		}
		if len(combined) == 0 {
			continue
		}

		targets := make([]int64, 0, len(combined))
		total := 0.0
		for t, w := range combined {
			targets = append(targets, t)
			total += w
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

		trans := make([]transition, 0, len(targets))
		for _, t := range targets {
			trans = append(trans, transition{Target: t, Weight: combined[t] / total})
		}
		out[id] = trans
	}
	return out
}

func dedupeSorted(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
