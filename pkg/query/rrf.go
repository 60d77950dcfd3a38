package query

import (
	"sort"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/evidence"
)

const rrfK = 60.0

// rrfComponent converts a 1-based rank into its reciprocal-rank-fusion
// contribution.
func rrfComponent(rank int, weight float64) float64 {
	if rank <= 0 {
		return 0
	}
	return weight / (rrfK + float64(rank))
}

// fuseByReciprocalRank merges independently ranked chunk lists into a single
// list of scored passages. A chunk appearing in several lists accumulates
// one component per appearance, which is what lifts results confirmed by
// both the lexical and the vector leg above single-leg hits. Ties break by
// chunk id so the fusion is deterministic.
func fuseByReciprocalRank(lists ...[]common.Chunk) []evidence.Passage {
	scores := make(map[int64]float64)
	chunks := make(map[int64]common.Chunk)

	for _, list := range lists {
		for i, c := range list {
			scores[c.ID] += rrfComponent(i+1, 1.0)
			if _, ok := chunks[c.ID]; !ok {
				chunks[c.ID] = c
			}
		}
	}

	fused := make([]evidence.Passage, 0, len(chunks))
	for id, c := range chunks {
		fused = append(fused, evidence.Passage{Chunk: c, Score: scores[id]})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score == fused[j].Score {
			return fused[i].ID < fused[j].ID
		}
		return fused[i].Score > fused[j].Score
	})
	return fused
}
