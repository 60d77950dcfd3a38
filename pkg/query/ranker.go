package query

import (
	"context"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/rank"
	"github.com/lexgraph/lexgraph/pkg/store"
)

// Ranker scores graph entities for a query. Whether graph-topology
// propagation or plain embedding similarity is the better backbone is an
// open empirical question, so both live behind this interface and can be
// swapped without touching the denoising pipeline.
type Ranker interface {
	Rank(ctx context.Context, graphID int64, seeds []int64, queryEmbedding []float32) ([]common.ScoredEntity, error)
}

// GraphRanker runs personalized weight propagation over the entity graph.
type GraphRanker struct {
	store store.GraphStore
	cfg   rank.Config
}

func NewGraphRanker(s store.GraphStore, cfg rank.Config) *GraphRanker {
	return &GraphRanker{store: s, cfg: cfg}
}

func (r *GraphRanker) Rank(ctx context.Context, graphID int64, seeds []int64, _ []float32) ([]common.ScoredEntity, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	g, err := r.store.LoadRankGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	return rank.Rank(g, seeds, r.cfg), nil
}

// EmbeddingRanker is a thin adapter over the store's vector search: entities
// are scored by cosine proximity to the query embedding, seeds pinned first.
type EmbeddingRanker struct {
	store store.GraphStore
	topK  int
}

func NewEmbeddingRanker(s store.GraphStore, topK int) *EmbeddingRanker {
	if topK <= 0 {
		topK = 25
	}
	return &EmbeddingRanker{store: s, topK: topK}
}

func (r *EmbeddingRanker) Rank(ctx context.Context, graphID int64, seeds []int64, queryEmbedding []float32) ([]common.ScoredEntity, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	scored := make([]common.ScoredEntity, 0, r.topK)
	seen := make(map[int64]struct{}, r.topK)

	// Seeds always participate with full score regardless of their own
	// embedding distance.
	for _, id := range seeds {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		scored = append(scored, common.ScoredEntity{ID: id, Score: 1.0})
	}

	if len(queryEmbedding) > 0 {
		similar, err := r.store.SimilarEntities(ctx, graphID, queryEmbedding, r.topK)
		if err != nil {
			return nil, err
		}
		// Nearest-neighbor order is the score: position i gets 1/(i+2) so
		// every similarity hit scores below the pinned seeds.
		for i, e := range similar {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			scored = append(scored, common.ScoredEntity{ID: e.ID, Score: 1.0 / float64(i+2)})
		}
	}

	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}
	return scored, nil
}
