package community

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
)

// MatchSource provides the persisted communities and the entity lookups the
// ad-hoc fallback needs.
type MatchSource interface {
	GraphCommunities(ctx context.Context, graphID int64) ([]common.Community, error)
	SimilarEntities(ctx context.Context, graphID int64, embedding []float32, limit int) ([]common.Entity, error)
	EntitiesSharingDocuments(ctx context.Context, graphID int64, entityIDs []int64, limit int) ([]common.Entity, error)
	TopDegreeEntities(ctx context.Context, graphID int64, limit int) ([]common.Entity, error)
}

// MatchConfig holds the tunables of query-time community matching.
type MatchConfig struct {
	// FallbackSeedLimit bounds the direct entity matches seeding the ad-hoc cluster.
	FallbackSeedLimit int
	// FallbackExpandLimit bounds shared-document and high-degree expansion.
	FallbackExpandLimit int
}

// DefaultMatchConfig returns the match parameters used in production.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		FallbackSeedLimit:   10,
		FallbackExpandLimit: 15,
	}
}

// Matcher resolves the communities most relevant to a query.
type Matcher struct {
	source MatchSource
	client ai.GraphAIClient
	cfg    MatchConfig
}

func NewMatcher(source MatchSource, client ai.GraphAIClient, cfg MatchConfig) *Matcher {
	return &Matcher{source: source, client: client, cfg: cfg}
}

// Match embeds the query and returns the topK communities by cosine
// similarity against their summary embeddings. When no community carries a
// valid summary and embedding (empty graph, failed build), it falls back to
// an ad-hoc cluster synthesized from entities matching the query; the result
// carries the AdHoc flag but has the same shape.
func (m *Matcher) Match(ctx context.Context, graphID int64, queryText string, topK int) ([]common.Community, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryEmbedding, err := m.client.GenerateEmbedding(ctx, []byte(queryText))
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	communities, err := m.source.GraphCommunities(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("loading communities: %w", err)
	}

	type scored struct {
		community  common.Community
		similarity float64
	}
	matchable := make([]scored, 0, len(communities))
	for _, c := range communities {
		if c.Summary == "" || len(c.Embedding) == 0 {
			continue
		}
		matchable = append(matchable, scored{
			community:  c,
			similarity: Cosine(queryEmbedding, c.Embedding),
		})
	}

	if len(matchable) == 0 {
		logger.Debug("[Community] No matchable communities, using ad-hoc fallback", "graph_id", graphID)
		return m.fallback(ctx, graphID, queryText, queryEmbedding)
	}

	sort.Slice(matchable, func(i, j int) bool {
		if matchable[i].similarity != matchable[j].similarity {
			return matchable[i].similarity > matchable[j].similarity
		}
		return matchable[i].community.ID < matchable[j].community.ID
	})
	if len(matchable) > topK {
		matchable = matchable[:topK]
	}

	out := make([]common.Community, 0, len(matchable))
	for _, s := range matchable {
		out = append(out, s.community)
	}
	return out, nil
}

// fallback synthesizes a single placeholder community from entities matching
// the query, expanded through shared documents and high-degree nodes. It has
// no summary and materially lower precision than the precomputed path.
func (m *Matcher) fallback(
	ctx context.Context,
	graphID int64,
	queryText string,
	queryEmbedding []float32,
) ([]common.Community, error) {
	seedLimit := m.cfg.FallbackSeedLimit
	if seedLimit <= 0 {
		seedLimit = 10
	}
	expandLimit := m.cfg.FallbackExpandLimit
	if expandLimit <= 0 {
		expandLimit = 15
	}

	seeds, err := m.source.SimilarEntities(ctx, graphID, queryEmbedding, seedLimit)
	if err != nil {
		return nil, fmt.Errorf("fallback entity match: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	members := make(map[int64]struct{}, len(seeds))
	names := make([]string, 0, 3)
	seedIDs := make([]int64, 0, len(seeds))
	for _, e := range seeds {
		members[e.ID] = struct{}{}
		seedIDs = append(seedIDs, e.ID)
		if len(names) < 3 {
			names = append(names, e.Name)
		}
	}

	shared, err := m.source.EntitiesSharingDocuments(ctx, graphID, seedIDs, expandLimit)
	if err != nil {
		return nil, fmt.Errorf("fallback shared-document expansion: %w", err)
	}
	for _, e := range shared {
		members[e.ID] = struct{}{}
	}

	hubs, err := m.source.TopDegreeEntities(ctx, graphID, expandLimit)
	if err != nil {
		return nil, fmt.Errorf("fallback high-degree expansion: %w", err)
	}
	for _, e := range hubs {
		members[e.ID] = struct{}{}
	}

	ids := make([]int64, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	logger.Debug("[Community] Ad-hoc community synthesized",
		"graph_id", graphID,
		"members", len(ids),
		"query", queryText)

	return []common.Community{{
		GraphID: graphID,
		Title:   strings.Join(names, ", "),
		Members: ids,
		AdHoc:   true,
	}}, nil
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// and zero vectors yield 0 ("no similarity signal").
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
