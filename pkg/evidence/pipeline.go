// Package evidence turns ranked entities plus an optional document/section
// scope into a bounded, ranked, non-redundant list of text passages for
// generation. The pipeline runs seven strictly sequential stages; each
// stage's output is the next stage's only input, and every sort uses a
// stable secondary key so repeated runs are byte-identical.
package evidence

import (
	"context"
	"math"
	"sort"

	"github.com/lexgraph/lexgraph/pkg/ai/token"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
)

// Passage is a chunk annotated with the retrieval score it carried through
// the pipeline and the entity that contributed it.
type Passage struct {
	common.Chunk
	Score    float64
	EntityID int64
}

// EntityQuota caps how many chunks are fetched for one entity.
type EntityQuota struct {
	EntityID int64
	Limit    int
}

// ChunkSource is the slice of the graph store the pipeline needs: batched
// chunk lookup by entity with per-entity limits and an optional document
// filter pushed into the fetch query.
type ChunkSource interface {
	ChunksForEntities(
		ctx context.Context,
		graphID int64,
		quotas []EntityQuota,
		documentFilter []int64,
	) (map[int64][]common.Chunk, error)
}

// Pipeline executes the denoising stages. It holds no per-query state and is
// safe for concurrent use.
type Pipeline struct {
	source  ChunkSource
	counter token.Counter
	cfg     Config
}

// New creates a pipeline over the given chunk source and token counter.
func New(source ChunkSource, counter token.Counter, cfg Config) *Pipeline {
	return &Pipeline{source: source, counter: counter, cfg: cfg}
}

// Retrieve runs the full pipeline for the ranked entities. The returned
// passages contain no two chunks with identical content, fit within
// tokenBudget under the configured counter, and are ordered best first.
func (p *Pipeline) Retrieve(
	ctx context.Context,
	graphID int64,
	entities []common.ScoredEntity,
	scope *common.Scope,
	tokenBudget int,
) ([]Passage, common.RetrievalStats, error) {
	return p.RetrieveWithExtra(ctx, graphID, entities, nil, scope, tokenBudget)
}

// RetrieveWithExtra additionally merges externally sourced candidate
// passages (the global route's hybrid-search results) into the pipeline
// before the deduplication stages, deduplicated by chunk id first.
func (p *Pipeline) RetrieveWithExtra(
	ctx context.Context,
	graphID int64,
	entities []common.ScoredEntity,
	extra []Passage,
	scope *common.Scope,
	tokenBudget int,
) ([]Passage, common.RetrievalStats, error) {
	var stats common.RetrievalStats
	stats.RankedEntities = len(entities)
	if scope != nil {
		stats.ScopedDocuments = len(scope.DocumentIDs)
	}

	if len(entities) == 0 && len(extra) == 0 {
		return nil, stats, nil
	}

	// Stage 2: community-affinity penalty.
	working := sortEntities(entities)
	if p.cfg.CommunityPenaltyEnabled {
		var penalized int
		working, penalized = applyCommunityPenalty(working, p.cfg.CommunityPenaltyFactor, p.cfg.CommunityTopN)
		stats.PenalizedEntities = penalized
	}

	// Stage 3: score-gap pruning.
	if p.cfg.ScoreGapEnabled {
		working = pruneAtScoreGap(working, p.cfg.ScoreGapMinKeep, p.cfg.ScoreGapDropThreshold)
	}
	stats.EntitiesAfterGap = len(working)

	// Stage 1 (fetch-time) + stage 4: scoped, score-weighted allocation.
	var docFilter []int64
	if p.cfg.ScopeFilterEnabled && scope != nil {
		docFilter = scope.DocumentIDs
	}
	passages, err := p.fetchAllocated(ctx, graphID, working, docFilter)
	if err != nil {
		return nil, stats, err
	}

	passages = mergeExtra(passages, extra)
	if scope != nil && len(scope.SectionIDs) > 0 && p.cfg.SectionAffinityBoost > 1 {
		passages = boostScopedSections(passages, scope.SectionIDs, p.cfg.SectionAffinityBoost)
	}
	stats.FetchedChunks = len(passages)

	// Stage 5: exact-duplicate elimination.
	if p.cfg.ExactDedupeEnabled {
		passages = dedupeExact(passages)
	}
	stats.AfterExactDedupe = len(passages)

	// Stage 6: near-duplicate elimination.
	if p.cfg.NearDedupeEnabled {
		passages = dedupeNear(passages, p.cfg.NearDedupeThreshold)
	}
	stats.AfterNearDedupe = len(passages)

	// Stage 7: token-budget truncation.
	passages = p.fitBudget(passages, tokenBudget)
	stats.FinalChunks = len(passages)
	for _, ps := range passages {
		stats.FinalTokens += p.counter.Count(ps.Text)
	}

	logger.Debug("[Evidence] Pipeline finished",
		"entities", stats.RankedEntities,
		"after_gap", stats.EntitiesAfterGap,
		"fetched", stats.FetchedChunks,
		"final", stats.FinalChunks,
		"tokens", stats.FinalTokens)

	return passages, stats, nil
}

// fetchAllocated computes per-entity quotas proportional to score, fetches
// chunks, and applies the per-section/per-document diversity caps while
// walking entities in score order.
func (p *Pipeline) fetchAllocated(
	ctx context.Context,
	graphID int64,
	entities []common.ScoredEntity,
	docFilter []int64,
) ([]Passage, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	maxPer := p.cfg.MaxChunksPerEntity
	if maxPer <= 0 {
		maxPer = 1
	}
	topScore := entities[0].Score

	quotas := make([]EntityQuota, 0, len(entities))
	for _, e := range entities {
		limit := 1
		if topScore > 0 {
			limit = int(math.Round(float64(maxPer) * e.Score / topScore))
		}
		// No surviving entity is silenced entirely.
		if limit < 1 {
			limit = 1
		}
		quotas = append(quotas, EntityQuota{EntityID: e.ID, Limit: limit})
	}

	byEntity, err := p.source.ChunksForEntities(ctx, graphID, quotas, docFilter)
	if err != nil {
		return nil, err
	}

	perSection := make(map[int64]int)
	perDocument := make(map[int64]int)
	seen := make(map[int64]struct{})

	out := make([]Passage, 0)
	for _, e := range entities {
		for _, c := range byEntity[e.ID] {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			if p.cfg.PerSectionCap > 0 && perSection[c.SectionID] >= p.cfg.PerSectionCap {
				continue
			}
			if p.cfg.PerDocumentCap > 0 && perDocument[c.DocumentID] >= p.cfg.PerDocumentCap {
				continue
			}
			seen[c.ID] = struct{}{}
			perSection[c.SectionID]++
			perDocument[c.DocumentID]++
			out = append(out, Passage{Chunk: c, Score: e.Score, EntityID: e.ID})
		}
	}
	return out, nil
}

// mergeExtra appends externally sourced passages, dropping chunk ids already
// present.
func mergeExtra(passages, extra []Passage) []Passage {
	if len(extra) == 0 {
		return passages
	}
	seen := make(map[int64]struct{}, len(passages))
	for _, ps := range passages {
		seen[ps.Chunk.ID] = struct{}{}
	}
	for _, ex := range extra {
		if _, ok := seen[ex.Chunk.ID]; ok {
			continue
		}
		seen[ex.Chunk.ID] = struct{}{}
		passages = append(passages, ex)
	}
	return passages
}

func boostScopedSections(passages []Passage, sectionIDs []int64, boost float64) []Passage {
	scoped := make(map[int64]struct{}, len(sectionIDs))
	for _, id := range sectionIDs {
		scoped[id] = struct{}{}
	}
	for i := range passages {
		if _, ok := scoped[passages[i].SectionID]; ok {
			passages[i].Score *= boost
		}
	}
	return passages
}

// applyCommunityPenalty determines the target community as the majority
// membership among the top-n entities and multiplies the score of every
// entity in a different community by factor. Skipped when no majority
// emerges. Returns the re-sorted list and the number of penalized entities.
func applyCommunityPenalty(entities []common.ScoredEntity, factor float64, topN int) ([]common.ScoredEntity, int) {
	if len(entities) == 0 || factor <= 0 || factor >= 1 {
		return entities, 0
	}
	if topN <= 0 {
		topN = 3
	}
	if topN > len(entities) {
		topN = len(entities)
	}

	counts := make(map[int64]int)
	for _, e := range entities[:topN] {
		if e.CommunityID != 0 {
			counts[e.CommunityID]++
		}
	}
	target := int64(0)
	best := 0
	tied := false
	for id, n := range counts {
		switch {
		case n > best:
			target, best, tied = id, n, false
		case n == best:
			tied = true
		}
	}
	// A majority requires more than half the voting entities and no tie.
	if target == 0 || tied || best*2 <= topN {
		return entities, 0
	}

	penalized := 0
	out := make([]common.ScoredEntity, len(entities))
	copy(out, entities)
	for i := range out {
		if out[i].CommunityID != 0 && out[i].CommunityID != target {
			out[i].Score *= factor
			penalized++
		}
	}
	return sortEntities(out), penalized
}

// pruneAtScoreGap truncates the list at the largest relative score drop,
// provided the drop exceeds threshold and leaves at least minKeep entities.
// This finds the natural relevant-versus-noise boundary instead of a fixed
// cutoff count.
func pruneAtScoreGap(entities []common.ScoredEntity, minKeep int, threshold float64) []common.ScoredEntity {
	if minKeep < 1 {
		minKeep = 1
	}
	if len(entities) <= minKeep || threshold <= 0 {
		return entities
	}

	bestDrop := 0.0
	cut := -1
	for i := 0; i < len(entities)-1; i++ {
		// Cutting after index i keeps i+1 entities; never prune below the
		// minimum-keep guard, even for a dramatic early cliff.
		if i+1 < minKeep {
			continue
		}
		if entities[i].Score <= 0 {
			break
		}
		drop := 1 - entities[i+1].Score/entities[i].Score
		if drop > bestDrop {
			bestDrop = drop
			cut = i
		}
	}
	if cut < 0 || bestDrop <= threshold {
		return entities
	}
	return entities[:cut+1]
}

func sortEntities(entities []common.ScoredEntity) []common.ScoredEntity {
	out := make([]common.ScoredEntity, len(entities))
	copy(out, entities)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// fitBudget orders passages best first and accumulates whole chunks until
// the next one would exceed the budget. If even the first chunk exceeds the
// budget, that single chunk's text is truncated to fit rather than
// returning empty evidence.
func (p *Pipeline) fitBudget(passages []Passage, budget int) []Passage {
	if len(passages) == 0 {
		return nil
	}

	sorted := make([]Passage, len(passages))
	copy(sorted, passages)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Chunk.ID < sorted[j].Chunk.ID
	})

	if budget <= 0 {
		budget = 0
	}

	out := make([]Passage, 0, len(sorted))
	used := 0
	for _, ps := range sorted {
		n := p.counter.Count(ps.Text)
		if used+n > budget {
			if len(out) == 0 {
				// Pathological budget smaller than any single chunk.
				ps.Text = p.counter.Truncate(ps.Text, budget)
				out = append(out, ps)
			}
			break
		}
		used += n
		out = append(out, ps)
	}
	return out
}
