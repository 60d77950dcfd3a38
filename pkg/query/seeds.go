package query

import (
	"context"
	"fmt"

	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
)

// seedExtraction is the structured output of the seed-extraction model call.
type seedExtraction struct {
	Mentions     []string `json:"mentions" jsonschema_description:"Entity mentions lifted from the question"`
	SemanticTerm string   `json:"semantic_term" jsonschema_description:"A single phrase capturing the full intent, optimized for embedding search"`
	Intent       string   `json:"intent" jsonschema_description:"One of: local, global, multihop"`
}

// extractSeeds asks the model for entity mentions, a semantic search term,
// and an intent classification for the question.
func (c *Client) extractSeeds(ctx context.Context, question string) (*seedExtraction, error) {
	prompt := fmt.Sprintf(ai.SeedPrompt, question)

	var out seedExtraction
	err := c.aiClient.GenerateCompletionWithFormat(
		ctx,
		"seed_extraction",
		"Entity mentions, semantic term, and intent of a user question",
		prompt,
		&out,
	)
	if err != nil {
		return nil, fmt.Errorf("extract seeds: %w: %s", common.ErrExternalService, err)
	}
	if out.SemanticTerm == "" {
		out.SemanticTerm = question
	}
	return &out, nil
}

// resolveSeeds turns the extraction into graph entity ids. Name/alias
// matches and embedding nearest neighbors are unioned rather than the one
// replacing the other: the redundancy creates diverse ranking entry points,
// which downstream score-gap detection depends on. Breadth is tunable via
// SeedSimilarityTopK and MaxSeedEntities.
func (c *Client) resolveSeeds(ctx context.Context, graphID int64, extraction *seedExtraction) ([]int64, []float32, error) {
	seen := make(map[int64]struct{})
	seeds := make([]int64, 0)

	byName, err := c.store.ResolveEntitiesByName(ctx, graphID, extraction.Mentions)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range byName {
		if _, ok := seen[e.ID]; !ok {
			seen[e.ID] = struct{}{}
			seeds = append(seeds, e.ID)
		}
	}

	embedding, err := c.aiClient.GenerateEmbedding(ctx, []byte(extraction.SemanticTerm))
	if err != nil {
		return nil, nil, fmt.Errorf("embed semantic term: %w: %s", common.ErrExternalService, err)
	}

	similar, err := c.store.SimilarEntities(ctx, graphID, embedding, c.cfg.SeedSimilarityTopK)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range similar {
		if _, ok := seen[e.ID]; !ok {
			seen[e.ID] = struct{}{}
			seeds = append(seeds, e.ID)
		}
	}

	if limit := c.cfg.MaxSeedEntities; limit > 0 && len(seeds) > limit {
		seeds = seeds[:limit]
	}

	logger.Debug("[Query] Resolved seeds",
		"graphId", graphID,
		"byName", len(byName),
		"bySimilarity", len(similar),
		"seeds", len(seeds),
	)
	return seeds, embedding, nil
}
