// Package query orchestrates the retrieval routes. Each route composes seed
// extraction, ranking, scoping, and the evidence pipeline differently, but
// all of them share the denoising tail and the same synthesis contract: the
// model is never called when retrieval produced no evidence.
package query

import (
	"context"

	"github.com/lexgraph/lexgraph/pkg/common"
)

// Route selects how a query traverses the graph.
type Route string

const (
	// RouteLocal anchors retrieval on the entities the question names.
	RouteLocal Route = "local"

	// RouteGlobal answers thematic questions through the community index
	// plus a hybrid lexical/vector search.
	RouteGlobal Route = "global"

	// RouteMultiHop decomposes the question into sub-questions and ranks
	// once over the unioned seed set.
	RouteMultiHop Route = "multihop"

	// RouteAuto lets the seed-extraction model classify the intent.
	RouteAuto Route = "auto"
)

// Request is a single question against one graph.
type Request struct {
	GraphID     int64
	Query       string
	Route       Route
	TokenBudget int
}

// Answer is the result of a query run: the synthesized answer text, the
// public ids of the chunks it cites, and the per-stage retrieval counters.
type Answer struct {
	Text          string                `json:"answer_text"`
	CitedChunkIDs []string              `json:"cited_chunk_ids"`
	Route         Route                 `json:"route"`
	Stats         common.RetrievalStats `json:"retrieval_stats"`
}

// GraphQueryClient is the query surface served by the API process.
type GraphQueryClient interface {
	Query(ctx context.Context, req Request) (*Answer, error)
	QueryLocal(ctx context.Context, req Request) (*Answer, error)
	QueryGlobal(ctx context.Context, req Request) (*Answer, error)
	QueryMultiHop(ctx context.Context, req Request) (*Answer, error)
}
