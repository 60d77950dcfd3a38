package store

import (
	"context"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/community"
	"github.com/lexgraph/lexgraph/pkg/evidence"
	"github.com/lexgraph/lexgraph/pkg/rank"
)

// GraphStore defines the query surface of the knowledge graph used by the
// retrieval pipeline. Every method takes the graph id as an isolation
// predicate; the store never mixes data across graphs. All operations are
// read-only except SaveCommunities, which the offline build step uses.
type GraphStore interface {
	// ResolveEntitiesByName matches raw query mentions against entity names
	// and aliases (case-insensitive, exact or alias hit).
	ResolveEntitiesByName(ctx context.Context, graphID int64, names []string) ([]common.Entity, error)

	// SimilarEntities returns entities by embedding nearest-neighbor search.
	SimilarEntities(ctx context.Context, graphID int64, embedding []float32, limit int) ([]common.Entity, error)

	EntitiesByIDs(ctx context.Context, graphID int64, ids []int64) ([]common.Entity, error)
	TopDegreeEntities(ctx context.Context, graphID int64, limit int) ([]common.Entity, error)
	EntitiesSharingDocuments(ctx context.Context, graphID int64, entityIDs []int64, limit int) ([]common.Entity, error)

	// LoadRankGraph assembles the weighted traversal graph over entities for
	// the ranking engine, one adjacency per path type.
	LoadRankGraph(ctx context.Context, graphID int64) (*rank.Graph, error)

	// GraphEntities and EntityRelations feed the community build step.
	GraphEntities(ctx context.Context, graphID int64) ([]common.Entity, error)
	EntityRelations(ctx context.Context, graphID int64) ([]community.Relation, error)
	GraphCommunities(ctx context.Context, graphID int64) ([]common.Community, error)
	SaveCommunities(ctx context.Context, graphID int64, communities []common.Community) error

	// DocumentsForEntities and SectionsForEntities return membership sets for
	// the scoping layer: entity id -> ids of documents/sections containing a
	// chunk that mentions it.
	DocumentsForEntities(ctx context.Context, graphID int64, entityIDs []int64) (map[int64][]int64, error)
	SectionsForEntities(ctx context.Context, graphID int64, entityIDs []int64, documentIDs []int64) (map[int64][]int64, error)

	// SectionCandidates lists the sections of the given documents with their
	// embeddings for vote/similarity blending.
	SectionCandidates(ctx context.Context, graphID int64, documentIDs []int64) ([]common.Section, error)

	// ChunksForEntities fetches chunks mentioning each entity, per-entity
	// limited, ordered by mention relevance then position, optionally
	// restricted to the given documents.
	ChunksForEntities(ctx context.Context, graphID int64, quotas []evidence.EntityQuota, documentFilter []int64) (map[int64][]common.Chunk, error)

	// LexicalSearchChunks and SimilarChunks are the two legs of hybrid
	// search; the caller fuses them by reciprocal rank.
	LexicalSearchChunks(ctx context.Context, graphID int64, queryText string, limit int) ([]common.Chunk, error)
	SimilarChunks(ctx context.Context, graphID int64, embedding []float32, limit int) ([]common.Chunk, error)

	ListDocumentIDs(ctx context.Context, graphID int64) ([]int64, error)
	DocumentsByIDs(ctx context.Context, graphID int64, ids []int64) ([]common.Document, error)
	SectionsByIDs(ctx context.Context, graphID int64, ids []int64) ([]common.Section, error)

	// FirstChunkPerDocument returns one representative chunk for each given
	// document, used by the coverage-gap-fill step of the multi-hop route.
	FirstChunkPerDocument(ctx context.Context, graphID int64, documentIDs []int64) (map[int64]common.Chunk, error)
}
