package pgx

import (
	"context"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/evidence"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// ChunksForEntities fetches up to the per-entity quota of chunks mentioning
// each entity, ordered by mention relevance then document position. An empty
// documentFilter means no document restriction.
func (s *GraphDBStore) ChunksForEntities(ctx context.Context, graphID int64, quotas []evidence.EntityQuota, documentFilter []int64) (map[int64][]common.Chunk, error) {
	if len(quotas) == 0 {
		return map[int64][]common.Chunk{}, nil
	}
	entityIDs := make([]int64, 0, len(quotas))
	limits := make([]int32, 0, len(quotas))
	for _, q := range quotas {
		entityIDs = append(entityIDs, q.EntityID)
		limits = append(limits, int32(q.Limit))
	}
	if documentFilter == nil {
		documentFilter = []int64{}
	}
	rows, err := s.conn.Query(ctx, `
		SELECT q.entity_id, c.id, c.public_id, c.document_id, c.section_id, c.position, c.text, c.fingerprint
		FROM unnest($2::bigint[], $3::int[]) AS q(entity_id, quota)
		JOIN LATERAL (
			SELECT ch.id, ch.public_id, ch.document_id, ch.section_id, ch.position, ch.text, ch.fingerprint
			FROM entity_mentions em
			JOIN chunks ch ON ch.graph_id = em.graph_id AND ch.id = em.chunk_id
			WHERE em.graph_id = $1
			  AND em.entity_id = q.entity_id
			  AND (cardinality($4::bigint[]) = 0 OR ch.document_id = ANY($4))
			ORDER BY em.relevance DESC, ch.position, ch.id
			LIMIT q.quota
		) c ON true`,
		graphID, entityIDs, limits, documentFilter)
	if err != nil {
		return nil, storeErr("chunks for entities", err)
	}
	defer rows.Close()
	out := make(map[int64][]common.Chunk)
	for rows.Next() {
		var entityID int64
		var c common.Chunk
		if err := rows.Scan(&entityID, &c.ID, &c.PublicID, &c.DocumentID, &c.SectionID, &c.Position, &c.Text, &c.Fingerprint); err != nil {
			return nil, storeErr("chunks for entities", err)
		}
		out[entityID] = append(out[entityID], c)
	}
	return out, storeErr("chunks for entities", rows.Err())
}

// LexicalSearchChunks is the keyword leg of hybrid search, backed by a
// generated tsvector column on chunks.
func (s *GraphDBStore) LexicalSearchChunks(ctx context.Context, graphID int64, queryText string, limit int) ([]common.Chunk, error) {
	if queryText == "" || limit <= 0 {
		return []common.Chunk{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, public_id, document_id, section_id, position, text, fingerprint
		FROM chunks
		WHERE graph_id = $1
		  AND text_search @@ websearch_to_tsquery('simple', $2)
		ORDER BY ts_rank(text_search, websearch_to_tsquery('simple', $2)) DESC, id
		LIMIT $3`,
		graphID, queryText, limit)
	if err != nil {
		return nil, storeErr("lexical search chunks", err)
	}
	chunks, err := scanChunks(rows)
	return chunks, storeErr("lexical search chunks", err)
}

// SimilarChunks is the semantic leg of hybrid search.
func (s *GraphDBStore) SimilarChunks(ctx context.Context, graphID int64, embedding []float32, limit int) ([]common.Chunk, error) {
	if len(embedding) == 0 || limit <= 0 {
		return []common.Chunk{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, public_id, document_id, section_id, position, text, fingerprint
		FROM chunks
		WHERE graph_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2, id
		LIMIT $3`,
		graphID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, storeErr("similar chunks", err)
	}
	chunks, err := scanChunks(rows)
	return chunks, storeErr("similar chunks", err)
}

// FirstChunkPerDocument returns the first chunk by position of each given
// document.
func (s *GraphDBStore) FirstChunkPerDocument(ctx context.Context, graphID int64, documentIDs []int64) (map[int64]common.Chunk, error) {
	if len(documentIDs) == 0 {
		return map[int64]common.Chunk{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT ON (document_id)
		       id, public_id, document_id, section_id, position, text, fingerprint
		FROM chunks
		WHERE graph_id = $1 AND document_id = ANY($2)
		ORDER BY document_id, position, id`,
		graphID, documentIDs)
	if err != nil {
		return nil, storeErr("first chunk per document", err)
	}
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, storeErr("first chunk per document", err)
	}
	out := make(map[int64]common.Chunk, len(chunks))
	for _, c := range chunks {
		out[c.DocumentID] = c
	}
	return out, nil
}

func scanChunks(rows pgxv5.Rows) ([]common.Chunk, error) {
	defer rows.Close()
	chunks := make([]common.Chunk, 0)
	for rows.Next() {
		var c common.Chunk
		if err := rows.Scan(&c.ID, &c.PublicID, &c.DocumentID, &c.SectionID, &c.Position, &c.Text, &c.Fingerprint); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
