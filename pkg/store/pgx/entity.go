package pgx

import (
	"context"
	"strings"

	"github.com/lexgraph/lexgraph/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const entityColumns = "id, name, aliases, description, embedding, degree, importance, community_id"

func scanEntities(rows pgxv5.Rows) ([]common.Entity, error) {
	defer rows.Close()
	entities := make([]common.Entity, 0)
	for rows.Next() {
		var e common.Entity
		var emb *pgvector.Vector
		var communityID *int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Aliases, &e.Description, &emb, &e.Degree, &e.Importance, &communityID); err != nil {
			return nil, err
		}
		if emb != nil {
			e.Embedding = emb.Slice()
		}
		if communityID != nil {
			e.CommunityID = *communityID
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ResolveEntitiesByName matches the given names case-insensitively against
// entity names and aliases. Results come back ordered by id so repeated
// resolution of the same mentions is deterministic.
func (s *GraphDBStore) ResolveEntitiesByName(ctx context.Context, graphID int64, names []string) ([]common.Entity, error) {
	if len(names) == 0 {
		return []common.Entity{}, nil
	}
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			lowered = append(lowered, strings.ToLower(n))
		}
	}
	if len(lowered) == 0 {
		return []common.Entity{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE graph_id = $1
		  AND (lower(name) = ANY($2)
		       OR EXISTS (
		           SELECT 1 FROM unnest(aliases) AS alias
		           WHERE lower(alias) = ANY($2)
		       ))
		ORDER BY id`,
		graphID, lowered)
	if err != nil {
		return nil, storeErr("resolve entities by name", err)
	}
	entities, err := scanEntities(rows)
	return entities, storeErr("resolve entities by name", err)
}

// SimilarEntities returns the nearest entities to the query embedding by
// cosine distance.
func (s *GraphDBStore) SimilarEntities(ctx context.Context, graphID int64, embedding []float32, limit int) ([]common.Entity, error) {
	if len(embedding) == 0 || limit <= 0 {
		return []common.Entity{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE graph_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2, id
		LIMIT $3`,
		graphID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, storeErr("similar entities", err)
	}
	entities, err := scanEntities(rows)
	return entities, storeErr("similar entities", err)
}

func (s *GraphDBStore) EntitiesByIDs(ctx context.Context, graphID int64, ids []int64) ([]common.Entity, error) {
	if len(ids) == 0 {
		return []common.Entity{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE graph_id = $1 AND id = ANY($2)
		ORDER BY id`,
		graphID, ids)
	if err != nil {
		return nil, storeErr("entities by ids", err)
	}
	entities, err := scanEntities(rows)
	return entities, storeErr("entities by ids", err)
}

func (s *GraphDBStore) TopDegreeEntities(ctx context.Context, graphID int64, limit int) ([]common.Entity, error) {
	if limit <= 0 {
		return []common.Entity{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE graph_id = $1
		ORDER BY degree DESC, id
		LIMIT $2`,
		graphID, limit)
	if err != nil {
		return nil, storeErr("top degree entities", err)
	}
	entities, err := scanEntities(rows)
	return entities, storeErr("top degree entities", err)
}

// EntitiesSharingDocuments returns entities co-occurring in the documents
// that mention any of the given entities, ranked by how many of those
// documents they appear in. The seed entities themselves are excluded.
func (s *GraphDBStore) EntitiesSharingDocuments(ctx context.Context, graphID int64, entityIDs []int64, limit int) ([]common.Entity, error) {
	if len(entityIDs) == 0 || limit <= 0 {
		return []common.Entity{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE graph_id = $1 AND id IN (
			SELECT em.entity_id
			FROM entity_mentions em
			WHERE em.graph_id = $1
			  AND em.entity_id <> ALL($2)
			  AND em.document_id IN (
				SELECT DISTINCT document_id FROM entity_mentions
				WHERE graph_id = $1 AND entity_id = ANY($2)
			  )
			GROUP BY em.entity_id
			ORDER BY COUNT(DISTINCT em.document_id) DESC, em.entity_id
			LIMIT $3
		)
		ORDER BY id`,
		graphID, entityIDs, limit)
	if err != nil {
		return nil, storeErr("entities sharing documents", err)
	}
	entities, err := scanEntities(rows)
	return entities, storeErr("entities sharing documents", err)
}

func (s *GraphDBStore) GraphEntities(ctx context.Context, graphID int64) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE graph_id = $1
		ORDER BY id`,
		graphID)
	if err != nil {
		return nil, storeErr("graph entities", err)
	}
	entities, err := scanEntities(rows)
	return entities, storeErr("graph entities", err)
}
