package pgx

import (
	"context"

	"github.com/lexgraph/lexgraph/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// DocumentsForEntities returns, per entity, the ids of documents containing
// at least one chunk mentioning it.
func (s *GraphDBStore) DocumentsForEntities(ctx context.Context, graphID int64, entityIDs []int64) (map[int64][]int64, error) {
	if len(entityIDs) == 0 {
		return map[int64][]int64{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT entity_id, document_id
		FROM entity_mentions
		WHERE graph_id = $1 AND entity_id = ANY($2)
		ORDER BY entity_id, document_id`,
		graphID, entityIDs)
	if err != nil {
		return nil, storeErr("documents for entities", err)
	}
	memberships, err := scanMemberships(rows)
	return memberships, storeErr("documents for entities", err)
}

// SectionsForEntities returns, per entity, the ids of sections within the
// given documents that contain a chunk mentioning it.
func (s *GraphDBStore) SectionsForEntities(ctx context.Context, graphID int64, entityIDs []int64, documentIDs []int64) (map[int64][]int64, error) {
	if len(entityIDs) == 0 || len(documentIDs) == 0 {
		return map[int64][]int64{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT entity_id, section_id
		FROM entity_mentions
		WHERE graph_id = $1 AND entity_id = ANY($2) AND document_id = ANY($3)
		ORDER BY entity_id, section_id`,
		graphID, entityIDs, documentIDs)
	if err != nil {
		return nil, storeErr("sections for entities", err)
	}
	memberships, err := scanMemberships(rows)
	return memberships, storeErr("sections for entities", err)
}

func scanMemberships(rows pgxv5.Rows) (map[int64][]int64, error) {
	defer rows.Close()
	out := make(map[int64][]int64)
	for rows.Next() {
		var key, value int64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = append(out[key], value)
	}
	return out, rows.Err()
}

func (s *GraphDBStore) SectionCandidates(ctx context.Context, graphID int64, documentIDs []int64) ([]common.Section, error) {
	if len(documentIDs) == 0 {
		return []common.Section{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, document_id, parent_id, title, path, depth, embedding
		FROM sections
		WHERE graph_id = $1 AND document_id = ANY($2)
		ORDER BY id`,
		graphID, documentIDs)
	if err != nil {
		return nil, storeErr("section candidates", err)
	}
	sections, err := scanSections(rows)
	return sections, storeErr("section candidates", err)
}

func (s *GraphDBStore) SectionsByIDs(ctx context.Context, graphID int64, ids []int64) ([]common.Section, error) {
	if len(ids) == 0 {
		return []common.Section{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, document_id, parent_id, title, path, depth, embedding
		FROM sections
		WHERE graph_id = $1 AND id = ANY($2)
		ORDER BY id`,
		graphID, ids)
	if err != nil {
		return nil, storeErr("sections by ids", err)
	}
	sections, err := scanSections(rows)
	return sections, storeErr("sections by ids", err)
}

func scanSections(rows pgxv5.Rows) ([]common.Section, error) {
	defer rows.Close()
	sections := make([]common.Section, 0)
	for rows.Next() {
		var sec common.Section
		var emb *pgvector.Vector
		if err := rows.Scan(&sec.ID, &sec.DocumentID, &sec.ParentID, &sec.Title, &sec.Path, &sec.Depth, &emb); err != nil {
			return nil, err
		}
		if emb != nil {
			sec.Embedding = emb.Slice()
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *GraphDBStore) ListDocumentIDs(ctx context.Context, graphID int64) ([]int64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id FROM documents WHERE graph_id = $1 ORDER BY id`,
		graphID)
	if err != nil {
		return nil, storeErr("list document ids", err)
	}
	ids, err := collectIDs(rows)
	return ids, storeErr("list document ids", err)
}

func (s *GraphDBStore) DocumentsByIDs(ctx context.Context, graphID int64, ids []int64) ([]common.Document, error) {
	if len(ids) == 0 {
		return []common.Document{}, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, graph_id, title, languages, metadata
		FROM documents
		WHERE graph_id = $1 AND id = ANY($2)
		ORDER BY id`,
		graphID, ids)
	if err != nil {
		return nil, storeErr("documents by ids", err)
	}
	documents, err := scanDocuments(rows)
	return documents, storeErr("documents by ids", err)
}

func scanDocuments(rows pgxv5.Rows) ([]common.Document, error) {
	defer rows.Close()
	documents := make([]common.Document, 0)
	for rows.Next() {
		var d common.Document
		if err := rows.Scan(&d.ID, &d.GraphID, &d.Title, &d.Languages, &d.Metadata); err != nil {
			return nil, err
		}
		documents = append(documents, d)
	}
	return documents, rows.Err()
}
