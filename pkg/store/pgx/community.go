package pgx

import (
	"context"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/common"

	"github.com/pgvector/pgvector-go"
)

func (s *GraphDBStore) GraphCommunities(ctx context.Context, graphID int64) ([]common.Community, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, graph_id, title, summary, rank, members, embedding
		FROM communities
		WHERE graph_id = $1
		ORDER BY id`,
		graphID)
	if err != nil {
		return nil, storeErr("graph communities", err)
	}
	defer rows.Close()
	communities := make([]common.Community, 0)
	for rows.Next() {
		var c common.Community
		var emb *pgvector.Vector
		if err := rows.Scan(&c.ID, &c.GraphID, &c.Title, &c.Summary, &c.Rank, &c.Members, &emb); err != nil {
			return nil, storeErr("graph communities", err)
		}
		if emb != nil {
			c.Embedding = emb.Slice()
		}
		communities = append(communities, c)
	}
	return communities, storeErr("graph communities", rows.Err())
}

// SaveCommunities replaces the community index of a graph atomically and
// restamps the community id of every member entity.
func (s *GraphDBStore) SaveCommunities(ctx context.Context, graphID int64, communities []common.Community) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return storeErr("save communities", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE entities SET community_id = NULL WHERE graph_id = $1`, graphID); err != nil {
		return storeErr("save communities", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM communities WHERE graph_id = $1`, graphID); err != nil {
		return storeErr("save communities", err)
	}
	for _, c := range communities {
		var emb *pgvector.Vector
		if len(c.Embedding) > 0 {
			v := pgvector.NewVector(c.Embedding)
			emb = &v
		}
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO communities (graph_id, title, summary, rank, members, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			graphID, util.SanitizePostgresText(c.Title), util.SanitizePostgresText(c.Summary),
			c.Rank, c.Members, emb).Scan(&id)
		if err != nil {
			return storeErr("save communities", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE entities SET community_id = $1
			WHERE graph_id = $2 AND id = ANY($3)`,
			id, graphID, c.Members); err != nil {
			return storeErr("save communities", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("save communities", err)
	}
	return nil
}
