package pgx

import (
	"context"
	"fmt"

	"github.com/lexgraph/lexgraph/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStore implements store.GraphStore using PostgreSQL with pgvector
// for vector similarity search.
type GraphDBStore struct {
	conn pgxIConn
}

// NewGraphDBStore creates a GraphDBStore on an existing connection or pool.
// The connection must have pgvector types registered (AfterConnect).
func NewGraphDBStore(conn pgxIConn) *GraphDBStore {
	return &GraphDBStore{conn: conn}
}

// storeErr classifies infrastructure failures as transient so the
// orchestration-level retry wrapper can distinguish them from bad input.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %s", op, common.ErrGraphUnavailable, err)
}

// collectIDs scans a single bigint column.
func collectIDs(rows pgxv5.Rows) ([]int64, error) {
	defer rows.Close()
	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
