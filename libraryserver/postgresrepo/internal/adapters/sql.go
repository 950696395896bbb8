package adapters

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// querier is what sql.DB and sqlx.DB have in common.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLAdapter runs statements on a sql.DB or a sqlx.DB.
type SQLAdapter struct {
	db querier
}

func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

func NewSQLXAdapter(db *sqlx.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

func (s *SQLAdapter) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return stdRows{rows: rows}, nil
}

func (s *SQLAdapter) Exec(ctx context.Context, query string) (int64, error) {
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

type stdRows struct {
	rows *sql.Rows
}

func (r stdRows) Next() bool             { return r.rows.Next() }
func (r stdRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r stdRows) Err() error             { return r.rows.Err() }
func (r stdRows) Close()                 { _ = r.rows.Close() }
