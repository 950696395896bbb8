package adapters

import "context"

// DBAdapter executes SQL statements.
type DBAdapter interface {
	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string) (Rows, error)

	// Exec runs a statement and reports how many rows it affected.
	Exec(ctx context.Context, query string) (int64, error)
}

// Rows iterates query results. Err must be checked after Next returns false.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}
