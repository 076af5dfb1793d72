// Package engine defines the contract the transform core consumes from the
// embedded analytical SQL engine (spec.md §6.1) and a concrete SQLite-backed
// implementation used by tests and the CLI demo in place of a DuckDB binding.
package engine

import "context"

// Result is the outcome of a single statement execution.
type Result interface {
	FetchAll() ([][]any, error)
	Columns() ([]string, error)
	RowsAffected() int64
}

// ColumnInfo describes one catalog column (information_schema.columns).
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

// Client is the minimum surface the transform core requires from the SQL
// engine: statement execution with named parameters, explicit transaction
// control, and catalog introspection.
type Client interface {
	Execute(ctx context.Context, sql string, params map[string]any) (Result, error)
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string) ([]ColumnInfo, error)
	TablesLike(ctx context.Context, pattern string) ([]string, error)
	FilePaths(ctx context.Context, table string) ([]string, error)
}
