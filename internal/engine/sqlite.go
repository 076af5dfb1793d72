package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// retryConfig controls backoff when the engine reports SQLITE_BUSY/LOCKED —
// reused verbatim from the teacher's tickstore retry idiom, since an
// embedded analytical engine under concurrent load exhibits the same
// transient-contention shape as SQLite.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  10 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "SQLITE_LOCKED")
}

func retryWithBackoff(cfg retryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusyError(err) {
			return err
		}
		if attempt < cfg.maxRetries-1 {
			delay := cfg.baseDelay * time.Duration(1<<uint(attempt))
			if delay > cfg.maxDelay {
				delay = cfg.maxDelay
			}
			jitter := time.Duration(rand.Int63n(int64(delay/4 + 1)))
			time.Sleep(delay + jitter)
		}
	}
	return fmt.Errorf("retry exhausted after %d attempts: %w", cfg.maxRetries, lastErr)
}

// SQLiteClient is the default embedded-engine Client, backed by
// database/sql + github.com/mattn/go-sqlite3.
type SQLiteClient struct {
	db *sql.DB
	mu sync.Mutex
	tx *sql.Tx
}

// NewSQLiteClient opens (or creates) the database at path with settings
// tuned for concurrent single-process access, mirroring
// tickstore.rotateDatabaseIfNeeded's DSN.
func NewSQLiteClient(path string) (*SQLiteClient, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite engine: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) activeExecer() interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
} {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func toNamedArgs(params map[string]any) []any {
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, sql.Named(k, v))
	}
	return args
}

// Execute runs sql with named parameters, retrying transient busy errors.
func (c *SQLiteClient) Execute(ctx context.Context, query string, params map[string]any) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	args := toNamedArgs(params)
	trimmed := strings.TrimSpace(strings.ToUpper(query))

	if strings.HasPrefix(trimmed, "SELECT") {
		var rows *sql.Rows
		err := retryWithBackoff(defaultRetryConfig, func() error {
			var qerr error
			rows, qerr = c.activeExecer().QueryContext(ctx, query, args...)
			return qerr
		})
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return newRowsResult(rows)
	}

	var res sql.Result
	err := retryWithBackoff(defaultRetryConfig, func() error {
		var eerr error
		res, eerr = c.activeExecer().ExecContext(ctx, query, args...)
		return eerr
	})
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	affected, _ := res.RowsAffected()
	return &execResult{rowsAffected: affected}, nil
}

// Begin opens an explicit transaction; Execute runs inside it until Commit
// or Rollback.
func (c *SQLiteClient) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return fmt.Errorf("transaction already active")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

// Commit commits the active transaction.
func (c *SQLiteClient) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return fmt.Errorf("no active transaction")
	}
	err := c.tx.Commit()
	c.tx = nil
	return err
}

// Rollback rolls back the active transaction; safe to call when none is active.
func (c *SQLiteClient) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	return err
}

// TableExists reports whether a table of that name exists in the catalog.
func (c *SQLiteClient) TableExists(ctx context.Context, table string) (bool, error) {
	row := c.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
	var name string
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Columns returns the column set for table via PRAGMA table_info, the
// closest SQLite analogue to information_schema.columns.
func (c *SQLiteClient) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, ColumnInfo{Name: name, DataType: ctype, Nullable: notNull == 0})
	}
	return cols, rows.Err()
}

// TablesLike returns catalog table names matching a SQL LIKE pattern.
func (c *SQLiteClient) TablesLike(ctx context.Context, pattern string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ?", pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// FilePaths returns the backing file paths for an external table. SQLite
// has no external/parquet table concept, so this stand-in always returns
// an empty slice; a real DuckDB engine would read duckdb_tables()/
// parquet file metadata here (spec.md §4.4 file-path-based detection).
func (c *SQLiteClient) FilePaths(ctx context.Context, table string) ([]string, error) {
	return nil, nil
}

// Close closes the underlying database handle.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

type execResult struct {
	rowsAffected int64
}

func (r *execResult) FetchAll() ([][]any, error) { return nil, nil }
func (r *execResult) Columns() ([]string, error) { return nil, nil }
func (r *execResult) RowsAffected() int64        { return r.rowsAffected }

type rowsResult struct {
	cols []string
	rows [][]any
}

func newRowsResult(rows *sql.Rows) (*rowsResult, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return &rowsResult{cols: cols, rows: out}, rows.Err()
}

func (r *rowsResult) FetchAll() ([][]any, error) { return r.rows, nil }
func (r *rowsResult) Columns() ([]string, error) { return r.cols, nil }
func (r *rowsResult) RowsAffected() int64        { return int64(len(r.rows)) }
