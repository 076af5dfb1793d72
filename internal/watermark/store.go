// Package watermark implements C3: a durable per-(table, time_column)
// watermark with an in-process cache and a MAX()-probe fallback against the
// analytical engine, grounded on the teacher's db/migrations + database/migrate.go
// Postgres plumbing.
package watermark

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/monitoring"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

const tableName = "sqlflow_transform_watermarks"

type cacheKey struct {
	table  string
	column string
}

// metadataPool is the slice of *pgxpool.Pool the store actually needs,
// narrowed to an interface so tests can substitute a fake without a live
// Postgres instance.
type metadataPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the durable watermark store (spec.md §4.3). Reads consult an
// in-process cache, then the metadata table, then a MAX(col) probe against
// the engine the transform is running against; writes update the metadata
// table and the cache unconditionally.
type Store struct {
	pool   metadataPool
	logger *monitoring.Logger

	mu    sync.Mutex
	cache map[cacheKey]time.Time
}

// NewStore wires a watermark store against an already-migrated Postgres pool
// (*pgxpool.Pool satisfies metadataPool).
func NewStore(pool metadataPool, logger *monitoring.Logger) *Store {
	if logger == nil {
		logger = monitoring.GetLogger()
	}
	return &Store{pool: pool, logger: logger, cache: make(map[cacheKey]time.Time)}
}

// Get implements the three-step read protocol: cache, metadata row, then a
// MAX() probe against eng (the analytical engine actually holding table's
// data, which is not necessarily the same database as the metadata store).
// Any fallback failure is swallowed and reported as (nil, nil): a missing
// table on first run is not an error (spec.md §4.3).
func (s *Store) Get(ctx context.Context, eng engine.Client, table, column string) (*time.Time, error) {
	if err := sqlident.ValidateAll(table, column); err != nil {
		return nil, err
	}

	key := cacheKey{table, column}
	s.mu.Lock()
	if t, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return &t, nil
	}
	s.mu.Unlock()

	row := s.pool.QueryRow(ctx,
		`SELECT last_watermark FROM `+tableName+` WHERE table_name = $1 AND time_column = $2`,
		table, column)

	var t time.Time
	if err := row.Scan(&t); err == nil {
		s.setCache(key, t)
		return &t, nil
	}

	probe, ok, err := s.probeMax(ctx, eng, table, column)
	if err != nil || !ok {
		return nil, nil
	}

	if uerr := s.upsert(ctx, table, column, probe); uerr != nil {
		s.logger.Warn("watermark fallback probe could not be persisted", map[string]any{
			"table": table, "time_column": column, "error": uerr.Error(),
		})
	}
	s.setCache(key, probe)
	return &probe, nil
}

func (s *Store) probeMax(ctx context.Context, eng engine.Client, table, column string) (time.Time, bool, error) {
	quotedCol, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, column)
	if err != nil {
		return time.Time{}, false, err
	}
	quotedTable, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, table)
	if err != nil {
		return time.Time{}, false, err
	}

	query := fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE %s IS NOT NULL", quotedCol, quotedTable, quotedCol)
	result, err := eng.Execute(ctx, query, nil)
	if err != nil {
		return time.Time{}, false, err
	}
	rows, err := result.FetchAll()
	if err != nil {
		return time.Time{}, false, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == nil {
		return time.Time{}, false, nil
	}

	switch v := rows[0][0].(type) {
	case time.Time:
		return v, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("watermark: unexpected MAX(%s) result type %T", column, v)
	}
}

// Update implements the write protocol: upsert the metadata row, then
// unconditionally update the cache even if the upsert failed (spec.md §4.3).
func (s *Store) Update(ctx context.Context, table, column string, t time.Time) error {
	if err := sqlident.ValidateAll(table, column); err != nil {
		return err
	}
	err := s.upsert(ctx, table, column, t)
	s.setCache(cacheKey{table, column}, t)
	s.logger.WatermarkLog(table, column, &t, nil)
	monitoring.GetMetricsCollector().Gauge("watermark.lag_seconds", time.Since(t).Seconds(),
		map[string]string{"table": table, "time_column": column})
	return err
}

func (s *Store) upsert(ctx context.Context, table, column string, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+tableName+` (table_name, time_column, last_watermark, last_updated)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (table_name) DO UPDATE SET
			time_column = EXCLUDED.time_column,
			last_watermark = EXCLUDED.last_watermark,
			last_updated = now()`,
		table, column, t)
	if err != nil {
		return model.GenericTransformError(fmt.Sprintf("failed to upsert watermark for %s.%s", table, column), err)
	}
	return nil
}

// Reset deletes the metadata row and evicts the cache entry. Returns true
// iff the cache held the key or at least one metadata row was deleted.
func (s *Store) Reset(ctx context.Context, table, column string) (bool, error) {
	if err := sqlident.ValidateAll(table, column); err != nil {
		return false, err
	}

	key := cacheKey{table, column}
	s.mu.Lock()
	_, hadCache := s.cache[key]
	delete(s.cache, key)
	s.mu.Unlock()

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+tableName+` WHERE table_name = $1 AND time_column = $2`, table, column)
	if err != nil {
		return hadCache, err
	}
	return hadCache || tag.RowsAffected() > 0, nil
}

func (s *Store) setCache(key cacheKey, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = t
}
