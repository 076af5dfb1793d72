package watermark

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/sqlflowx/transformengine/internal/monitoring"
)

// Migrator creates the watermark metadata table, adapted from the teacher's
// db/migrations/migrator.go — a plain database/sql handle over lib/pq runs
// idempotent DDL, separate from the pgxpool handle the live Store uses.
type Migrator struct {
	db     *sql.DB
	logger *monitoring.Logger
}

// NewMigrator opens a lib/pq connection against dsn for schema management.
func NewMigrator(dsn string, logger *monitoring.Logger) (*Migrator, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("watermark: open migrator connection: %w", err)
	}
	if logger == nil {
		logger = monitoring.GetLogger()
	}
	return &Migrator{db: db, logger: logger}, nil
}

// Init creates the watermark table and its index if they do not exist
// (spec.md §4.3 durable schema).
func (m *Migrator) Init() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS ` + tableName + ` (
		table_name     VARCHAR(255) PRIMARY KEY,
		time_column    VARCHAR(255) NOT NULL,
		last_watermark TIMESTAMP NOT NULL,
		last_updated   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_` + tableName + `_table_column
		ON ` + tableName + ` (table_name, time_column);
	`
	if _, err := m.db.Exec(ddl); err != nil {
		return fmt.Errorf("watermark: create metadata table: %w", err)
	}
	m.logger.Info("watermark metadata table initialized", map[string]any{"table": tableName})
	return nil
}

// Close releases the migrator's database handle.
func (m *Migrator) Close() error { return m.db.Close() }
