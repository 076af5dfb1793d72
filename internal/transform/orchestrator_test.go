package transform

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/lockregistry"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/monitoring"
	"github.com/sqlflowx/transformengine/internal/optimizer"
	"github.com/sqlflowx/transformengine/internal/partition"
	"github.com/sqlflowx/transformengine/internal/quality"
	"github.com/sqlflowx/transformengine/internal/strategy"
	"github.com/sqlflowx/transformengine/internal/watermark"
)

// fakeRow/fakePool are structural stand-ins for watermark's unexported
// metadataPool interface (QueryRow/Exec), mirroring watermark/store_test.go's
// fakes so orchestrator tests don't need a live Postgres instance.
type fakeRow struct {
	val time.Time
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*time.Time) = r.val
	return nil
}

type fakePool struct{}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{err: pgx.ErrNoRows}
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *engine.SQLiteClient) {
	t.Helper()
	eng, err := engine.NewSQLiteClient(t.TempDir() + "/transform_test.db")
	if err != nil {
		t.Fatalf("NewSQLiteClient: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	logger := monitoring.NewLogger("test")
	tracer := monitoring.NewTracer("test")
	observe := monitoring.NewObservabilityManager(tracer, logger)
	metrics := monitoring.NewMetricsCollector(1000, time.Hour)
	wm := watermark.NewStore(&fakePool{}, logger)
	pm := partition.NewManager(eng, nil, logger)
	qe := quality.NewEngine(eng, time.Minute)
	sel := strategy.NewSelector(wm, logger)

	orch := &Orchestrator{
		Engine:     eng,
		Locks:      lockregistry.NewRegistry(),
		Watermarks: wm,
		Partitions: pm,
		Observe:    observe,
		Metrics:    metrics,
		Quality:    qe,
		Selector:   sel,
		Optimizer:  optimizer.NewPerformanceMonitor(),
		HolderID:   "test-worker",
	}
	return orch, eng
}

func mustExec(t *testing.T, eng *engine.SQLiteClient, sql string) {
	t.Helper()
	if _, err := eng.Execute(context.Background(), sql, nil); err != nil {
		t.Fatalf("exec %q: %v", sql, err)
	}
}

func TestOrchestratorExecuteReplace(t *testing.T) {
	orch, eng := newTestOrchestrator(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "raw_orders" VALUES (1), (2)`)

	result, err := orch.Execute(context.Background(), model.TransformStep{
		TableName: "orders", SQLQuery: `SELECT * FROM "raw_orders"`, Mode: model.WriteModeReplace,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExecutionTimeMS < 1 {
		t.Errorf("expected execution time to be floored at 1ms, got %d", result.ExecutionTimeMS)
	}

	exists, err := eng.TableExists(context.Background(), "orders")
	if err != nil || !exists {
		t.Errorf("expected orders table to exist after REPLACE, err=%v", err)
	}
}

func TestOrchestratorRejectsInvalidIdentifier(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	_, err := orch.Execute(context.Background(), model.TransformStep{
		TableName: "orders; DROP TABLE users", SQLQuery: "SELECT 1", Mode: model.WriteModeReplace,
	})
	if err == nil {
		t.Fatal("expected an identifier validation error")
	}
}

func TestOrchestratorFailsFastWhenTableLocked(t *testing.T) {
	orch, eng := newTestOrchestrator(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER)`)

	lease, err := orch.Locks.TryAcquire("orders", "someone-else")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	defer lease.Release()

	_, err = orch.Execute(context.Background(), model.TransformStep{
		TableName: "orders", SQLQuery: `SELECT * FROM "raw_orders"`, Mode: model.WriteModeReplace,
	})
	if err == nil {
		t.Fatal("expected TableBusyError when the table is already locked")
	}
}

func TestOrchestratorIncrementalUpdatesWatermark(t *testing.T) {
	orch, eng := newTestOrchestrator(t)
	mustExec(t, eng, `CREATE TABLE "raw_events" ("id" INTEGER, "created_at" TIMESTAMP)`)
	mustExec(t, eng, `INSERT INTO "raw_events" VALUES (1, '2024-01-01')`)

	result, err := orch.Execute(context.Background(), model.TransformStep{
		TableName: "events", SQLQuery: `SELECT * FROM "raw_events" WHERE "created_at" BETWEEN @start_dt AND @end_dt`,
		Mode: model.WriteModeIncremental, TimeColumn: "created_at",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.WatermarkUpdated == nil {
		t.Error("expected the watermark to be updated after an INCREMENTAL step")
	}
}

func TestOrchestratorExecuteWithAutoStrategySelectsAppend(t *testing.T) {
	orch, eng := newTestOrchestrator(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER, "created_at" TIMESTAMP)`)
	mustExec(t, eng, `INSERT INTO "raw_orders" VALUES (1, '2024-01-01'), (2, '2024-01-02')`)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "created_at" TIMESTAMP)`)

	result, err := orch.ExecuteWithAutoStrategy(context.Background(), model.DataSource{
		SourceQuery: `SELECT * FROM "raw_orders"`, TimeColumn: "created_at",
	}, "orders", nil)
	if err != nil {
		t.Fatalf("ExecuteWithAutoStrategy: %v", err)
	}
	if result.StrategyUsed != "APPEND" {
		t.Errorf("expected APPEND to be auto-selected for an insert-only pattern, got %s", result.StrategyUsed)
	}
	if result.RowsInserted != 2 {
		t.Errorf("expected 2 rows inserted, got %d", result.RowsInserted)
	}
}

func TestOrchestratorConcurrentExecutionsOnSameTableAreSerialized(t *testing.T) {
	orch, eng := newTestOrchestrator(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "raw_orders" VALUES (1)`)

	lease, err := orch.Locks.TryAcquire("orders", "holder-1")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, execErr := orch.Execute(context.Background(), model.TransformStep{
			TableName: "orders", SQLQuery: `SELECT * FROM "raw_orders"`, Mode: model.WriteModeReplace,
		})
		done <- execErr
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the concurrent execute to fail fast while the lock is held")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the concurrent execute to fail fast")
	}

	lease.Release()
}
