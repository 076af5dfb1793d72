package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
)

func newTestEngine(t *testing.T) *engine.SQLiteClient {
	t.Helper()
	eng, err := engine.NewSQLiteClient(t.TempDir() + "/strategy_test.db")
	if err != nil {
		t.Fatalf("NewSQLiteClient: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func mustExec(t *testing.T, eng *engine.SQLiteClient, sql string) {
	t.Helper()
	if _, err := eng.Execute(context.Background(), sql, nil); err != nil {
		t.Fatalf("exec %q: %v", sql, err)
	}
}

// fakeWatermarks is a minimal in-memory WatermarkReader for AppendStrategy tests.
type fakeWatermarks struct {
	values  map[string]time.Time
	updated map[string]time.Time
}

func newFakeWatermarks() *fakeWatermarks {
	return &fakeWatermarks{values: map[string]time.Time{}, updated: map[string]time.Time{}}
}

func (f *fakeWatermarks) Get(ctx context.Context, eng engine.Client, table, column string) (*time.Time, error) {
	if v, ok := f.values[table+"."+column]; ok {
		return &v, nil
	}
	return nil, nil
}

func (f *fakeWatermarks) Update(ctx context.Context, table, column string, t time.Time) error {
	f.updated[table+"."+column] = t
	return nil
}

func TestAppendStrategyInsertsAllRowsWithNoWatermark(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER, "created_at" TIMESTAMP)`)
	mustExec(t, eng, `INSERT INTO "raw_orders" VALUES (1, '2024-01-01'), (2, '2024-01-02')`)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "created_at" TIMESTAMP)`)

	wm := newFakeWatermarks()
	strat := AppendStrategy{Watermarks: wm}
	result, err := strat.Execute(context.Background(), eng, model.DataSource{
		SourceQuery: `SELECT * FROM "raw_orders"`, TimeColumn: "created_at",
	}, "orders")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowsInserted != 2 {
		t.Errorf("expected 2 rows inserted, got %d", result.RowsInserted)
	}
	if result.StrategyUsed != "APPEND" {
		t.Errorf("expected StrategyUsed=APPEND, got %q", result.StrategyUsed)
	}
	if _, ok := wm.updated["orders.created_at"]; !ok {
		t.Error("expected watermark to be updated after a successful append")
	}
}

func TestAppendStrategyFiltersByWatermark(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER, "created_at" TIMESTAMP)`)
	mustExec(t, eng, `INSERT INTO "raw_orders" VALUES (1, '2024-01-01T00:00:00Z'), (2, '2024-06-01T00:00:00Z')`)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "created_at" TIMESTAMP)`)

	wm := newFakeWatermarks()
	wm.values["orders.created_at"] = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	strat := AppendStrategy{Watermarks: wm}
	result, err := strat.Execute(context.Background(), eng, model.DataSource{
		SourceQuery: `SELECT * FROM "raw_orders"`, TimeColumn: "created_at",
	}, "orders")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowsInserted != 1 {
		t.Errorf("expected 1 row past the watermark, got %d", result.RowsInserted)
	}
}

func TestUpsertStrategyInsertsNewAndUpdatesExisting(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_customers" ("id" INTEGER, "name" TEXT)`)
	mustExec(t, eng, `INSERT INTO "raw_customers" VALUES (1, 'alice-v2'), (2, 'bob')`)
	mustExec(t, eng, `CREATE TABLE "customers" ("id" INTEGER PRIMARY KEY, "name" TEXT)`)
	mustExec(t, eng, `INSERT INTO "customers" VALUES (1, 'alice-v1')`)

	strat := UpsertStrategy{}
	result, err := strat.Execute(context.Background(), eng, model.DataSource{
		SourceQuery: `SELECT * FROM "raw_customers"`, KeyColumns: []string{"id"},
	}, "customers")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowsInserted != 1 {
		t.Errorf("expected 1 new row inserted, got %d", result.RowsInserted)
	}
	if result.RowsUpdated != 1 {
		t.Errorf("expected 1 row updated, got %d", result.RowsUpdated)
	}

	res, err := eng.Execute(context.Background(), `SELECT "name" FROM "customers" WHERE "id" = 1`, nil)
	if err != nil {
		t.Fatalf("verify query: %v", err)
	}
	rows, _ := res.FetchAll()
	if len(rows) != 1 || rows[0][0] != "alice-v2" {
		t.Errorf("expected row 1 updated to alice-v2, got %+v", rows)
	}
}

func TestUpsertStrategyRequiresKeyColumns(t *testing.T) {
	eng := newTestEngine(t)
	strat := UpsertStrategy{}
	_, err := strat.Execute(context.Background(), eng, model.DataSource{SourceQuery: "SELECT 1"}, "target")
	if err == nil {
		t.Fatal("expected an error when no key columns are given")
	}
}

func TestSnapshotStrategyReplacesAndKeepsRollbackPoint(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_accounts" ("id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "raw_accounts" VALUES (1), (2), (3)`)
	mustExec(t, eng, `CREATE TABLE "accounts" ("id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "accounts" VALUES (99)`)

	strat := SnapshotStrategy{}
	result, err := strat.Execute(context.Background(), eng, model.DataSource{
		SourceQuery: `SELECT * FROM "raw_accounts"`,
	}, "accounts")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowsInserted != 3 {
		t.Errorf("expected 3 rows reloaded, got %d", result.RowsInserted)
	}
	if result.RollbackPoint == "" {
		t.Error("expected a rollback point to be recorded when a prior table existed")
	}

	exists, err := eng.TableExists(context.Background(), result.RollbackPoint)
	if err != nil || !exists {
		t.Errorf("expected backup table %q to exist, err=%v", result.RollbackPoint, err)
	}
}

func TestSnapshotStrategyNoRollbackPointOnFirstLoad(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_accounts" ("id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "raw_accounts" VALUES (1)`)

	strat := SnapshotStrategy{}
	result, err := strat.Execute(context.Background(), eng, model.DataSource{
		SourceQuery: `SELECT * FROM "raw_accounts"`,
	}, "accounts")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RollbackPoint != "" {
		t.Errorf("expected no rollback point on first load, got %q", result.RollbackPoint)
	}
}

func TestCDCStrategyProcessesDeleteUpdateInsertInOrder(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "changes" ("id" INTEGER, "name" TEXT, "op" TEXT)`)
	mustExec(t, eng, `INSERT INTO "changes" VALUES
		(1, 'deleted-row', 'D'),
		(2, 'updated-name', 'U'),
		(3, 'new-row', 'I')`)
	mustExec(t, eng, `CREATE TABLE "target" ("id" INTEGER PRIMARY KEY, "name" TEXT, "op" TEXT)`)
	mustExec(t, eng, `INSERT INTO "target" VALUES (1, 'to-be-deleted', 'I'), (2, 'old-name', 'I')`)

	strat := CDCStrategy{}
	result, err := strat.Execute(context.Background(), eng, model.DataSource{
		SourceQuery: `SELECT * FROM "changes"`, KeyColumns: []string{"id"}, DeleteColumn: "op",
	}, "target")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowsDeleted != 1 {
		t.Errorf("expected 1 row deleted, got %d", result.RowsDeleted)
	}
	if result.RowsUpdated != 1 {
		t.Errorf("expected 1 row updated, got %d", result.RowsUpdated)
	}
	if result.RowsInserted != 1 {
		t.Errorf("expected 1 row inserted, got %d", result.RowsInserted)
	}

	res, err := eng.Execute(context.Background(), `SELECT "id" FROM "target" ORDER BY "id"`, nil)
	if err != nil {
		t.Fatalf("verify query: %v", err)
	}
	rows, _ := res.FetchAll()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows remaining (1 deleted), got %d: %+v", len(rows), rows)
	}
}

func TestSelectorPrefersAppendWhenInsertOnly(t *testing.T) {
	sel := NewSelector(newFakeWatermarks(), nil)
	chosen, err := sel.Select(model.LoadPattern{
		InsertRate: 0.95, UpdateRate: 0.0, DeleteRate: 0.0, AllowsDuplicates: false,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if chosen.Name() != "APPEND" {
		t.Errorf("expected APPEND, got %s", chosen.Name())
	}
}

func TestSelectorPrefersCDCWhenDeleteFlagPresent(t *testing.T) {
	sel := NewSelector(newFakeWatermarks(), nil)
	chosen, err := sel.Select(model.LoadPattern{
		HasDeleteFlag: true, HasPrimaryKey: true, InsertRate: 0.3, UpdateRate: 0.3, DeleteRate: 0.3,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if chosen.Name() != "CDC" {
		t.Errorf("expected CDC, got %s", chosen.Name())
	}
}

func TestSelectorFallsBackToAppendWhenNothingMatches(t *testing.T) {
	sel := NewSelector(newFakeWatermarks(), nil)
	chosen, err := sel.Select(model.LoadPattern{
		InsertRate: 0.2, UpdateRate: 0.05, DeleteRate: 0.0, AllowsDuplicates: true, HasUpdateTimestamp: true,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if chosen.Name() != "APPEND" {
		t.Errorf("expected fallback to APPEND, got %s", chosen.Name())
	}
}

func TestValidateIncrementalQualityFlagsDuplicates(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "dupes" ("id" INTEGER, "created_at" TIMESTAMP)`)
	mustExec(t, eng, `INSERT INTO "dupes" VALUES (1, '2024-01-01'), (1, '2024-01-02')`)

	report, err := ValidateIncrementalQuality(context.Background(), eng, model.DataSource{
		KeyColumns: []string{"id"},
	}, "dupes", model.LoadResult{})
	if err != nil {
		t.Fatalf("ValidateIncrementalQuality: %v", err)
	}
	if report.TotalChecks != 4 {
		t.Errorf("expected 4 total checks, got %d", report.TotalChecks)
	}
	if report.ChecksPassed >= report.TotalChecks {
		t.Errorf("expected the duplicate check to fail, got %d/%d passed", report.ChecksPassed, report.TotalChecks)
	}
	if len(report.Recommendations) == 0 {
		t.Error("expected at least one recommendation for the duplicate finding")
	}
}

func TestValidateIncrementalQualityCleanTablePassesAllChecks(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "clean" ("id" INTEGER, "created_at" TIMESTAMP)`)
	now := time.Now().UTC().Format(time.RFC3339)
	mustExec(t, eng, `INSERT INTO "clean" VALUES (1, '`+now+`'), (2, '`+now+`')`)

	report, err := ValidateIncrementalQuality(context.Background(), eng, model.DataSource{
		KeyColumns: []string{"id"},
	}, "clean", model.LoadResult{})
	if err != nil {
		t.Fatalf("ValidateIncrementalQuality: %v", err)
	}
	if report.ChecksPassed != report.TotalChecks {
		t.Errorf("expected all checks to pass on a clean table, got %d/%d", report.ChecksPassed, report.TotalChecks)
	}
	if report.OverallScore != 1.0 {
		t.Errorf("expected overall score 1.0, got %f", report.OverallScore)
	}
}
