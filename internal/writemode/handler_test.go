package writemode

import (
	"context"
	"testing"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
)

func newTestEngine(t *testing.T) *engine.SQLiteClient {
	t.Helper()
	eng, err := engine.NewSQLiteClient(t.TempDir() + "/writemode_test.db")
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

func TestReplaceHandlerGeneratesSingleStatement(t *testing.T) {
	stmts, params, err := ReplaceHandler{}.Generate(context.Background(), nil, model.TransformStep{
		TableName: "orders", SQLQuery: "SELECT * FROM raw_orders",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	if len(params) != 0 {
		t.Errorf("expected no bound parameters, got %v", params)
	}
}

func TestAppendHandlerCreatesWhenMissing(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER, "amount" REAL)`)

	stmts, _, err := AppendHandler{}.Generate(context.Background(), eng, model.TransformStep{
		TableName: "orders", SQLQuery: "SELECT * FROM raw_orders",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 CREATE TABLE AS statement, got %d", len(stmts))
	}
}

func TestAppendHandlerEmitsViewSequenceWhenTargetExists(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER, "amount" REAL)`)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "amount" REAL)`)

	stmts, _, err := AppendHandler{}.Generate(context.Background(), eng, model.TransformStep{
		TableName: "orders", SQLQuery: "SELECT * FROM raw_orders",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements (view/insert/drop), got %d: %+v", len(stmts), stmts)
	}
}

func TestMergeHandlerRequiresMergeKeysWhenTargetExists(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER, "amount" REAL)`)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "amount" REAL)`)

	_, _, err := MergeHandler{}.Generate(context.Background(), eng, model.TransformStep{
		TableName: "orders", SQLQuery: "SELECT * FROM raw_orders", MergeKeys: nil,
	})
	if err == nil {
		t.Fatal("expected an error when merge_keys is empty and target exists")
	}
}

func TestMergeHandlerGeneratesTempTableSequence(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_orders" ("id" INTEGER, "amount" REAL)`)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "amount" REAL)`)

	stmts, _, err := MergeHandler{}.Generate(context.Background(), eng, model.TransformStep{
		TableName: "orders", SQLQuery: "SELECT * FROM raw_orders", MergeKeys: []string{"id"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements (temp/upsert/drop), got %d", len(stmts))
	}
}

func TestIncrementalHandlerCreatesWhenMissing(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_events" ("id" INTEGER, "created_at" TIMESTAMP)`)

	fixedNow := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	h := IncrementalHandler{Now: func() time.Time { return fixedNow }}

	stmts, params, err := h.Generate(context.Background(), eng, model.TransformStep{
		TableName: "events", SQLQuery: "SELECT * FROM raw_events WHERE created_at BETWEEN @start_dt AND @end_dt",
		TimeColumn: "created_at",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 CREATE TABLE AS statement, got %d", len(stmts))
	}
	for _, key := range []string{"start_date", "end_date", "start_dt", "end_dt"} {
		if _, ok := params[key]; !ok {
			t.Errorf("expected parameter %q to always be populated", key)
		}
	}
}

func TestIncrementalHandlerWrapsTransactionWhenTargetExists(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "raw_events" ("id" INTEGER, "created_at" TIMESTAMP)`)
	mustExec(t, eng, `CREATE TABLE "events" ("id" INTEGER, "created_at" TIMESTAMP)`)

	h := IncrementalHandler{Now: func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }}
	stmts, _, err := h.Generate(context.Background(), eng, model.TransformStep{
		TableName: "events", SQLQuery: "SELECT * FROM raw_events", TimeColumn: "created_at",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(stmts) != 4 {
		t.Fatalf("expected 4 statements (BEGIN/DELETE/INSERT/COMMIT), got %d", len(stmts))
	}
	if stmts[0].SQL != "BEGIN TRANSACTION" || stmts[3].SQL != "COMMIT" {
		t.Errorf("expected explicit transaction wrapping, got %+v", stmts)
	}
}

func TestParseLookbackDefaultsOnBadInput(t *testing.T) {
	if got := parseLookback("garbage"); got != 24*time.Hour {
		t.Errorf("expected default 1-day lookback for unparseable input, got %v", got)
	}
	if got := parseLookback("3 DAYS"); got != 72*time.Hour {
		t.Errorf("expected 3 days, got %v", got)
	}
}
