package partition

import (
	"context"
	"testing"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
)

func newTestManager(t *testing.T) (*Manager, *engine.SQLiteClient) {
	t.Helper()
	eng, err := engine.NewSQLiteClient(t.TempDir() + "/partition_test.db")
	if err != nil {
		t.Fatalf("NewSQLiteClient: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return NewManager(eng, nil, nil), eng
}

func TestDetectPartitionsPatternBased(t *testing.T) {
	m, eng := newTestManager(t)
	ctx := context.Background()

	for _, suffix := range []string{"20240101", "20240102"} {
		if _, err := eng.Execute(ctx, `CREATE TABLE "events_`+suffix+`" ("id" INTEGER)`, nil); err != nil {
			t.Fatalf("create partition table: %v", err)
		}
	}

	partitions, err := m.DetectPartitions(ctx, "events", "created_at")
	if err != nil {
		t.Fatalf("DetectPartitions: %v", err)
	}
	if len(partitions) != 2 {
		t.Fatalf("expected 2 pattern-based partitions, got %d: %+v", len(partitions), partitions)
	}
	for _, p := range partitions {
		if p.PartitionType != model.PartitionTimeBased {
			t.Errorf("expected TIME_BASED partition type, got %v", p.PartitionType)
		}
	}
	if !partitions[0].TimeRange.Start.Before(partitions[1].TimeRange.Start) {
		t.Error("expected partitions sorted by start time")
	}
}

func TestDetectPartitionsCachesResult(t *testing.T) {
	m, eng := newTestManager(t)
	ctx := context.Background()

	if _, err := eng.Execute(ctx, `CREATE TABLE "events_20240101" ("id" INTEGER)`, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := m.DetectPartitions(ctx, "events", "created_at")
	if err != nil {
		t.Fatalf("DetectPartitions: %v", err)
	}

	// Creating a second matching table after the first call must not change
	// the cached result until ClearCache is called.
	if _, err := eng.Execute(ctx, `CREATE TABLE "events_20240102" ("id" INTEGER)`, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := m.DetectPartitions(ctx, "events", "created_at")
	if err != nil {
		t.Fatalf("DetectPartitions: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("expected cached result to be reused, got %d vs %d", len(second), len(first))
	}

	m.ClearCache("events")
	third, err := m.DetectPartitions(ctx, "events", "created_at")
	if err != nil {
		t.Fatalf("DetectPartitions: %v", err)
	}
	if len(third) != 2 {
		t.Fatalf("expected fresh detection after ClearCache to see 2 partitions, got %d", len(third))
	}
}

func TestPrunePartitionsInsertsWhereBeforeOrderBy(t *testing.T) {
	m, _ := newTestManager(t)
	tr, err := model.NewTimeRange(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		model.GranularityDay)
	if err != nil {
		t.Fatalf("NewTimeRange: %v", err)
	}

	out := m.PrunePartitions(`SELECT * FROM events ORDER BY id`, tr, "created_at")
	if !containsOrdered(out, `WHERE`, `ORDER BY`) {
		t.Errorf("expected WHERE clause before ORDER BY, got %q", out)
	}
}

func TestPrunePartitionsAndsExistingWhere(t *testing.T) {
	m, _ := newTestManager(t)
	tr, err := model.NewTimeRange(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		model.GranularityDay)
	if err != nil {
		t.Fatalf("NewTimeRange: %v", err)
	}

	out := m.PrunePartitions(`SELECT * FROM events WHERE status = 'ok'`, tr, "created_at")
	if !containsOrdered(out, `status = 'ok'`, `AND`) {
		t.Errorf("expected existing WHERE ANDed with predicate, got %q", out)
	}
}

func TestSuggestStrategySmallTableReturnsNone(t *testing.T) {
	m, eng := newTestManager(t)
	ctx := context.Background()
	if _, err := eng.Execute(ctx, `CREATE TABLE "small" ("id" INTEGER)`, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := eng.Execute(ctx, `INSERT INTO "small" VALUES (1)`, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	suggestion, err := m.SuggestStrategy(ctx, "small", "created_at")
	if err != nil {
		t.Fatalf("SuggestStrategy: %v", err)
	}
	if suggestion.Strategy != "none" {
		t.Errorf("expected 'none' strategy for a small table, got %q", suggestion.Strategy)
	}
}

func containsOrdered(s string, first, second string) bool {
	i := indexOf(s, first)
	if i < 0 {
		return false
	}
	j := indexOf(s, second)
	return j >= 0 && j >= i
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
