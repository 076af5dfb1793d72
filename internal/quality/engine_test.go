package quality

import (
	"context"
	"testing"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
)

func newTestEngine(t *testing.T) *engine.SQLiteClient {
	t.Helper()
	eng, err := engine.NewSQLiteClient(t.TempDir() + "/quality_test.db")
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

func TestNullRateRuleFailsAboveTenPercent(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "customer_id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "orders" VALUES (1, 10), (2, NULL), (3, NULL), (4, 40)`)

	qe := NewEngine(eng, time.Minute)
	result, err := qe.RunRule(context.Background(), "orders", NullRateRule("customer_id"))
	if err != nil {
		t.Fatalf("RunRule: %v", err)
	}
	if result.Passed {
		t.Error("expected the 50% null rate to fail the 10% threshold")
	}
	if result.Severity != model.SeverityWarning {
		t.Errorf("expected WARNING severity, got %s", result.Severity)
	}
}

func TestDuplicateCountRuleDetectsDuplicateKeys(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "customers" ("id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "customers" VALUES (1), (1), (2)`)

	qe := NewEngine(eng, time.Minute)
	result, err := qe.RunRule(context.Background(), "customers", DuplicateCountRule([]string{"id"}))
	if err != nil {
		t.Fatalf("RunRule: %v", err)
	}
	if result.Passed {
		t.Error("expected duplicate key group to fail")
	}
	if result.Severity != model.SeverityError {
		t.Errorf("expected ERROR severity, got %s", result.Severity)
	}
}

func TestNegativeValuesRuleFailsOnNegative(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "payments" ("id" INTEGER, "amount" REAL)`)
	mustExec(t, eng, `INSERT INTO "payments" VALUES (1, 10.0), (2, -5.0)`)

	qe := NewEngine(eng, time.Minute)
	result, err := qe.RunRule(context.Background(), "payments", NegativeValuesRule("amount"))
	if err != nil {
		t.Fatalf("RunRule: %v", err)
	}
	if result.Passed {
		t.Error("expected a negative amount to fail the rule")
	}
}

func TestReferentialIntegrityRuleDetectsOrphans(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "customers" ("id" INTEGER PRIMARY KEY)`)
	mustExec(t, eng, `INSERT INTO "customers" VALUES (1)`)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "customer_id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "orders" VALUES (1, 1), (2, 99)`)

	qe := NewEngine(eng, time.Minute)
	result, err := qe.RunRule(context.Background(), "orders", ReferentialIntegrityRule("customer_id", "customers", "id"))
	if err != nil {
		t.Fatalf("RunRule: %v", err)
	}
	if result.Passed {
		t.Error("expected the orphaned customer_id=99 to fail referential integrity")
	}
}

func TestProfileScoresBySeverityWeight(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER, "customer_id" INTEGER, "amount" REAL)`)
	mustExec(t, eng, `INSERT INTO "orders" VALUES (1, 1, 10.0), (1, 1, 10.0)`)

	qe := NewEngine(eng, time.Minute)
	profile, err := qe.Profile(context.Background(), "orders", TableSpec{
		NullCheckColumns:     []string{"customer_id"},
		KeyColumns:           []string{"id"},
		NegativeCheckColumns: []string{"amount"},
	})
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(profile.Results) != 3 {
		t.Fatalf("expected 3 rule results, got %d", len(profile.Results))
	}
	if profile.ErrorIssues != 1 {
		t.Errorf("expected 1 ERROR issue (duplicate id), got %d", profile.ErrorIssues)
	}
	if profile.OverallScore <= 0 || profile.OverallScore >= 1 {
		t.Errorf("expected a partial score strictly between 0 and 1, got %f", profile.OverallScore)
	}
}

func TestProfileIsCachedWithinTTL(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "orders" VALUES (1)`)

	qe := NewEngine(eng, time.Hour)
	spec := TableSpec{KeyColumns: []string{"id"}}

	first, err := qe.Profile(context.Background(), "orders", spec)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}

	mustExec(t, eng, `INSERT INTO "orders" VALUES (1)`) // introduce a duplicate after caching

	second, err := qe.Profile(context.Background(), "orders", spec)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if second.GeneratedAt != first.GeneratedAt {
		t.Error("expected the cached profile to be reused within the TTL window")
	}
}

func TestRegisterRuleInvalidatesCacheAndRunsUserRule(t *testing.T) {
	eng := newTestEngine(t)
	mustExec(t, eng, `CREATE TABLE "orders" ("id" INTEGER)`)
	mustExec(t, eng, `INSERT INTO "orders" VALUES (1)`)

	qe := NewEngine(eng, time.Hour)
	if _, err := qe.Profile(context.Background(), "orders", TableSpec{}); err != nil {
		t.Fatalf("Profile: %v", err)
	}

	qe.RegisterRule("orders", Rule{
		Name:        "row_count_nonzero",
		Category:    "custom",
		Severity:    model.SeverityInfo,
		SQLTemplate: "SELECT CASE WHEN (SELECT COUNT(*) FROM %s) = 0 THEN 1 ELSE 0 END",
	})

	profile, err := qe.Profile(context.Background(), "orders", TableSpec{})
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	found := false
	for _, r := range profile.Results {
		if r.RuleName == "row_count_nonzero" {
			found = true
			if !r.Passed {
				t.Error("expected row_count_nonzero to pass on a non-empty table")
			}
		}
	}
	if !found {
		t.Error("expected the user-registered rule to appear in the profile after cache invalidation")
	}
}
