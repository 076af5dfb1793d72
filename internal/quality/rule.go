// Package quality implements C10: a data-quality rule engine over
// engine.Client tables — a built-in rule set plus a registry for
// user-supplied SQL-template or callable rules, severity-weighted scoring,
// and a per-table profile cache (spec.md §4.10).
package quality

import (
	"context"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
)

// severityWeight maps a rule's severity to its contribution to a table's
// overall quality score.
var severityWeight = map[model.Severity]float64{
	model.SeverityInfo:     0.1,
	model.SeverityWarning:  0.5,
	model.SeverityError:    1.0,
	model.SeverityCritical: 2.0,
}

// RuleFunc evaluates a rule against a table and returns one ValidationResult.
type RuleFunc func(ctx context.Context, eng engine.Client, table string, rule Rule) (model.ValidationResult, error)

// Rule is one data-quality check, either a parameterized SQL template
// ("%s" substituted with the quoted table name, expected to return a
// single numeric column) or a callable predicate.
type Rule struct {
	Name        string
	Category    string
	Severity    model.Severity
	SQLTemplate string
	Predicate   RuleFunc
	// Column/Keys/RefTable/RefColumn parameterize the built-in rule
	// constructors (null rate, duplicates, freshness, negative values,
	// referential integrity); unused by user-registered predicate rules.
	Column    string
	Keys      []string
	RefTable  string
	RefColumn string
}
