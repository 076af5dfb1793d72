package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

// NullRateRule flags column when more than 10% of its values are NULL.
func NullRateRule(column string) Rule {
	return Rule{
		Name:      "null_rate",
		Category:  "completeness",
		Severity:  model.SeverityWarning,
		Column:    column,
		Predicate: evalNullRate,
	}
}

func evalNullRate(ctx context.Context, eng engine.Client, table string, rule Rule) (model.ValidationResult, error) {
	qTable, qCol, err := quoteTableColumn(table, rule.Column)
	if err != nil {
		return model.ValidationResult{}, err
	}
	total, err := scalar(ctx, eng, fmt.Sprintf("SELECT COUNT(*) FROM %s", qTable))
	if err != nil {
		return model.ValidationResult{}, err
	}
	if total == 0 {
		return passResult(rule, "table is empty", 0), nil
	}
	nulls, err := scalar(ctx, eng, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", qTable, qCol))
	if err != nil {
		return model.ValidationResult{}, err
	}
	rate := float64(nulls) / float64(total)
	passed := rate <= 0.1
	msg := fmt.Sprintf("%.1f%% of %s.%s is NULL", rate*100, table, rule.Column)
	return buildResult(rule, passed, msg, rate), nil
}

// DuplicateCountRule flags any group of rows sharing the same keys values.
func DuplicateCountRule(keys []string) Rule {
	return Rule{
		Name:      "duplicate_count",
		Category:  "uniqueness",
		Severity:  model.SeverityError,
		Keys:      keys,
		Predicate: evalDuplicateCount,
	}
}

func evalDuplicateCount(ctx context.Context, eng engine.Client, table string, rule Rule) (model.ValidationResult, error) {
	qTable, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, table)
	if err != nil {
		return model.ValidationResult{}, err
	}
	cols, err := sqlident.FormatColumnList(sqlident.DialectPrimary, rule.Keys)
	if err != nil {
		return model.ValidationResult{}, err
	}
	count, err := scalar(ctx, eng, fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) AS _dupes",
		cols, qTable, cols))
	if err != nil {
		return model.ValidationResult{}, err
	}
	passed := count == 0
	msg := fmt.Sprintf("%d duplicate key group(s) on %v", count, rule.Keys)
	return buildResult(rule, passed, msg, float64(count)), nil
}

// FreshnessRule flags a table whose most recent row in column is older
// than 24 hours.
func FreshnessRule(column string) Rule {
	return Rule{
		Name:      "freshness",
		Category:  "timeliness",
		Severity:  model.SeverityWarning,
		Column:    column,
		Predicate: evalFreshness,
	}
}

func evalFreshness(ctx context.Context, eng engine.Client, table string, rule Rule) (model.ValidationResult, error) {
	qTable, qCol, err := quoteTableColumn(table, rule.Column)
	if err != nil {
		return model.ValidationResult{}, err
	}
	result, err := eng.Execute(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", qCol, qTable), nil)
	if err != nil {
		return model.ValidationResult{}, err
	}
	rows, err := result.FetchAll()
	if err != nil {
		return model.ValidationResult{}, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == nil {
		return passResult(rule, "no rows to evaluate", 0), nil
	}
	ts, ok := parseAnyTime(rows[0][0])
	if !ok {
		return passResult(rule, "unparseable timestamp, skipping", 0), nil
	}
	ageHours := time.Since(ts).Hours()
	passed := ageHours <= 24
	msg := fmt.Sprintf("most recent row in %s.%s is %.1fh old", table, rule.Column, ageHours)
	return buildResult(rule, passed, msg, ageHours), nil
}

// NegativeValuesRule flags any row where column holds a negative value.
func NegativeValuesRule(column string) Rule {
	return Rule{
		Name:      "unexpected_negative_values",
		Category:  "validity",
		Severity:  model.SeverityError,
		Column:    column,
		Predicate: evalNegativeValues,
	}
}

func evalNegativeValues(ctx context.Context, eng engine.Client, table string, rule Rule) (model.ValidationResult, error) {
	qTable, qCol, err := quoteTableColumn(table, rule.Column)
	if err != nil {
		return model.ValidationResult{}, err
	}
	count, err := scalar(ctx, eng, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < 0", qTable, qCol))
	if err != nil {
		return model.ValidationResult{}, err
	}
	passed := count == 0
	msg := fmt.Sprintf("%d negative value(s) in %s.%s", count, table, rule.Column)
	return buildResult(rule, passed, msg, float64(count)), nil
}

// ReferentialIntegrityRule flags rows in table.column with no matching
// row in refTable.refColumn.
func ReferentialIntegrityRule(column, refTable, refColumn string) Rule {
	return Rule{
		Name:      "referential_integrity",
		Category:  "consistency",
		Severity:  model.SeverityError,
		Column:    column,
		RefTable:  refTable,
		RefColumn: refColumn,
		Predicate: evalReferentialIntegrity,
	}
}

func evalReferentialIntegrity(ctx context.Context, eng engine.Client, table string, rule Rule) (model.ValidationResult, error) {
	qTable, qCol, err := quoteTableColumn(table, rule.Column)
	if err != nil {
		return model.ValidationResult{}, err
	}
	qRef, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, rule.RefTable)
	if err != nil {
		return model.ValidationResult{}, err
	}
	qRefCol, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, rule.RefColumn)
	if err != nil {
		return model.ValidationResult{}, err
	}
	count, err := scalar(ctx, eng, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s)",
		qTable, qCol, qRef, qRef, qRefCol, qCol))
	if err != nil {
		return model.ValidationResult{}, err
	}
	passed := count == 0
	msg := fmt.Sprintf("%d orphaned row(s) in %s.%s referencing %s.%s", count, table, rule.Column, rule.RefTable, rule.RefColumn)
	return buildResult(rule, passed, msg, float64(count)), nil
}

func quoteTableColumn(table, column string) (string, string, error) {
	qTable, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, table)
	if err != nil {
		return "", "", err
	}
	qCol, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, column)
	if err != nil {
		return "", "", err
	}
	return qTable, qCol, nil
}

func scalar(ctx context.Context, eng engine.Client, sql string) (int64, error) {
	result, err := eng.Execute(ctx, sql, nil)
	if err != nil {
		return 0, err
	}
	rows, err := result.FetchAll()
	if err != nil || len(rows) == 0 || len(rows[0]) == 0 {
		return 0, err
	}
	switch v := rows[0][0].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, nil
	}
}

func parseAnyTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func passResult(rule Rule, message string, value float64) model.ValidationResult {
	return buildResult(rule, true, message, value)
}

func buildResult(rule Rule, passed bool, message string, value float64) model.ValidationResult {
	v := value
	return model.ValidationResult{
		RuleName: rule.Name,
		Category: rule.Category,
		Severity: rule.Severity,
		Passed:   passed,
		Message:  message,
		Value:    &v,
	}
}
