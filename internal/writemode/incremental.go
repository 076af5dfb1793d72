package writemode

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
	"github.com/sqlflowx/transformengine/internal/timesub"
)

var lookbackPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(DAY|DAYS)\s*$`)

// parseLookback parses "N DAY"/"N DAYS", defaulting to 1 day on any parse
// failure or empty input (spec.md §4.7 INCREMENTAL).
func parseLookback(lookback string) time.Duration {
	if lookback == "" {
		return 24 * time.Hour
	}
	match := lookbackPattern.FindStringSubmatch(lookback)
	if match == nil {
		return 24 * time.Hour
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 24 * time.Hour
	}
	return time.Duration(n) * 24 * time.Hour
}

// IncrementalHandler implements INCREMENTAL: a time-windowed
// create-or-replace-window sequence, the replace path wrapped in an
// explicit transaction (spec.md §4.7).
type IncrementalHandler struct {
	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (h IncrementalHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h IncrementalHandler) Generate(ctx context.Context, eng engine.Client, step model.TransformStep) ([]model.Statement, map[string]any, error) {
	if err := sqlident.Validate(step.TableName); err != nil {
		return nil, nil, err
	}

	end := h.now()
	start := end.Add(-24 * time.Hour).Add(-parseLookback(step.Lookback))

	substituted, params := timesub.Substitute(step.SQLQuery, start, end)

	exists, err := eng.TableExists(ctx, step.TableName)
	if err != nil {
		return nil, nil, err
	}

	if !exists {
		createSQL, err := sqlident.BuildCreateTableAs(sqlident.DialectPrimary, step.TableName, substituted)
		if err != nil {
			return nil, nil, err
		}
		return []model.Statement{{SQL: createSQL}}, params, nil
	}

	qTable, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, step.TableName)
	if err != nil {
		return nil, nil, err
	}
	qCol, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, step.TimeColumn)
	if err != nil {
		return nil, nil, err
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s >= $start_date AND %s <= $end_date", qTable, qCol, qCol)
	insertSQL := fmt.Sprintf("INSERT INTO %s %s", qTable, substituted)

	return []model.Statement{
		{SQL: "BEGIN TRANSACTION"},
		{SQL: deleteSQL},
		{SQL: insertSQL},
		{SQL: "COMMIT"},
	}, params, nil
}
