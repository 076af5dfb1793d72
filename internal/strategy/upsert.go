package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

// UpsertStrategy implements UPSERT: materialize the source into a temp
// table, insert rows whose key is new, update rows whose key already
// exists (spec.md §4.8).
type UpsertStrategy struct{}

func (UpsertStrategy) Name() string { return "UPSERT" }

func (UpsertStrategy) CanHandle(p model.LoadPattern) bool {
	return p.HasPrimaryKey && p.UpdateRate > 0.1 && !p.RequiresExactHistory
}

func (UpsertStrategy) EstimatePerformance(p model.LoadPattern) PerformanceEstimate {
	return PerformanceEstimate{TimeMS: estimateLinearMS(p.RowCountEstimate) * 2, MemoryMB: estimateMemoryMB(p.RowCountEstimate) * 2}
}

func (s UpsertStrategy) Execute(ctx context.Context, eng engine.Client, source model.DataSource, target string) (model.LoadResult, error) {
	start := time.Now()

	if len(source.KeyColumns) == 0 {
		return model.LoadResult{}, fmt.Errorf("upsert strategy requires at least one key column for %s", target)
	}

	qTarget, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, target)
	if err != nil {
		return model.LoadResult{}, err
	}

	tempName := target + "_upsert_tmp"
	createTemp, err := sqlident.BuildCreateTableAs(sqlident.DialectPrimary, tempName, source.SourceQuery)
	if err != nil {
		return model.LoadResult{}, err
	}
	if _, err := eng.Execute(ctx, createTemp, source.Parameters); err != nil {
		return model.LoadResult{}, err
	}
	qTemp, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, tempName)
	if err != nil {
		return model.LoadResult{}, err
	}
	defer func() {
		dropTemp, derr := sqlident.BuildDropTable(sqlident.DialectPrimary, tempName)
		if derr == nil {
			_, _ = eng.Execute(ctx, dropTemp, nil)
		}
	}()

	joinPred, err := keyJoinPredicate(source.KeyColumns, "tgt", "tmp")
	if err != nil {
		return model.LoadResult{}, err
	}

	updatedCount, err := scalarInt64(ctx, eng, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s AS tmp WHERE EXISTS (SELECT 1 FROM %s AS tgt WHERE %s)",
		qTemp, qTarget, joinPred))
	if err != nil {
		return model.LoadResult{}, err
	}

	insertNewSQL := fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM %s AS tmp WHERE NOT EXISTS (SELECT 1 FROM %s AS tgt WHERE %s)",
		qTarget, qTemp, qTarget, joinPred)
	result, err := eng.Execute(ctx, insertNewSQL, nil)
	if err != nil {
		return model.LoadResult{}, err
	}
	insertedCount := result.RowsAffected()

	if updatedCount > 0 {
		insertOrReplace, err := sqlident.BuildInsertOrReplaceSelect(sqlident.DialectPrimary, target, tempName)
		if err != nil {
			return model.LoadResult{}, err
		}
		if _, err := eng.Execute(ctx, insertOrReplace, nil); err != nil {
			return model.LoadResult{}, err
		}
	}

	elapsed := time.Since(start).Milliseconds()
	if elapsed < 1 {
		elapsed = 1
	}

	return model.LoadResult{
		StrategyUsed:    "UPSERT",
		RowsInserted:    insertedCount,
		RowsUpdated:     updatedCount,
		ExecutionTimeMS: elapsed,
	}, nil
}

func keyJoinPredicate(keys []string, leftAlias, rightAlias string) (string, error) {
	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		qk, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, k)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, fmt.Sprintf("%s.%s = %s.%s", leftAlias, qk, rightAlias, qk))
	}
	return strings.Join(clauses, " AND "), nil
}

func scalarInt64(ctx context.Context, eng engine.Client, sql string) (int64, error) {
	result, err := eng.Execute(ctx, sql, nil)
	if err != nil {
		return 0, err
	}
	rows, err := result.FetchAll()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
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
