package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

// cdc marker values recorded in DataSource.DeleteColumn, per an already
// decided Open Question: 'D' delete, 'U' update, 'I' insert.
const (
	cdcMarkerDelete = "D"
	cdcMarkerUpdate = "U"
	cdcMarkerInsert = "I"
)

// CDCStrategy implements CDC: process a change feed in delete/update/insert
// order, keyed on key_columns and filtered by the marker column
// (spec.md §4.8).
type CDCStrategy struct{}

func (CDCStrategy) Name() string { return "CDC" }

func (CDCStrategy) CanHandle(p model.LoadPattern) bool {
	return p.HasDeleteFlag && p.HasPrimaryKey
}

func (CDCStrategy) EstimatePerformance(p model.LoadPattern) PerformanceEstimate {
	return PerformanceEstimate{TimeMS: estimateLinearMS(p.RowCountEstimate), MemoryMB: estimateMemoryMB(p.RowCountEstimate)}
}

func (s CDCStrategy) Execute(ctx context.Context, eng engine.Client, source model.DataSource, target string) (model.LoadResult, error) {
	start := time.Now()

	if len(source.KeyColumns) == 0 {
		return model.LoadResult{}, fmt.Errorf("cdc strategy requires at least one key column for %s", target)
	}
	if source.DeleteColumn == "" {
		return model.LoadResult{}, fmt.Errorf("cdc strategy requires a delete/marker column for %s", target)
	}

	qTarget, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, target)
	if err != nil {
		return model.LoadResult{}, err
	}
	qMarker, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, source.DeleteColumn)
	if err != nil {
		return model.LoadResult{}, err
	}

	tempName := target + "_cdc_tmp"
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
	existsPred := fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS tgt WHERE %s)", qTarget, joinPred)

	// DELETE: rows marked 'D' whose key exists in target.
	deleteSQL := fmt.Sprintf(
		"DELETE FROM %s AS tgt WHERE EXISTS (SELECT 1 FROM %s AS tmp WHERE %s AND tmp.%s = '%s')",
		qTarget, qTemp, joinPred, qMarker, cdcMarkerDelete)
	deleteResult, err := eng.Execute(ctx, deleteSQL, nil)
	if err != nil {
		return model.LoadResult{}, err
	}
	rowsDeleted := deleteResult.RowsAffected()

	// UPDATE: rows marked 'U' whose key already exists in target.
	updateCount, err := scalarInt64(ctx, eng, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s AS tmp WHERE tmp.%s = '%s' AND %s",
		qTemp, qMarker, cdcMarkerUpdate, existsPred))
	if err != nil {
		return model.LoadResult{}, err
	}
	if updateCount > 0 {
		updateSQL := fmt.Sprintf(
			"INSERT OR REPLACE INTO %s SELECT * FROM %s AS tmp WHERE tmp.%s = '%s' AND %s",
			qTarget, qTemp, qMarker, cdcMarkerUpdate, existsPred)
		if _, err := eng.Execute(ctx, updateSQL, nil); err != nil {
			return model.LoadResult{}, err
		}
	}

	// INSERT: rows marked 'I' whose key does not yet exist.
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM %s AS tmp WHERE tmp.%s = '%s' AND NOT %s",
		qTarget, qTemp, qMarker, cdcMarkerInsert, existsPred)
	insertResult, err := eng.Execute(ctx, insertSQL, nil)
	if err != nil {
		return model.LoadResult{}, err
	}
	rowsInserted := insertResult.RowsAffected()

	elapsed := time.Since(start).Milliseconds()
	if elapsed < 1 {
		elapsed = 1
	}

	return model.LoadResult{
		StrategyUsed:    "CDC",
		RowsInserted:    rowsInserted,
		RowsUpdated:     updateCount,
		RowsDeleted:     rowsDeleted,
		ExecutionTimeMS: elapsed,
	}, nil
}
