// Package transform implements C11: the Transform Orchestrator that
// validates a step, acquires its table lock, opens an observability scope,
// dispatches to the matching write-mode handler, executes the generated
// statements, updates the watermark, and builds the LoadResult
// (spec.md §4.11).
package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/lockregistry"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/monitoring"
	"github.com/sqlflowx/transformengine/internal/optimizer"
	"github.com/sqlflowx/transformengine/internal/partition"
	"github.com/sqlflowx/transformengine/internal/quality"
	"github.com/sqlflowx/transformengine/internal/sqlident"
	"github.com/sqlflowx/transformengine/internal/strategy"
	"github.com/sqlflowx/transformengine/internal/watermark"
	"github.com/sqlflowx/transformengine/internal/writemode"
)

// Orchestrator owns every C1-C10 component and wires them into the
// execute() protocol (spec.md §4.11).
type Orchestrator struct {
	Engine      engine.Client
	Locks       *lockregistry.Registry
	Watermarks  *watermark.Store
	Partitions  *partition.Manager
	Observe     *monitoring.ObservabilityManager
	Metrics     *monitoring.MetricsCollector
	Quality     *quality.Engine
	Selector    *strategy.Selector
	Optimizer   *optimizer.PerformanceMonitor
	HolderID    string
}

// Execute runs the 11-step protocol for a single TransformStep.
func (o *Orchestrator) Execute(ctx context.Context, step model.TransformStep) (model.LoadResult, error) {
	start := time.Now()

	if err := sqlident.Validate(step.TableName); err != nil {
		return model.LoadResult{}, model.IdentifierError(step.TableName, err)
	}
	if err := sqlident.ValidateAll(step.MergeKeys...); err != nil {
		return model.LoadResult{}, model.IdentifierError(step.TableName, err)
	}

	lease, err := o.Locks.TryAcquire(step.TableName, o.HolderID)
	if err != nil {
		return model.LoadResult{}, err
	}
	defer lease.Release()

	ctx, handle := o.Observe.OperationContext(ctx, string(step.Mode), string(step.Mode))
	var opErr error
	defer func() { handle.Close(opErr) }()

	handler, ok := writemode.ForMode(step.Mode)
	if !ok {
		opErr = fmt.Errorf("no handler registered for write mode %q", step.Mode)
		return model.LoadResult{}, opErr
	}

	statements, params, err := handler.Generate(ctx, o.Engine, step)
	if err != nil {
		opErr = err
		return model.LoadResult{}, opErr
	}

	var rowEstimate int64
	if o.Partitions != nil {
		if stats, statErr := o.Partitions.GetPartitionStatistics(ctx, step.TableName, step.TimeColumn); statErr == nil {
			rowEstimate = stats.TotalRows
		}
	}
	optimized := optimizer.ShouldUseBulk(rowEstimate)
	if optimized && o.Observe != nil && o.Observe.Logger != nil {
		if recommendation, _ := optimizer.CheckMemoryConstraints(rowEstimate); recommendation == optimizer.RecommendConsiderBatching {
			o.Observe.Logger.Warn("row estimate exceeds in-memory batching ceiling", map[string]any{
				"table": step.TableName, "estimated_rows": rowEstimate,
			})
		}
	}

	transactionOpen := false
	var rowsAffected int64
	for i, stmt := range statements {
		if stmt.SQL == "BEGIN TRANSACTION" {
			transactionOpen = true
		}
		stmt.SQL = annotateStatement(stmt.SQL, rowEstimate)
		result, execErr := o.Engine.Execute(ctx, stmt.SQL, params)
		if execErr != nil {
			if step.Mode == model.WriteModeIncremental && transactionOpen {
				_, _ = o.Engine.Execute(ctx, "ROLLBACK", nil)
			}
			opErr = model.StepExecutionError(fmt.Sprintf("%s[%d]", step.TableName, i), string(step.Mode), execErr)
			return model.LoadResult{}, opErr
		}
		if stmt.SQL == "COMMIT" {
			transactionOpen = false
		}
		if result != nil {
			rowsAffected += result.RowsAffected()
		}
	}

	var watermarkUpdated *time.Time
	if step.Mode == model.WriteModeIncremental && step.TimeColumn != "" && o.Watermarks != nil {
		now := time.Now().UTC()
		if err := o.Watermarks.Update(ctx, step.TableName, step.TimeColumn, now); err != nil {
			opErr = err
			return model.LoadResult{}, opErr
		}
		watermarkUpdated = &now
	}

	elapsed := time.Since(start).Milliseconds()
	if elapsed < 1 {
		elapsed = 1
	}

	if o.Optimizer != nil {
		o.Optimizer.Record(string(step.Mode), rowsAffected, time.Since(start), optimized)
	}

	result := model.LoadResult{
		StrategyUsed:     string(step.Mode),
		RowsInserted:     rowsAffected,
		ExecutionTimeMS:  elapsed,
		WatermarkUpdated: watermarkUpdated,
	}

	if step.Mode == model.WriteModeIncremental {
		if report, qerr := strategy.ValidateIncrementalQuality(ctx, o.Engine, model.DataSource{
			TimeColumn: step.TimeColumn, KeyColumns: step.MergeKeys,
		}, step.TableName, result); qerr == nil {
			result.DataQualityScore = report.OverallScore
			result.ValidationErrors = append(result.ValidationErrors, report.Recommendations...)
		}
	}

	if o.Metrics != nil {
		o.Metrics.Record(monitoring.MetricPoint{
			Name: "transform.rows_processed", Value: float64(rowsAffected), Type: monitoring.MetricCounter,
			Timestamp: time.Now(), Labels: map[string]string{"table": step.TableName, "mode": string(step.Mode)},
		})
	}

	return result, nil
}

// ExecuteWithAutoStrategy analyzes pattern (if nil, from target statistics
// and source shape), selects a C8 strategy, executes it, and merges the
// resulting LoadResult into observability (spec.md §4.11).
func (o *Orchestrator) ExecuteWithAutoStrategy(ctx context.Context, source model.DataSource, target string, pattern *model.LoadPattern) (model.LoadResult, error) {
	if err := sqlident.Validate(target); err != nil {
		return model.LoadResult{}, model.IdentifierError(target, err)
	}

	lease, err := o.Locks.TryAcquire(target, o.HolderID)
	if err != nil {
		return model.LoadResult{}, err
	}
	defer lease.Release()

	ctx, handle := o.Observe.OperationContext(ctx, "auto_strategy", "auto_strategy")
	var opErr error
	defer func() { handle.Close(opErr) }()

	resolved := pattern
	if resolved == nil {
		analyzed, err := o.analyzeLoadPattern(ctx, source, target)
		if err != nil {
			opErr = err
			return model.LoadResult{}, opErr
		}
		resolved = &analyzed
	}

	chosen, err := o.Selector.Select(*resolved)
	if err != nil {
		opErr = err
		return model.LoadResult{}, opErr
	}

	result, err := chosen.Execute(ctx, o.Engine, source, target)
	if err != nil {
		opErr = model.StepExecutionError(target, chosen.Name(), err)
		return model.LoadResult{}, opErr
	}

	if o.Optimizer != nil {
		o.Optimizer.Record(result.StrategyUsed, result.RowsInserted, time.Duration(result.ExecutionTimeMS)*time.Millisecond, optimizer.ShouldUseBulk(result.RowsInserted))
	}

	if report, qerr := strategy.ValidateIncrementalQuality(ctx, o.Engine, source, target, result); qerr == nil {
		result.DataQualityScore = report.OverallScore
		result.ValidationErrors = append(result.ValidationErrors, report.Recommendations...)
	}

	if o.Metrics != nil {
		o.Metrics.Record(monitoring.MetricPoint{
			Name: "transform.strategy_selected", Value: 1, Type: monitoring.MetricCounter,
			Timestamp: time.Now(), Labels: map[string]string{"table": target, "strategy": result.StrategyUsed},
		})
	}

	return result, nil
}

// annotateStatement applies the C9 SQL-annotation transforms to a generated
// statement based on the estimated row count for the table being written.
func annotateStatement(sql string, rowEstimate int64) string {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case strings.HasPrefix(upper, "INSERT"):
		return optimizer.OptimizeInsert(sql, rowEstimate)
	case strings.HasPrefix(upper, "DELETE"):
		return optimizer.OptimizeDelete(sql)
	default:
		return sql
	}
}

// analyzeLoadPattern estimates a LoadPattern from the target's current row
// count (via the partition manager's statistics) and the shape of the
// data source description. It is a coarse heuristic, not a statistical
// sampler: real change-rate figures require a change-tracking column the
// core does not mandate.
func (o *Orchestrator) analyzeLoadPattern(ctx context.Context, source model.DataSource, target string) (model.LoadPattern, error) {
	pattern := model.LoadPattern{
		HasPrimaryKey:      len(source.KeyColumns) > 0,
		HasUpdateTimestamp: source.TimeColumn != "",
		HasDeleteFlag:      source.DeleteColumn != "",
		InsertRate:         1.0,
	}

	if o.Partitions != nil {
		stats, err := o.Partitions.GetPartitionStatistics(ctx, target, source.TimeColumn)
		if err == nil {
			pattern.RowCountEstimate = stats.TotalRows
		}
	}

	switch {
	case pattern.HasDeleteFlag:
		pattern.InsertRate, pattern.UpdateRate, pattern.DeleteRate = 0.3, 0.3, 0.3
	case pattern.HasPrimaryKey && pattern.HasUpdateTimestamp:
		pattern.InsertRate, pattern.UpdateRate = 0.6, 0.3
	default:
		pattern.InsertRate = 0.9
	}

	return pattern, nil
}
