// Package partition implements C4: partition detection (pattern-based,
// file-path-based, virtual), creation, pruning and strategy suggestion,
// backed by a two-tier cache grounded on the teacher's cache/manager.go
// in-process + Redis layering.
package partition

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/monitoring"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

type cacheKey struct {
	table  string
	column string
}

// Manager detects, creates, prunes and profiles partitions for tables held
// by eng. A second cache tier (cache.go) may additionally be backed by
// Redis for cross-process sharing.
type Manager struct {
	eng    engine.Client
	logger *monitoring.Logger
	tier2  cacheTier

	mu    sync.Mutex
	cache map[cacheKey][]model.PartitionInfo
}

// NewManager wires a partition manager against eng. tier2 may be nil, in
// which case the manager falls back to the in-process cache only.
func NewManager(eng engine.Client, tier2 cacheTier, logger *monitoring.Logger) *Manager {
	if logger == nil {
		logger = monitoring.GetLogger()
	}
	return &Manager{eng: eng, logger: logger, tier2: tier2, cache: make(map[cacheKey][]model.PartitionInfo)}
}

// DetectPartitions tries the three detection methods in order (pattern,
// file-path, virtual), running a later method only when the earlier ones
// found no partitions (virtual detection also needs a non-empty timeColumn),
// then sorts and caches the result (spec.md §4.4).
func (m *Manager) DetectPartitions(ctx context.Context, table, timeColumn string) ([]model.PartitionInfo, error) {
	if err := sqlident.ValidateAll(table); err != nil {
		return nil, err
	}
	key := cacheKey{table, timeColumn}

	if cached, ok := m.getCached(ctx, key); ok {
		return cached, nil
	}

	var partitions []model.PartitionInfo

	patternBased, err := m.detectPatternBased(ctx, table)
	if err != nil {
		return nil, err
	}
	partitions = append(partitions, patternBased...)

	if len(partitions) == 0 {
		filePathBased, err := m.detectFilePathBased(ctx, table)
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, filePathBased...)
	}

	if len(partitions) == 0 && timeColumn != "" {
		virtual, err := m.detectVirtual(ctx, table, timeColumn)
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, virtual...)
	}

	sort.Slice(partitions, func(i, j int) bool {
		if partitions[i].TimeRange == nil || partitions[j].TimeRange == nil {
			return false
		}
		return partitions[i].TimeRange.Start.Before(partitions[j].TimeRange.Start)
	})

	m.setCached(ctx, key, partitions)
	return partitions, nil
}

// CreatePartition materializes a new partition table for tr, reading the
// base table's column list from the catalog (spec.md §4.4).
func (m *Manager) CreatePartition(ctx context.Context, table string, tr model.TimeRange, timeColumn string) error {
	if err := sqlident.ValidateAll(table, timeColumn); err != nil {
		return err
	}

	cols, err := m.eng.Columns(ctx, table)
	if err != nil {
		return fmt.Errorf("partition: read columns for %q: %w", table, err)
	}
	colList := make([]string, 0, len(cols))
	for _, c := range cols {
		colList = append(colList, fmt.Sprintf("%s %s", quoteOrRaw(c.Name), c.DataType))
	}

	partitionName := table + "_" + tr.PartitionName()
	qName, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, partitionName)
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", qName, joinComma(colList))
	if _, err := m.eng.Execute(ctx, createSQL, nil); err != nil {
		return fmt.Errorf("partition: create %q: %w", partitionName, err)
	}

	qCol, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, timeColumn)
	if err == nil {
		idxName := partitionName + "_" + timeColumn + "_idx"
		if qIdx, ierr := sqlident.QuoteIdentifier(sqlident.DialectPrimary, idxName); ierr == nil {
			indexSQL := fmt.Sprintf("CREATE INDEX %s ON %s(%s)", qIdx, qName, qCol)
			if _, err := m.eng.Execute(ctx, indexSQL, nil); err != nil {
				m.logger.Warn("partition index creation failed", map[string]any{
					"partition": partitionName, "error": err.Error(),
				})
			}
		}
	}

	m.ClearCache(table)
	return nil
}

// PrunePartitions textually injects a "col >= start AND col < end" predicate
// into query, ANDed with an existing WHERE and placed before ORDER BY if
// present. It never parses the query (spec.md §4.4).
func (m *Manager) PrunePartitions(query string, tr model.TimeRange, column string) string {
	return injectPredicate(query, column, tr)
}

// GetPartitionStatistics summarizes totals/distribution for table, falling
// back to a one-partition summary of the whole table when no partitions
// are detected.
func (m *Manager) GetPartitionStatistics(ctx context.Context, table, timeColumn string) (model.PartitionStats, error) {
	partitions, err := m.DetectPartitions(ctx, table, timeColumn)
	if err != nil {
		return model.PartitionStats{}, err
	}

	if len(partitions) == 0 {
		total, err := m.countRows(ctx, table)
		if err != nil {
			return model.PartitionStats{}, err
		}
		return model.PartitionStats{
			TableName: table, TotalRows: total, PartitionCount: 1,
			Distribution: map[string]int64{table: total},
		}, nil
	}

	dist := make(map[string]int64, len(partitions))
	var total int64
	for _, p := range partitions {
		dist[p.PartitionName] = p.RowCount
		total += p.RowCount
	}
	return model.PartitionStats{
		TableName: table, TotalRows: total, PartitionCount: len(partitions), Distribution: dist,
	}, nil
}

// SuggestStrategy recommends a partitioning granularity and implementation
// for (table, timeColumn) per spec.md §4.4's thresholds.
func (m *Manager) SuggestStrategy(ctx context.Context, table, timeColumn string) (model.PartitionSuggestion, error) {
	total, err := m.countRows(ctx, table)
	if err != nil {
		return model.PartitionSuggestion{}, err
	}
	if total < 100_000 {
		return model.PartitionSuggestion{Strategy: "none", Reason: "too small"}, nil
	}

	partitions, err := m.DetectPartitions(ctx, table, timeColumn)
	if err != nil {
		return model.PartitionSuggestion{}, err
	}

	var spanDays int
	distinctDays := map[string]bool{}
	if len(partitions) > 0 {
		first, last := partitions[0], partitions[len(partitions)-1]
		if first.TimeRange != nil && last.TimeRange != nil {
			spanDays = int(last.TimeRange.End.Sub(first.TimeRange.Start).Hours() / 24)
		}
		for _, p := range partitions {
			if p.TimeRange != nil {
				distinctDays[p.TimeRange.Start.Format("2006-01-02")] = true
			}
		}
	}

	var granularity model.Granularity
	switch {
	case spanDays <= 30:
		granularity = model.GranularityDay
	case spanDays <= 365:
		if len(distinctDays) > 52 {
			granularity = model.GranularityWeek
		} else {
			granularity = model.GranularityDay
		}
	default:
		granularity = model.GranularityMonth
	}

	estimatedPartitions := estimatePartitionCount(spanDays, granularity)
	avgRows := int64(0)
	if estimatedPartitions > 0 {
		avgRows = total / int64(estimatedPartitions)
	}

	impl := "table_based"
	if estimatedPartitions > 100 {
		impl = "virtual"
	}

	return model.PartitionSuggestion{
		Strategy:                  "time_based",
		Reason:                    fmt.Sprintf("table has %d rows spanning ~%d days", total, spanDays),
		Granularity:               granularity,
		EstimatedPartitions:       estimatedPartitions,
		AverageRowsPerPartition:   avgRows,
		RecommendedImplementation: impl,
	}, nil
}

// ClearCache evicts every cached detection result for table, across both
// tiers.
func (m *Manager) ClearCache(table string) {
	m.mu.Lock()
	for k := range m.cache {
		if k.table == table {
			delete(m.cache, k)
		}
	}
	m.mu.Unlock()

	if m.tier2 != nil {
		m.tier2.ClearTable(table)
	}
}

func (m *Manager) countRows(ctx context.Context, table string) (int64, error) {
	qt, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, table)
	if err != nil {
		return 0, err
	}
	result, err := m.eng.Execute(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", qt), nil)
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

func estimatePartitionCount(spanDays int, g model.Granularity) int {
	if spanDays <= 0 {
		return 1
	}
	switch g {
	case model.GranularityDay:
		return spanDays
	case model.GranularityWeek:
		return spanDays/7 + 1
	case model.GranularityMonth:
		return spanDays/30 + 1
	default:
		return spanDays
	}
}

func quoteOrRaw(name string) string {
	q, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, name)
	if err != nil {
		return name
	}
	return q
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
