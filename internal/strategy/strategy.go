// Package strategy implements C8: the four incremental strategies
// (APPEND/UPSERT/SNAPSHOT/CDC), a weighted auto-selector, and the
// incremental-quality validation pass (spec.md §4.8).
package strategy

import (
	"context"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
)

// PerformanceEstimate is the strategy's self-reported cost for a pattern.
type PerformanceEstimate struct {
	TimeMS   int64
	MemoryMB float64
}

// Strategy is one incremental-load implementation.
type Strategy interface {
	Name() string
	CanHandle(pattern model.LoadPattern) bool
	EstimatePerformance(pattern model.LoadPattern) PerformanceEstimate
	Execute(ctx context.Context, eng engine.Client, source model.DataSource, target string) (model.LoadResult, error)
}

// baseWeights assigns the declaration-order base score used by the
// auto-selector (spec.md §4.8).
var baseWeights = map[string]float64{
	"APPEND":   1.0,
	"UPSERT":   0.7,
	"SNAPSHOT": 0.5,
	"CDC":      0.9,
}

// declarationOrder breaks auto-selection ties.
var declarationOrder = []string{"APPEND", "UPSERT", "SNAPSHOT", "CDC"}
