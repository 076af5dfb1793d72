package strategy

import (
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/monitoring"
)

// Selector auto-selects an incremental strategy from a registered set
// using weighted scoring with declaration-order tie-breaking
// (spec.md §4.8).
type Selector struct {
	strategies map[string]Strategy
	logger     *monitoring.Logger
}

// NewSelector builds a selector over the four built-in strategies.
func NewSelector(watermarks WatermarkReader, logger *monitoring.Logger) *Selector {
	strategies := map[string]Strategy{
		"APPEND":   AppendStrategy{Watermarks: watermarks},
		"UPSERT":   UpsertStrategy{},
		"SNAPSHOT": SnapshotStrategy{},
		"CDC":      CDCStrategy{},
	}
	return &Selector{strategies: strategies, logger: logger}
}

// Select scores every strategy whose CanHandle matches the pattern and
// returns the highest scorer, breaking ties by declaration order. If no
// strategy can handle the pattern, it falls back to APPEND and logs a
// warning rather than returning an error.
func (s *Selector) Select(pattern model.LoadPattern) (Strategy, error) {
	var best Strategy
	bestScore := -1.0
	bestRank := len(declarationOrder)

	for rank, name := range declarationOrder {
		strat, ok := s.strategies[name]
		if !ok || !strat.CanHandle(pattern) {
			continue
		}
		score := s.score(name, strat, pattern)
		if score > bestScore || (score == bestScore && rank < bestRank) {
			best = strat
			bestScore = score
			bestRank = rank
		}
	}

	if best == nil {
		if s.logger != nil {
			s.logger.Warn("no strategy could handle load pattern, falling back to APPEND", nil)
		}
		return s.strategies["APPEND"], nil
	}
	return best, nil
}

// score combines the strategy's base weight with small bonuses for
// favorable time/memory estimates, so two CanHandle-eligible strategies
// with the same base weight separate on actual projected cost.
func (s *Selector) score(name string, strat Strategy, pattern model.LoadPattern) float64 {
	base := baseWeights[name]
	estimate := strat.EstimatePerformance(pattern)

	score := base
	if estimate.TimeMS > 0 && estimate.TimeMS < 10000 {
		score += 0.2
	}
	if estimate.MemoryMB > 0 && estimate.MemoryMB < 100 {
		score += 0.1
	}
	return score
}
