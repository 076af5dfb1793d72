// Package writemode implements C7: the four write-mode statement-sequence
// generators (REPLACE/APPEND/MERGE/INCREMENTAL). Each Handler turns a
// model.TransformStep into an ordered statement sequence plus bound
// parameters; the orchestrator executes them in order (spec.md §4.7).
package writemode

import (
	"context"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
)

// Handler generates the SQL sequence for one write mode.
type Handler interface {
	Generate(ctx context.Context, eng engine.Client, step model.TransformStep) ([]model.Statement, map[string]any, error)
}

// ForMode resolves the handler registered for a write mode.
func ForMode(mode model.WriteMode) (Handler, bool) {
	switch mode {
	case model.WriteModeReplace:
		return ReplaceHandler{}, true
	case model.WriteModeAppend:
		return AppendHandler{}, true
	case model.WriteModeMerge:
		return MergeHandler{}, true
	case model.WriteModeIncremental:
		return IncrementalHandler{}, true
	default:
		return nil, false
	}
}
