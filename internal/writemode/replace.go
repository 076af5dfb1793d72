package writemode

import (
	"context"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

// ReplaceHandler implements REPLACE: one CREATE OR REPLACE TABLE statement,
// no bound parameters (spec.md §4.7).
type ReplaceHandler struct{}

func (ReplaceHandler) Generate(ctx context.Context, eng engine.Client, step model.TransformStep) ([]model.Statement, map[string]any, error) {
	if err := sqlident.Validate(step.TableName); err != nil {
		return nil, nil, err
	}
	sql, err := sqlident.BuildCreateOrReplaceTableAs(sqlident.DialectPrimary, step.TableName, step.SQLQuery)
	if err != nil {
		return nil, nil, err
	}
	return []model.Statement{{SQL: sql}}, map[string]any{}, nil
}
