package writemode

import (
	"context"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

// MergeHandler implements MERGE (upsert): a single CREATE TABLE AS when the
// target is new, or a materialize-upsert-drop sequence over a temporary
// table keyed on merge_keys (spec.md §4.7).
type MergeHandler struct{}

func (MergeHandler) Generate(ctx context.Context, eng engine.Client, step model.TransformStep) ([]model.Statement, map[string]any, error) {
	if err := sqlident.Validate(step.TableName); err != nil {
		return nil, nil, err
	}

	exists, err := eng.TableExists(ctx, step.TableName)
	if err != nil {
		return nil, nil, err
	}

	if !exists {
		sql, err := sqlident.BuildCreateTableAs(sqlident.DialectPrimary, step.TableName, step.SQLQuery)
		if err != nil {
			return nil, nil, err
		}
		return []model.Statement{{SQL: sql}}, map[string]any{}, nil
	}

	target, err := columnsOf(ctx, eng, step.TableName)
	if err != nil {
		return nil, nil, err
	}
	source, err := sourceColumns(ctx, eng, step.SQLQuery)
	if err != nil {
		return nil, nil, err
	}
	if err := validateMergeKeys(step.TableName, step.MergeKeys, source, target); err != nil {
		return nil, nil, err
	}

	tempName := step.TableName + "_merge_tmp"
	createTemp, err := sqlident.BuildCreateTableAs(sqlident.DialectPrimary, tempName, step.SQLQuery)
	if err != nil {
		return nil, nil, err
	}
	upsert, err := sqlident.BuildInsertOrReplaceSelect(sqlident.DialectPrimary, step.TableName, tempName)
	if err != nil {
		return nil, nil, err
	}
	dropTemp, err := sqlident.BuildDropTable(sqlident.DialectPrimary, tempName)
	if err != nil {
		return nil, nil, err
	}

	return []model.Statement{{SQL: createTemp}, {SQL: upsert}, {SQL: dropTemp}}, map[string]any{
		"merge_keys": step.MergeKeys,
	}, nil
}
