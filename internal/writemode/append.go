package writemode

import (
	"context"
	"fmt"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

// AppendHandler implements APPEND: a single CREATE TABLE AS when the target
// is new, or a validated view-insert-drop sequence when it already exists
// (spec.md §4.7).
type AppendHandler struct{}

func (AppendHandler) Generate(ctx context.Context, eng engine.Client, step model.TransformStep) ([]model.Statement, map[string]any, error) {
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

	if err := validateAppendSchema(ctx, eng, step); err != nil {
		return nil, nil, err
	}

	viewName := step.TableName + "_append_view"
	viewSQL, err := sqlident.BuildCreateTempView(sqlident.DialectPrimary, viewName, step.SQLQuery)
	if err != nil {
		return nil, nil, err
	}
	insertSQL, err := sqlident.BuildInsertSelect(sqlident.DialectPrimary, step.TableName, viewName)
	if err != nil {
		return nil, nil, err
	}
	dropSQL, err := sqlident.BuildDropView(sqlident.DialectPrimary, viewName)
	if err != nil {
		return nil, nil, err
	}

	return []model.Statement{{SQL: viewSQL}, {SQL: insertSQL}, {SQL: dropSQL}}, map[string]any{}, nil
}

func validateAppendSchema(ctx context.Context, eng engine.Client, step model.TransformStep) error {
	target, err := columnsOf(ctx, eng, step.TableName)
	if err != nil {
		return err
	}
	source, err := sourceColumns(ctx, eng, step.SQLQuery)
	if err != nil {
		return err
	}
	if !compatible(source, target) {
		return model.SchemaValidationError(step.TableName, namesOf(source), namesOf(target))
	}
	return nil
}

func sourceColumns(ctx context.Context, eng engine.Client, query string) (columnSet, error) {
	result, err := eng.Execute(ctx, fmt.Sprintf("SELECT * FROM (%s) AS _schema_probe LIMIT 0", query), nil)
	if err != nil {
		return nil, err
	}
	names, err := result.Columns()
	if err != nil {
		return nil, err
	}
	return columnsFromNames(names), nil
}

func namesOf(set columnSet) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}
