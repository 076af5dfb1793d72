package sqlident

import (
	"fmt"
	"strings"
)

// Dialect selects the quoting convention for generated identifiers.
type Dialect string

const (
	DialectPrimary  Dialect = "primary"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
)

// QuoteIdentifier validates name then quotes it per dialect.
func QuoteIdentifier(d Dialect, name string) (string, error) {
	if err := Validate(name); err != nil {
		return "", err
	}
	switch d {
	case DialectMySQL:
		return "`" + name + "`", nil
	default:
		return `"` + name + `"`, nil
	}
}

// QuoteSchemaTable quotes a "schema.table" pair, validating both parts.
func QuoteSchemaTable(d Dialect, schema, table string) (string, error) {
	qt, err := QuoteIdentifier(d, table)
	if err != nil {
		return "", err
	}
	if schema == "" {
		return qt, nil
	}
	qs, err := QuoteIdentifier(d, schema)
	if err != nil {
		return "", err
	}
	return qs + "." + qt, nil
}

// FormatColumnList validates and quotes every column, joined with ", ".
func FormatColumnList(d Dialect, columns []string) (string, error) {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		q, err := QuoteIdentifier(d, c)
		if err != nil {
			return "", err
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, ", "), nil
}

// BuildSelectStar builds "SELECT * FROM {table}" with the table quoted.
func BuildSelectStar(d Dialect, table string) (string, error) {
	qt, err := QuoteIdentifier(d, table)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s", qt), nil
}

// BuildCreateTableAs builds "CREATE TABLE {table} AS {query}".
func BuildCreateTableAs(d Dialect, table, query string) (string, error) {
	qt, err := QuoteIdentifier(d, table)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE %s AS %s", qt, query), nil
}

// BuildCreateOrReplaceTableAs builds "CREATE OR REPLACE TABLE {table} AS {query}".
func BuildCreateOrReplaceTableAs(d Dialect, table, query string) (string, error) {
	qt, err := QuoteIdentifier(d, table)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", qt, query), nil
}

// BuildDropTable builds "DROP TABLE IF EXISTS {table}".
func BuildDropTable(d Dialect, table string) (string, error) {
	qt, err := QuoteIdentifier(d, table)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", qt), nil
}

// BuildDropView builds "DROP VIEW IF EXISTS {view}".
func BuildDropView(d Dialect, view string) (string, error) {
	qv, err := QuoteIdentifier(d, view)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", qv), nil
}

// BuildCreateTempView builds "CREATE TEMPORARY VIEW {view} AS {query}".
func BuildCreateTempView(d Dialect, view, query string) (string, error) {
	qv, err := QuoteIdentifier(d, view)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TEMPORARY VIEW %s AS %s", qv, query), nil
}

// BuildInsertSelect builds "INSERT INTO {table} SELECT * FROM {source}".
func BuildInsertSelect(d Dialect, table, source string) (string, error) {
	qt, err := QuoteIdentifier(d, table)
	if err != nil {
		return "", err
	}
	qs, err := QuoteIdentifier(d, source)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", qt, qs), nil
}

// BuildInsertOrReplaceSelect builds the engine's upsert-by-replace statement.
func BuildInsertOrReplaceSelect(d Dialect, table, source string) (string, error) {
	qt, err := QuoteIdentifier(d, table)
	if err != nil {
		return "", err
	}
	qs, err := QuoteIdentifier(d, source)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT OR REPLACE INTO %s SELECT * FROM %s", qt, qs), nil
}
