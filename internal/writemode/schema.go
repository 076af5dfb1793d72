package writemode

import (
	"context"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
)

// columnSet normalizes a catalog column list into a name->type lookup for
// compatibility comparison (spec.md §4.1 normalization rules: case-folded
// name match, compatible-type match).
type columnSet map[string]string

func columnsOf(ctx context.Context, eng engine.Client, table string) (columnSet, error) {
	cols, err := eng.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	set := make(columnSet, len(cols))
	for _, c := range cols {
		set[normalizeName(c.Name)] = normalizeType(c.DataType)
	}
	return set, nil
}

func normalizeName(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func normalizeType(t string) string {
	n := normalizeName(t)
	switch {
	case containsAny(n, "int", "integer", "bigint", "smallint"):
		return "integer"
	case containsAny(n, "float", "double", "real", "decimal", "numeric"):
		return "float"
	case containsAny(n, "char", "text", "varchar", "string"):
		return "text"
	case containsAny(n, "date", "time", "timestamp"):
		return "temporal"
	case containsAny(n, "bool"):
		return "boolean"
	default:
		return n
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// compatible reports whether target's existing columns are a
// type-compatible subset relation with source — every target column that
// also appears in source must normalize to the same coarse type. A source
// entry with an empty (unknown) type, e.g. one derived only from a SELECT's
// projected column names, is treated as a wildcard match.
func compatible(source, target columnSet) bool {
	for name, targetType := range target {
		sourceType, ok := source[name]
		if !ok {
			continue // source/select may project a narrower column set
		}
		if sourceType == "" {
			continue
		}
		if sourceType != targetType {
			return false
		}
	}
	return true
}

// columnsFromNames builds a columnSet of unknown-typed entries from a bare
// name list — the shape available from a Result's Columns() when the
// source is an arbitrary SELECT rather than a catalog table.
func columnsFromNames(names []string) columnSet {
	set := make(columnSet, len(names))
	for _, n := range names {
		set[normalizeName(n)] = ""
	}
	return set
}

// validateMergeKeys checks spec.md §4.7's MERGE precondition: merge_keys
// non-empty and every key present with compatible type in both schemas.
func validateMergeKeys(table string, keys []string, source, target columnSet) error {
	if len(keys) == 0 {
		return model.MergeKeyValidationError(table, keys, "merge_keys must be non-empty")
	}
	for _, k := range keys {
		nk := normalizeName(k)
		st, sok := source[nk]
		tt, tok := target[nk]
		if !sok || !tok {
			return model.MergeKeyValidationError(table, keys, "merge key "+k+" missing from source or target schema")
		}
		if st != "" && tt != "" && st != tt {
			return model.MergeKeyValidationError(table, keys, "merge key "+k+" has incompatible types across source and target")
		}
	}
	return nil
}
