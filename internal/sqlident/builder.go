package sqlident

import (
	"fmt"
	"strings"
)

// allowedOperators is the closed set WHERE-condition builders validate against.
var allowedOperators = map[string]bool{
	"=": true, "!=": true, "<>": true, ">": true, "<": true, ">=": true, "<=": true,
	"LIKE": true, "ILIKE": true, "IN": true, "NOT IN": true, "IS": true, "IS NOT": true,
}

// ParameterizedQueryBuilder allocates placeholder names and records bound
// values, so generated SQL never interpolates values as text.
type ParameterizedQueryBuilder struct {
	dialect    Dialect
	params     map[string]any
	positional []any
	named      bool
}

// NewParameterizedQueryBuilder creates a builder. named selects $name style
// placeholders (matching engine.Client's binding convention); when false,
// positional "$1", "$2", ... placeholders are allocated instead.
func NewParameterizedQueryBuilder(d Dialect, named bool) *ParameterizedQueryBuilder {
	return &ParameterizedQueryBuilder{
		dialect: d,
		params:  make(map[string]any),
		named:   named,
	}
}

// Bind allocates a placeholder for value and returns the placeholder text.
func (b *ParameterizedQueryBuilder) Bind(name string, value any) string {
	if b.named {
		if name == "" {
			name = fmt.Sprintf("p%d", len(b.params)+1)
		}
		b.params[name] = value
		return "$" + name
	}
	b.positional = append(b.positional, value)
	return fmt.Sprintf("$%d", len(b.positional))
}

// Params returns the named parameter map accumulated so far.
func (b *ParameterizedQueryBuilder) Params() map[string]any {
	return b.params
}

// Positional returns the positional parameter slice accumulated so far.
func (b *ParameterizedQueryBuilder) Positional() []any {
	return b.positional
}

// WhereCondition validates op against the closed operator set and returns
// "{quoted_column} {op} {placeholder}", binding value on the builder.
func (b *ParameterizedQueryBuilder) WhereCondition(column, op string, value any) (string, error) {
	if !allowedOperators[strings.ToUpper(op)] {
		return "", fmt.Errorf("operator %q is not in the allowed set", op)
	}
	qc, err := QuoteIdentifier(b.dialect, column)
	if err != nil {
		return "", err
	}
	placeholder := b.Bind(column, value)
	return fmt.Sprintf("%s %s %s", qc, strings.ToUpper(op), placeholder), nil
}

// InCondition builds "{column} IN ({p1}, {p2}, ...)" binding each value.
func (b *ParameterizedQueryBuilder) InCondition(column string, values []any) (string, error) {
	qc, err := QuoteIdentifier(b.dialect, column)
	if err != nil {
		return "", err
	}
	placeholders := make([]string, 0, len(values))
	for i, v := range values {
		placeholders = append(placeholders, b.Bind(fmt.Sprintf("%s_%d", column, i), v))
	}
	return fmt.Sprintf("%s IN (%s)", qc, strings.Join(placeholders, ", ")), nil
}
