package timesub

import (
	"fmt"
	"regexp"
	"strings"
)

// templateVarPattern matches ${name}, ${name|default}, or $name — the
// generic config/template substitution syntax. This is deliberately
// separate from Substitute: it never runs against SQL text reaching the
// engine, only against configuration/template strings (spec.md §4.2).
var templateVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:\|([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

var validVarName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ExpandTemplate replaces ${name}, ${name|default} and $name occurrences
// with values from vars, falling back to the default (or leaving the
// reference untouched when no default is given and the name is missing).
// Supplemented from original_source's core/variables/v2/validation.py: a
// variable name failing the identifier-like pattern is left untouched
// rather than silently substituted, matching the original's refusal to
// expand malformed references.
func ExpandTemplate(s string, vars map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := templateVarPattern.FindStringSubmatch(match)
		name := groups[1]
		def := groups[2]
		hasDefault := strings.ContainsRune(match, '|')
		if name == "" {
			name = groups[3]
		}
		if !validVarName.MatchString(name) {
			return match
		}
		if v, ok := vars[name]; ok {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// ValidateVarName reports whether name is a legal template variable name.
func ValidateVarName(name string) error {
	if !validVarName.MatchString(name) {
		return fmt.Errorf("invalid template variable name %q", name)
	}
	return nil
}
