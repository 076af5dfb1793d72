// Package sqlident validates and safely assembles SQL identifiers and
// parameterized statement fragments, so that no dynamic value generated
// elsewhere in the transform engine ever reaches the SQL engine as
// interpolated text.
package sqlident

import (
	"regexp"
	"strings"

	"github.com/sqlflowx/transformengine/internal/model"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var forbiddenSubstrings = []string{
	";", "--", "/*", "*/", "'", "\"", "\\", "(", ")",
}

var reservedWords = map[string]bool{
	"DROP": true, "DELETE": true, "INSERT": true, "UPDATE": true, "ALTER": true,
	"CREATE": true, "TRUNCATE": true, "GRANT": true, "REVOKE": true, "COMMIT": true,
	"ROLLBACK": true, "EXEC": true, "EXECUTE": true,
}

// Validate checks name against the identifier contract (spec §4.1) and
// returns an *model.TransformError (code IdentifierError) on failure.
func Validate(name string) error {
	if !identifierPattern.MatchString(name) {
		return model.IdentifierError(name, nil)
	}
	upper := strings.ToUpper(name)
	if reservedWords[upper] {
		return model.IdentifierError(name, nil)
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "xp_") || strings.Contains(lower, "sp_") {
		return model.IdentifierError(name, nil)
	}
	for _, bad := range forbiddenSubstrings {
		if strings.Contains(name, bad) {
			return model.IdentifierError(name, nil)
		}
	}
	return nil
}

// ValidateAll validates every identifier and returns the first failure.
func ValidateAll(names ...string) error {
	for _, n := range names {
		if err := Validate(n); err != nil {
			return err
		}
	}
	return nil
}
