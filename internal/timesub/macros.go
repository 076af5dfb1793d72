// Package timesub implements the secure time-macro substitution (C2): it
// replaces a fixed set of recognized @-macros with named placeholders and
// returns the bound parameter values, never interpreting arbitrary SQL text.
package timesub

import (
	"strings"
	"time"
)

// macro -> placeholder, in match order.
var macroPlaceholders = []struct {
	macro       string
	placeholder string
}{
	{"@start_date", "$start_date"},
	{"@end_date", "$end_date"},
	{"@start_dt", "$start_dt"},
	{"@end_dt", "$end_dt"},
}

// Substitute replaces recognized macros in sql with named placeholders and
// returns the rewritten SQL plus a parameter map. All four parameter
// entries are always populated, even if the corresponding macro does not
// appear in sql.
func Substitute(sql string, start, end time.Time) (string, map[string]any) {
	out := sql
	for _, m := range macroPlaceholders {
		out = strings.ReplaceAll(out, m.macro, m.placeholder)
	}
	params := map[string]any{
		"start_date": start.Format("2006-01-02"),
		"end_date":   end.Format("2006-01-02"),
		"start_dt":   start.Format("2006-01-02T15:04:05"),
		"end_dt":     end.Format("2006-01-02T15:04:05"),
	}
	return out, params
}
