package partition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

var orderByPattern = regexp.MustCompile(`(?i)\border\s+by\b`)

// injectPredicate textually inserts "col >= start AND col < end" into
// query: ANDed with an existing WHERE clause if present, inserted as a new
// WHERE otherwise, always placed before ORDER BY. No SQL parsing is
// performed (spec.md §4.4) — values are quoted as ISO-8601 literals since
// the column itself comes from a validated identifier, not user text.
func injectPredicate(query string, column string, tr model.TimeRange) string {
	qCol, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, column)
	if err != nil {
		qCol = column
	}
	predicate := fmt.Sprintf("%s >= '%s' AND %s < '%s'",
		qCol, tr.Start.UTC().Format("2006-01-02T15:04:05Z"),
		qCol, tr.End.UTC().Format("2006-01-02T15:04:05Z"))

	loc := orderByPattern.FindStringIndex(query)
	head, tail := query, ""
	if loc != nil {
		head, tail = query[:loc[0]], query[loc[0]:]
	}

	upperHead := strings.ToUpper(head)
	if strings.Contains(upperHead, "WHERE") {
		head = strings.TrimRight(head, " \t\n") + " AND " + predicate + " "
	} else {
		head = strings.TrimRight(head, " \t\n") + " WHERE " + predicate + " "
	}

	return head + tail
}
