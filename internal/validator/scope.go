package validator

import (
	"regexp"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
)

var (
	fromClausePattern = regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z_][A-Za-z0-9_]*)`)
	joinClausePattern = regexp.MustCompile(`(?i)\bjoin\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

// computeScope implements spec §4.4 check 4's table/join counting: the
// number of distinct tables referenced and the number of JOIN clauses.
func computeScope(sql string) domain.ScopeInfo {
	tables := map[string]bool{}
	for _, m := range fromClausePattern.FindAllStringSubmatch(sql, -1) {
		tables[strings.ToUpper(m[1])] = true
	}
	joins := joinClausePattern.FindAllStringSubmatch(sql, -1)
	for _, m := range joins {
		tables[strings.ToUpper(m[1])] = true
	}
	return domain.ScopeInfo{TableCount: len(tables), JoinCount: len(joins)}
}

// tablesIn extracts every table name referenced in a FROM or JOIN clause,
// used by the sensitive-table check (spec §4.4 check 5).
func tablesIn(sql string) []string {
	var tables []string
	for _, m := range fromClausePattern.FindAllStringSubmatch(sql, -1) {
		tables = append(tables, m[1])
	}
	for _, m := range joinClausePattern.FindAllStringSubmatch(sql, -1) {
		tables = append(tables, m[1])
	}
	return tables
}
