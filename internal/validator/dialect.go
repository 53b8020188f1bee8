package validator

import (
	"strings"

	"github.com/nlsql/gateway/internal/domain"
)

// checkDialect implements spec §4.4 check 3: verify the SQL against its
// declared dialect's row-limiting syntax and return a warning if it uses
// another dialect's clause (the Synthesizer's own conversion step already
// handles the actual rewrite; this check exists to surface the drift as a
// warning if one slipped through).
func checkDialect(sql string, dialect domain.DatabaseKind) (string, bool) {
	upper := strings.ToUpper(sql)
	switch dialect {
	case domain.DatabaseOracle:
		if strings.Contains(upper, " LIMIT ") {
			return "query uses LIMIT inside an Oracle dialect statement", true
		}
	case domain.DatabasePostgres, domain.DatabaseDoris:
		if strings.Contains(upper, "FETCH FIRST") {
			return "query uses FETCH FIRST inside a non-Oracle dialect statement", true
		}
	}
	return "", false
}
