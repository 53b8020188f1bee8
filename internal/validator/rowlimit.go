package validator

import (
	"fmt"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
)

// enforceRowLimit implements spec §4.4 check 7's rewrite: cap rows at the
// role's max using the dialect's limiting clause, unless one is already
// present (the Synthesizer may have already applied the hard cap).
func enforceRowLimit(sql string, dialect domain.DatabaseKind, cap int) string {
	upper := strings.ToUpper(sql)
	if strings.Contains(upper, "FETCH FIRST") || strings.Contains(upper, " LIMIT ") {
		return sql
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	if dialect == domain.DatabaseOracle {
		return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", trimmed, cap)
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, cap)
}
