package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
)

var bareSemicolonInner = regexp.MustCompile(`;.+\S`)

// checkStructural implements spec §4.4 check 2: must be a single
// statement after normalization; for SELECT, a bare ';' inside is
// forbidden.
func checkStructural(sql string, kind domain.QueryKind) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("empty SQL after normalization")
	}
	if kind == domain.QuerySelect && bareSemicolonInner.MatchString(strings.TrimRight(trimmed, ";")) {
		return fmt.Errorf("multiple statements are not permitted")
	}
	return nil
}
