package skills

import (
	"fmt"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
)

// temporalParts are the concepts derived-temporal synthesis knows how to
// build an expression for when no physical column matches (spec §4.2
// step 4).
var temporalParts = map[string]bool{
	"day": true, "month": true, "quarter": true, "year": true,
}

// bestDateColumn picks the date column synthesis should derive from:
// explicitly named date columns first, then the first column whose type
// begins with DATE or TIMESTAMP (spec §4.2 step 4 priority order).
func bestDateColumn(cols []domain.Column) (domain.Column, bool) {
	dateNames := map[string]bool{"DATE": true, "ORDER_DATE": true, "CREATED_AT": true, "TRANSACTION_DATE": true, "EVENT_DATE": true}
	for _, c := range cols {
		if dateNames[strings.ToUpper(c.Name)] {
			return c, true
		}
	}
	for _, c := range cols {
		t := strings.ToUpper(c.Type)
		if strings.HasPrefix(t, "DATE") || strings.HasPrefix(t, "TIMESTAMP") {
			return c, true
		}
	}
	return domain.Column{}, false
}

// derivedExpression synthesizes a dialect-specific expression for concept
// (one of day/month/quarter/year) over table.column, e.g. Oracle
// TO_CHAR(t.order_date,'Q') for quarter.
func derivedExpression(dialect domain.DatabaseKind, table string, col domain.Column, concept string) (domain.DerivedHint, bool) {
	qualified := fmt.Sprintf("%s.%s", table, col.Name)

	var expr string
	switch dialect {
	case domain.DatabaseOracle:
		switch concept {
		case "day":
			expr = fmt.Sprintf("TO_CHAR(%s,'DD')", qualified)
		case "month":
			expr = fmt.Sprintf("TO_CHAR(%s,'MM')", qualified)
		case "quarter":
			expr = fmt.Sprintf("TO_CHAR(%s,'Q')", qualified)
		case "year":
			expr = fmt.Sprintf("TO_CHAR(%s,'YYYY')", qualified)
		default:
			return domain.DerivedHint{}, false
		}
	case domain.DatabasePostgres:
		switch concept {
		case "day":
			expr = fmt.Sprintf("EXTRACT(DAY FROM %s)", qualified)
		case "month":
			expr = fmt.Sprintf("EXTRACT(MONTH FROM %s)", qualified)
		case "quarter":
			expr = fmt.Sprintf("EXTRACT(QUARTER FROM %s)", qualified)
		case "year":
			expr = fmt.Sprintf("EXTRACT(YEAR FROM %s)", qualified)
		default:
			return domain.DerivedHint{}, false
		}
	case domain.DatabaseDoris:
		switch concept {
		case "day":
			expr = fmt.Sprintf("DAY(%s)", qualified)
		case "month":
			expr = fmt.Sprintf("MONTH(%s)", qualified)
		case "quarter":
			expr = fmt.Sprintf("QUARTER(%s)", qualified)
		case "year":
			expr = fmt.Sprintf("YEAR(%s)", qualified)
		default:
			return domain.DerivedHint{}, false
		}
	default:
		return domain.DerivedHint{}, false
	}

	return domain.DerivedHint{
		Concept:    concept,
		Expression: expr,
		Note:       fmt.Sprintf("derived from %s", qualified),
	}, true
}
