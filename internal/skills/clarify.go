package skills

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"github.com/nlsql/gateway/internal/domain"
)

// Spec §4.2 step 1: "use X as Y", "Y = expression" (sum/difference of
// identifiers), "calculate Y as (...)".
var (
	useAsPattern       = regexp.MustCompile(`(?i)\buse\s+([A-Za-z_][A-Za-z0-9_]*)\s+as\s+([A-Za-z_][A-Za-z0-9_]*)\b`)
	assignmentPattern  = regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([A-Za-z0-9_\s+\-]+)\b`)
	calculateAsPattern = regexp.MustCompile(`(?i)\bcalculate\s+([A-Za-z_][A-Za-z0-9_]*)\s+as\s+\(([^)]+)\)`)

	arithmeticExprPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\s*[+\-]\s*[A-Za-z0-9_]+)+$`)
)

// parseUserClarifications extracts explicit user directives from text, in
// priority order: calculate-as, use-as, then bare assignment. Arithmetic
// expressions become derived mappings with confidence 100; simple
// mappings become physical (spec §4.2 step 1).
func parseUserClarifications(text string) []domain.ColumnMapping {
	var mappings []domain.ColumnMapping

	for _, m := range calculateAsPattern.FindAllStringSubmatch(text, -1) {
		concept, expr := m[1], strings.TrimSpace(m[2])
		if isArithmeticExpression(expr) {
			mappings = append(mappings, domain.ColumnMapping{
				Concept:    concept,
				Kind:       domain.MappingDerived,
				Expression: expr,
				Confidence: 100,
				Note:       "user-supplied calculation",
			})
		}
	}

	for _, m := range useAsPattern.FindAllStringSubmatch(text, -1) {
		column, concept := m[1], m[2]
		mappings = append(mappings, domain.ColumnMapping{
			Concept:    concept,
			Kind:       domain.MappingPhysical,
			Expression: column,
			Confidence: 100,
			Note:       "user-supplied alias",
		})
	}

	for _, m := range assignmentPattern.FindAllStringSubmatch(text, -1) {
		concept, expr := m[1], strings.TrimSpace(m[2])
		if isArithmeticExpression(expr) {
			mappings = append(mappings, domain.ColumnMapping{
				Concept:    concept,
				Kind:       domain.MappingDerived,
				Expression: expr,
				Confidence: 100,
				Note:       "user-supplied expression",
			})
		} else if isIdentifier(expr) {
			mappings = append(mappings, domain.ColumnMapping{
				Concept:    concept,
				Kind:       domain.MappingPhysical,
				Expression: expr,
				Confidence: 100,
				Note:       "user-supplied mapping",
			})
		}
	}

	return mappings
}

func isIdentifier(s string) bool {
	return regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`).MatchString(s)
}

// isArithmeticExpression validates that expr is a sum/difference of
// identifiers by both a structural regex check and compiling it as a
// sandboxed JS expression (replacing identifiers with numeric stand-ins)
// to reject anything goja can't parse as a pure arithmetic expression.
func isArithmeticExpression(expr string) bool {
	if !arithmeticExprPattern.MatchString(expr) {
		return false
	}
	return compilesAsArithmetic(expr)
}

// compilesAsArithmetic runs expr through a sandboxed goja VM with every
// identifier bound to 1, confirming the expression is valid arithmetic
// syntax without ever touching real column values.
func compilesAsArithmetic(expr string) bool {
	vm := goja.New()
	for _, ident := range regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`).FindAllString(expr, -1) {
		if err := vm.Set(ident, 1); err != nil {
			return false
		}
	}
	_, err := vm.RunString(expr)
	return err == nil
}

// sanityCheckExpression is used by the Synthesizer to confirm a derived
// expression still references only the concept's source columns before
// substituting it verbatim into SQL (spec §4.2 invariant).
func sanityCheckExpression(expr string, allowedIdentifiers []string) error {
	allowed := make(map[string]bool, len(allowedIdentifiers))
	for _, id := range allowedIdentifiers {
		allowed[strings.ToUpper(id)] = true
	}
	for _, ident := range regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`).FindAllString(expr, -1) {
		if !allowed[strings.ToUpper(ident)] {
			return fmt.Errorf("expression references unknown identifier %q", ident)
		}
	}
	return nil
}
