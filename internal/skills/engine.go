package skills

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
)

// derivableAllowlist holds concepts the Engine can always resolve even
// without a physical match, exempting them from forcing a clarification
// (spec §4.2 confidence calculus: "not in a small derivable-concept
// allowlist (temporal parts, aggregations)").
var derivableAllowlist = map[string]bool{
	"day": true, "month": true, "quarter": true, "year": true,
	"total": true, "sum": true, "average": true, "count": true, "max": true, "min": true,
}

var aggregationVerbs = map[string]bool{
	"total": true, "sum": true, "average": true, "count": true, "max": true, "min": true,
}

// Engine implements the Skills Engine's resolve(user_text, intent, schema,
// enrichment?) -> SkillsOutput contract (spec §4.2).
type Engine struct {
	Dialect domain.DatabaseKind
}

func New(dialect domain.DatabaseKind) *Engine {
	return &Engine{Dialect: dialect}
}

// Resolve maps business concepts extracted from userText onto columns of
// schema, in the strict priority order spec §4.2 lays out.
func (e *Engine) Resolve(userText string, schema *domain.SchemaSnapshot) domain.SkillsOutput {
	concepts := extractConcepts(userText)
	referencedTables := tablesReferencedIn(userText, schema)

	explicit := parseUserClarifications(userText)
	explicitByConcept := make(map[string]domain.ColumnMapping, len(explicit))
	for _, m := range explicit {
		explicitByConcept[strings.ToLower(m.Concept)] = m
	}

	var mappings []domain.ColumnMapping
	var unmapped []string

	for _, concept := range concepts {
		if m, ok := explicitByConcept[strings.ToLower(concept)]; ok {
			mappings = append(mappings, m)
			continue
		}

		if m, ok := e.resolveConcept(concept, userText, schema, referencedTables); ok {
			mappings = append(mappings, m)
			continue
		}

		unmapped = append(unmapped, concept)
		mappings = append(mappings, domain.ColumnMapping{Concept: concept, Kind: domain.MappingNotFound})
	}

	implicit := inferImplicitOps(userText)

	overall, needsClarification, clarificationConcepts := confidenceCalculus(mappings, unmapped)

	out := domain.SkillsOutput{
		Mappings:          mappings,
		OverallConfidence: overall,
		ImplicitOps:       implicit,
		OK:                !needsClarification,
	}
	if needsClarification {
		out.Mappings = mappings // invariant: mappings may remain populated or be empty; we keep partial results for context
		out.Clarification = &domain.Clarification{
			Message:          clarificationMessage(clarificationConcepts, referencedTables, schema),
			ReferencedTables: referencedTables,
			UnmappedConcepts: clarificationConcepts,
		}
	}
	return out
}

// resolveConcept applies steps 2-6 of spec §4.2 in priority order.
func (e *Engine) resolveConcept(concept, userText string, schema *domain.SchemaSnapshot, referencedTables []string) (domain.ColumnMapping, bool) {
	tables := referencedTables
	if len(tables) == 0 {
		tables = allTableNames(schema)
	}

	// Step 2: exact column match (highest precision), then partial
	// substring match at lower confidence.
	for _, table := range tables {
		for _, col := range schema.Tables[table] {
			if strings.EqualFold(col.Name, concept) {
				return domain.ColumnMapping{Concept: concept, Kind: domain.MappingPhysical, Expression: qualify(table, col.Name), Table: table, Confidence: 95}, true
			}
		}
	}
	for _, table := range tables {
		for _, col := range schema.Tables[table] {
			if strings.Contains(strings.ToUpper(col.Name), strings.ToUpper(concept)) {
				return domain.ColumnMapping{Concept: concept, Kind: domain.MappingPhysical, Expression: qualify(table, col.Name), Table: table, Confidence: 70}, true
			}
		}
	}

	// Step 3: semantic alias + fuzzy match.
	aliases := aliasesFor(concept)
	for _, table := range tables {
		for _, col := range schema.Tables[table] {
			for _, alias := range aliases {
				if strings.EqualFold(col.Name, alias) {
					return domain.ColumnMapping{Concept: concept, Kind: domain.MappingPhysical, Expression: qualify(table, col.Name), Table: table, Confidence: 85}, true
				}
			}
			if similarityRatio(col.Name, concept) >= fuzzyThreshold {
				return domain.ColumnMapping{Concept: concept, Kind: domain.MappingPhysical, Expression: qualify(table, col.Name), Table: table, Confidence: 75}, true
			}
		}
	}

	// Step 4: derived-temporal synthesis.
	if temporalParts[strings.ToLower(concept)] {
		for _, table := range tables {
			if dateCol, ok := bestDateColumn(schema.Tables[table]); ok {
				if hint, ok := derivedExpression(e.Dialect, table, dateCol, strings.ToLower(concept)); ok {
					return domain.ColumnMapping{Concept: concept, Kind: domain.MappingDerived, Expression: hint.Expression, Table: table, Confidence: 95, Note: hint.Note}, true
				}
			}
		}
	}

	// Step 5: numeric-metric heuristic.
	for _, table := range tables {
		for _, col := range schema.Tables[table] {
			if isNumericType(col.Type) && strings.Contains(strings.ToUpper(col.Name), strings.ToUpper(concept)) {
				return domain.ColumnMapping{Concept: concept, Kind: domain.MappingPhysical, Expression: qualify(table, col.Name), Table: table, Confidence: 65}, true
			}
		}
	}

	// Step 6: aggregation heuristic.
	if aggregationVerbs[strings.ToLower(concept)] {
		for _, table := range tables {
			for _, col := range schema.Tables[table] {
				if isNumericType(col.Type) {
					agg := aggregationFunctionFor(concept)
					return domain.ColumnMapping{
						Concept:    concept,
						Kind:       domain.MappingAggregated,
						Expression: agg + "(" + qualify(table, col.Name) + ")",
						Table:      table,
						Confidence: 80,
					}, true
				}
			}
		}
	}

	return domain.ColumnMapping{}, false
}

func aggregationFunctionFor(verb string) string {
	switch strings.ToLower(verb) {
	case "total", "sum":
		return "SUM"
	case "average":
		return "AVG"
	case "count":
		return "COUNT"
	case "max":
		return "MAX"
	case "min":
		return "MIN"
	default:
		return "SUM"
	}
}

func isNumericType(t string) bool {
	t = strings.ToUpper(t)
	for _, prefix := range []string{"NUMBER", "NUMERIC", "INT", "DECIMAL", "FLOAT", "DOUBLE", "BIGINT"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func qualify(table, column string) string {
	return table + "." + column
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)

// extractConcepts pulls candidate business-concept words out of userText.
// This is intentionally simple token extraction; disambiguation happens
// in resolveConcept via the schema.
func extractConcepts(userText string) []string {
	stop := map[string]bool{
		"the": true, "a": true, "an": true, "by": true, "for": true, "of": true, "in": true,
		"show": true, "list": true, "get": true, "me": true, "and": true, "top": true, "per": true,
	}
	var concepts []string
	seen := map[string]bool{}
	for _, w := range wordPattern.FindAllString(userText, -1) {
		lw := strings.ToLower(w)
		if stop[lw] || seen[lw] {
			continue
		}
		seen[lw] = true
		concepts = append(concepts, w)
	}
	return concepts
}

func allTableNames(schema *domain.SchemaSnapshot) []string {
	names := make([]string, 0, len(schema.Tables))
	for t := range schema.Tables {
		names = append(names, t)
	}
	return names
}

func tablesReferencedIn(userText string, schema *domain.SchemaSnapshot) []string {
	var refs []string
	upper := strings.ToUpper(userText)
	for t := range schema.Tables {
		if strings.Contains(upper, strings.ToUpper(t)) {
			refs = append(refs, t)
		}
	}
	return refs
}

var (
	groupByPattern = regexp.MustCompile(`(?i)\b(?:by|per|for each)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	topNPattern    = regexp.MustCompile(`(?i)\btop\s+(\d+)\b`)
	highestPattern = regexp.MustCompile(`(?i)\b(highest|descending|largest)\b`)
	lowestPattern  = regexp.MustCompile(`(?i)\b(lowest|ascending|smallest)\b`)
	limitPattern   = regexp.MustCompile(`(?i)\blimit\s+(\d+)\b`)
)

// inferImplicitOps scans userText independently for grouping, sorting,
// and limit cues (spec §4.2 "implicit-operation inference").
func inferImplicitOps(userText string) domain.ImplicitOps {
	var ops domain.ImplicitOps

	for _, m := range groupByPattern.FindAllStringSubmatch(userText, -1) {
		ops.GroupByHints = append(ops.GroupByHints, m[1])
	}

	if highestPattern.MatchString(userText) {
		ops.OrderByHints = append(ops.OrderByHints, "DESC")
	}
	if lowestPattern.MatchString(userText) {
		ops.OrderByHints = append(ops.OrderByHints, "ASC")
	}

	if m := topNPattern.FindStringSubmatch(userText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			ops.LimitHint = n
		}
	} else if m := limitPattern.FindStringSubmatch(userText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			ops.LimitHint = n
		}
	}

	for verb := range aggregationVerbs {
		if regexp.MustCompile(`(?i)\b` + verb + `\b`).MatchString(userText) {
			ops.AggregationHints = append(ops.AggregationHints, verb)
		}
	}

	return ops
}

// confidenceCalculus implements spec §4.2's penalty model: average of
// mapped concepts minus 50 if mappings span >=2 tables, minus 20 per
// not_found, minus 10 per mapping below 80. Below 65, or any unmapped
// concept outside the derivable allowlist, forces clarification.
func confidenceCalculus(mappings []domain.ColumnMapping, unmapped []string) (overall int, needsClarification bool, clarificationConcepts []string) {
	if len(mappings) == 0 {
		return 0, true, unmapped
	}

	sum := 0
	notFoundCount := 0
	below80Count := 0
	tables := map[string]bool{}
	for _, m := range mappings {
		sum += m.Confidence
		if m.Kind == domain.MappingNotFound {
			notFoundCount++
		}
		if m.Confidence < 80 && m.Kind != domain.MappingNotFound {
			below80Count++
		}
		if m.Table != "" {
			tables[m.Table] = true
		}
	}

	avg := sum / len(mappings)
	penalty := 0
	if len(tables) >= 2 {
		penalty += 50
	}
	penalty += 20 * notFoundCount
	penalty += 10 * below80Count

	overall = avg - penalty
	if overall < 0 {
		overall = 0
	}

	var forcedConcepts []string
	for _, c := range unmapped {
		if !derivableAllowlist[strings.ToLower(c)] {
			forcedConcepts = append(forcedConcepts, c)
		}
	}

	needsClarification = overall < 65 || len(forcedConcepts) > 0
	if needsClarification {
		clarificationConcepts = forcedConcepts
		if len(clarificationConcepts) == 0 {
			clarificationConcepts = unmapped
		}
	}
	return overall, needsClarification, clarificationConcepts
}

func clarificationMessage(concepts, tables []string, schema *domain.SchemaSnapshot) string {
	var sb strings.Builder
	sb.WriteString("I couldn't confidently map: ")
	sb.WriteString(strings.Join(concepts, ", "))
	if len(tables) > 0 {
		sb.WriteString(". Columns available on ")
		sb.WriteString(tables[0])
		sb.WriteString(": ")
		var cols []string
		for _, c := range schema.Tables[tables[0]] {
			cols = append(cols, c.Name)
		}
		sb.WriteString(strings.Join(cols, ", "))
	}
	return sb.String()
}
