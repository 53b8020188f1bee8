package domain

// MappingKind enumerates how a business concept was resolved to SQL.
type MappingKind string

const (
	MappingPhysical   MappingKind = "physical"
	MappingDerived    MappingKind = "derived"
	MappingAggregated MappingKind = "aggregated"
	MappingNotFound   MappingKind = "not_found"
)

// ColumnMapping is the result of resolving one business concept (spec §3).
type ColumnMapping struct {
	Concept    string
	Kind       MappingKind
	Expression string
	Table      string
	Confidence int
	Note       string
}

// Clarification describes why the Skills Engine could not proceed without
// more user input.
type Clarification struct {
	Message          string
	ReferencedTables []string
	UnmappedConcepts []string
}

// ImplicitOps captures grouping/sorting/limit cues scanned independently of
// concept resolution (spec §4.2).
type ImplicitOps struct {
	GroupByHints     []string
	OrderByHints     []string
	LimitHint        int
	AggregationHints []string
}

// SkillsOutput is the Skills Engine's result for one ticket.
type SkillsOutput struct {
	Mappings         []ColumnMapping
	OverallConfidence int
	Clarification    *Clarification
	ImplicitOps      ImplicitOps
	OK               bool
}
