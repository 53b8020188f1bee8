package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
)

func testSchema() *domain.SchemaSnapshot {
	return &domain.SchemaSnapshot{
		DatabaseKind: domain.DatabasePostgres,
		Tables: map[string][]domain.Column{
			"orders": {
				{Name: "region", Type: "VARCHAR"},
				{Name: "sales_amount", Type: "NUMERIC"},
				{Name: "order_date", Type: "DATE"},
			},
		},
	}
}

func TestResolveExactColumnMatch(t *testing.T) {
	e := New(domain.DatabasePostgres)
	out := e.Resolve("total sales_amount by region", testSchema())
	require.True(t, out.OK)

	var found bool
	for _, m := range out.Mappings {
		if m.Concept == "region" {
			found = true
			assert.Equal(t, domain.MappingPhysical, m.Kind)
		}
	}
	assert.True(t, found)
}

func TestResolveDerivedTemporalSynthesis(t *testing.T) {
	e := New(domain.DatabasePostgres)
	out := e.Resolve("quarterly revenue by quarter", testSchema())

	var quarterMapping *domain.ColumnMapping
	for i, m := range out.Mappings {
		if m.Concept == "quarter" {
			quarterMapping = &out.Mappings[i]
		}
	}
	require.NotNil(t, quarterMapping)
	assert.Equal(t, domain.MappingDerived, quarterMapping.Kind)
	assert.Contains(t, quarterMapping.Expression, "EXTRACT(QUARTER FROM")
}

func TestResolveUnmappedConceptTriggersClarification(t *testing.T) {
	e := New(domain.DatabasePostgres)
	out := e.Resolve("show network_usage by cohort", testSchema())
	assert.False(t, out.OK)
	require.NotNil(t, out.Clarification)
	assert.Contains(t, out.Clarification.UnmappedConcepts, "cohort")
}

func TestImplicitOpsInfersLimitAndOrder(t *testing.T) {
	ops := inferImplicitOps("show top 10 highest sales by region")
	assert.Equal(t, 10, ops.LimitHint)
	assert.Contains(t, ops.OrderByHints, "DESC")
	assert.Contains(t, ops.GroupByHints, "region")
}

func TestUserClarificationParsesUseAs(t *testing.T) {
	mappings := parseUserClarifications("use sales_amount as revenue")
	require.Len(t, mappings, 1)
	assert.Equal(t, domain.MappingPhysical, mappings[0].Kind)
	assert.Equal(t, 100, mappings[0].Confidence)
}

func TestUserClarificationParsesArithmeticExpression(t *testing.T) {
	mappings := parseUserClarifications("calculate profit as (revenue - cost)")
	require.Len(t, mappings, 1)
	assert.Equal(t, domain.MappingDerived, mappings[0].Kind)
}

func TestConfidenceCalculusPenalizesCrossTableMappings(t *testing.T) {
	mappings := []domain.ColumnMapping{
		{Concept: "a", Confidence: 95, Table: "orders"},
		{Concept: "b", Confidence: 95, Table: "customers"},
	}
	overall, needsClarification, _ := confidenceCalculus(mappings, nil)
	assert.Equal(t, 45, overall) // avg 95 - 50 cross-table penalty
	assert.True(t, needsClarification)
}
