package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
)

func TestStripFencesAndLabels(t *testing.T) {
	raw := "```sql\nSQL: SELECT 1 FROM dual\n```"
	got := stripFencesAndLabels(raw)
	assert.Equal(t, "SELECT 1 FROM dual", got)
}

func TestDetectClarificationMarker(t *testing.T) {
	msg, ok := detectClarificationMarker("-- ERROR: missing cohort column")
	require.True(t, ok)
	assert.Equal(t, "missing cohort column", msg)
}

func TestExtractConfidenceStripsComment(t *testing.T) {
	sql := "SELECT 1\n-- CONFIDENCE: 87%"
	cleaned, confidence := extractConfidence(sql)
	assert.Equal(t, 87, confidence)
	assert.NotContains(t, cleaned, "CONFIDENCE")
}

func TestTakeFirstStatementWarnsOnMultiple(t *testing.T) {
	sql := "SELECT 1; SELECT 2"
	got, warnings := takeFirstStatement(sql)
	assert.Equal(t, "SELECT 1", got)
	assert.Len(t, warnings, 1)
}

func TestTakeFirstStatementIgnoresSemicolonInsideQuotes(t *testing.T) {
	sql := "SELECT 'a;b' FROM t"
	got, warnings := takeFirstStatement(sql)
	assert.Equal(t, sql, got)
	assert.Empty(t, warnings)
}

func TestDowncasePostgresIdentifiersPreservesQuotedAndKeywords(t *testing.T) {
	sql := `SELECT REGION, "MixedCase" FROM Orders WHERE REGION = 'WEST'`
	got := downcasePostgresIdentifiers(sql)
	assert.Contains(t, got, "region")
	assert.Contains(t, got, `"MixedCase"`)
	assert.Contains(t, got, "'WEST'")
	assert.Contains(t, got, "SELECT")
}

func TestValidateIdentifiersRejectsUnknown(t *testing.T) {
	schema := &domain.SchemaSnapshot{Tables: map[string][]domain.Column{
		"orders": {{Name: "region"}},
	}}
	err := validateIdentifiers("SELECT region, bogus_col FROM orders", schema)
	require.Error(t, err)
	var invalidErr *InvalidIdentifierError
	require.ErrorAs(t, err, &invalidErr)
	assert.Contains(t, invalidErr.Identifiers, "bogus_col")
}

func TestValidateIdentifiersAcceptsKnownSchema(t *testing.T) {
	schema := &domain.SchemaSnapshot{Tables: map[string][]domain.Column{
		"orders": {{Name: "region"}},
	}}
	err := validateIdentifiers("SELECT region FROM orders", schema)
	assert.NoError(t, err)
}

func TestApplyRowLimitUsesFetchFirstForOracle(t *testing.T) {
	got := applyRowLimit("SELECT 1 FROM dual", domain.DatabaseOracle, 0, 1000)
	assert.Contains(t, got, "FETCH FIRST 1000 ROWS ONLY")
}

func TestApplyRowLimitPrefersRoleCapOverHardCap(t *testing.T) {
	got := applyRowLimit("SELECT 1", domain.DatabasePostgres, 50, 1000)
	assert.Contains(t, got, "LIMIT 50")
}

func TestApplyRowLimitHardCapWinsWhenSmaller(t *testing.T) {
	got := applyRowLimit("SELECT 1", domain.DatabasePostgres, 5000, 1000)
	assert.Contains(t, got, "LIMIT 1000")
}
