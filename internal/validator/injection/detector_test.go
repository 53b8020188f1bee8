package injection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nlsql/gateway/internal/domain"
)

func TestScanDetectsStackedQueryAsCritical(t *testing.T) {
	d := New()
	findings, score := d.Scan("SELECT 1; DROP TABLE users")
	assert.True(t, HasBlockingSeverity(findings))
	assert.Greater(t, score, 0.0)
}

func TestScanDetectsUnionBased(t *testing.T) {
	d := New()
	findings, _ := d.Scan("SELECT id FROM users UNION SELECT password FROM admins")
	var found bool
	for _, f := range findings {
		if f.Kind == "union_based" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestScanCleanQueryHasNoBlockingFindings(t *testing.T) {
	d := New()
	findings, score := d.Scan("SELECT region, SUM(sales_amount) FROM orders GROUP BY region")
	assert.False(t, HasBlockingSeverity(findings))
	assert.Less(t, score, 30.0)
}

func TestScanExcessiveOrClausesFlagged(t *testing.T) {
	d := New()
	sql := "SELECT 1 WHERE a=1 OR b=1 OR c=1 OR d=1 OR e=1 OR f=1 OR g=1"
	findings, _ := d.Scan(sql)
	var found bool
	for _, f := range findings {
		if f.Kind == "excessive_or_clauses" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestScoreCapsAt100(t *testing.T) {
	d := New()
	sql := "SELECT 1; DROP TABLE users; LOAD_FILE('/etc/passwd'); XP_CMDSHELL('dir'); UTL_HTTP.request('x')"
	_, score := d.Scan(sql)
	assert.LessOrEqual(t, score, 100.0)
}

func TestConfidenceForSeverity(t *testing.T) {
	assert.Equal(t, 0.95, confidenceFor(domain.SeverityCritical))
	assert.Equal(t, 0.3, confidenceFor(domain.SeverityLow))
}
