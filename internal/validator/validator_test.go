package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/platform/config"
)

func testConfig() *config.Config {
	return &config.Config{
		RoleLimits: map[string]config.RoleLimits{
			"analyst": {MaxTables: 2, MaxJoins: 1, MaxRows: 1000, DailyQueryQuota: 100},
		},
		SensitiveTables: []string{"sensitive_users"},
	}
}

func testTicket() *domain.QueryTicket {
	return &domain.QueryTicket{OwnerUser: "u1", OwnerRole: "analyst", DatabaseKind: domain.DatabasePostgres}
}

func TestValidateBlocksHighSeverityInjection(t *testing.T) {
	v := New(testConfig(), nil, nil, nil, nil)
	verdict := v.Validate(context.Background(), testTicket(), "SELECT 1; DROP TABLE users", nil, "analyst")
	assert.False(t, verdict.Valid)
	assert.Equal(t, domain.RiskCritical, verdict.RiskLevel)
}

func TestValidatePassesCleanQuery(t *testing.T) {
	v := New(testConfig(), nil, nil, nil, nil)
	verdict := v.Validate(context.Background(), testTicket(), "SELECT region FROM orders", nil, "analyst")
	assert.True(t, verdict.Valid)
}

func TestValidateForcesApprovalForSensitiveTable(t *testing.T) {
	v := New(testConfig(), nil, nil, nil, nil)
	verdict := v.Validate(context.Background(), testTicket(), "SELECT * FROM sensitive_users", nil, "analyst")
	require.True(t, verdict.Valid)
	assert.True(t, verdict.ForceApproval)
}

func TestValidateForcesApprovalOverScopeLimit(t *testing.T) {
	v := New(testConfig(), nil, nil, nil, nil)
	sql := "SELECT * FROM orders JOIN customers ON orders.cid = customers.id JOIN products ON orders.pid = products.id"
	verdict := v.Validate(context.Background(), testTicket(), sql, nil, "analyst")
	assert.True(t, verdict.ForceApproval)
}

func TestValidateDetectsCartesianJoin(t *testing.T) {
	v := New(testConfig(), nil, nil, nil, nil)
	verdict := v.Validate(context.Background(), testTicket(), "SELECT * FROM orders JOIN customers", nil, "analyst")
	assert.True(t, verdict.ForceApproval)
	assert.Contains(t, verdict.RiskReasons, "cartesian join without predicate")
}

func TestValidateStructuralRejectsMultipleStatements(t *testing.T) {
	v := New(testConfig(), nil, nil, nil, nil)
	verdict := v.Validate(context.Background(), testTicket(), "SELECT 1; SELECT 2", nil, "analyst")
	assert.False(t, verdict.Valid)
}

func TestClassifyQueryKind(t *testing.T) {
	assert.Equal(t, domain.QuerySelect, classifyQueryKind("SELECT 1"))
	assert.Equal(t, domain.QueryDDL, classifyQueryKind("DROP TABLE x"))
	assert.Equal(t, domain.QueryDML, classifyQueryKind("INSERT INTO x VALUES (1)"))
}

func TestHasCartesianJoinDetectsCommaJoinWithoutWhere(t *testing.T) {
	assert.True(t, hasCartesianJoin("SELECT * FROM orders, customers"))
	assert.False(t, hasCartesianJoin("SELECT * FROM orders, customers WHERE orders.cid = customers.id"))
}

func TestEnforceRowLimitUsesFetchFirstForOracle(t *testing.T) {
	got := enforceRowLimit("SELECT 1 FROM dual", domain.DatabaseOracle, 500)
	assert.Contains(t, got, "FETCH FIRST 500 ROWS ONLY")
}
