package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.MaxIterations)
	assert.Equal(t, 1000, cfg.ResultCacheCap)
	assert.Equal(t, []string{"high", "critical"}, cfg.ApprovalRiskLevelsThatRequire)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("MAX_ITERATIONS", "7")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxIterations)
}

func TestLoadYAMLOverlayForListsAndMaps(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "overlay-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString(`
sensitive_tables:
  - users
  - payments
role_limits:
  analyst:
    max_tables: 3
    max_joins: 2
    max_rows: 500
    daily_query_quota: 50
`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load("", f.Name())
	require.NoError(t, err)
	assert.True(t, cfg.IsSensitiveTable("Users"))
	assert.Equal(t, 3, cfg.RoleLimitFor("analyst").MaxTables)
}

func TestRoleLimitForUnknownRoleFallsBack(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	rl := cfg.RoleLimitFor("nonexistent")
	assert.Equal(t, 5, rl.MaxTables)
}

func TestRequiresApprovalIsCaseInsensitive(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.True(t, cfg.RequiresApproval("HIGH"))
	assert.False(t, cfg.RequiresApproval("low"))
}
