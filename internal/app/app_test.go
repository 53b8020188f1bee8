package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/platform/config"
)

func TestBuildBackendsRejectsUnsupportedDialect(t *testing.T) {
	cfg := &config.Config{
		Connections: []config.ConnectionConfig{
			{Name: "default", DatabaseType: "sqlite", DSN: "ignored"},
		},
	}
	_, _, err := buildBackends(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestBuildBackendsDedupesByDialect(t *testing.T) {
	cfg := &config.Config{
		PoolMin: 1, PoolMax: 5,
		BreakerThreshold: 5, BreakerCoolOffS: 30,
		Connections: []config.ConnectionConfig{
			{Name: "primary", DatabaseType: "postgres", DSN: "postgres://localhost/a"},
			{Name: "secondary", DatabaseType: "postgres", DSN: "postgres://localhost/b"},
		},
	}

	backends, connections, err := buildBackends(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, connections, 2)
	assert.Len(t, backends, 1)
	assert.Contains(t, backends, domain.DatabasePostgres)
}
