package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
)

func TestResultCacheRoundTrip(t *testing.T) {
	c, err := NewResultCache(10)
	require.NoError(t, err)

	result := domain.ExecutionResult{
		Columns:  []string{"region", "total"},
		Rows:     [][]any{{"west", 100}},
		RowCount: 1,
		Status:   domain.ExecutionSuccess,
	}
	c.Put("key1", result)

	entry, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, result.Columns, entry.Result.Columns)
	assert.Equal(t, result.Rows, entry.Result.Rows)
	assert.Equal(t, result.RowCount, entry.Result.RowCount)
}

func TestResultCacheMissReturnsFalse(t *testing.T) {
	c, err := NewResultCache(10)
	require.NoError(t, err)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestResultCacheEvictsBeyondCapacity(t *testing.T) {
	c, err := NewResultCache(2)
	require.NoError(t, err)

	c.Put("a", domain.ExecutionResult{RowCount: 0})
	c.Put("b", domain.ExecutionResult{RowCount: 0})
	c.Put("c", domain.ExecutionResult{RowCount: 0})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
}
