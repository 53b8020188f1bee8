package external

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
)

// memKV is a minimal in-memory KVStore fake for exercising the adapters in
// this package without a real Redis instance.
type memKV struct {
	values map[string]string
	zsets  map[string][]zmember
}

type zmember struct {
	member string
	score  float64
}

func newMemKV() *memKV {
	return &memKV{values: map[string]string{}, zsets: map[string][]zmember{}}
}

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memKV) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *memKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	out := make([]string, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memKV) Scan(ctx context.Context, pattern string, cursor uint64) ([]string, uint64, error) {
	keys, err := m.Keys(ctx, pattern)
	return keys, 0, err
}

func (m *memKV) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.zsets[key] = append(m.zsets[key], zmember{member: member, score: score})
	sort.SliceStable(m.zsets[key], func(i, j int) bool {
		return m.zsets[key][i].score < m.zsets[key][j].score
	})
	return nil
}

func (m *memKV) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	set := m.zsets[key]
	n := int64(len(set))
	if n == 0 {
		return nil, nil
	}
	norm := func(i int64) int64 {
		if i < 0 {
			i += n
		}
		if i < 0 {
			i = 0
		}
		if i >= n {
			i = n - 1
		}
		return i
	}
	s, e := norm(start), norm(stop)
	if s > e {
		return nil, nil
	}
	out := make([]string, 0, e-s+1)
	for i := s; i <= e; i++ {
		out = append(out, set[i].member)
	}
	return out, nil
}

func (m *memKV) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	set := m.zsets[key]
	n := int64(len(set))
	if n == 0 {
		return nil
	}
	norm := func(i int64) int64 {
		if i < 0 {
			i += n
		}
		if i < 0 {
			i = 0
		}
		if i >= n {
			i = n
		}
		return i
	}
	s, e := norm(start), norm(stop)
	if s > e {
		return nil
	}
	remaining := append([]zmember{}, set[:s]...)
	if e+1 < n {
		remaining = append(remaining, set[e+1:]...)
	}
	m.zsets[key] = remaining
	return nil
}

func (m *memKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func TestKVQuotaStoreAllowsUnderLimit(t *testing.T) {
	q := NewKVQuotaStore(newMemKV())
	exceeded, err := q.IncrementAndCheck(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestKVQuotaStoreBlocksOverLimit(t *testing.T) {
	q := NewKVQuotaStore(newMemKV())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := q.IncrementAndCheck(ctx, "alice", 3)
		require.NoError(t, err)
	}
	exceeded, err := q.IncrementAndCheck(ctx, "alice", 3)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestKVQuotaStoreUnlimitedWhenNonPositive(t *testing.T) {
	q := NewKVQuotaStore(newMemKV())
	exceeded, err := q.IncrementAndCheck(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestKVAdaptiveApprovalFalseUntilThreshold(t *testing.T) {
	a := NewKVAdaptiveApproval(newMemKV())
	ctx := context.Background()
	for i := 0; i < AdaptiveApprovalThreshold-1; i++ {
		require.NoError(t, a.RecordApproval(ctx, "alice", "fp-1"))
	}
	should, err := a.ShouldAutoApprove(ctx, "alice", "fp-1")
	require.NoError(t, err)
	assert.False(t, should)
}

func TestKVAdaptiveApprovalTrueAtThreshold(t *testing.T) {
	a := NewKVAdaptiveApproval(newMemKV())
	ctx := context.Background()
	for i := 0; i < AdaptiveApprovalThreshold; i++ {
		require.NoError(t, a.RecordApproval(ctx, "alice", "fp-1"))
	}
	should, err := a.ShouldAutoApprove(ctx, "alice", "fp-1")
	require.NoError(t, err)
	assert.True(t, should)
}

func TestSchemaMetadataQAListsTables(t *testing.T) {
	qa := NewSchemaMetadataQA()
	schema := &domain.SchemaSnapshot{Tables: map[string][]domain.Column{
		"orders":    {{Name: "id", Type: "INTEGER"}},
		"customers": {{Name: "id", Type: "INTEGER"}},
	}}
	answer, err := qa.Answer(context.Background(), "what tables do you have", schema)
	require.NoError(t, err)
	assert.Contains(t, answer, "orders")
	assert.Contains(t, answer, "customers")
}

func TestSchemaMetadataQADescribesTable(t *testing.T) {
	qa := NewSchemaMetadataQA()
	schema := &domain.SchemaSnapshot{Tables: map[string][]domain.Column{
		"orders": {{Name: "region", Type: "VARCHAR"}, {Name: "amount", Type: "NUMERIC", Nullable: true}},
	}}
	answer, err := qa.Answer(context.Background(), "describe orders", schema)
	require.NoError(t, err)
	assert.Contains(t, answer, "region")
	assert.Contains(t, answer, "amount")
	assert.Contains(t, answer, "nullable")
}

func TestSchemaMetadataQAUnknownTable(t *testing.T) {
	qa := NewSchemaMetadataQA()
	schema := &domain.SchemaSnapshot{Tables: map[string][]domain.Column{}}
	answer, err := qa.Answer(context.Background(), "describe ghosts", schema)
	require.NoError(t, err)
	assert.Contains(t, answer, "No table named ghosts")
}

func TestKVHistoryRetrieverReturnsMostRecentFirst(t *testing.T) {
	h := NewKVHistoryRetriever(newMemKV())
	ctx := context.Background()
	require.NoError(t, h.RecordSuccess(ctx, "revenue by region", "SELECT 1"))
	require.NoError(t, h.RecordSuccess(ctx, "revenue by month", "SELECT 2"))

	results, err := h.SimilarQueries(ctx, "revenue", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "SELECT 2", results[0])
}

func TestKVMetricLibraryFindsKnownConcept(t *testing.T) {
	kv := newMemKV()
	require.NoError(t, kv.Set(context.Background(), metricKey("churn rate"), "cancelled / total active"))
	lib := NewKVMetricLibrary(kv)

	text, ok, err := lib.Lookup(context.Background(), []string{"churn rate", "unknown metric"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, text, "cancelled / total active")
}

func TestKVMetricLibraryNoneFound(t *testing.T) {
	lib := NewKVMetricLibrary(newMemKV())
	text, ok, err := lib.Lookup(context.Background(), []string{"unknown"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, text)
}
