package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/cache"
	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
)

type fakeKV struct {
	values map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{values: map[string]string{}} }

func (f *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}
func (f *fakeKV) Set(ctx context.Context, key, value string) error {
	f.values[key] = value
	return nil
}
func (f *fakeKV) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return f.Set(ctx, key, value)
}
func (f *fakeKV) Delete(ctx context.Context, key string) error {
	delete(f.values, key)
	return nil
}
func (f *fakeKV) Keys(ctx context.Context, pattern string) ([]string, error) { return nil, nil }
func (f *fakeKV) Scan(ctx context.Context, pattern string, cursor uint64) ([]string, uint64, error) {
	return nil, 0, nil
}
func (f *fakeKV) ZAdd(ctx context.Context, key string, score float64, member string) error { return nil }
func (f *fakeKV) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, nil
}
func (f *fakeKV) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error { return nil }
func (f *fakeKV) Expire(ctx context.Context, key string, ttl time.Duration) error          { return nil }

type fakeListingDriver struct {
	tables  []string
	columns map[string][]domain.Column
	listErr error
}

func (f *fakeListingDriver) Execute(ctx context.Context, sql string, timeout time.Duration) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{}, nil
}
func (f *fakeListingDriver) Cancel(ctx context.Context, sessionID string) error { return nil }
func (f *fakeListingDriver) Describe(ctx context.Context, table string) ([]domain.Column, error) {
	return f.columns[table], nil
}
func (f *fakeListingDriver) ListTables(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tables, nil
}

// driverWithoutListing satisfies external.DBDriver but not tableLister, the
// shape a Backend with no schema-discovery support (e.g. Oracle) takes.
type driverWithoutListing struct{}

func (driverWithoutListing) Execute(ctx context.Context, sql string, timeout time.Duration) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{}, nil
}
func (driverWithoutListing) Cancel(ctx context.Context, sessionID string) error { return nil }
func (driverWithoutListing) Describe(ctx context.Context, table string) ([]domain.Column, error) {
	return nil, nil
}

func TestSchemaProviderGetReturnsCachedSnapshot(t *testing.T) {
	kv := newFakeKV()
	c := cache.NewSchemaCache(kv, time.Hour)
	snap := &domain.SchemaSnapshot{DatabaseKind: domain.DatabasePostgres, Tables: map[string][]domain.Column{
		"orders": {{Name: "id", Type: "int"}},
	}}
	require.NoError(t, c.Put(context.Background(), snap))

	sp := newSchemaProvider(c, nil)
	got, err := sp.Get(context.Background(), domain.DatabasePostgres)
	require.NoError(t, err)
	assert.Contains(t, got.Tables, "orders")
}

func TestSchemaProviderFetchesLiveOnCacheMiss(t *testing.T) {
	kv := newFakeKV()
	c := cache.NewSchemaCache(kv, time.Hour)
	driver := &fakeListingDriver{
		tables: []string{"orders"},
		columns: map[string][]domain.Column{
			"orders": {{Name: "region", Type: "varchar"}},
		},
	}
	sp := newSchemaProvider(c, map[domain.DatabaseKind]external.DBDriver{domain.DatabasePostgres: driver})

	snap, err := sp.Get(context.Background(), domain.DatabasePostgres)
	require.NoError(t, err)
	assert.Equal(t, domain.DatabasePostgres, snap.DatabaseKind)
	assert.Equal(t, "region", snap.Tables["orders"][0].Name)

	cached, ok := c.Get(context.Background(), domain.DatabasePostgres)
	require.True(t, ok)
	assert.Equal(t, snap.Tables, cached.Tables)
}

func TestSchemaProviderFetchPropagatesListTablesError(t *testing.T) {
	kv := newFakeKV()
	c := cache.NewSchemaCache(kv, time.Hour)
	driver := &fakeListingDriver{listErr: errors.New("connection refused")}
	sp := newSchemaProvider(c, map[domain.DatabaseKind]external.DBDriver{domain.DatabasePostgres: driver})

	_, err := sp.Get(context.Background(), domain.DatabasePostgres)
	assert.Error(t, err)
}

func TestSchemaProviderWithoutListingReturnsEmptySnapshot(t *testing.T) {
	kv := newFakeKV()
	c := cache.NewSchemaCache(kv, time.Hour)
	sp := newSchemaProvider(c, map[domain.DatabaseKind]external.DBDriver{domain.DatabaseOracle: driverWithoutListing{}})

	snap, err := sp.Get(context.Background(), domain.DatabaseOracle)
	require.NoError(t, err)
	assert.Empty(t, snap.Tables)
}
