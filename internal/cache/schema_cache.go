package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
)

// SchemaCache stores SchemaSnapshots in the KV store under
// schema:<db_kind>, TTL 3600s (spec §4.8).
type SchemaCache struct {
	KV  external.KVStore
	TTL time.Duration
}

func NewSchemaCache(kv external.KVStore, ttl time.Duration) *SchemaCache {
	if ttl <= 0 {
		ttl = domain.DefaultSchemaCacheTTL
	}
	return &SchemaCache{KV: kv, TTL: ttl}
}

func schemaKey(dbKind domain.DatabaseKind) string {
	return fmt.Sprintf("schema:%s", dbKind)
}

// Get returns the cached snapshot for dbKind, tolerating a missing key as
// a cache miss rather than an error.
func (c *SchemaCache) Get(ctx context.Context, dbKind domain.DatabaseKind) (*domain.SchemaSnapshot, bool) {
	raw, ok, err := c.KV.Get(ctx, schemaKey(dbKind))
	if err != nil || !ok {
		return nil, false
	}
	var snap domain.SchemaSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, false
	}
	if snap.Expired(time.Now()) {
		return nil, false
	}
	return &snap, true
}

// Put stores snap under schema:<db_kind> with the cache's TTL.
func (c *SchemaCache) Put(ctx context.Context, snap *domain.SchemaSnapshot) error {
	snap.FetchedAt = time.Now()
	snap.TTL = c.TTL
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.KV.SetEx(ctx, schemaKey(snap.DatabaseKind), string(raw), c.TTL)
}

// Invalidate clears the cached snapshot for dbKind (spec §4.8
// "invalidation clears all keys matching the prefix").
func (c *SchemaCache) Invalidate(ctx context.Context, dbKind domain.DatabaseKind) error {
	return c.KV.Delete(ctx, schemaKey(dbKind))
}

// SampleCache stores per-table sample rows under sample:<TABLE>, TTL
// 1800s (spec §4.8).
type SampleCache struct {
	KV  external.KVStore
	TTL time.Duration
}

func NewSampleCache(kv external.KVStore, ttl time.Duration) *SampleCache {
	if ttl <= 0 {
		ttl = domain.DefaultSampleCacheTTL
	}
	return &SampleCache{KV: kv, TTL: ttl}
}

func sampleKey(table string) string {
	return fmt.Sprintf("sample:%s", table)
}

func (c *SampleCache) Get(ctx context.Context, table string) ([]map[string]any, bool) {
	raw, ok, err := c.KV.Get(ctx, sampleKey(table))
	if err != nil || !ok {
		return nil, false
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (c *SampleCache) Put(ctx context.Context, table string, rows []map[string]any) error {
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.KV.SetEx(ctx, sampleKey(table), string(raw), c.TTL)
}
