package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
)

// FingerprintCache stores previously synthesized SQL keyed by
// hash(db_kind, schema_fingerprint, normalized_user_text,
// normalized_intent), so a repeated question skips the LLM round trip
// entirely (spec §4.3, §4.8). TTL is approximately 30 days.
type FingerprintCache struct {
	KV  external.KVStore
	TTL time.Duration
}

func NewFingerprintCache(kv external.KVStore, ttl time.Duration) *FingerprintCache {
	if ttl <= 0 {
		ttl = domain.FingerprintCacheTTL
	}
	return &FingerprintCache{KV: kv, TTL: ttl}
}

// Key builds the fingerprint cache key per spec §4.3's exact recipe.
func Key(dbKind domain.DatabaseKind, schemaFingerprint, normalizedUserText, normalizedIntent string) string {
	h := sha256.New()
	h.Write([]byte(string(dbKind)))
	h.Write([]byte("|"))
	h.Write([]byte(schemaFingerprint))
	h.Write([]byte("|"))
	h.Write([]byte(normalizedUserText))
	h.Write([]byte("|"))
	h.Write([]byte(normalizedIntent))
	return fmt.Sprintf("fingerprint:%s", hex.EncodeToString(h.Sum(nil)))
}

func (c *FingerprintCache) Get(ctx context.Context, key string) (*domain.FingerprintCacheEntry, bool) {
	raw, ok, err := c.KV.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var entry domain.FingerprintCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false
	}
	if entry.Expired(time.Now()) {
		return nil, false
	}
	return &entry, true
}

func (c *FingerprintCache) Put(ctx context.Context, key string, entry domain.FingerprintCacheEntry) error {
	entry.CreatedAt = time.Now()
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.KV.SetEx(ctx, key, string(raw), c.TTL)
}
