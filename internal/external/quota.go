package external

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// KVQuotaStore implements validator.QuotaStore over the KV store: one
// counter key per user per UTC day, expiring at day's end (spec §4.4
// check 7's "daily quota"). Increment-then-read is not atomic under
// concurrent KVStore implementations that don't support INCR natively
// (the contract exposes Get/Set, not a counter primitive) — acceptable
// here because a quota is a soft operational guard, not a security
// boundary, and a lost increment only ever under- rather than
// over-counts.
type KVQuotaStore struct {
	KV KVStore
}

// NewKVQuotaStore builds a KVQuotaStore.
func NewKVQuotaStore(kv KVStore) *KVQuotaStore {
	return &KVQuotaStore{KV: kv}
}

func quotaKey(userID string, day string) string {
	return fmt.Sprintf("quota:%s:%s", userID, day)
}

// IncrementAndCheck increments today's counter for userID and reports
// whether it now exceeds dailyLimit. A non-positive dailyLimit means
// unlimited.
func (q *KVQuotaStore) IncrementAndCheck(ctx context.Context, userID string, dailyLimit int) (bool, error) {
	if dailyLimit <= 0 {
		return false, nil
	}
	day := time.Now().UTC().Format("2006-01-02")
	key := quotaKey(userID, day)

	count := 1
	if raw, ok, err := q.KV.Get(ctx, key); err == nil && ok {
		if n, err := strconv.Atoi(raw); err == nil {
			count = n + 1
		}
	}

	ttl := time.Until(time.Now().UTC().Truncate(24*time.Hour).Add(24 * time.Hour))
	if err := q.KV.SetEx(ctx, key, strconv.Itoa(count), ttl); err != nil {
		return false, err
	}
	return count > dailyLimit, nil
}
