package domain

import "time"

// FingerprintCacheTTL is the SQL fingerprint cache entry lifetime (spec §3,
// §4.3: "TTL approximately 30 days").
const FingerprintCacheTTL = 30 * 24 * time.Hour

// ResultCacheMaxEntries is the global count cap on cached result entries
// before LRU eviction kicks in (spec §3: "1000 default").
const ResultCacheMaxEntries = 1000

// ResultCacheEvictionFraction is the fraction of entries evicted, oldest
// first, once ResultCacheMaxEntries is exceeded (spec §3: "evict oldest
// 10%").
const ResultCacheEvictionFraction = 0.10

// FingerprintCacheEntry caches a previously synthesized SQL statement keyed
// by schema fingerprint plus normalized request, so a repeat ask skips the
// LLM round trip (spec §4.3, §4.8).
type FingerprintCacheEntry struct {
	Key        string
	SQL        string
	Dialect    DatabaseKind
	Confidence int
	CreatedAt  time.Time
}

// Expired reports whether this entry has outlived FingerprintCacheTTL.
func (e *FingerprintCacheEntry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(FingerprintCacheTTL))
}

// ResultCacheTTL returns the TTL a result entry should be stored with,
// chosen by row count per spec §3: "30 min <= 100 rows, 10 min <= 1000
// rows, 5 min otherwise".
func ResultCacheTTL(rowCount int) time.Duration {
	switch {
	case rowCount <= 100:
		return 30 * time.Minute
	case rowCount <= 1000:
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// ResultCacheEntry caches a prior execution's result set keyed by a hash of
// the dialect and the trimmed SQL text (executor.Fingerprint) (spec §4.6,
// §4.8).
type ResultCacheEntry struct {
	Key       string
	Result    ExecutionResult
	CreatedAt time.Time
	TTL       time.Duration
	LastUsed  time.Time
}

// Expired reports whether this entry has outlived its assigned TTL.
func (e *ResultCacheEntry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}
