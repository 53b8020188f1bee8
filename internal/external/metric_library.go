package external

import (
	"context"
	"strings"
)

// KVMetricLibrary implements MetricLibrary over per-concept KV entries
// (spec §4.3 item j: a canonical business-metric reference section for
// the Synthesizer's prompt, e.g. "churn rate" always means a specific
// expression). Entries are seeded out-of-band by an operator; Lookup only
// reads.
type KVMetricLibrary struct {
	KV KVStore
}

// NewKVMetricLibrary builds a KVMetricLibrary.
func NewKVMetricLibrary(kv KVStore) *KVMetricLibrary {
	return &KVMetricLibrary{KV: kv}
}

func metricKey(concept string) string {
	return "metric:" + strings.ToLower(strings.TrimSpace(concept))
}

// Lookup concatenates the canonical definitions of any concepts that have
// one on file. It reports ok=false only when none of concepts matched.
func (m *KVMetricLibrary) Lookup(ctx context.Context, concepts []string) (string, bool, error) {
	var sb strings.Builder
	found := false
	for _, concept := range concepts {
		raw, ok, err := m.KV.Get(ctx, metricKey(concept))
		if err != nil {
			return "", false, err
		}
		if !ok {
			continue
		}
		found = true
		sb.WriteString(concept + ": " + raw + "\n")
	}
	return sb.String(), found, nil
}
