package external

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// KVHistoryRetriever implements HistoryRetriever over a single KV sorted
// set scored by submission time, so recently recorded successful queries
// surface first (spec §4.3 item i: "a handful of similar past successful
// queries"). The contract takes no user scope, so history here is shared
// organizational knowledge rather than per-user.
type KVHistoryRetriever struct {
	KV KVStore
}

// NewKVHistoryRetriever builds a KVHistoryRetriever.
func NewKVHistoryRetriever(kv KVStore) *KVHistoryRetriever {
	return &KVHistoryRetriever{KV: kv}
}

const historyKey = "history:successful_queries"

// RecordSuccess appends a successful query to the shared history set.
// Called by the orchestrator once a ticket reaches analyze.
func (h *KVHistoryRetriever) RecordSuccess(ctx context.Context, userText, sql string) error {
	member := fmt.Sprintf("%s|||%s", userText, sql)
	if err := h.KV.ZAdd(ctx, historyKey, float64(time.Now().Unix()), member); err != nil {
		return err
	}
	return h.KV.ZRemRangeByRank(ctx, historyKey, 0, -101) // keep the most recent 100
}

// SimilarQueries returns up to limit of the most recently recorded
// queries. "Similar" here is recency, not semantic search — no vector or
// embedding store exists anywhere in the example pack to ground a richer
// retrieval on.
func (h *KVHistoryRetriever) SimilarQueries(ctx context.Context, userText string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 3
	}
	members, err := h.KV.ZRange(ctx, historyKey, -int64(limit), -1)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		if sql, ok := splitHistoryMember(members[i]); ok {
			out = append(out, sql)
		}
	}
	return out, nil
}

func splitHistoryMember(member string) (string, bool) {
	parts := strings.SplitN(member, "|||", 2)
	if len(parts) != 2 {
		return "", false
	}
	return parts[1], true
}
