// Package external declares the collaborator contracts the core consumes
// (spec §6) and provides concrete adapters grounded on the teacher's
// third-party stack. Every interface here is implemented by at least one
// adapter in this package and by an in-memory fake under _test.go files
// elsewhere, so the composition root can swap real/fake without touching
// pipeline code.
package external

import (
	"context"
	"time"

	"github.com/nlsql/gateway/internal/domain"
)

// LLMMessage is one turn of a chat-style prompt.
type LLMMessage struct {
	Role    string
	Content string
}

// LLMOptions bounds a single LLM invocation.
type LLMOptions struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// LLMUsage reports token accounting when the provider supplies it.
type LLMUsage struct {
	InputTokens  int
	OutputTokens int
}

// LLMResponse is the provider's reply.
type LLMResponse struct {
	Content string
	Usage   *LLMUsage
}

// LLMErrorKind taxonomizes provider failures (spec §6).
type LLMErrorKind string

const (
	LLMErrorAuth        LLMErrorKind = "auth"
	LLMErrorRateLimited LLMErrorKind = "rate_limited"
	LLMErrorTimeout     LLMErrorKind = "timeout"
	LLMErrorBadResponse LLMErrorKind = "bad_response"
	LLMErrorOther       LLMErrorKind = "other"
)

// LLMError wraps a provider failure with its taxonomy kind.
type LLMError struct {
	Kind LLMErrorKind
	Err  error
}

func (e *LLMError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *LLMError) Unwrap() error { return e.Err }

// LLMProvider is the spec §6 "LLM provider" collaborator: invoke(messages,
// options) -> {content, usage?}. Cancellation propagates via ctx.
type LLMProvider interface {
	Invoke(ctx context.Context, messages []LLMMessage, opts LLMOptions) (LLMResponse, error)
}

// KVStore is the spec §6 "KV store" collaborator. All operations are
// bounded by a short timeout internally; failures never break the core —
// callers treat an error as a cache miss/bypass.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Scan(ctx context.Context, pattern string, cursor uint64) (keys []string, nextCursor uint64, err error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Checkpointer is the spec §6 "Checkpointer" collaborator: get/put/list
// keyed by thread_id. CAS is optional; absence is treated as cold start.
type Checkpointer interface {
	Get(ctx context.Context, threadID string) (*domain.QueryTicket, bool, error)
	Put(ctx context.Context, threadID string, ticket *domain.QueryTicket) error
	List(ctx context.Context, threadIDPrefix string) ([]string, error)
}

// CostEstimator is the spec §6 "Cost estimator" collaborator.
type CostEstimator interface {
	Estimate(ctx context.Context, sql string, dialect domain.DatabaseKind, includePlan bool) (domain.CostEstimate, error)
}

// RLSResult is the RLS collaborator's response.
type RLSResult struct {
	ModifiedSQL     string
	Applied         bool
	Reason          string
	PoliciesApplied []string
}

// RLSService is the spec §6 "RLS service" collaborator.
type RLSService interface {
	Enforce(ctx context.Context, sql, userID, role string, attributes map[string]string) (RLSResult, error)
}

// InjectionDetector is the spec §6 "Injection detector" collaborator: a
// pure function, no side effects.
type InjectionDetector interface {
	Scan(sql string) (findings []domain.InjectionFinding, riskScore float64)
}

// DBDriver is the spec §6 "DB drivers" collaborator, one per dialect.
type DBDriver interface {
	Execute(ctx context.Context, sql string, timeout time.Duration) (domain.ExecutionResult, error)
	Cancel(ctx context.Context, sessionID string) error
	Describe(ctx context.Context, table string) ([]domain.Column, error)
}

// MetadataQA answers "what tables do you have" / "describe X" style
// questions routed by the Intent Router's metadata_query intent.
type MetadataQA interface {
	Answer(ctx context.Context, question string, schema *domain.SchemaSnapshot) (string, error)
}

// AdaptiveApproval may downgrade requires_approval=false for users with a
// history of similar approved queries (spec §4.4 check 10). It must never
// override force_approval.
type AdaptiveApproval interface {
	ShouldAutoApprove(ctx context.Context, userID, sqlFingerprint string) (bool, error)
}

// HistoryRetriever returns up to a handful of similar past successful
// queries for the Synthesizer's prompt (spec §4.3 item i).
type HistoryRetriever interface {
	SimilarQueries(ctx context.Context, userText string, limit int) ([]string, error)
}

// MetricLibrary supplies a canonical business-metric reference section for
// the Synthesizer's prompt (spec §4.3 item j), when available.
type MetricLibrary interface {
	Lookup(ctx context.Context, concepts []string) (string, bool, error)
}
