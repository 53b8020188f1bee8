// Package router implements the Intent Router (spec §4.1): a pattern-first
// classifier that short-circuits conversational and metadata intents before
// any SQL pipeline work begins, with an optional (and by default disabled)
// LLM fallback for inconclusive inputs.
package router

import (
	"context"
	"regexp"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/platform/core"
	"github.com/nlsql/gateway/internal/platform/logger"
)

// Intent enumerates the Router's classification outcome.
type Intent string

const (
	IntentConversational Intent = "conversational"
	IntentMetadataQuery  Intent = "metadata_query"
	IntentDataQuery      Intent = "data_query"
	IntentAmbiguous      Intent = "ambiguous"
)

// RoutingDecision is the Router's full verdict for one ticket.
type RoutingDecision struct {
	Intent        Intent
	RequiresSQL   bool
	CannedReply   string
	EnhancedIntent string
	Confidence    float64
}

var (
	greetingPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good morning|good afternoon|good evening)\b`)
	thanksPattern   = regexp.MustCompile(`(?i)\b(thanks|thank you|appreciate it|cheers)\b`)
	identityPattern = regexp.MustCompile(`(?i)\b(who are you|what are you|what can you do|your name)\b`)

	metadataPattern = regexp.MustCompile(`(?i)\b(what tables|which tables|list tables|describe|show schema|table structure|what columns)\b`)

	dataQueryHint = regexp.MustCompile(`(?i)\b(select|show|list|total|sum|average|count|how many|top|highest|lowest|by (region|month|year|quarter|day)|revenue|sales|orders?|customers?)\b`)
)

// Router classifies user text into a RoutingDecision. The LLM field is
// optional; when nil (or the LLMFallbackEnabled field is false) classification
// never leaves pattern matching, per the Open Question decision recorded
// in the design notes that router LLM fallback defaults to permanently
// disabled.
type Router struct {
	LLM                external.LLMProvider
	LLMFallbackEnabled bool
	Tracer             core.Tracer
	Log                *logger.Logger
}

// New builds a Router. Pass a nil llm to run pattern-matching only.
func New(llm external.LLMProvider, llmFallbackEnabled bool, tracer core.Tracer, log *logger.Logger) *Router {
	if tracer == nil {
		tracer = core.NoopTracer
	}
	return &Router{LLM: llm, LLMFallbackEnabled: llmFallbackEnabled, Tracer: tracer, Log: log}
}

// Classify implements the Router's classify(user_text, history?, schema?)
// contract (spec §4.1). An exception during classification is fatal per
// spec: callers get back a conversational/apology decision rather than an
// error, and it is the caller's responsibility to still surface `status:
// error` at the HTTP boundary when RequiresSQL is false and Intent is
// conversational with zero confidence.
func (r *Router) Classify(ctx context.Context, userText string, history []domain.HistoryEntry, schema *domain.SchemaSnapshot) (decision RoutingDecision) {
	ctx, finish := r.Tracer.StartSpan(ctx, "router.classify", map[string]string{"intent": "pending"})
	defer func() {
		if rec := recover(); rec != nil {
			if r.Log != nil {
				r.Log.WithContext(ctx).WithField("panic", rec).Error("router classification panicked")
			}
			decision = RoutingDecision{
				Intent:      IntentConversational,
				RequiresSQL: false,
				CannedReply: "Sorry, I wasn't able to process that request.",
				Confidence:  0,
			}
		}
		finish(nil)
	}()

	trimmed := strings.TrimSpace(userText)

	if decision, ok := r.classifyByPattern(trimmed); ok {
		return decision
	}

	if r.LLMFallbackEnabled && r.LLM != nil {
		if d, ok := r.classifyByLLM(ctx, trimmed, history); ok {
			return d
		}
		// LLM failures degrade silently to pattern matching (spec §4.1).
	}

	return RoutingDecision{
		Intent:      IntentAmbiguous,
		RequiresSQL: false,
		CannedReply: "Could you clarify what data or information you're looking for?",
		Confidence:  0.3,
	}
}

func (r *Router) classifyByPattern(text string) (RoutingDecision, bool) {
	switch {
	case greetingPattern.MatchString(text):
		return RoutingDecision{Intent: IntentConversational, RequiresSQL: false, CannedReply: "Hello! Ask me anything about your data.", Confidence: 0.95}, true
	case thanksPattern.MatchString(text):
		return RoutingDecision{Intent: IntentConversational, RequiresSQL: false, CannedReply: "You're welcome!", Confidence: 0.9}, true
	case identityPattern.MatchString(text):
		return RoutingDecision{Intent: IntentConversational, RequiresSQL: false, CannedReply: "I translate natural-language questions into SQL against your connected database.", Confidence: 0.9}, true
	case metadataPattern.MatchString(text):
		return RoutingDecision{Intent: IntentMetadataQuery, RequiresSQL: false, Confidence: 0.85}, true
	case dataQueryHint.MatchString(text):
		return RoutingDecision{Intent: IntentDataQuery, RequiresSQL: true, EnhancedIntent: text, Confidence: 0.8}, true
	}
	return RoutingDecision{}, false
}

func (r *Router) classifyByLLM(ctx context.Context, text string, history []domain.HistoryEntry) (RoutingDecision, bool) {
	messages := []external.LLMMessage{{Role: "system", Content: "Classify the user's intent as conversational, metadata_query, data_query, or ambiguous."}}
	for _, h := range history {
		messages = append(messages, external.LLMMessage{Role: string(h.Role), Content: h.Content})
	}
	messages = append(messages, external.LLMMessage{Role: "user", Content: text})

	resp, err := r.LLM.Invoke(ctx, messages, external.LLMOptions{MaxTokens: 32})
	if err != nil {
		return RoutingDecision{}, false
	}

	content := strings.ToLower(strings.TrimSpace(resp.Content))
	switch {
	case strings.Contains(content, "data_query"):
		return RoutingDecision{Intent: IntentDataQuery, RequiresSQL: true, EnhancedIntent: text, Confidence: 0.6}, true
	case strings.Contains(content, "metadata_query"):
		return RoutingDecision{Intent: IntentMetadataQuery, RequiresSQL: false, Confidence: 0.6}, true
	case strings.Contains(content, "conversational"):
		return RoutingDecision{Intent: IntentConversational, RequiresSQL: false, CannedReply: "Got it.", Confidence: 0.6}, true
	default:
		return RoutingDecision{}, false
	}
}
