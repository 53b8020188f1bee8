package synth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nlsql/gateway/internal/cache"
	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/platform/logger"
)

// Synthesizer implements the SQL Synthesizer's synthesize(ticket,
// skills_out, schema, history?, hints) -> GeneratedSQL | ClarificationRequest
// contract (spec §4.3).
type Synthesizer struct {
	LLM              external.LLMProvider
	CostEstimator    external.CostEstimator
	History          external.HistoryRetriever
	MetricLibrary    external.MetricLibrary
	FingerprintCache *cache.FingerprintCache
	Log              *logger.Logger
}

// Request bundles the synthesize() call's inputs.
type Request struct {
	Ticket           *domain.QueryTicket
	Skills           domain.SkillsOutput
	Schema           *domain.SchemaSnapshot
	ReferencedTables []string
	RoleCap          int
	HardCap          int
	AutoApprove      bool
}

// Synthesize runs the full prompt-build -> LLM -> 9-step post-processing
// pipeline, consulting the fingerprint cache first.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*domain.GeneratedSQL, *domain.Clarification, error) {
	normalizedText := normalizeUserText(req.Ticket.Request.Query)
	normalizedIntent := normalizedIntentFor(req.Skills)
	fingerprint := req.Schema.Fingerprint()
	key := cache.Key(req.Ticket.DatabaseKind, fingerprint, normalizedText, normalizedIntent)

	if s.FingerprintCache != nil {
		if entry, ok := s.FingerprintCache.Get(ctx, key); ok {
			return &domain.GeneratedSQL{
				Text:       entry.SQL,
				Confidence: entry.Confidence,
				Dialect:    entry.Dialect,
				WasCached:  true,
			}, nil, nil
		}
	}

	var history []string
	if s.History != nil {
		if h, err := s.History.SimilarQueries(ctx, req.Ticket.Request.Query, 3); err == nil {
			history = h
		}
	}

	var metricLib string
	if s.MetricLibrary != nil {
		if lib, ok, err := s.MetricLibrary.Lookup(ctx, conceptsOf(req.Skills)); err == nil && ok {
			metricLib = lib
		}
	}

	messages := BuildPrompt(PromptInputs{
		Dialect:          req.Ticket.DatabaseKind,
		Skills:           req.Skills,
		Schema:           req.Schema,
		ReferencedTables: req.ReferencedTables,
		History:          history,
		MetricLibrary:    metricLib,
		RoleLimits:       fmt.Sprintf("max_rows=%d hard_row_cap=%d", req.RoleCap, req.HardCap),
	})

	resp, err := s.LLM.Invoke(ctx, messages, external.LLMOptions{MaxTokens: 1024, Temperature: 0})
	if err != nil {
		return nil, nil, &ClarificationError{Message: "the language model was unavailable"}
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, nil, fmt.Errorf("llm returned empty output")
	}

	generated, clarification, err := s.postProcess(resp.Content, req)
	if err != nil {
		return nil, nil, err
	}
	if clarification != nil {
		return nil, clarification, nil
	}

	if s.CostEstimator != nil {
		generated, err = s.costAwareRewrite(ctx, generated, req)
		if err != nil {
			return nil, nil, err
		}
	}

	if s.FingerprintCache != nil {
		_ = s.FingerprintCache.Put(ctx, key, domain.FingerprintCacheEntry{
			Key:        key,
			SQL:        generated.Text,
			Dialect:    generated.Dialect,
			Confidence: generated.Confidence,
		})
	}

	return generated, nil, nil
}

// postProcess runs the nine ordered steps of spec §4.3.
func (s *Synthesizer) postProcess(raw string, req Request) (*domain.GeneratedSQL, *domain.Clarification, error) {
	sqlText := stripFencesAndLabels(raw) // step 1

	if msg, ok := detectClarificationMarker(sqlText); ok { // step 2
		return nil, &domain.Clarification{Message: msg}, nil
	}

	sqlText, confidence := extractConfidence(sqlText) // step 3

	normalized, wasNormalized := normalizeIdentifiers(sqlText, req.Schema) // step 4
	sqlText = normalized

	var warnings []string
	sqlText, multiWarn := takeFirstStatement(sqlText) // step 5
	warnings = append(warnings, multiWarn...)

	if req.Ticket.DatabaseKind == domain.DatabasePostgres { // step 6
		sqlText = downcasePostgresIdentifiers(sqlText)
	}

	if err := validateIdentifiers(sqlText, req.Schema); err != nil { // step 7, hard stop
		return nil, nil, err
	}

	dialectConvertedFrom, convErr := s.dialectConvertIfNeeded(&sqlText, req.Ticket.DatabaseKind) // step 8
	_ = convErr

	sqlText = applyRowLimit(sqlText, req.Ticket.DatabaseKind, req.RoleCap, req.HardCap)

	return &domain.GeneratedSQL{
		Text:                  sqlText,
		Confidence:            confidence,
		Dialect:               req.Ticket.DatabaseKind,
		IdentifiersNormalized: wasNormalized,
		DialectConvertedFrom:  dialectConvertedFrom,
	}, nil, nil
}

// dialectConvertIfNeeded runs a best-effort conversion when the produced
// SQL syntactically fails dialect validation for the target (spec §4.3
// step 8). The conversion itself is limited to the row-limiting clause
// swap; anything deeper is out of scope for a regex-based rewrite.
func (s *Synthesizer) dialectConvertIfNeeded(sqlText *string, target domain.DatabaseKind) (*domain.DatabaseKind, error) {
	upper := strings.ToUpper(*sqlText)
	var from domain.DatabaseKind
	switch {
	case target == domain.DatabaseOracle && strings.Contains(upper, " LIMIT "):
		from = domain.DatabasePostgres
		*sqlText = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`).ReplaceAllString(*sqlText, "FETCH FIRST $1 ROWS ONLY")
	case target != domain.DatabaseOracle && strings.Contains(upper, "FETCH FIRST"):
		from = domain.DatabaseOracle
		*sqlText = regexp.MustCompile(`(?i)\bFETCH\s+FIRST\s+(\d+)\s+ROWS?\s+ONLY`).ReplaceAllString(*sqlText, "LIMIT $1")
	default:
		return nil, nil
	}
	return &from, nil
}

// costAwareRewrite implements spec §4.3 step 9: pre-estimate cost; if
// HIGH/CRITICAL or a full-table-scan risk, ask the LLM for a
// semantics-preserving rewrite, accepting only if the result is non-empty
// and differs.
func (s *Synthesizer) costAwareRewrite(ctx context.Context, generated *domain.GeneratedSQL, req Request) (*domain.GeneratedSQL, error) {
	estimate, err := s.CostEstimator.Estimate(ctx, generated.Text, generated.Dialect, false)
	if err != nil {
		return generated, nil
	}
	if estimate.Level != domain.CostHigh && estimate.Level != domain.CostCritical && !estimate.HasFullScan {
		return generated, nil
	}

	messages := []external.LLMMessage{
		{Role: "system", Content: "Rewrite the following SQL to reduce cost while preserving semantics exactly. Return SQL only."},
		{Role: "user", Content: generated.Text},
	}
	resp, err := s.LLM.Invoke(ctx, messages, external.LLMOptions{MaxTokens: 1024})
	if err != nil {
		return generated, nil
	}
	rewritten := strings.TrimSpace(stripFencesAndLabels(resp.Content))
	if rewritten == "" || rewritten == strings.TrimSpace(generated.Text) {
		return generated, nil
	}

	out := *generated
	out.Text = rewritten
	return &out, nil
}

func normalizeUserText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func normalizedIntentFor(skills domain.SkillsOutput) string {
	var concepts []string
	for _, m := range skills.Mappings {
		concepts = append(concepts, strings.ToLower(m.Concept))
	}
	return strings.Join(concepts, ",")
}

func conceptsOf(skills domain.SkillsOutput) []string {
	var concepts []string
	for _, m := range skills.Mappings {
		concepts = append(concepts, m.Concept)
	}
	return concepts
}
