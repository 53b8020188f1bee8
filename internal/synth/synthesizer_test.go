package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Invoke(ctx context.Context, messages []external.LLMMessage, opts external.LLMOptions) (external.LLMResponse, error) {
	if f.err != nil {
		return external.LLMResponse{}, f.err
	}
	return external.LLMResponse{Content: f.response}, nil
}

func testRequest() Request {
	ticket := &domain.QueryTicket{
		DatabaseKind: domain.DatabasePostgres,
		Request:      domain.UserRequest{Query: "total sales by region"},
	}
	schema := &domain.SchemaSnapshot{
		DatabaseKind: domain.DatabasePostgres,
		Tables: map[string][]domain.Column{
			"orders": {{Name: "region"}, {Name: "sales_amount"}},
		},
	}
	return Request{
		Ticket:           ticket,
		Schema:           schema,
		ReferencedTables: []string{"orders"},
		HardCap:          1000,
		Skills: domain.SkillsOutput{
			Mappings: []domain.ColumnMapping{
				{Concept: "region", Kind: domain.MappingPhysical, Expression: "orders.region"},
			},
		},
	}
}

func TestSynthesizeHappyPath(t *testing.T) {
	s := &Synthesizer{LLM: &fakeLLM{response: "SELECT region, SUM(sales_amount) FROM orders GROUP BY region\n-- CONFIDENCE: 90%"}}
	got, clarification, err := s.Synthesize(context.Background(), testRequest())
	require.NoError(t, err)
	require.Nil(t, clarification)
	assert.Equal(t, 90, got.Confidence)
	assert.Contains(t, got.Text, "LIMIT 1000")
}

func TestSynthesizeClarificationMarker(t *testing.T) {
	s := &Synthesizer{LLM: &fakeLLM{response: "-- ERROR: missing cohort column"}}
	got, clarification, err := s.Synthesize(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NotNil(t, clarification)
	assert.Contains(t, clarification.Message, "cohort")
}

func TestSynthesizeEmptyLLMOutputIsError(t *testing.T) {
	s := &Synthesizer{LLM: &fakeLLM{response: "   "}}
	_, _, err := s.Synthesize(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestSynthesizeInvalidIdentifierHardStops(t *testing.T) {
	s := &Synthesizer{LLM: &fakeLLM{response: "SELECT bogus_col FROM orders\n-- CONFIDENCE: 90%"}}
	_, _, err := s.Synthesize(context.Background(), testRequest())
	require.Error(t, err)
	var invalidErr *InvalidIdentifierError
	assert.ErrorAs(t, err, &invalidErr)
}
