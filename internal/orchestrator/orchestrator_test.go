package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/executor"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/platform/config"
	"github.com/nlsql/gateway/internal/router"
	"github.com/nlsql/gateway/internal/synth"
	"github.com/nlsql/gateway/internal/validator"
)

type fakeSchema struct {
	snap *domain.SchemaSnapshot
}

func (f *fakeSchema) Get(ctx context.Context, dbKind domain.DatabaseKind) (*domain.SchemaSnapshot, error) {
	return f.snap, nil
}

type fakeCheckpointer struct {
	saved map[string]*domain.QueryTicket
}

func newFakeCheckpointer() *fakeCheckpointer {
	return &fakeCheckpointer{saved: map[string]*domain.QueryTicket{}}
}

func (f *fakeCheckpointer) Get(ctx context.Context, threadID string) (*domain.QueryTicket, bool, error) {
	t, ok := f.saved[threadID]
	return t, ok, nil
}
func (f *fakeCheckpointer) Put(ctx context.Context, threadID string, ticket *domain.QueryTicket) error {
	f.saved[threadID] = ticket
	return nil
}
func (f *fakeCheckpointer) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }

type fakeEvents struct {
	records []domain.EventRecord
}

func (f *fakeEvents) Publish(ctx context.Context, ticketID string, record domain.EventRecord) error {
	f.records = append(f.records, record)
	return nil
}

type fakeLLM struct {
	content string
}

func (f *fakeLLM) Invoke(ctx context.Context, messages []external.LLMMessage, opts external.LLMOptions) (external.LLMResponse, error) {
	return external.LLMResponse{Content: f.content}, nil
}

type fakeDriver struct {
	result domain.ExecutionResult
	err    error
}

func (f *fakeDriver) Execute(ctx context.Context, sql string, timeout time.Duration) (domain.ExecutionResult, error) {
	return f.result, f.err
}
func (f *fakeDriver) Cancel(ctx context.Context, sessionID string) error          { return nil }
func (f *fakeDriver) Describe(ctx context.Context, table string) ([]domain.Column, error) { return nil, nil }

func testSchema() *domain.SchemaSnapshot {
	return &domain.SchemaSnapshot{
		DatabaseKind: domain.DatabasePostgres,
		Tables: map[string][]domain.Column{
			"orders": {{Name: "REGION", Type: "VARCHAR"}, {Name: "AMOUNT", Type: "NUMBER"}},
		},
	}
}

func testOrchestrator(t *testing.T, llmContent string, driverErr error) (*Orchestrator, *fakeCheckpointer, *fakeEvents) {
	t.Helper()
	cfg := &config.Config{
		RoleLimits: map[string]config.RoleLimits{
			"analyst": {MaxTables: 5, MaxJoins: 5, MaxRows: 1000, DailyQueryQuota: 1000},
		},
	}
	r := router.New(nil, false, nil, nil)
	llm := &fakeLLM{content: llmContent}
	s := &synth.Synthesizer{LLM: llm}
	v := validator.New(cfg, nil, nil, nil, nil)
	driver := &fakeDriver{
		result: domain.ExecutionResult{Columns: []string{"region"}, Rows: [][]any{{"west"}}, RowCount: 1, Status: domain.ExecutionSuccess},
		err:    driverErr,
	}
	backend := &executor.Backend{Driver: driver, Breaker: executor.NewBreaker("pg", 5, time.Second)}
	exec := executor.New(map[domain.DatabaseKind]*executor.Backend{domain.DatabasePostgres: backend}, nil, nil)

	schema := &fakeSchema{snap: testSchema()}
	cp := newFakeCheckpointer()
	events := &fakeEvents{}

	return New(r, s, v, exec, schema, cp, events, cfg, nil, nil), cp, events
}

func newTicket(id, query string) *domain.QueryTicket {
	return &domain.QueryTicket{
		ID:            id,
		ThreadID:      id,
		OwnerUser:     "u1",
		OwnerRole:     "analyst",
		DatabaseKind:  domain.DatabasePostgres,
		MaxIterations: domain.DefaultMaxIterations,
		Request:       domain.UserRequest{Query: query},
	}
}

func TestRunHappyPathReachesFinished(t *testing.T) {
	o, _, events := testOrchestrator(t, "SELECT region FROM orders\n-- confidence: 95%", nil)
	ticket := newTicket("tk-happy-1", "show total revenue by region")
	ticket.AutoApprove = true

	err := o.Run(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, domain.StageFinished, ticket.CurrentStage)
	assert.NotNil(t, ticket.Result)
	assert.Equal(t, 1, ticket.Result.RowCount)

	var sawExecuting bool
	for _, rec := range events.records {
		if rec.State == domain.StateExecuting {
			sawExecuting = true
		}
	}
	assert.True(t, sawExecuting)
}

func TestRunConversationalIntentSkipsPipeline(t *testing.T) {
	o, _, _ := testOrchestrator(t, "", nil)
	ticket := newTicket("tk-hello-1", "hello there")

	err := o.Run(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, domain.StageFinished, ticket.CurrentStage)
	assert.Nil(t, ticket.SQL)
}

func TestRunSuspendsAtAwaitApprovalWhenForced(t *testing.T) {
	cfg := &config.Config{
		RoleLimits: map[string]config.RoleLimits{
			"analyst": {MaxTables: 5, MaxJoins: 5, MaxRows: 1000, DailyQueryQuota: 1000},
		},
		SensitiveTables: []string{"orders"},
	}
	r := router.New(nil, false, nil, nil)
	llm := &fakeLLM{content: "SELECT region FROM orders\n-- confidence: 95%"}
	s := &synth.Synthesizer{LLM: llm}
	v := validator.New(cfg, nil, nil, nil, nil)
	driver := &fakeDriver{result: domain.ExecutionResult{Status: domain.ExecutionSuccess}}
	backend := &executor.Backend{Driver: driver, Breaker: executor.NewBreaker("pg", 5, time.Second)}
	exec := executor.New(map[domain.DatabaseKind]*executor.Backend{domain.DatabasePostgres: backend}, nil, nil)
	schema := &fakeSchema{snap: testSchema()}
	cp := newFakeCheckpointer()
	events := &fakeEvents{}
	o := New(r, s, v, exec, schema, cp, events, cfg, nil, nil)

	ticket := newTicket("tk-approve-1", "show total revenue by region")
	err := o.Run(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, domain.StageApproval, ticket.CurrentStage)
	assert.Equal(t, domain.ActionAwaitApproval, ticket.NextAction)

	err = o.Approve(context.Background(), ticket, domain.ApprovalToken{TicketID: ticket.ID}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StageFinished, ticket.CurrentStage)
	assert.NotNil(t, ticket.Result)
}

func TestApproveRejectsAlreadyDecidedTicket(t *testing.T) {
	o, _, _ := testOrchestrator(t, "SELECT region FROM orders\n-- confidence: 95", nil)
	ticket := newTicket("tk-dup-1", "show total revenue by region")
	ticket.CurrentStage = domain.StageApproval
	ticket.Approval = &domain.ApprovalToken{Decided: true}

	err := o.Approve(context.Background(), ticket, domain.ApprovalToken{}, "")
	assert.Error(t, err)
}

func TestRejectTransitionsToRejected(t *testing.T) {
	o, _, events := testOrchestrator(t, "SELECT region FROM orders\n-- confidence: 95", nil)
	ticket := newTicket("tk-reject-1", "show total revenue by region")
	ticket.CurrentStage = domain.StageApproval

	err := o.Reject(context.Background(), ticket, domain.ApprovalToken{TicketID: ticket.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StageFinished, ticket.CurrentStage)

	var sawRejected bool
	for _, rec := range events.records {
		if rec.State == domain.StateRejected {
			sawRejected = true
		}
	}
	assert.True(t, sawRejected)
}

func TestIterationCapHaltsWithError(t *testing.T) {
	o, _, _ := testOrchestrator(t, "SELECT region FROM orders\n-- confidence: 95%", nil)
	ticket := newTicket("tk-iter-1", "show total revenue by region")
	ticket.MaxIterations = 1
	ticket.IterationCount = 1

	err := o.Run(context.Background(), ticket)
	assert.Error(t, err)
	assert.Equal(t, domain.StageFinished, ticket.CurrentStage)
}

type fakeMetadataQA struct{ answer string }

func (f *fakeMetadataQA) Answer(ctx context.Context, question string, schema *domain.SchemaSnapshot) (string, error) {
	return f.answer, nil
}

type recordingHistory struct {
	recorded []string
}

func (r *recordingHistory) SimilarQueries(ctx context.Context, userText string, limit int) ([]string, error) {
	return nil, nil
}
func (r *recordingHistory) RecordSuccess(ctx context.Context, userText, sql string) error {
	r.recorded = append(r.recorded, sql)
	return nil
}

func TestNodeRouteFillsMetadataAnswerFromCollaborator(t *testing.T) {
	o, _, _ := testOrchestrator(t, "", nil)
	o.MetadataQA = &fakeMetadataQA{answer: "available tables: orders"}
	ticket := newTicket("tk-meta-1", "what tables do you have")

	err := o.Run(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionMetadataReply, ticket.NextAction)
	assert.Equal(t, "available tables: orders", ticket.ClarificationMsg)
}

func TestNodeAnalyzeRecordsHistoryOnSuccess(t *testing.T) {
	o, _, _ := testOrchestrator(t, "SELECT region FROM orders\n-- confidence: 95%", nil)
	history := &recordingHistory{}
	o.History = history
	ticket := newTicket("tk-hist-1", "show total revenue by region")
	ticket.AutoApprove = true

	err := o.Run(context.Background(), ticket)
	require.NoError(t, err)
	require.Len(t, history.recorded, 1)
	assert.Contains(t, history.recorded[0], "SELECT region FROM orders")
}

func TestCancelMarksTicketCancelled(t *testing.T) {
	o, _, events := testOrchestrator(t, "", nil)
	ticket := newTicket("tk-cancel-1", "show total revenue by region")
	ticket.CurrentStage = domain.StageExecute

	err := o.Cancel(context.Background(), ticket, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StageFinished, ticket.CurrentStage)

	var sawCancelled bool
	for _, rec := range events.records {
		if rec.State == domain.StateCancelled {
			sawCancelled = true
		}
	}
	assert.True(t, sawCancelled)
}
