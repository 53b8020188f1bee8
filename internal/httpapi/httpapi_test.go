package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/executor"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/orchestrator"
	"github.com/nlsql/gateway/internal/platform/config"
	"github.com/nlsql/gateway/internal/router"
	"github.com/nlsql/gateway/internal/synth"
	"github.com/nlsql/gateway/internal/validator"
)

type fakeSchema struct{ snap *domain.SchemaSnapshot }

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

type fakeEvents struct{}

func (f *fakeEvents) Publish(ctx context.Context, ticketID string, record domain.EventRecord) error {
	return nil
}

type fakeLLM struct{ content string }

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
func (f *fakeDriver) Cancel(ctx context.Context, sessionID string) error { return nil }
func (f *fakeDriver) Describe(ctx context.Context, table string) ([]domain.Column, error) {
	return nil, nil
}

func testSchema() *domain.SchemaSnapshot {
	return &domain.SchemaSnapshot{
		DatabaseKind: domain.DatabasePostgres,
		Tables: map[string][]domain.Column{
			"orders": {{Name: "REGION", Type: "VARCHAR"}, {Name: "AMOUNT", Type: "NUMBER"}},
		},
	}
}

// testServer builds a Server backed by a real orchestrator wired with
// in-memory fakes, mirroring internal/orchestrator's own test harness so
// the HTTP layer exercises the same node graph it will in production.
func testServer(t *testing.T, llmContent string) (*Server, *fakeCheckpointer) {
	t.Helper()
	cfg := &config.Config{
		MaxIterations: domain.DefaultMaxIterations,
		RoleLimits: map[string]config.RoleLimits{
			"analyst": {MaxTables: 5, MaxJoins: 5, MaxRows: 1000, DailyQueryQuota: 1000},
		},
		DevMode: true,
	}
	r := router.New(nil, false, nil, nil)
	llm := &fakeLLM{content: llmContent}
	s := &synth.Synthesizer{LLM: llm}
	v := validator.New(cfg, nil, nil, nil, nil)
	driver := &fakeDriver{
		result: domain.ExecutionResult{Columns: []string{"region"}, Rows: [][]any{{"west"}}, RowCount: 1, Status: domain.ExecutionSuccess},
	}
	backend := &executor.Backend{Driver: driver, Breaker: executor.NewBreaker("pg", 5, time.Second)}
	exec := executor.New(map[domain.DatabaseKind]*executor.Backend{domain.DatabasePostgres: backend}, nil, nil)

	schema := &fakeSchema{snap: testSchema()}
	cp := newFakeCheckpointer()
	events := &fakeEvents{}

	orch := orchestrator.New(r, s, v, exec, schema, cp, events, cfg, nil, nil)
	srv := NewServer(orch, cp, nil, cfg, nil, "", nil)
	return srv, cp
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleSubmitHappyPath(t *testing.T) {
	srv, _ := testServer(t, "SELECT region FROM orders\n-- confidence: 95%")
	srv.Config.AutoApproveDefault = true
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/submit", submitRequest{Query: "show total revenue by region"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.QueryID)
	assert.Contains(t, resp.SQL, "SELECT region FROM orders")
	require.NotNil(t, resp.Results)
	assert.Equal(t, 1, resp.Results.RowCount)
}

func TestHandleSubmitRejectsEmptyQuery(t *testing.T) {
	srv, _ := testServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/submit", submitRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProcessSuspendsAtApproval(t *testing.T) {
	srv, _ := testServer(t, "SELECT region FROM orders\n-- confidence: 95%")
	srv.Config.SensitiveTables = []string{"orders"}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/process", processRequest{Query: "show total revenue by region"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending_approval", resp.Status)
	assert.True(t, resp.NeedsApproval)
}

func TestHandleApproveResumesSuspendedTicket(t *testing.T) {
	srv, cp := testServer(t, "SELECT region FROM orders\n-- confidence: 95%")
	srv.Config.SensitiveTables = []string{"orders"}

	submitRec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/process", processRequest{Query: "show total revenue by region"})
	var submitResp processResponse
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitResp))
	require.True(t, submitResp.NeedsApproval)
	require.Contains(t, cp.saved, submitResp.QueryID)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/"+submitResp.QueryID+"/approve", approveRequest{Approved: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.Results)
}

func TestHandleRejectMarksTicketRejected(t *testing.T) {
	srv, cp := testServer(t, "SELECT region FROM orders\n-- confidence: 95%")
	srv.Config.SensitiveTables = []string{"orders"}

	submitRec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/process", processRequest{Query: "show total revenue by region"})
	var submitResp processResponse
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitResp))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/"+submitResp.QueryID+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rejectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp.Status)

	ticket, ok := cp.saved[submitResp.QueryID]
	require.True(t, ok)
	assert.Equal(t, domain.ActionRejected, ticket.NextAction)
}

func TestHandleCancelUnknownTicketReportsNotFound(t *testing.T) {
	srv, _ := testServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/tk-does-not-exist/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp cancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Status)
	assert.False(t, resp.Cancelled)
}

func TestHandleClarifyResumesSameTicket(t *testing.T) {
	srv, cp := testServer(t, "SELECT region FROM orders\n-- confidence: 95%")
	srv.Config.AutoApproveDefault = true

	submitRec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/submit", submitRequest{Query: "show total revenue by region"})
	var submitResp submitResponse
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitResp))
	ticketID := submitResp.QueryID

	ticket, ok := cp.saved[ticketID]
	require.True(t, ok)
	ticket.CurrentStage = domain.StageFinished
	ticket.NextAction = domain.ActionClarify

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/clarify", clarifyRequest{
		QueryID:       ticketID,
		Clarification: "group by region specifically",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ticketID, resp.QueryID)
	assert.Equal(t, "success", resp.Status)
}

func TestHandleStatusHidesMetadataFromNonOwner(t *testing.T) {
	srv, cp := testServer(t, "SELECT region FROM orders\n-- confidence: 95%")
	cp.saved["tk-status-1"] = &domain.QueryTicket{
		ID: "tk-status-1", ThreadID: "tk-status-1", OwnerUser: "u1",
		CurrentStage: domain.StageFinished, NextAction: domain.ActionFinished,
	}

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/queries/tk-status-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Nil(t, resp.Metadata)
}

func TestHandleConnectionsListsConfigured(t *testing.T) {
	srv, _ := testServer(t, "")
	srv.Connections = []connectionInfo{{Name: "default", DatabaseType: "postgres"}}

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp connectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Connections, 1)
	assert.Equal(t, "default", resp.Connections[0].Name)
}

func TestHandleStreamWithoutEventBusReportsError(t *testing.T) {
	srv, cp := testServer(t, "")
	cp.saved["tk-stream-1"] = &domain.QueryTicket{
		ID: "tk-stream-1", ThreadID: "tk-stream-1", OwnerUser: "u1",
		CurrentStage: domain.StageExecute,
	}

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/queries/tk-stream-1/stream", nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejectsAnonymousOutsideDevMode(t *testing.T) {
	srv, _ := testServer(t, "")
	srv.Config.DevMode = false

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/queries/submit", submitRequest{Query: "hello"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthzReportsOK(t *testing.T) {
	srv, _ := testServer(t, "")
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}
