package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/eventbus"
	"github.com/nlsql/gateway/internal/platform/gatewayerr"
)

// handleSubmit implements POST /queries/submit (spec §6).
func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, gatewayerr.New(gatewayerr.ValidationEmpty, "query is required"))
		return
	}
	who := s.callerFrom(c)
	ticket := s.newTicket(req.Query, who.UserID, who.Role, req.ConnectionName, databaseKind(req.DatabaseType, ""), false)

	if err := s.Orchestrator.Run(c.Request.Context(), ticket); err != nil {
		if !isTerminalOrchestratorErr(err) {
			respondError(c, err)
			return
		}
	}

	resp := submitResponse{
		QueryID:   ticket.ID,
		Status:    submitStatus(ticket),
		Message:   submitMessage(ticket),
		Timestamp: time.Now().UTC(),
	}
	if ticket.SQL != nil {
		resp.SQL = ticket.SQL.Text
	}
	if ticket.Result != nil {
		resp.Results = resultsFrom(ticket.Result)
		ms := ticket.Result.ExecutionTimeMs
		resp.ExecutionTimeMs = &ms
	}
	c.JSON(http.StatusOK, resp)
}

// handleProcess implements POST /queries/process (spec §6).
func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, gatewayerr.New(gatewayerr.ValidationEmpty, "query is required"))
		return
	}
	who := s.callerFrom(c)
	userID := firstNonEmpty(who.UserID, req.UserID)
	ticket := s.newTicket(req.Query, userID, who.Role, "", databaseKind(req.DatabaseType, ""), req.AutoApprove)
	ticket.SessionID = req.SessionID

	if err := s.Orchestrator.Run(c.Request.Context(), ticket); err != nil {
		if !isTerminalOrchestratorErr(err) {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, buildProcessResponse(ticket))
}

// handleApprove implements POST /queries/{id}/approve (spec §6).
func (s *Server) handleApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, gatewayerr.New(gatewayerr.ValidationEmpty, "malformed request body"))
		return
	}
	ticket, err := s.loadTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.authorizeTicket(c, ticket); err != nil {
		respondError(c, err)
		return
	}

	who := s.callerFrom(c)
	token := domain.ApprovalToken{
		TicketID:  ticket.ID,
		SessionID: who.UserID,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		CreatedAt: time.Now().UTC(),
	}
	if ticket.SQL != nil {
		token.OriginalSQLHash = ticket.SQL.Text
	}

	if req.Approved {
		err = s.Orchestrator.Approve(c.Request.Context(), ticket, token, req.ModifiedSQL)
	} else {
		err = s.Orchestrator.Reject(c.Request.Context(), ticket, token)
	}
	if err != nil && !isTerminalOrchestratorErr(err) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildProcessResponse(ticket))
}

// handleReject implements POST /queries/{id}/reject (spec §6).
func (s *Server) handleReject(c *gin.Context) {
	ticket, err := s.loadTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.authorizeTicket(c, ticket); err != nil {
		respondError(c, err)
		return
	}
	token := domain.ApprovalToken{TicketID: ticket.ID, CreatedAt: time.Now().UTC()}
	if err := s.Orchestrator.Reject(c.Request.Context(), ticket, token); err != nil && !isTerminalOrchestratorErr(err) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rejectResponse{QueryID: ticket.ID, Status: "rejected", Timestamp: time.Now().UTC()})
}

// handleCancel implements POST /queries/{id}/cancel (spec §6).
func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	ticket, err := s.loadTicket(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, cancelResponse{QueryID: id, Status: "not_found", Cancelled: false})
		return
	}
	if err := s.authorizeTicket(c, ticket); err != nil {
		respondError(c, err)
		return
	}
	sessionID := ""
	if ticket.Result != nil {
		sessionID = ticket.SessionID
	}
	if err := s.Orchestrator.Cancel(c.Request.Context(), ticket, sessionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelResponse{QueryID: ticket.ID, Status: "cancelled", Cancelled: true})
}

// handleClarify implements POST /queries/clarify (spec §6). thread_id ==
// ticket_id (spec §4.5's design note), so clarification resumes the same
// ticket in place rather than minting a new one.
func (s *Server) handleClarify(c *gin.Context) {
	var req clarifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, gatewayerr.New(gatewayerr.ValidationEmpty, "query_id and clarification are required"))
		return
	}
	ticket, err := s.loadTicket(c.Request.Context(), req.QueryID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.authorizeTicket(c, ticket); err != nil {
		respondError(c, err)
		return
	}

	ticket.Request.History = append(ticket.Request.History, domain.HistoryEntry{
		Role:    domain.HistoryUser,
		Content: req.Clarification,
	})
	ticket.Request.Truncate()
	if req.DatabaseType != "" {
		ticket.DatabaseKind = databaseKind(req.DatabaseType, string(ticket.DatabaseKind))
	}
	ticket.NextAction = domain.ActionSynthesize
	ticket.CurrentStage = domain.StageSynthesize

	if err := s.Orchestrator.Resume(c.Request.Context(), ticket); err != nil && !isTerminalOrchestratorErr(err) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildProcessResponse(ticket))
}

// handleStatus implements GET /queries/{id}/status (spec §6). Metadata is
// only included for the ticket's owner or an admin.
func (s *Server) handleStatus(c *gin.Context) {
	ticket, err := s.loadTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := statusResponse{QueryID: ticket.ID, Status: ticketStatus(ticket)}
	who := s.callerFrom(c)
	if who.UserID == ticket.OwnerUser || strings.EqualFold(who.Role, "admin") {
		resp.Metadata = map[string]any{
			"current_stage":   string(ticket.CurrentStage),
			"iteration_count": ticket.IterationCount,
			"pivot_count":     ticket.PivotCount,
			"repair_used":     ticket.RepairUsed,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleConnections implements GET /connections (spec §6).
func (s *Server) handleConnections(c *gin.Context) {
	c.JSON(http.StatusOK, connectionsResponse{Status: "ok", Connections: s.Connections})
}

func (s *Server) newTicket(query, userID, role, connName string, dbKind domain.DatabaseKind, autoApprove bool) *domain.QueryTicket {
	id := newTicketID()
	ticket := &domain.QueryTicket{
		ID:            id,
		ThreadID:      id,
		OwnerUser:     userID,
		OwnerRole:     role,
		CreatedAt:     time.Now().UTC(),
		MaxIterations: domain.DefaultMaxIterations,
		DatabaseKind:  dbKind,
		AutoApprove:   autoApprove || (s.Config != nil && s.Config.AutoApproveDefault),
		Request:       domain.UserRequest{Query: query, ConnectionName: connName},
	}
	if s.Config != nil {
		ticket.MaxIterations = s.Config.MaxIterations
	}
	return ticket
}

func (s *Server) authorizeTicket(c *gin.Context, ticket *domain.QueryTicket) error {
	who := s.callerFrom(c)
	return eventbus.Authorize(ticket, who.UserID, who.Role, s.devMode())
}

func buildProcessResponse(ticket *domain.QueryTicket) processResponse {
	resp := processResponse{
		QueryID:       ticket.ID,
		Status:        ticketStatus(ticket),
		NeedsApproval: ticket.CurrentStage == domain.StageApproval,
	}
	if ticket.SQL != nil {
		resp.SQLQuery = ticket.SQL.Text
		confidence := ticket.SQL.Confidence
		resp.SQLConfidence = &confidence
		resp.LLMMetadata = &llmMetadataDTO{Confidence: &confidence}
	}
	if ticket.Verdict != nil {
		resp.Validation = validationFrom(ticket.Verdict)
		resp.OptimizationSuggestions = ticket.Verdict.CostEstimate.Recommendations
	}
	if ticket.Result != nil {
		resp.Results = resultsFrom(ticket.Result)
	}
	if ticket.NextAction == domain.ActionClarify {
		resp.ClarificationMessage = ticket.ClarificationMsg
	}
	if ticket.NextAction == domain.ActionError {
		resp.Error = ticket.Error
		resp.LLMMetadata = &llmMetadataDTO{ErrorDetails: &errorDetailsDTO{
			Message:       ticket.Error,
			FailedAt:      string(ticket.CurrentStage),
			ErrorTaxonomy: string(ticket.ErrorKind),
		}}
		if ticket.SQL != nil {
			resp.LLMMetadata.ErrorDetails.SQLAttempted = ticket.SQL.Text
		}
	}
	return resp
}

func submitStatus(ticket *domain.QueryTicket) string {
	switch ticketStatus(ticket) {
	case "pending_approval":
		return "pending_approval"
	case "error", "rejected", "clarification_needed":
		return "error"
	default:
		return "success"
	}
}

func submitMessage(ticket *domain.QueryTicket) string {
	switch {
	case ticket.NextAction == domain.ActionError:
		return ticket.Error
	case ticket.NextAction == domain.ActionClarify:
		return ticket.ClarificationMsg
	case ticket.CurrentStage == domain.StageApproval:
		return "awaiting approval"
	default:
		return "ok"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// isTerminalOrchestratorErr reports whether err is the wrapped terminal
// error the orchestrator returns for a ticket that reached current_stage
// = finished/error — a condition the handlers render as a normal (200)
// response body rather than an HTTP error, since the gateway itself
// didn't fail. Approval-state refusals (approval_duplicate,
// approval_forbidden) are not terminal and go out as HTTP errors.
func isTerminalOrchestratorErr(err error) bool {
	e, ok := gatewayerr.As(err)
	return ok && e.Code != gatewayerr.ApprovalDuplicate && e.Code != gatewayerr.ApprovalForbidden
}
