package httpapi

import (
	"time"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/platform/gatewayerr"
)

// submitRequest is POST /queries/submit's body.
type submitRequest struct {
	Query          string `json:"query" binding:"required"`
	ConnectionName string `json:"connection_name"`
	DatabaseType   string `json:"database_type"`
}

// submitResponse is POST /queries/submit's body (spec §6 endpoint table).
type submitResponse struct {
	QueryID         string            `json:"query_id"`
	Status          string            `json:"status"`
	Message         string            `json:"message,omitempty"`
	SQL             string            `json:"sql,omitempty"`
	Results         *resultsDTO       `json:"results,omitempty"`
	ExecutionTimeMs *int64            `json:"execution_time_ms,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// processRequest is POST /queries/process's body.
type processRequest struct {
	Query        string `json:"query" binding:"required"`
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	DatabaseType string `json:"database_type"`
	AutoApprove  bool   `json:"auto_approve"`
}

// approveRequest is POST /queries/{id}/approve's body.
type approveRequest struct {
	Approved           bool     `json:"approved"`
	ModifiedSQL        string   `json:"modified_sql"`
	RejectionReason    string   `json:"rejection_reason"`
	DecisionReason     string   `json:"decision_reason"`
	ConstraintsApplied []string `json:"constraints_applied"`
}

// rejectResponse is POST /queries/{id}/reject's body.
type rejectResponse struct {
	QueryID   string    `json:"query_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// cancelRequest is POST /queries/{id}/cancel's body.
type cancelRequest struct {
	QueryID string `json:"query_id"`
}

// cancelResponse is POST /queries/{id}/cancel's body.
type cancelResponse struct {
	QueryID   string `json:"query_id"`
	Status    string `json:"status"`
	Cancelled bool   `json:"cancelled"`
}

// clarifyRequest is POST /queries/clarify's body.
type clarifyRequest struct {
	QueryID       string `json:"query_id" binding:"required"`
	Clarification string `json:"clarification" binding:"required"`
	OriginalQuery string `json:"original_query"`
	DatabaseType  string `json:"database_type"`
}

// resultsDTO is the wire shape of an ExecutionResult.
type resultsDTO struct {
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	RowCount    int      `json:"row_count"`
	CacheStatus string   `json:"cache_status,omitempty"`
}

func resultsFrom(r *domain.ExecutionResult) *resultsDTO {
	if r == nil {
		return nil
	}
	return &resultsDTO{
		Columns:     r.Columns,
		Rows:        r.Rows,
		RowCount:    r.RowCount,
		CacheStatus: string(r.CacheStatus),
	}
}

// validationDTO is the wire shape of a ValidationVerdict.
type validationDTO struct {
	Valid            bool     `json:"valid"`
	RiskLevel        string   `json:"risk_level"`
	RequiresApproval bool     `json:"requires_approval"`
	Warnings         []string `json:"warnings,omitempty"`
	Errors           []string `json:"errors,omitempty"`
	RiskReasons      []string `json:"risk_reasons,omitempty"`
}

func validationFrom(v *domain.ValidationVerdict) *validationDTO {
	if v == nil {
		return nil
	}
	return &validationDTO{
		Valid:            v.Valid,
		RiskLevel:        string(v.RiskLevel),
		RequiresApproval: v.RequiresApproval,
		Warnings:         v.Warnings,
		Errors:           v.Errors,
		RiskReasons:      v.RiskReasons,
	}
}

// errorDetailsDTO is spec §7's llm_metadata.error_details shape.
type errorDetailsDTO struct {
	Message       string `json:"message"`
	FailedAt      string `json:"failed_at"`
	SQLAttempted  string `json:"sql_attempted,omitempty"`
	ErrorTaxonomy string `json:"error_taxonomy"`
}

type llmMetadataDTO struct {
	Confidence   *int             `json:"confidence,omitempty"`
	ErrorDetails *errorDetailsDTO `json:"error_details,omitempty"`
}

// processResponse is the common shape shared by /process, /approve, and
// /clarify (spec §6 endpoint table: "same shape as /process").
type processResponse struct {
	QueryID                 string          `json:"query_id"`
	Status                  string          `json:"status"`
	SQLQuery                string          `json:"sql_query,omitempty"`
	Validation              *validationDTO  `json:"validation,omitempty"`
	Results                 *resultsDTO     `json:"results,omitempty"`
	NeedsApproval           bool            `json:"needs_approval"`
	LLMMetadata             *llmMetadataDTO `json:"llm_metadata,omitempty"`
	Error                   string          `json:"error,omitempty"`
	ClarificationMessage    string          `json:"clarification_message,omitempty"`
	ClarificationDetails    any             `json:"clarification_details,omitempty"`
	SQLConfidence           *int            `json:"sql_confidence,omitempty"`
	OptimizationSuggestions []string        `json:"optimization_suggestions,omitempty"`
}

// statusResponse is GET /queries/{id}/status's body.
type statusResponse struct {
	QueryID  string         `json:"query_id"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// connectionsResponse is GET /connections's body.
type connectionsResponse struct {
	Status      string           `json:"status"`
	Connections []connectionInfo `json:"connections"`
}

type connectionInfo struct {
	Name         string `json:"name"`
	DatabaseType string `json:"database_type"`
}

// ConnectionInfo is the exported name internal/app uses to build
// Server.Connections.
type ConnectionInfo = connectionInfo

func databaseKind(raw, fallback string) domain.DatabaseKind {
	if raw == "" {
		raw = fallback
	}
	switch domain.DatabaseKind(raw) {
	case domain.DatabaseOracle, domain.DatabasePostgres, domain.DatabaseDoris:
		return domain.DatabaseKind(raw)
	default:
		return domain.DatabasePostgres
	}
}

// ticketStatus maps a ticket's current state to the spec's small status
// vocabulary ({success, error, pending_approval, rejected, cancelled,
// clarification_needed}), or in_progress for a ticket still running.
func ticketStatus(ticket *domain.QueryTicket) string {
	switch ticket.CurrentStage {
	case domain.StageApproval:
		return "pending_approval"
	case domain.StageFinished:
		if ticket.ErrorKind == gatewayerr.Cancelled {
			return "cancelled"
		}
		switch ticket.NextAction {
		case domain.ActionError:
			return "error"
		case domain.ActionRejected:
			return "rejected"
		case domain.ActionClarify:
			return "clarification_needed"
		default:
			return "success"
		}
	default:
		return "in_progress"
	}
}
