// Package domain holds the explicit, statically-typed records the gateway's
// pipeline stages pass between each other, replacing the untyped
// dictionaries the source system used for state/context/result (see
// SPEC_FULL.md §9, "Dynamic dicts -> structured records").
package domain

import (
	"regexp"
	"time"

	"github.com/nlsql/gateway/internal/platform/gatewayerr"
)

// DatabaseKind enumerates the relational backends the gateway targets.
type DatabaseKind string

const (
	DatabaseOracle   DatabaseKind = "oracle"
	DatabasePostgres DatabaseKind = "postgres"
	DatabaseDoris    DatabaseKind = "doris"
)

// Stage names the orchestrator node a ticket is currently in or last
// completed. These correspond to the nodes in SPEC_FULL.md §4.5's DAG.
type Stage string

const (
	StageReceive    Stage = "receive"
	StageRoute      Stage = "route"
	StageSynthesize Stage = "synthesize"
	StageValidate   Stage = "validate"
	StageRepair     Stage = "repair"
	StageApproval   Stage = "await_approval"
	StageExecute    Stage = "execute"
	StagePivot      Stage = "pivot"
	StageAnalyze    Stage = "analyze"
	StageFinished   Stage = "finished"
)

// NextAction is the terminal decision a node leaves behind for the
// orchestrator driver loop to act on.
type NextAction string

const (
	ActionRoute                NextAction = "route"
	ActionConversationalReply  NextAction = "conversational_reply"
	ActionMetadataReply        NextAction = "metadata_reply"
	ActionSynthesize           NextAction = "synthesize"
	ActionClarify              NextAction = "clarify"
	ActionValidate             NextAction = "validate"
	ActionExecute              NextAction = "execute"
	ActionAwaitApproval        NextAction = "await_approval"
	ActionRepair               NextAction = "repair"
	ActionPivot                NextAction = "pivot"
	ActionAnalyze              NextAction = "analyze"
	ActionFinished             NextAction = "finished"
	ActionRejected             NextAction = "rejected"
	ActionError                NextAction = "error"
)

// TicketIDPattern is the exact format spec §3/§6 requires for QueryTicket ids.
var TicketIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// DefaultMaxIterations is the default iteration cap (spec §3).
const DefaultMaxIterations = 40

// DefaultTicketTTL is the default checkpoint-store retention for a ticket
// (spec §3: "destroyed when TTL expires in the checkpoint store (default 7
// days)").
const DefaultTicketTTL = 7 * 24 * time.Hour

// QueryTicket is the durable unit of work flowing through the orchestrator.
type QueryTicket struct {
	ID             string
	OwnerUser      string
	OwnerRole      string
	SessionID      string
	CreatedAt      time.Time
	CurrentStage   Stage
	NextAction     NextAction
	IterationCount int
	MaxIterations  int
	TraceID        string
	DatabaseKind   DatabaseKind
	AutoApprove    bool

	// Request is the originating natural-language request, immutable after
	// acceptance.
	Request UserRequest

	// Mutable pipeline artifacts, populated as stages complete.
	Skills     *SkillsOutput
	SQL        *GeneratedSQL
	Verdict    *ValidationVerdict
	Result     *ExecutionResult
	Approval   *ApprovalToken
	RepairUsed bool
	PivotCount int

	Error            string
	ErrorKind        gatewayerr.Code
	ClarificationMsg string

	ThreadID string
}

// Validate checks the ticket-level invariants from spec §3.
func (t *QueryTicket) Validate() error {
	if !TicketIDPattern.MatchString(t.ID) {
		return gatewayerr.New(gatewayerr.NotFound, "ticket id must match "+TicketIDPattern.String())
	}
	if t.MaxIterations <= 0 {
		t.MaxIterations = DefaultMaxIterations
	}
	return nil
}

// IterationLimitReached reports whether the ticket has hit its iteration cap.
func (t *QueryTicket) IterationLimitReached() bool {
	max := t.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}
	return t.IterationCount >= max
}
