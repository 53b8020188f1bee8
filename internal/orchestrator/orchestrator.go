// Package orchestrator drives a QueryTicket through the node graph of
// spec §4.5: receive -> route -> {synthesize|clarify|...} -> validate ->
// {execute|await_approval|repair|clarify|error} -> {analyze|pivot|error} ->
// finished. Every node mutates the ticket and sets NextAction; the driver
// loop persists a checkpoint after each node and interprets NextAction to
// decide what runs next.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/nlsql/gateway/internal/cache"
	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/executor"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/platform/config"
	"github.com/nlsql/gateway/internal/platform/core"
	"github.com/nlsql/gateway/internal/platform/gatewayerr"
	"github.com/nlsql/gateway/internal/platform/logger"
	"github.com/nlsql/gateway/internal/platform/metrics"
	"github.com/nlsql/gateway/internal/router"
	"github.com/nlsql/gateway/internal/skills"
	"github.com/nlsql/gateway/internal/synth"
	"github.com/nlsql/gateway/internal/validator"
)

// MaxRepairAttempts bounds the validate -> repair -> synthesize loop to a
// single retry per ticket (spec §4.5's "bounded: ≤1 attempt per ticket").
const MaxRepairAttempts = 1

// MaxPivotAttempts bounds the execute -> pivot -> synthesize loop. The spec
// leaves N to implementation judgment ("bounded: ≤N attempts; strategy
// rotation"); 3 matches the teacher's general retry-attempt convention
// (internal/platform/core.CheckpointRetryPolicy.Attempts) and gives the
// strategy rotation (see pivotStrategies) room to exhaust every strategy.
const MaxPivotAttempts = 3

// SchemaProvider resolves the cached schema snapshot for a backend, the
// Orchestrator's one dependency on the schema cache (spec §4.8).
type SchemaProvider interface {
	Get(ctx context.Context, dbKind domain.DatabaseKind) (*domain.SchemaSnapshot, error)
}

// EventPublisher fans a ticket's state transitions out to the event bus
// (spec §4.7). Kept as a narrow interface here so internal/orchestrator has
// no import-time dependency on internal/eventbus.
type EventPublisher interface {
	Publish(ctx context.Context, ticketID string, record domain.EventRecord) error
}

// Orchestrator wires every pipeline stage into the node graph driver.
type Orchestrator struct {
	Router       *router.Router
	Synthesizer  *synth.Synthesizer
	Validator    *validator.Validator
	Executor     *executor.Facade
	Schema       SchemaProvider
	Checkpointer external.Checkpointer
	Events       EventPublisher
	Config       *config.Config
	Tracer       core.Tracer
	Log          *logger.Logger
	MetadataQA       external.MetadataQA
	History          external.HistoryRetriever
	AdaptiveApproval external.AdaptiveApproval
	Metrics          *metrics.Metrics
}

// New builds an Orchestrator from its collaborators.
func New(r *router.Router, s *synth.Synthesizer, v *validator.Validator, e *executor.Facade, schema SchemaProvider, cp external.Checkpointer, events EventPublisher, cfg *config.Config, tracer core.Tracer, log *logger.Logger) *Orchestrator {
	if tracer == nil {
		tracer = core.NoopTracer
	}
	return &Orchestrator{
		Router: r, Synthesizer: s, Validator: v, Executor: e,
		Schema: schema, Checkpointer: cp, Events: events,
		Config: cfg, Tracer: tracer, Log: log,
	}
}

// ErrCancelled is returned by Run/Resume when the ticket's context is
// cancelled mid-flight (spec §4.5's "Cancellation" paragraph).
var ErrCancelled = errors.New("orchestrator: ticket cancelled")

// pivotStrategies rotates through alternate synthesis hints on successive
// pivot attempts (spec §4.5 "strategy rotation").
var pivotStrategies = []string{
	"prefer an alternate join path between the referenced tables",
	"avoid the previously generated expression; use a simpler aggregation",
	"reduce scope to the single most relevant table and retry",
}

// Run drives a freshly received ticket (submit_nl/submit_sql) through the
// graph until it reaches a terminal or suspended state (finished, error,
// cancelled, rejected, or await_approval).
func (o *Orchestrator) Run(ctx context.Context, ticket *domain.QueryTicket) error {
	ticket.CurrentStage = domain.StageReceive
	ticket.NextAction = domain.ActionRoute
	return o.drive(ctx, ticket)
}

// Resume re-enters the graph after an external mutation to a suspended
// ticket (an approve/reject decision, or a clarification answer appended
// to ticket.Request.History). The caller is expected to have already
// loaded the ticket from the checkpoint store.
func (o *Orchestrator) Resume(ctx context.Context, ticket *domain.QueryTicket) error {
	return o.drive(ctx, ticket)
}

// drive runs nodes in a loop, checkpointing after each one, until the
// ticket reaches a terminal state or a node requests a suspend
// (await_approval, clarify).
func (o *Orchestrator) drive(ctx context.Context, ticket *domain.QueryTicket) error {
	for {
		if err := ctx.Err(); err != nil {
			o.terminate(ctx, ticket, domain.StateCancelled, gatewayerr.Cancelled, "context cancelled")
			return ErrCancelled
		}

		action := ticket.NextAction
		var err error
		nodeStart := time.Now()

		switch action {
		case domain.ActionRoute:
			err = o.nodeRoute(ctx, ticket)
		case domain.ActionSynthesize:
			err = o.nodeSynthesize(ctx, ticket)
		case domain.ActionValidate:
			err = o.nodeValidate(ctx, ticket)
		case domain.ActionRepair:
			err = o.nodeRepair(ctx, ticket)
		case domain.ActionExecute:
			err = o.nodeExecute(ctx, ticket)
		case domain.ActionPivot:
			err = o.nodePivot(ctx, ticket)
		case domain.ActionAnalyze:
			err = o.nodeAnalyze(ctx, ticket)

		case domain.ActionAwaitApproval:
			// Interrupt-before-approval: persist and return control to the
			// caller without entering the node (spec §4.5).
			ticket.CurrentStage = domain.StageApproval
			o.checkpoint(ctx, ticket)
			o.publish(ctx, ticket, domain.StatePendingApproval, nil)
			return nil

		case domain.ActionConversationalReply, domain.ActionMetadataReply, domain.ActionClarify:
			ticket.CurrentStage = domain.StageFinished
			o.checkpoint(ctx, ticket)
			o.publish(ctx, ticket, domain.StateFinished, nil)
			return nil

		case domain.ActionFinished:
			ticket.CurrentStage = domain.StageFinished
			o.checkpoint(ctx, ticket)
			o.publish(ctx, ticket, domain.StateFinished, nil)
			return nil

		case domain.ActionRejected:
			ticket.CurrentStage = domain.StageFinished
			o.checkpoint(ctx, ticket)
			o.publish(ctx, ticket, domain.StateRejected, nil)
			return nil

		case domain.ActionError:
			o.terminate(ctx, ticket, domain.StateError, ticket.ErrorKind, ticket.Error)
			return gatewayerr.New(ticket.ErrorKind, ticket.Error)

		default:
			ticket.Error = "unknown next_action"
			ticket.ErrorKind = gatewayerr.ExecutionError
			o.terminate(ctx, ticket, domain.StateError, ticket.ErrorKind, ticket.Error)
			return gatewayerr.New(ticket.ErrorKind, ticket.Error)
		}

		if isNodeAction(action) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			o.Metrics.ObserveNode(string(action), outcome, time.Since(nodeStart).Seconds())
		}

		if err != nil {
			// Failure semantics (spec §4.5): uncaught node failure sets
			// current_stage/error/next_action=error, publishes error, no
			// rollback of prior side effects.
			var gwErr *gatewayerr.Error
			if !errors.As(err, &gwErr) {
				gwErr = gatewayerr.Wrap(gatewayerr.ExecutionError, err.Error(), err)
			}
			ticket.Error = gwErr.Message
			ticket.ErrorKind = gwErr.Code
			ticket.NextAction = domain.ActionError
			o.checkpoint(ctx, ticket)
			continue
		}

		o.checkpoint(ctx, ticket)
	}
}

func (o *Orchestrator) terminate(ctx context.Context, ticket *domain.QueryTicket, state domain.TicketState, code gatewayerr.Code, message string) {
	ticket.CurrentStage = domain.StageFinished
	ticket.Error = message
	ticket.ErrorKind = code
	o.checkpoint(ctx, ticket)
	o.publish(ctx, ticket, state, map[string]any{"error": message})
}

func (o *Orchestrator) checkpoint(ctx context.Context, ticket *domain.QueryTicket) {
	if o.Checkpointer == nil {
		return
	}
	err := core.Retry(ctx, core.CheckpointRetryPolicy, func() error {
		return o.Checkpointer.Put(ctx, ticket.ThreadID, ticket)
	})
	if err != nil && o.Log != nil {
		o.Log.WithContext(ctx).WithError(err).WithField("ticket_id", ticket.ID).Error("checkpoint persist failed after retries")
	}
}

func (o *Orchestrator) publish(ctx context.Context, ticket *domain.QueryTicket, state domain.TicketState, payload map[string]any) {
	if o.Events == nil {
		return
	}
	record := domain.EventRecord{TicketID: ticket.ID, State: state, Payload: payload}
	if err := o.Events.Publish(ctx, ticket.ID, record); err != nil && o.Log != nil {
		o.Log.WithContext(ctx).WithError(err).Warn("event publish failed")
	}
}

func (o *Orchestrator) span(ctx context.Context, name string, ticket *domain.QueryTicket) (context.Context, func(error)) {
	return o.Tracer.StartSpan(ctx, name, map[string]string{"ticket_id": ticket.ID, "stage": string(ticket.CurrentStage)})
}

// isNodeAction reports whether action dispatches to one of the pipeline
// node functions (as opposed to a terminal/interrupt branch), the set
// internal/platform/metrics.Metrics.ObserveNode is labeled by.
func isNodeAction(action domain.NextAction) bool {
	switch action {
	case domain.ActionRoute, domain.ActionSynthesize, domain.ActionValidate,
		domain.ActionRepair, domain.ActionExecute, domain.ActionPivot, domain.ActionAnalyze:
		return true
	default:
		return false
	}
}

func roleCapFor(cfg *config.Config, role string) int {
	if cfg == nil {
		return 0
	}
	return cfg.RoleLimitFor(role).MaxRows
}

func dbTimeout(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.DBTimeoutS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(cfg.DBTimeoutS) * time.Second
}
