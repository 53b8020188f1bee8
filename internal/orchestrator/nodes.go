package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/platform/gatewayerr"
	"github.com/nlsql/gateway/internal/skills"
	"github.com/nlsql/gateway/internal/synth"
)

// nodeRoute runs the Intent Router and branches on its decision (spec
// §4.1, §4.5 edge "route -> {conversational_reply, metadata_reply,
// synthesize, clarify}").
func (o *Orchestrator) nodeRoute(ctx context.Context, ticket *domain.QueryTicket) error {
	ctx, finish := o.span(ctx, "orchestrator.route", ticket)
	var spanErr error
	defer func() { finish(spanErr) }()

	ticket.CurrentStage = domain.StageRoute

	var schema *domain.SchemaSnapshot
	if o.Schema != nil {
		schema, _ = o.Schema.Get(ctx, ticket.DatabaseKind)
	}

	decision := o.Router.Classify(ctx, ticket.Request.Query, ticket.Request.History, schema)
	switch decision.Intent {
	case "conversational":
		ticket.NextAction = domain.ActionConversationalReply
		ticket.ClarificationMsg = decision.CannedReply
	case "metadata_query":
		ticket.NextAction = domain.ActionMetadataReply
		if o.MetadataQA != nil {
			if answer, err := o.MetadataQA.Answer(ctx, ticket.Request.Query, schema); err == nil {
				ticket.ClarificationMsg = answer
			}
		}
	case "data_query":
		ticket.NextAction = domain.ActionSynthesize
	default:
		ticket.NextAction = domain.ActionClarify
		ticket.ClarificationMsg = decision.CannedReply
	}
	o.publish(ctx, ticket, domain.StatePlanning, map[string]any{"intent": string(decision.Intent)})
	return nil
}

// nodeSynthesize resolves the Skills Engine then runs the SQL Synthesizer
// (spec §4.2, §4.3; §4.5 edge "synthesize -> {validate, clarify, error}").
func (o *Orchestrator) nodeSynthesize(ctx context.Context, ticket *domain.QueryTicket) error {
	ctx, finish := o.span(ctx, "orchestrator.synthesize", ticket)
	var spanErr error
	defer func() { finish(spanErr) }()

	ticket.CurrentStage = domain.StageSynthesize

	var schema *domain.SchemaSnapshot
	if o.Schema != nil {
		var err error
		schema, err = o.Schema.Get(ctx, ticket.DatabaseKind)
		if err != nil {
			spanErr = err
			return gatewayerr.Wrap(gatewayerr.SchemaUnavailable, "schema snapshot unavailable", err)
		}
	}
	if schema == nil {
		return gatewayerr.New(gatewayerr.SchemaUnavailable, "no schema snapshot configured")
	}

	engine := skills.New(ticket.DatabaseKind)
	out := engine.Resolve(ticket.Request.Query, schema)
	ticket.Skills = &out

	if !out.OK {
		ticket.NextAction = domain.ActionClarify
		if out.Clarification != nil {
			ticket.ClarificationMsg = out.Clarification.Message
		}
		return nil
	}

	cfg := o.Config
	req := synth.Request{
		Ticket:           ticket,
		Skills:           out,
		Schema:           schema,
		ReferencedTables: tableNames(out),
		RoleCap:          roleCapFor(cfg, ticket.OwnerRole),
		HardCap:          0,
		AutoApprove:      ticket.AutoApprove,
	}

	generated, clarification, err := o.Synthesizer.Synthesize(ctx, req)
	if err != nil {
		var clarifyErr *synth.ClarificationError
		if errors.As(err, &clarifyErr) {
			ticket.NextAction = domain.ActionClarify
			ticket.ClarificationMsg = clarifyErr.Message
			return nil
		}
		spanErr = err
		return gatewayerr.Wrap(gatewayerr.LLMUnavailable, "sql synthesis failed", err)
	}
	if clarification != nil {
		ticket.NextAction = domain.ActionClarify
		ticket.ClarificationMsg = clarification.Message
		return nil
	}

	ticket.SQL = generated
	ticket.NextAction = domain.ActionValidate
	return nil
}

// nodeValidate runs the Validator & Safety Net and enforces the iteration
// cap (spec §4.4; §4.5 edge "validate -> {execute, await_approval,
// clarify, error, repair}").
func (o *Orchestrator) nodeValidate(ctx context.Context, ticket *domain.QueryTicket) error {
	ctx, finish := o.span(ctx, "orchestrator.validate", ticket)
	var spanErr error
	defer func() { finish(spanErr) }()

	ticket.CurrentStage = domain.StageValidate
	ticket.IterationCount++
	if ticket.IterationLimitReached() {
		return gatewayerr.New(gatewayerr.IterationLimit, "maximum iteration count reached")
	}

	if ticket.SQL == nil {
		return gatewayerr.New(gatewayerr.ValidationSQLRejected, "no generated sql to validate")
	}

	var schema *domain.SchemaSnapshot
	if o.Schema != nil {
		schema, _ = o.Schema.Get(ctx, ticket.DatabaseKind)
	}

	verdict := o.Validator.Validate(ctx, ticket, ticket.SQL.Text, schema, ticket.OwnerRole)
	ticket.Verdict = &verdict

	if !verdict.Valid {
		if !ticket.RepairUsed {
			ticket.NextAction = domain.ActionRepair
			return nil
		}
		spanErr = gatewayerr.New(gatewayerr.ValidationSQLRejected, "validation failed after repair attempt")
		ticket.NextAction = domain.ActionError
		ticket.Error = firstOrDefault(verdict.Errors, "validation failed")
		ticket.ErrorKind = gatewayerr.ValidationSQLRejected
		return nil
	}

	if verdict.RequiresApproval {
		ticket.CurrentStage = domain.StagePrepared
		ticket.NextAction = domain.ActionAwaitApproval
		return nil
	}

	ticket.NextAction = domain.ActionExecute
	return nil
}

// nodeRepair regenerates SQL once after a validation failure (spec §4.5
// edge "repair -> synthesize, bounded: <=1 attempt per ticket").
func (o *Orchestrator) nodeRepair(ctx context.Context, ticket *domain.QueryTicket) error {
	ctx, finish := o.span(ctx, "orchestrator.repair", ticket)
	defer finish(nil)

	ticket.CurrentStage = domain.StageRepair
	ticket.RepairUsed = true

	hint := "the previous attempt failed validation"
	if ticket.Verdict != nil && len(ticket.Verdict.Errors) > 0 {
		hint = fmt.Sprintf("the previous attempt failed validation: %s", ticket.Verdict.Errors[0])
	}
	ticket.Request.History = append(ticket.Request.History, domain.HistoryEntry{
		Role:    domain.HistoryAssistant,
		Content: hint,
	})

	ticket.NextAction = domain.ActionSynthesize
	return nil
}

// nodeExecute runs the Executor Facade (spec §4.6; §4.5 edge "execute ->
// {analyze, error, pivot}").
func (o *Orchestrator) nodeExecute(ctx context.Context, ticket *domain.QueryTicket) error {
	ctx, finish := o.span(ctx, "orchestrator.execute", ticket)
	var spanErr error
	defer func() { finish(spanErr) }()

	ticket.CurrentStage = domain.StageExecute
	o.publish(ctx, ticket, domain.StateExecuting, nil)

	if ticket.SQL == nil {
		return gatewayerr.New(gatewayerr.ExecutionError, "no sql to execute")
	}

	result, err := o.Executor.Execute(ctx, ticket.SQL.Text, ticket.DatabaseKind, ticket.OwnerUser, ticket.ID, dbTimeout(o.Config))
	if err != nil {
		spanErr = err
		if ticket.PivotCount < MaxPivotAttempts {
			ticket.NextAction = domain.ActionPivot
			ticket.Error = err.Error()
			return nil
		}
		return gatewayerr.Wrap(gatewayerr.ExecutionError, "execution failed after exhausting pivot attempts", err)
	}

	ticket.Result = &result
	ticket.NextAction = domain.ActionAnalyze
	return nil
}

// nodePivot regenerates SQL with a rotated strategy hint after an
// execution failure (spec §4.5 edge "pivot -> synthesize, bounded: <=N
// attempts; strategy rotation").
func (o *Orchestrator) nodePivot(ctx context.Context, ticket *domain.QueryTicket) error {
	ctx, finish := o.span(ctx, "orchestrator.pivot", ticket)
	defer finish(nil)

	ticket.CurrentStage = domain.StagePivot
	strategy := pivotStrategies[ticket.PivotCount%len(pivotStrategies)]
	ticket.PivotCount++

	ticket.Request.History = append(ticket.Request.History, domain.HistoryEntry{
		Role:    domain.HistoryAssistant,
		Content: fmt.Sprintf("the previous query failed at execution (%s); retry strategy: %s", ticket.Error, strategy),
	})

	ticket.NextAction = domain.ActionSynthesize
	return nil
}

// historyRecorder is implemented by external.HistoryRetriever adapters
// that also accept new entries (external.KVHistoryRetriever). It is kept
// separate from the read-only HistoryRetriever contract so the
// Synthesizer's dependency stays narrow.
type historyRecorder interface {
	RecordSuccess(ctx context.Context, userText, sql string) error
}

// nodeAnalyze is the terminal success node (spec §4.5 edge "analyze ->
// finished"). Result post-processing (cache status, data quality) has
// already been computed by the Executor Facade; this node just finalizes
// and records the successful query for future similar-query retrieval.
func (o *Orchestrator) nodeAnalyze(ctx context.Context, ticket *domain.QueryTicket) error {
	ctx, finish := o.span(ctx, "orchestrator.analyze", ticket)
	defer finish(nil)

	ticket.CurrentStage = domain.StageAnalyze
	if rec, ok := o.History.(historyRecorder); ok && ticket.SQL != nil {
		_ = rec.RecordSuccess(ctx, ticket.Request.Query, ticket.SQL.Text)
	}
	ticket.NextAction = domain.ActionFinished
	return nil
}

func tableNames(out domain.SkillsOutput) []string {
	seen := map[string]bool{}
	var tables []string
	for _, m := range out.Mappings {
		if m.Table == "" || seen[m.Table] {
			continue
		}
		seen[m.Table] = true
		tables = append(tables, m.Table)
	}
	return tables
}

func firstOrDefault(values []string, def string) string {
	if len(values) == 0 {
		return def
	}
	return values[0]
}
