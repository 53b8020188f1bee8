package orchestrator

import (
	"context"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/platform/gatewayerr"
)

// approvalRecorder is implemented by external.AdaptiveApproval adapters
// that also accept new approvals (external.KVAdaptiveApproval), kept
// separate from the read-only AdaptiveApproval contract the Validator
// consumes.
type approvalRecorder interface {
	RecordApproval(ctx context.Context, userID, sqlFingerprint string) error
}

// Approve implements the `approve` call of spec §4.5's interrupt-before-
// approval contract: it mutates a suspended ticket's approval token and
// resumes the machine. modifiedSQL, if non-empty, replaces ticket.SQL.Text
// with a user-edited statement and is re-run through the Validator before
// execution rather than trusted outright, the same as freshly synthesized
// SQL (spec §4.5, scenario 5 of §8).
func (o *Orchestrator) Approve(ctx context.Context, ticket *domain.QueryTicket, token domain.ApprovalToken, modifiedSQL string) error {
	if ticket.Approval != nil && ticket.Approval.Decided {
		return gatewayerr.New(gatewayerr.ApprovalDuplicate, "ticket has already been decided")
	}
	if ticket.CurrentStage != domain.StageApproval {
		return gatewayerr.New(gatewayerr.ApprovalForbidden, "ticket is not awaiting approval")
	}

	token.Decided = true
	token.Approved = true
	ticket.Approval = &token

	edited := modifiedSQL != "" && ticket.SQL != nil && modifiedSQL != ticket.SQL.Text
	if edited {
		ticket.SQL.Text = modifiedSQL
	}

	if rec, ok := o.AdaptiveApproval.(approvalRecorder); ok && ticket.SQL != nil {
		fingerprint := strings.ToLower(strings.Join(strings.Fields(ticket.SQL.Text), " "))
		_ = rec.RecordApproval(ctx, ticket.OwnerUser, fingerprint)
	}

	o.publish(ctx, ticket, domain.StateApproved, nil)
	if edited {
		ticket.RepairUsed = false
		ticket.Verdict = nil
		ticket.NextAction = domain.ActionValidate
	} else {
		ticket.NextAction = domain.ActionExecute
	}
	return o.Resume(ctx, ticket)
}

// Reject implements the `reject` call: the ticket transitions to rejected
// without executing anything.
func (o *Orchestrator) Reject(ctx context.Context, ticket *domain.QueryTicket, token domain.ApprovalToken) error {
	if ticket.Approval != nil && ticket.Approval.Decided {
		return gatewayerr.New(gatewayerr.ApprovalDuplicate, "ticket has already been decided")
	}
	if ticket.CurrentStage != domain.StageApproval {
		return gatewayerr.New(gatewayerr.ApprovalForbidden, "ticket is not awaiting approval")
	}

	token.Decided = true
	token.Approved = false
	ticket.Approval = &token

	ticket.NextAction = domain.ActionRejected
	return o.Resume(ctx, ticket)
}

// Cancel implements cooperative cancellation (spec §4.5 "Cancellation"):
// it terminates the ticket's in-flight database session when one is known
// and transitions it to cancelled. The caller (the SSE handler or the
// event bus's disconnect listener) is expected to have already cancelled
// the ticket's context; this updates the durable record to match.
func (o *Orchestrator) Cancel(ctx context.Context, ticket *domain.QueryTicket, sessionID string) error {
	if ticket.CurrentStage == domain.StageFinished {
		return nil
	}
	if sessionID != "" && o.Executor != nil {
		_ = o.Executor.Cancel(ctx, ticket.DatabaseKind, sessionID)
	}
	o.terminate(ctx, ticket, domain.StateCancelled, gatewayerr.Cancelled, "cancelled by client")
	return nil
}
