package external

import (
	"context"
	"fmt"
)

// AdaptiveApprovalThreshold is how many times a user must have previously
// approved the exact same SQL fingerprint before it auto-approves (spec
// §4.4 check 10: adaptive approval "for users with a history of similar
// approved queries").
const AdaptiveApprovalThreshold = 3

// KVAdaptiveApproval implements the AdaptiveApproval contract over the KV
// store: a per-user, per-fingerprint counter incremented by RecordApproval
// whenever a human approves a ticket, consulted by ShouldAutoApprove on
// the next occurrence of the same fingerprint.
type KVAdaptiveApproval struct {
	KV KVStore
}

// NewKVAdaptiveApproval builds a KVAdaptiveApproval.
func NewKVAdaptiveApproval(kv KVStore) *KVAdaptiveApproval {
	return &KVAdaptiveApproval{KV: kv}
}

func approvalCountKey(userID, fingerprint string) string {
	return fmt.Sprintf("approval_count:%s:%s", userID, fingerprint)
}

// ShouldAutoApprove reports whether userID has approved sqlFingerprint at
// least AdaptiveApprovalThreshold times before. It never overrides
// force_approval — that invariant is enforced by the caller (the
// Validator), not here.
func (a *KVAdaptiveApproval) ShouldAutoApprove(ctx context.Context, userID, sqlFingerprint string) (bool, error) {
	raw, ok, err := a.KV.Get(ctx, approvalCountKey(userID, sqlFingerprint))
	if err != nil || !ok {
		return false, err
	}
	var count int
	_, scanErr := fmt.Sscanf(raw, "%d", &count)
	if scanErr != nil {
		return false, nil
	}
	return count >= AdaptiveApprovalThreshold, nil
}

// RecordApproval increments the approval counter for userID/sqlFingerprint.
// Called by the orchestrator's Approve whenever a human approves a ticket.
func (a *KVAdaptiveApproval) RecordApproval(ctx context.Context, userID, sqlFingerprint string) error {
	key := approvalCountKey(userID, sqlFingerprint)
	count := 1
	if raw, ok, err := a.KV.Get(ctx, key); err == nil && ok {
		var n int
		if _, scanErr := fmt.Sscanf(raw, "%d", &n); scanErr == nil {
			count = n + 1
		}
	}
	return a.KV.Set(ctx, key, fmt.Sprintf("%d", count))
}
