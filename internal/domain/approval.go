package domain

import "time"

// ApprovalToken is the human-in-the-loop artifact created when the
// Orchestrator interrupts before execution (spec §4.5 "interrupt before
// approval").
type ApprovalToken struct {
	TicketID        string
	SessionID       string
	IP              string
	UserAgent       string
	CreatedAt       time.Time
	OriginalSQLHash string
	Decided         bool
	Approved        bool
	DecidedAt       time.Time
}

// MatchesSQL reports whether the hash recorded at approval time still
// matches the SQL about to be executed, guarding against the SQL changing
// between approval and execution (spec §4.5, §4.6).
func (t *ApprovalToken) MatchesSQL(hash string) bool {
	return t.OriginalSQLHash == hash
}
