package domain

import "time"

// TicketState enumerates the lifecycle states broadcast over the event bus
// and SSE stream (spec §4.7).
type TicketState string

const (
	StateReceived       TicketState = "received"
	StatePlanning       TicketState = "planning"
	StatePrepared       TicketState = "prepared"
	StatePendingApproval TicketState = "pending_approval"
	StateApproved       TicketState = "approved"
	StateExecuting      TicketState = "executing"
	StateFinished       TicketState = "finished"
	StateError          TicketState = "error"
	StateCancelled      TicketState = "cancelled"
	StateRejected       TicketState = "rejected"
)

// EventRecord is one notification published for a ticket, fanned out to
// every SSE subscriber watching that ticket (spec §4.7).
type EventRecord struct {
	TicketID  string
	State     TicketState
	Timestamp time.Time
	Payload   map[string]any
}
