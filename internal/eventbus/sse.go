package eventbus

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nlsql/gateway/internal/domain"
)

// WriteFrame formats one EventRecord as an SSE frame: an `event:` line
// naming the ticket state, a `data:` line carrying the JSON payload, and
// the blank-line terminator (spec §4.7).
func WriteFrame(w io.Writer, record domain.EventRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("eventbus: marshal sse frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", record.State, data); err != nil {
		return err
	}
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
	return nil
}

// WriteComment writes an SSE comment line, used as a keep-alive frame that
// proxies and clients ignore.
func WriteComment(w io.Writer, comment string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", comment)
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
	return err
}

// IsTerminal reports whether state is one of the four states after which
// a subscriber should stop reading (spec §4.7).
func IsTerminal(state domain.TicketState) bool {
	return terminalStates[state]
}
