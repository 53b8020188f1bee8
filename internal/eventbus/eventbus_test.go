package eventbus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nlsql/gateway/internal/domain"
)

func TestWriteFrameFormatsEventAndDataLines(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, domain.EventRecord{TicketID: "tk-1", State: domain.StateExecuting})
	assert.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "event: executing\n")
	assert.Contains(t, out, "data: {")
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n\n")))
}

func TestIsTerminalMatchesFinishedErrorCancelledRejected(t *testing.T) {
	assert.True(t, IsTerminal(domain.StateFinished))
	assert.True(t, IsTerminal(domain.StateError))
	assert.True(t, IsTerminal(domain.StateCancelled))
	assert.True(t, IsTerminal(domain.StateRejected))
	assert.False(t, IsTerminal(domain.StateExecuting))
	assert.False(t, IsTerminal(domain.StatePendingApproval))
}

func TestAuthorizeAllowsOwner(t *testing.T) {
	ticket := &domain.QueryTicket{OwnerUser: "alice"}
	assert.NoError(t, Authorize(ticket, "alice", "analyst", false))
}

func TestAuthorizeAllowsAdminRegardlessOfOwnership(t *testing.T) {
	ticket := &domain.QueryTicket{OwnerUser: "alice"}
	assert.NoError(t, Authorize(ticket, "bob", "admin", false))
}

func TestAuthorizeRejectsNonOwner(t *testing.T) {
	ticket := &domain.QueryTicket{OwnerUser: "alice"}
	assert.Error(t, Authorize(ticket, "bob", "analyst", false))
}

func TestAuthorizeAllowsAnonymousOnlyInDevMode(t *testing.T) {
	ticket := &domain.QueryTicket{OwnerUser: "alice"}
	assert.Error(t, Authorize(ticket, "", "", false))
	assert.NoError(t, Authorize(ticket, "", "", true))
}
