package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nlsql/gateway/internal/eventbus"
	"github.com/nlsql/gateway/internal/platform/gatewayerr"
)

const ssePingInterval = 25 * time.Second

// handleStream implements GET /queries/{id}/stream (spec §4.7, §6): a
// server-sent-events feed of the ticket's EventRecords that auto-closes
// once a terminal state is published.
func (s *Server) handleStream(c *gin.Context) {
	id := c.Param("id")
	ticket, err := s.loadTicket(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.authorizeTicket(c, ticket); err != nil {
		respondError(c, err)
		return
	}
	if s.Events == nil {
		respondError(c, gatewayerr.New(gatewayerr.SchemaUnavailable, "event stream is not configured"))
		return
	}

	sub, err := s.Events.Subscribe(id)
	if err != nil {
		respondError(c, gatewayerr.Wrap(gatewayerr.ExecutionError, "failed to subscribe to ticket events", err))
		return
	}
	defer sub.Close()

	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			if err := eventbus.WriteComment(w, "keep-alive"); err != nil {
				return
			}
		case record, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := eventbus.WriteFrame(w, record); err != nil {
				return
			}
			if eventbus.IsTerminal(record.State) {
				return
			}
		}
	}
}
