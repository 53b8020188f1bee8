package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/nlsql/gateway/internal/platform/gatewayerr"
)

// errorEnvelope is the canonical error response body (spec §7): every
// mapped HTTP error carries a status, a code, and a message; secrets and
// driver internals never reach this struct since nodes only ever produce
// *gatewayerr.Error with a sanitized Message.
type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	QueryID string `json:"query_id,omitempty"`
}

func respondError(c *gin.Context, err error) {
	gwErr, ok := gatewayerr.As(err)
	if !ok {
		gwErr = gatewayerr.Wrap(gatewayerr.ExecutionError, "internal error", err)
	}
	c.JSON(gwErr.HTTPStatus, errorEnvelope{Error: gwErr.Message, Code: string(gwErr.Code)})
}
