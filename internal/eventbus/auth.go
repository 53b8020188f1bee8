package eventbus

import (
	"strings"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/platform/gatewayerr"
)

// Authorize implements spec §4.7's stream-access rule: a caller may watch
// a ticket's events only if they own it or hold the admin role; anonymous
// callers (empty userID) are allowed only when devMode is set.
func Authorize(ticket *domain.QueryTicket, userID, role string, devMode bool) error {
	if userID == "" {
		if devMode {
			return nil
		}
		return gatewayerr.New(gatewayerr.Unauthorized, "authentication required to stream ticket events")
	}
	if strings.EqualFold(role, "admin") {
		return nil
	}
	if ticket.OwnerUser == userID {
		return nil
	}
	return gatewayerr.New(gatewayerr.ApprovalForbidden, "not authorized to watch this ticket")
}
