// Package httpapi exposes the gateway's HTTP surface (spec §6's endpoint
// table) as a gin.Engine, grounded on the teacher's
// applications/httpapi.route{pattern,method,handler} + mountRoutes
// table-driven mounting idiom, adapted from net/http to gin since the
// teacher's go.mod already carries gin-gonic/gin without ever wiring it
// into a router.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/eventbus"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/orchestrator"
	"github.com/nlsql/gateway/internal/platform/config"
	"github.com/nlsql/gateway/internal/platform/gatewayerr"
	"github.com/nlsql/gateway/internal/platform/logger"
)

// Server bundles every collaborator the HTTP layer needs. It holds no
// pipeline logic of its own; every handler delegates into the
// Orchestrator or the Checkpointer.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Checkpoints  external.Checkpointer
	Events       *eventbus.Bus
	Config       *config.Config
	Log          *logger.Logger
	Auth         *tokenAuthenticator
	StartedAt    time.Time

	// Connections lists the configured named database connections
	// surfaced by GET /connections. Populated by the composition root
	// from the same backend registry handed to the Executor Facade.
	Connections []connectionInfo
}

// NewServer builds a Server. jwtSecret may be empty only when cfg.DevMode
// is set, in which case requests are treated as anonymous (spec §4.7's
// "anonymous only in dev mode").
func NewServer(orch *orchestrator.Orchestrator, checkpoints external.Checkpointer, events *eventbus.Bus, cfg *config.Config, log *logger.Logger, jwtSecret string, connections []connectionInfo) *Server {
	return &Server{
		Orchestrator: orch,
		Checkpoints:  checkpoints,
		Events:       events,
		Config:       cfg,
		Log:          log,
		Auth:         newTokenAuthenticator(jwtSecret),
		StartedAt:    time.Now(),
		Connections:  connections,
	}
}

type routeEntry struct {
	method  string
	pattern string
	handler gin.HandlerFunc
}

// mountRoutes attaches every route to engine, mirroring the teacher's
// mountRoutes(mux, route{...}) idiom translated to gin's per-method
// registration.
func mountRoutes(engine *gin.Engine, routes ...routeEntry) {
	for _, rt := range routes {
		if rt.pattern == "" || rt.handler == nil {
			continue
		}
		engine.Handle(rt.method, rt.pattern, rt.handler)
	}
}

// Handler builds the gin.Engine exposing every endpoint from spec §6.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.authMiddleware())
	engine.Use(s.traceMiddleware())

	mountRoutes(engine,
		routeEntry{method: http.MethodGet, pattern: "/healthz", handler: s.handleHealth},
		routeEntry{method: http.MethodPost, pattern: "/queries/submit", handler: s.handleSubmit},
		routeEntry{method: http.MethodPost, pattern: "/queries/process", handler: s.handleProcess},
		routeEntry{method: http.MethodPost, pattern: "/queries/clarify", handler: s.handleClarify},
		routeEntry{method: http.MethodPost, pattern: "/queries/:id/approve", handler: s.handleApprove},
		routeEntry{method: http.MethodPost, pattern: "/queries/:id/reject", handler: s.handleReject},
		routeEntry{method: http.MethodPost, pattern: "/queries/:id/cancel", handler: s.handleCancel},
		routeEntry{method: http.MethodGet, pattern: "/queries/:id/status", handler: s.handleStatus},
		routeEntry{method: http.MethodGet, pattern: "/queries/:id/stream", handler: s.handleStream},
		routeEntry{method: http.MethodGet, pattern: "/connections", handler: s.handleConnections},
		routeEntry{method: http.MethodGet, pattern: "/metrics", handler: gin.WrapH(promhttp.Handler())},
	)
	return engine
}

// authCtxKey is the gin.Context key holding the authenticated caller.
const authCtxKey = "nlsql_caller"

type caller struct {
	UserID string
	Role   string
}

// authMiddleware validates the bearer token (header or ?token=) when
// present, and rejects anonymous requests unless dev_mode is enabled,
// per spec §4.7's authorization rule reused across the whole surface.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"), c.Query("token"))
		var who caller
		if token != "" {
			if parsed, err := s.Auth.Validate(token); err == nil {
				who = caller{UserID: parsed.Subject, Role: parsed.Role}
			}
		}
		if who.UserID == "" && !s.devMode() {
			c.JSON(gatewayerr.StatusFor(gatewayerr.Unauthorized), gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		c.Set(authCtxKey, who)
		ctx := logger.ContextWithUser(c.Request.Context(), who.UserID, who.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) devMode() bool {
	return s.Config != nil && s.Config.DevMode
}

func (s *Server) callerFrom(c *gin.Context) caller {
	if v, ok := c.Get(authCtxKey); ok {
		if who, ok := v.(caller); ok {
			return who
		}
	}
	return caller{}
}

// traceMiddleware stamps every request with a trace id, generating one
// when the client didn't supply X-Trace-Id, matching the teacher's
// header-propagation convention for its Tracer collaborator.
func (s *Server) traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Trace-Id", traceID)
		ctx := logger.ContextWithTrace(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// newTicketID mints a ticket id matching domain.TicketIDPattern.
func newTicketID() string {
	return "tk-" + uuid.NewString()
}

func (s *Server) loadTicket(ctx context.Context, id string) (*domain.QueryTicket, error) {
	ticket, ok, err := s.Checkpoints.Get(ctx, id)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.NotFound, "failed to load ticket", err)
	}
	if !ok || ticket == nil {
		return nil, gatewayerr.New(gatewayerr.NotFound, "unknown ticket id")
	}
	return ticket, nil
}
