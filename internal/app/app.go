// Package app is the composition root: it wires every external adapter,
// cache, and pipeline stage into a single Core and hands the assembled
// Orchestrator to the HTTP layer, the same one-shot wiring sequence
// cmd/gateway/main.go drives at process start.
package app

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/nlsql/gateway/internal/cache"
	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/eventbus"
	"github.com/nlsql/gateway/internal/executor"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/httpapi"
	"github.com/nlsql/gateway/internal/orchestrator"
	"github.com/nlsql/gateway/internal/platform/config"
	"github.com/nlsql/gateway/internal/platform/jobs"
	"github.com/nlsql/gateway/internal/platform/logger"
	"github.com/nlsql/gateway/internal/platform/metrics"
	"github.com/nlsql/gateway/internal/platform/system"
	"github.com/nlsql/gateway/internal/router"
	"github.com/nlsql/gateway/internal/synth"
	"github.com/nlsql/gateway/internal/validator"
)

// Core bundles every long-lived collaborator the process needs: the
// assembled Orchestrator for the HTTP layer, the background services the
// process entry point must start and stop, and the pieces that need an
// explicit Close at shutdown.
type Core struct {
	Config       *config.Config
	Log          *logger.Logger
	Orchestrator *orchestrator.Orchestrator
	Events       *eventbus.Bus
	Checkpointer external.Checkpointer
	Connections  []httpapi.ConnectionInfo
	Services     []system.Service

	kv *external.RedisKV
}

// New wires a Core from cfg: logger, tracer, KV-backed adapters, per-dialect
// DB drivers and backends, caches, the pipeline stages, the event bus, the
// orchestrator, and the checkpoint GC job.
func New(cfg *config.Config) (*Core, error) {
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("app: building logger: %w", err)
	}

	tracer := external.NewOTelTracer(nil, "nlsql-gateway")

	kv := external.NewRedisKV(cfg.RedisAddr, time.Duration(cfg.PoolAcquireTimeoutS)*time.Second)

	checkpointer, err := external.NewSQLCheckpointer(cfg.CheckpointDSN)
	if err != nil {
		return nil, fmt.Errorf("app: building checkpointer: %w", err)
	}

	events, err := eventbus.New(cfg.EventBusDSN, log)
	if err != nil {
		return nil, fmt.Errorf("app: building event bus: %w", err)
	}

	backends, connections, err := buildBackends(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("app: building backends: %w", err)
	}

	resultCache, err := cache.NewResultCache(cfg.ResultCacheCap)
	if err != nil {
		return nil, fmt.Errorf("app: building result cache: %w", err)
	}
	schemaCache := cache.NewSchemaCache(kv, time.Duration(cfg.SchemaCacheTTLS)*time.Second)
	fingerprintCache := cache.NewFingerprintCache(kv, time.Duration(cfg.FingerprintCacheTTLS)*time.Second)

	llm := external.NewHTTPLLMProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, time.Duration(cfg.LLMTimeoutS)*time.Second)
	costEstimator := external.NewHTTPCostEstimator(cfg.CostEstimatorURL)
	rls := external.NewHTTPRLSService(cfg.RLSServiceURL)
	quota := external.NewKVQuotaStore(kv)
	adaptiveApproval := external.NewKVAdaptiveApproval(kv)
	history := external.NewKVHistoryRetriever(kv)
	metricLibrary := external.NewKVMetricLibrary(kv)
	metadataQA := external.NewSchemaMetadataQA()

	r := router.New(llm, false, tracer, log)
	s := &synth.Synthesizer{
		LLM:              llm,
		CostEstimator:    costEstimator,
		History:          history,
		MetricLibrary:    metricLibrary,
		FingerprintCache: fingerprintCache,
		Log:              log,
	}
	v := validator.New(cfg, costEstimator, rls, adaptiveApproval, quota)
	exec := executor.New(backends, resultCache, log)
	exec.Metrics = metrics.New("nlsql-gateway")
	schema := newSchemaProvider(schemaCache, driversOf(backends))

	orch := orchestrator.New(r, s, v, exec, schema, checkpointer, events, cfg, tracer, log)
	orch.MetadataQA = metadataQA
	orch.History = history
	orch.AdaptiveApproval = adaptiveApproval
	orch.Metrics = exec.Metrics

	sweeper := jobs.NewCheckpointSweeper(checkpointer, time.Duration(cfg.CheckpointTTLHours)*time.Hour, "", log)

	return &Core{
		Config:       cfg,
		Log:          log,
		Orchestrator: orch,
		Events:       events,
		Checkpointer: checkpointer,
		Connections:  connections,
		Services:     []system.Service{sweeper},
		kv:           kv,
	}, nil
}

// Server builds the HTTP handler wrapping this Core's Orchestrator.
func (c *Core) Server() *httpapi.Server {
	return httpapi.NewServer(c.Orchestrator, c.Checkpointer, c.Events, c.Config, c.Log, c.Config.JWTSecret, c.Connections)
}

// Close releases resources New opened that outlive Services' Start/Stop
// cycle (the event bus listener and the Redis client).
func (c *Core) Close() error {
	if c.Events != nil {
		_ = c.Events.Close()
	}
	if c.kv != nil && c.kv.Client != nil {
		_ = c.kv.Client.Close()
	}
	return nil
}

// buildBackends constructs one executor.Backend per configured connection,
// deduplicated by dialect since the Facade's registry is dialect-keyed
// (spec §4.6), and the httpapi.ConnectionInfo list GET /connections reports.
func buildBackends(cfg *config.Config, log *logger.Logger) (map[domain.DatabaseKind]*executor.Backend, []httpapi.ConnectionInfo, error) {
	backends := make(map[domain.DatabaseKind]*executor.Backend)
	connections := make([]httpapi.ConnectionInfo, 0, len(cfg.Connections))

	for _, conn := range cfg.Connections {
		kind := domain.DatabaseKind(conn.DatabaseType)
		connections = append(connections, httpapi.ConnectionInfo{Name: conn.Name, DatabaseType: conn.DatabaseType})

		if _, exists := backends[kind]; exists {
			continue
		}

		driver, err := newDriver(kind, conn, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connection %q: %w", conn.Name, err)
		}

		backends[kind] = &executor.Backend{
			Driver:  driver,
			Breaker: executor.NewBreaker(string(kind), cfg.BreakerThreshold, time.Duration(cfg.BreakerCoolOffS)*time.Second),
			Limiter: rate.NewLimiter(rate.Limit(cfg.PoolMax), cfg.PoolMax),
		}
	}

	return backends, connections, nil
}

func newDriver(kind domain.DatabaseKind, conn config.ConnectionConfig, cfg *config.Config) (external.DBDriver, error) {
	switch kind {
	case domain.DatabasePostgres:
		return external.NewPostgresDriver(conn.DSN, cfg.PoolMin, cfg.PoolMax)
	case domain.DatabaseDoris:
		return external.NewDorisDriver(conn.DSN, cfg.PoolMin, cfg.PoolMax)
	case domain.DatabaseOracle:
		return executor.NewOracleDriver(conn.OracleCmd, conn.OracleArgs, 0)
	default:
		return nil, fmt.Errorf("unsupported database_type %q", conn.DatabaseType)
	}
}

// driversOf narrows the backend registry down to its drivers for the
// schema fetcher, which has no use for breakers or limiters.
func driversOf(backends map[domain.DatabaseKind]*executor.Backend) map[domain.DatabaseKind]external.DBDriver {
	out := make(map[domain.DatabaseKind]external.DBDriver, len(backends))
	for kind, b := range backends {
		out[kind] = b.Driver
	}
	return out
}
