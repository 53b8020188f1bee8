// Package executor implements the Executor Facade (spec §4.6): a
// dialect-keyed registry of backend drivers guarded by per-backend
// circuit breakers and fronted by a result cache.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nlsql/gateway/internal/cache"
	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/platform/logger"
	"github.com/nlsql/gateway/internal/platform/metrics"
)

// Backend bundles one dialect's driver, breaker, and rate limiter.
type Backend struct {
	Driver  external.DBDriver
	Breaker *Breaker
	Limiter *rate.Limiter
}

// Facade dispatches execute() calls to the dialect-keyed backend registry,
// applying the result cache before dispatch and recording circuit-breaker
// outcomes after.
type Facade struct {
	Backends       map[domain.DatabaseKind]*Backend
	ResultCache    *cache.ResultCache
	DefaultTimeout time.Duration
	Log            *logger.Logger
	Metrics        *metrics.Metrics
}

// New builds a Facade over the given backend registry.
func New(backends map[domain.DatabaseKind]*Backend, resultCache *cache.ResultCache, log *logger.Logger) *Facade {
	return &Facade{Backends: backends, ResultCache: resultCache, DefaultTimeout: 600 * time.Second, Log: log}
}

// breakerStateValue maps a BreakerState to the value of the
// nlsql_gateway_breaker_state gauge (0=closed, 1=open, 2=half-open), as
// documented on that gauge in internal/platform/metrics.
func breakerStateValue(s BreakerState) int {
	switch s {
	case BreakerOpen:
		return 1
	case BreakerHalfOpen:
		return 2
	default:
		return 0
	}
}

// Fingerprint computes the SQL fingerprint used both as the result-cache
// key and logged for audit (spec §4.6 "compute a fingerprint of the
// normalized SQL").
func Fingerprint(dbKind domain.DatabaseKind, sql string) string {
	h := sha256.New()
	h.Write([]byte(string(dbKind)))
	h.Write([]byte("|"))
	h.Write([]byte(strings.TrimSpace(sql)))
	return hex.EncodeToString(h.Sum(nil))
}

// Execute implements the Facade's execute(sql, db_kind, user, ticket_id,
// timeout) -> ExecutionResult contract.
func (f *Facade) Execute(ctx context.Context, sql string, dbKind domain.DatabaseKind, user, ticketID string, timeout time.Duration) (domain.ExecutionResult, error) {
	if timeout <= 0 {
		timeout = f.DefaultTimeout
	}

	key := Fingerprint(dbKind, sql)
	if f.ResultCache != nil {
		if entry, ok := f.ResultCache.Get(key); ok {
			f.Metrics.ObserveCache("result", true)
			result := entry.Result
			result.CacheStatus = domain.CacheHit
			return result, nil
		}
		f.Metrics.ObserveCache("result", false)
	}

	backend, ok := f.Backends[dbKind]
	if !ok {
		return domain.ExecutionResult{Status: domain.ExecutionError}, fmt.Errorf("no backend registered for %s", dbKind)
	}

	if backend.Limiter != nil {
		if err := backend.Limiter.Wait(ctx); err != nil {
			return domain.ExecutionResult{Status: domain.ExecutionCancelled}, err
		}
	}

	var result domain.ExecutionResult
	execErr := backend.Breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = backend.Driver.Execute(ctx, sql, timeout)
		return err
	})
	f.Metrics.SetBreakerState(string(dbKind), breakerStateValue(backend.Breaker.State()))

	if execErr == ErrBreakerOpen {
		if f.Log != nil {
			f.Log.WithContext(ctx).WithField("ticket_id", ticketID).WithField("backend", string(dbKind)).Warn("executor rejected call: breaker open")
		}
		return domain.ExecutionResult{Status: domain.ExecutionError}, execErr
	}
	if execErr != nil {
		return result, execErr
	}

	result.CacheStatus = domain.CacheMiss
	if f.ResultCache != nil {
		f.ResultCache.Put(key, result)
	}
	return result, nil
}

// Cancel kills the in-flight session on the given backend (spec §4.5/§5
// cooperative cancellation, backend-specific kill mechanism).
func (f *Facade) Cancel(ctx context.Context, dbKind domain.DatabaseKind, sessionID string) error {
	backend, ok := f.Backends[dbKind]
	if !ok {
		return fmt.Errorf("no backend registered for %s", dbKind)
	}
	return backend.Driver.Cancel(ctx, sessionID)
}

// Describe proxies schema introspection to the dialect's driver.
func (f *Facade) Describe(ctx context.Context, dbKind domain.DatabaseKind, table string) ([]domain.Column, error) {
	backend, ok := f.Backends[dbKind]
	if !ok {
		return nil, fmt.Errorf("no backend registered for %s", dbKind)
	}
	return backend.Driver.Describe(ctx, table)
}
