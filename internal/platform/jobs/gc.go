// Package jobs implements the gateway's background maintenance work: the
// checkpoint TTL sweep spec §3 requires ("destroyed when TTL expires in
// the checkpoint store, default 7 days"). Grounded on
// internal/app/services/oracle/dispatcher.go's ticker-driven
// Start/Stop/tick shape, adapted to a cron schedule since the maintenance
// work here runs far less often than a dispatch loop.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	core "github.com/nlsql/gateway/internal/platform/core"
	"github.com/nlsql/gateway/internal/platform/logger"
	"github.com/nlsql/gateway/internal/platform/system"
)

var _ system.Service = (*CheckpointSweeper)(nil)

// DefaultTicketTTL matches spec §3's default checkpoint retention window.
const DefaultTicketTTL = 7 * 24 * time.Hour

// defaultSweepSchedule runs the sweep once an hour; the checkpoint TTL
// itself is days-scale so sub-hour precision buys nothing.
const defaultSweepSchedule = "@hourly"

// expiryStore is the narrow slice of external.Checkpointer the sweeper
// needs, kept local so this package has no import-time dependency on
// internal/external.
type expiryStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CheckpointSweeper deletes checkpoints whose last write is older than
// TTL, on a cron schedule, as a lifecycle-managed system.Service.
type CheckpointSweeper struct {
	Store    expiryStore
	TTL      time.Duration
	Schedule string
	Log      *logger.Logger

	cron *cron.Cron
}

// NewCheckpointSweeper builds a sweeper. A zero TTL or Schedule falls
// back to the spec default / hourly cadence.
func NewCheckpointSweeper(store expiryStore, ttl time.Duration, schedule string, log *logger.Logger) *CheckpointSweeper {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	if schedule == "" {
		schedule = defaultSweepSchedule
	}
	if log == nil {
		log = logger.NewDefault("checkpoint-sweeper")
	}
	return &CheckpointSweeper{Store: store, TTL: ttl, Schedule: schedule, Log: log}
}

func (s *CheckpointSweeper) Name() string { return "checkpoint-sweeper" }

// Descriptor advertises the sweeper's placement, following the teacher's
// DescriptorProvider convention for background services.
func (s *CheckpointSweeper) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "checkpoint-sweeper",
		Domain:       "gateway",
		Layer:        core.LayerData,
		Capabilities: []string{"gc"},
	}
}

// Start schedules the sweep and begins the cron scheduler.
func (s *CheckpointSweeper) Start(ctx context.Context) error {
	if s.Store == nil {
		s.Log.Warn("checkpoint sweeper has no store configured; disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.Schedule, func() { s.sweep(ctx) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.Log.WithField("schedule", s.Schedule).Info("checkpoint sweeper started")
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight sweep.
func (s *CheckpointSweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.Log.Info("checkpoint sweeper stopped")
	return nil
}

func (s *CheckpointSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.TTL)
	removed, err := s.Store.DeleteOlderThan(sweepCtx, cutoff)
	if err != nil {
		s.Log.WithError(err).Warn("checkpoint sweep failed")
		return
	}
	if removed > 0 {
		s.Log.WithField("removed", removed).Info("checkpoint sweep removed expired tickets")
	}
}
