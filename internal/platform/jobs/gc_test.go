package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpiryStore struct {
	cutoffSeen time.Time
	removed    int64
	err        error
}

func (f *fakeExpiryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffSeen = cutoff
	return f.removed, f.err
}

func TestNewCheckpointSweeperAppliesDefaults(t *testing.T) {
	s := NewCheckpointSweeper(&fakeExpiryStore{}, 0, "", nil)
	assert.Equal(t, DefaultTicketTTL, s.TTL)
	assert.Equal(t, defaultSweepSchedule, s.Schedule)
	require.NotNil(t, s.Log)
}

func TestSweepDeletesUsingConfiguredTTL(t *testing.T) {
	store := &fakeExpiryStore{removed: 3}
	s := NewCheckpointSweeper(store, time.Hour, "", nil)

	before := time.Now().Add(-time.Hour)
	s.sweep(context.Background())
	after := time.Now().Add(-time.Hour)

	assert.True(t, !store.cutoffSeen.Before(before) && !store.cutoffSeen.After(after))
}

func TestStartNoopsWithoutStore(t *testing.T) {
	s := NewCheckpointSweeper(nil, time.Hour, "", nil)
	err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.cron)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	s := NewCheckpointSweeper(&fakeExpiryStore{}, time.Hour, "", nil)
	err := s.Stop(context.Background())
	require.NoError(t, err)
}
