package external

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nlsql/gateway/internal/domain"
)

// SQLCheckpointer persists ticket state keyed by thread_id in Postgres,
// grounded on the teacher's generic CRUDStore pattern (pkg/storage/
// crud.go) adapted to the narrower get/put/list contract spec §6 names.
// A version column counts the writes to each row. Put does not compare
// versions, so concurrent writers to one thread_id overwrite each other
// and the last write wins.
type SQLCheckpointer struct {
	DB *sqlx.DB
}

// NewSQLCheckpointer opens a Postgres connection pool for checkpoint
// storage. Schema migration is handled separately via golang-migrate
// (see internal/platform/migrations).
func NewSQLCheckpointer(dsn string) (*SQLCheckpointer, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &SQLCheckpointer{DB: db}, nil
}

type checkpointRow struct {
	ThreadID string `db:"thread_id"`
	State    []byte `db:"state"`
	Version  int    `db:"version"`
}

// Get loads the most recent ticket state for threadID. Absence is a cold
// start, not an error (spec §6).
func (c *SQLCheckpointer) Get(ctx context.Context, threadID string) (*domain.QueryTicket, bool, error) {
	var row checkpointRow
	err := c.DB.GetContext(ctx, &row, `SELECT thread_id, state, version FROM checkpoints WHERE thread_id = $1`, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ticket domain.QueryTicket
	if err := json.Unmarshal(row.State, &ticket); err != nil {
		return nil, false, err
	}
	return &ticket, true, nil
}

// Put upserts ticket state for threadID, incrementing the version on
// every write. Retries belong to the caller (internal/orchestrator uses
// core.CheckpointRetryPolicy around this call).
func (c *SQLCheckpointer) Put(ctx context.Context, threadID string, ticket *domain.QueryTicket) error {
	state, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = c.DB.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, state, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (thread_id) DO UPDATE
		SET state = EXCLUDED.state, version = checkpoints.version + 1, updated_at = now()`,
		threadID, state)
	return err
}

// List returns thread ids whose prefix matches threadIDPrefix.
func (c *SQLCheckpointer) List(ctx context.Context, threadIDPrefix string) ([]string, error) {
	var ids []string
	err := c.DB.SelectContext(ctx, &ids, `SELECT thread_id FROM checkpoints WHERE thread_id LIKE $1 ORDER BY thread_id`, strings.ReplaceAll(threadIDPrefix, "%", `\%`)+"%")
	return ids, err
}

// DeleteOlderThan removes every checkpoint last written before cutoff,
// implementing the checkpoint store's side of spec §3's "destroyed when
// TTL expires in the checkpoint store (default 7 days)". Returns the
// number of rows removed.
func (c *SQLCheckpointer) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.DB.ExecContext(ctx, `DELETE FROM checkpoints WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
