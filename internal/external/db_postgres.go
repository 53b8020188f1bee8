package external

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/nlsql/gateway/internal/domain"
)

// PostgresDriver adapts database/sql + lib/pq to the DBDriver contract.
// Session cancellation uses pg_terminate_backend, matching the
// backend-specific mechanism spec §4.5/§5 require.
type PostgresDriver struct {
	DB *sql.DB
}

func NewPostgresDriver(dsn string, poolMin, poolMax int) (*PostgresDriver, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(poolMax)
	db.SetMaxIdleConns(poolMin)
	return &PostgresDriver{DB: db}, nil
}

func (p *PostgresDriver) Execute(ctx context.Context, query string, timeout time.Duration) (domain.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, err := p.DB.QueryContext(ctx, query)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return domain.ExecutionResult{Status: domain.ExecutionTimeout}, err
		}
		return domain.ExecutionResult{Status: domain.ExecutionError}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return domain.ExecutionResult{Status: domain.ExecutionError}, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return domain.ExecutionResult{Status: domain.ExecutionError}, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return domain.ExecutionResult{Status: domain.ExecutionError}, err
	}

	return domain.ExecutionResult{
		Columns:         cols,
		Rows:            out,
		RowCount:        len(out),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Status:          domain.ExecutionSuccess,
	}, nil
}

// Cancel kills the Postgres backend owning sessionID via
// pg_terminate_backend, sessionID being the backend PID as text.
func (p *PostgresDriver) Cancel(ctx context.Context, sessionID string) error {
	_, err := p.DB.ExecContext(ctx, `SELECT pg_terminate_backend($1::int)`, sessionID)
	return err
}

// ListTables enumerates the public schema's base tables, feeding the
// schema fetcher that populates internal/cache.SchemaCache. Not part of
// the DBDriver contract proper (spec §6 names only Execute/Cancel/
// Describe); callers reach it via a narrow type assertion.
func (p *PostgresDriver) ListTables(ctx context.Context) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (p *PostgresDriver) Describe(ctx context.Context, table string) ([]domain.Column, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable); err != nil {
			return nil, err
		}
		c.RequiresQuoting = domain.ComputeRequiresQuoting(c.Name)
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
