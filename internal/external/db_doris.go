package external

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/nlsql/gateway/internal/domain"
)

// DorisDriver adapts database/sql + go-sql-driver/mysql to the DBDriver
// contract: Doris speaks the MySQL wire protocol, so no Doris-specific
// client is required.
type DorisDriver struct {
	DB *sql.DB
}

func NewDorisDriver(dsn string, poolMin, poolMax int) (*DorisDriver, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(poolMax)
	db.SetMaxIdleConns(poolMin)
	return &DorisDriver{DB: db}, nil
}

func (d *DorisDriver) Execute(ctx context.Context, query string, timeout time.Duration) (domain.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, err := d.DB.QueryContext(ctx, query)
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

// Cancel issues a Doris `KILL <connection_id>` statement, sessionID being
// the numeric connection id.
func (d *DorisDriver) Cancel(ctx context.Context, sessionID string) error {
	_, err := d.DB.ExecContext(ctx, fmt.Sprintf("KILL %s", sessionID))
	return err
}

func (d *DorisDriver) Describe(ctx context.Context, table string) ([]domain.Column, error) {
	rows, err := d.DB.QueryContext(ctx, fmt.Sprintf("DESCRIBE %s", table))
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []domain.Column
	for rows.Next() {
		var name, colType, null, key, extra string
		var def sql.NullString
		if err := rows.Scan(&name, &colType, &null, &key, &def, &extra); err != nil {
			return nil, err
		}
		cols = append(cols, domain.Column{
			Name:            name,
			Type:            colType,
			Nullable:        null == "YES",
			RequiresQuoting: domain.ComputeRequiresQuoting(name),
		})
	}
	return cols, rows.Err()
}

// ListTables enumerates this connection's tables, mirroring
// PostgresDriver.ListTables for the schema fetcher.
func (d *DorisDriver) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx, "SHOW TABLES")
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
