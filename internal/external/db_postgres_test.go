package external

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresDriverExecuteReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(1, "alice").
		AddRow(2, "bob")
	mock.ExpectQuery(`SELECT id, name FROM users`).WillReturnRows(rows)

	driver := &PostgresDriver{DB: db}
	result, err := driver.Execute(context.Background(), "SELECT id, name FROM users", time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, result.Columns)
	require.Len(t, result.Rows, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDriverCancelTerminatesBackend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`SELECT pg_terminate_backend\(\$1::int\)`).
		WithArgs("4242").
		WillReturnResult(sqlmock.NewResult(0, 1))

	driver := &PostgresDriver{DB: db}
	require.NoError(t, driver.Cancel(context.Background(), "4242"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDriverListTablesReturnsNames(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("users")
	mock.ExpectQuery(`SELECT table_name FROM information_schema.tables`).WillReturnRows(rows)

	driver := &PostgresDriver{DB: db}
	names, err := driver.ListTables(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"orders", "users"}, names)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDriverDescribeReturnsColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "integer", false).
		AddRow("email", "text", true)
	mock.ExpectQuery(`SELECT column_name, data_type, is_nullable = 'YES'`).
		WithArgs("users").
		WillReturnRows(rows)

	driver := &PostgresDriver{DB: db}
	cols, err := driver.Describe(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	require.Equal(t, "id", cols[0].Name)
	require.False(t, cols[0].Nullable)
	require.True(t, cols[1].Nullable)
	require.NoError(t, mock.ExpectationsWereMet())
}
