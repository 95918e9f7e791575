package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func migrationFS() fstest.MapFS {
	return fstest.MapFS{
		"002_refresh_tokens.up.sql": {Data: []byte("CREATE TABLE refresh_tokens (token_hash TEXT PRIMARY KEY);")},
		"001_users.up.sql":          {Data: []byte("CREATE TABLE users (id UUID PRIMARY KEY);")},
		"001_users.down.sql":        {Data: []byte("DROP TABLE users;")},
		"README.md":                 {Data: []byte("docs")},
	}
}

func expectTrackingTable(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func expectApplied(mock pgxmock.PgxPoolIface, name string, applied bool) {
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM schema_migrations`).
		WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(applied))
}

func TestMigrator_Pending_SortedUpFilesOnly(t *testing.T) {
	m := NewMigrator(nil, migrationFS(), discardLogger())

	names, err := m.Pending()

	require.NoError(t, err)
	assert.Equal(t, []string{"001_users.up.sql", "002_refresh_tokens.up.sql"}, names)
}

func TestMigrator_Up_AppliesPendingInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectTrackingTable(mock)
	expectApplied(mock, "001_users.up.sql", true)
	expectApplied(mock, "002_refresh_tokens.up.sql", false)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE refresh_tokens").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("002_refresh_tokens.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = NewMigrator(mock, migrationFS(), discardLogger()).Up(context.Background())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Up_SQLErrorRollsBackWithoutRetry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fsys := fstest.MapFS{"001_users.up.sql": {Data: []byte("CREATE TABLE users (;")}}

	expectTrackingTable(mock)
	expectApplied(mock, "001_users.up.sql", false)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users").
		WillReturnError(&pgconn.PgError{Code: "42601", Message: "syntax error"})
	mock.ExpectRollback()

	err = NewMigrator(mock, fsys, discardLogger()).Up(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 001_users.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Up_TrackingTableFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errors.New("permission denied"))

	err = NewMigrator(mock, migrationFS(), discardLogger()).Up(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create schema_migrations table")
}
