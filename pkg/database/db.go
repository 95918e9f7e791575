package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool used by repositories and migrations.
// pgxmock pools satisfy it too, which keeps SQL code testable without a server.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pinger is implemented by anything that can report connectivity, such as
// *pgxpool.Pool. It is used for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
