package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const migrationSuffix = ".up.sql"

var connErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"dial tcp",
	"EOF",
	"connection timed out",
	"server closed the connection unexpectedly",
	"could not connect",
}

// isConnectionError reports whether err looks like a transient connection
// problem. Errors reported by the server itself (syntax, constraints) never are.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	msg := err.Error()
	for _, p := range connErrorPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Migrator applies *.up.sql files from a filesystem in lexical order, recording
// each applied version in schema_migrations so reruns are no-ops.
type Migrator struct {
	db     DBTX
	fsys   fs.FS
	logger *slog.Logger
}

// NewMigrator creates a migrator over db. fsys is usually an embed.FS.
func NewMigrator(db DBTX, fsys fs.FS, logger *slog.Logger) *Migrator {
	return &Migrator{db: db, fsys: fsys, logger: logger}
}

// Up runs all pending migrations. Transient connection errors are retried;
// SQL errors are returned immediately.
func (m *Migrator) Up(ctx context.Context) error {
	if err := retry(ctx, "run migrations", m.logger, retryBackoff, isConnectionError, m.upOnce); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Pending lists migration files in the order Up would consider them.
func (m *Migrator) Pending() ([]string, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), migrationSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Migrator) upOnce(ctx context.Context) error {
	if _, err := m.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	names, err := m.Pending()
	if err != nil {
		return err
	}

	for _, name := range names {
		var applied bool
		err := m.db.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		if err := m.apply(ctx, name); err != nil {
			return err
		}
		m.logger.InfoContext(ctx, "migration applied", slog.String("version", name))
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, name string) error {
	content, err := fs.ReadFile(m.fsys, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx for migration %s: %w", name, err)
	}

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}
