package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tan-res-space/draft-genie-sub004/pkg/database"
	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db     database.DBTX
	tracer *database.QueryTracer
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX, tracer *database.QueryTracer) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, tracer: tracer}
}

// Put stores a new refresh token entry.
func (r *RefreshTokenRepository) Put(ctx context.Context, e *domain.RefreshTokenEntry) (err error) {
	query := `
		INSERT INTO refresh_tokens (token_hash, user_id, lineage_id, issued_at)
		VALUES ($1, $2, $3, $4)`

	ctx, end := r.tracer.Trace(ctx, "PutRefreshToken", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query, e.TokenHash, e.UserID, e.LineageID, e.IssuedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert refresh token: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// Consume deletes the entry and returns it in one statement, so concurrent
// callers cannot both see the row.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string) (_ *domain.RefreshTokenEntry, err error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
		RETURNING token_hash, user_id, lineage_id, issued_at`

	ctx, end := r.tracer.Trace(ctx, "ConsumeRefreshToken", query)
	defer func() {
		if errors.Is(err, apperrors.ErrInvalidToken) {
			end(nil)
			return
		}
		end(err)
	}()

	var e domain.RefreshTokenEntry
	err = r.db.QueryRow(ctx, query, tokenHash).Scan(
		&e.TokenHash,
		&e.UserID,
		&e.LineageID,
		&e.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	return &e, nil
}

// Revoke deletes the entry if present.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) (err error) {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1`

	ctx, end := r.tracer.Trace(ctx, "RevokeRefreshToken", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}
