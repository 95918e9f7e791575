package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tan-res-space/draft-genie-sub004/pkg/database"
	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

const keyPrefix = "draftgenie:refresh:"

// storedEntry is the JSON value kept under each key. The hash is the key
// itself and is not repeated in the value.
type storedEntry struct {
	UserID    string    `json:"user_id"`
	LineageID string    `json:"lineage_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

// RefreshTokenRepository implements repository.RefreshTokenRepository using
// Redis, so every gateway replica shares one registry.
type RefreshTokenRepository struct {
	client redis.UniversalClient
	tracer *database.QueryTracer
}

// NewRefreshTokenRepository creates a new Redis-backed refresh token repository.
func NewRefreshTokenRepository(client redis.UniversalClient, tracer *database.QueryTracer) *RefreshTokenRepository {
	return &RefreshTokenRepository{client: client, tracer: tracer}
}

// Put stores the entry with SET NX; an existing key fails with ErrConflict.
func (r *RefreshTokenRepository) Put(ctx context.Context, e *domain.RefreshTokenEntry) (err error) {
	ctx, end := r.tracer.Trace(ctx, "PutRefreshToken", "SET NX")
	defer func() { end(err) }()

	data, err := json.Marshal(storedEntry{UserID: e.UserID, LineageID: e.LineageID, IssuedAt: e.IssuedAt})
	if err != nil {
		return fmt.Errorf("marshal refresh token: %w", err)
	}

	ok, err := r.client.SetNX(ctx, keyPrefix+e.TokenHash, data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis set refresh token: %w", err)
	}
	if !ok {
		return fmt.Errorf("redis set refresh token: %w", apperrors.ErrConflict)
	}

	return nil
}

// Consume reads and deletes the key with a single GETDEL.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string) (_ *domain.RefreshTokenEntry, err error) {
	ctx, end := r.tracer.Trace(ctx, "ConsumeRefreshToken", "GETDEL")
	defer func() {
		if errors.Is(err, apperrors.ErrInvalidToken) {
			end(nil)
			return
		}
		end(err)
	}()

	data, err := r.client.GetDel(ctx, keyPrefix+tokenHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("redis getdel refresh token: %w", err)
	}

	var stored storedEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal refresh token: %w", err)
	}

	return &domain.RefreshTokenEntry{
		TokenHash: tokenHash,
		UserID:    stored.UserID,
		LineageID: stored.LineageID,
		IssuedAt:  stored.IssuedAt,
	}, nil
}

// Revoke deletes the key if present.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) (err error) {
	ctx, end := r.tracer.Trace(ctx, "RevokeRefreshToken", "DEL")
	defer func() { end(err) }()

	if err = r.client.Del(ctx, keyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("redis del refresh token: %w", err)
	}

	return nil
}
