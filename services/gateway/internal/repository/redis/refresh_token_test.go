package redis

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tan-res-space/draft-genie-sub004/pkg/database"
	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository"
)

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

func setupTestRedis(t *testing.T) (*RefreshTokenRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	repo := NewRefreshTokenRepository(client, database.NewQueryTracer(database.SystemRedis, 0, nil))
	return repo, mr
}

func sampleEntry() *domain.RefreshTokenEntry {
	return &domain.RefreshTokenEntry{
		TokenHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		UserID:    "user-001",
		LineageID: "lineage-001",
		IssuedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

// ---------------------------------------------------------------------------
// Put
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Put_StoresWithoutTTL(t *testing.T) {
	repo, mr := setupTestRedis(t)
	e := sampleEntry()

	require.NoError(t, repo.Put(context.Background(), e))

	key := keyPrefix + e.TokenHash
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Duration(0), mr.TTL(key))

	raw, err := mr.Get(key)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "user-001", stored["user_id"])
	assert.Equal(t, "lineage-001", stored["lineage_id"])
	assert.NotContains(t, raw, e.TokenHash)
}

func TestRefreshTokenRepository_Put_Duplicate(t *testing.T) {
	repo, _ := setupTestRedis(t)
	e := sampleEntry()

	require.NoError(t, repo.Put(context.Background(), e))
	err := repo.Put(context.Background(), e)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRefreshTokenRepository_Put_ServerDown(t *testing.T) {
	repo, mr := setupTestRedis(t)
	mr.Close()

	err := repo.Put(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrConflict)
}

// ---------------------------------------------------------------------------
// Consume
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Consume(t *testing.T) {
	repo, mr := setupTestRedis(t)
	e := sampleEntry()
	require.NoError(t, repo.Put(context.Background(), e))

	got, err := repo.Consume(context.Background(), e.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, e.TokenHash, got.TokenHash)
	assert.Equal(t, e.UserID, got.UserID)
	assert.Equal(t, e.LineageID, got.LineageID)
	assert.True(t, e.IssuedAt.Equal(got.IssuedAt))
	assert.False(t, mr.Exists(keyPrefix+e.TokenHash))

	_, err = repo.Consume(context.Background(), e.TokenHash)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRefreshTokenRepository_Consume_Missing(t *testing.T) {
	repo, _ := setupTestRedis(t)

	_, err := repo.Consume(context.Background(), "unknown")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRefreshTokenRepository_Consume_CorruptValue(t *testing.T) {
	repo, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"bad", "not-json"))

	_, err := repo.Consume(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidToken)
	assert.Contains(t, err.Error(), "unmarshal refresh token")
}

func TestRefreshTokenRepository_Consume_SingleWinner(t *testing.T) {
	repo, _ := setupTestRedis(t)
	e := sampleEntry()
	require.NoError(t, repo.Put(context.Background(), e))

	const n = 20
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Consume(context.Background(), e.TokenHash); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

// ---------------------------------------------------------------------------
// Revoke
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Revoke(t *testing.T) {
	repo, mr := setupTestRedis(t)
	e := sampleEntry()
	require.NoError(t, repo.Put(context.Background(), e))

	require.NoError(t, repo.Revoke(context.Background(), e.TokenHash))
	assert.False(t, mr.Exists(keyPrefix+e.TokenHash))

	require.NoError(t, repo.Revoke(context.Background(), e.TokenHash))
	require.NoError(t, repo.Revoke(context.Background(), "never-existed"))
}
