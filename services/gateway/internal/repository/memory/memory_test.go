package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository"
)

var (
	_ repository.UserRepository         = (*UserRepository)(nil)
	_ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
)

// ---------------------------------------------------------------------------
// UserRepository
// ---------------------------------------------------------------------------

func sampleUser() *domain.User {
	return &domain.User{
		ID:           "u-1",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		DisplayName:  "Alice",
		Role:         domain.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	u := sampleUser()

	require.NoError(t, repo.Create(ctx, u))

	byID, err := repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, u, byID)

	byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u, byEmail)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleUser()))

	dup := sampleUser()
	dup.ID = "u-2"
	err := repo.Create(ctx, dup)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestUserRepository_EmailIsCaseSensitive(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleUser()))

	other := sampleUser()
	other.ID = "u-2"
	other.Email = "Alice@example.com"
	require.NoError(t, repo.Create(ctx, other))

	_, err := repo.GetByEmail(ctx, "ALICE@EXAMPLE.COM")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := NewUserRepository()

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = repo.GetByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_ReturnsCopies(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	u := sampleUser()
	require.NoError(t, repo.Create(ctx, u))

	u.Role = domain.RoleAdmin
	got, err := repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, got.Role)

	got.DisplayName = "Mallory"
	again, err := repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.DisplayName)
}

func TestUserRepository_ConcurrentRegistrationSameEmail(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := sampleUser()
			u.ID = fmt.Sprintf("u-%d", i)
			if repo.Create(ctx, u) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

// ---------------------------------------------------------------------------
// RefreshTokenRepository
// ---------------------------------------------------------------------------

func entry(hash string) *domain.RefreshTokenEntry {
	return &domain.RefreshTokenEntry{
		TokenHash: hash,
		UserID:    "u-1",
		LineageID: "lineage-1",
		IssuedAt:  time.Now().UTC(),
	}
}

func TestRefreshTokenRepository_PutConsume(t *testing.T) {
	repo := NewRefreshTokenRepository()
	ctx := context.Background()
	e := entry("h1")

	require.NoError(t, repo.Put(ctx, e))
	assert.Equal(t, 1, repo.Len())

	got, err := repo.Consume(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, e, got)
	assert.Equal(t, 0, repo.Len())

	_, err = repo.Consume(ctx, "h1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRefreshTokenRepository_DuplicatePut(t *testing.T) {
	repo := NewRefreshTokenRepository()
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, entry("h1")))
	err := repo.Put(ctx, entry("h1"))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRefreshTokenRepository_RevokeIdempotent(t *testing.T) {
	repo := NewRefreshTokenRepository()
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, entry("h1")))

	require.NoError(t, repo.Revoke(ctx, "h1"))
	require.NoError(t, repo.Revoke(ctx, "h1"))
	require.NoError(t, repo.Revoke(ctx, "never-existed"))

	_, err := repo.Consume(ctx, "h1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRefreshTokenRepository_ConcurrentConsumeSingleWinner(t *testing.T) {
	repo := NewRefreshTokenRepository()
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, entry("h1")))

	const n = 64
	var wins, losses atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := repo.Consume(ctx, "h1"); err == nil {
				wins.Add(1)
			} else if assert.ErrorIs(t, err, apperrors.ErrInvalidToken) {
				losses.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), losses.Load())
}
