package auth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
)

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, 2)
	ctx := context.Background()

	hash, err := h.Hash(ctx, "pw1")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", hash)

	ok, err := h.Compare(ctx, hash, "pw1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Compare(ctx, hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHasher_SaltedHashesDiffer(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, 1)

	a, err := h.Hash(context.Background(), "same")
	require.NoError(t, err)
	b, err := h.Hash(context.Background(), "same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPasswordHasher_UsesConfiguredCost(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost+1, 1)

	hash, err := h.Hash(context.Background(), "pw")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

func TestPasswordHasher_TooLong(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, 1)

	_, err := h.Hash(context.Background(), strings.Repeat("a", 73))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPasswordHasher_MalformedHash(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, 1)

	ok, err := h.Compare(context.Background(), "not-a-bcrypt-hash", "pw")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestPasswordHasher_CompareDummy(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, 1)

	assert.NoError(t, h.CompareDummy(context.Background(), "anything"))
	assert.NoError(t, h.CompareDummy(context.Background(), dummyPassword))
	assert.NotEmpty(t, h.dummyHash)
}

func TestPasswordHasher_HonoursContextWhileWaiting(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, 1)
	require.NoError(t, h.sem.Acquire(context.Background(), 1))
	defer h.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Hash(ctx, "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = h.Compare(ctx, "$2a$04$abc", "pw")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPasswordHasher_BoundsConcurrency(t *testing.T) {
	const limit = 2
	h := NewPasswordHasher(bcrypt.MinCost, limit)

	// Hold every slot, then release them one by one while counting how many
	// hashes completed before the release.
	require.NoError(t, h.sem.Acquire(context.Background(), limit))

	var done atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Hash(context.Background(), "pw")
			assert.NoError(t, err)
			done.Add(1)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), done.Load(), "no hash may run while all slots are held")

	h.sem.Release(limit)
	wg.Wait()
	assert.Equal(t, int32(4), done.Load())
}
