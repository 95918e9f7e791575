package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
)

// dummyPassword is hashed once to give unknown-email logins a real hash to
// compare against.
const dummyPassword = "draftgenie-dummy-password"

// PasswordHasher hashes and compares passwords with bcrypt. At most
// concurrency bcrypt operations run at once; callers wait for a slot or
// their context.
type PasswordHasher struct {
	cost      int
	sem       *semaphore.Weighted
	dummyOnce sync.Once
	dummyHash []byte
	dummyErr  error
}

// NewPasswordHasher creates a hasher with the given bcrypt cost and
// concurrency limit.
func NewPasswordHasher(cost int, concurrency int64) *PasswordHasher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PasswordHasher{
		cost: cost,
		sem:  semaphore.NewWeighted(concurrency),
	}
}

// Hash returns the bcrypt hash of password.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash slot: %w", err)
	}
	defer h.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperrors.InvalidInput("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare reports whether password matches hash. A mismatch is not an error.
func (h *PasswordHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("acquire hash slot: %w", err)
	}
	defer h.sem.Release(1)

	return compare([]byte(hash), password)
}

// CompareDummy spends the same bcrypt work as Compare against a fixed hash.
// It always reports a mismatch.
func (h *PasswordHasher) CompareDummy(ctx context.Context, password string) error {
	h.dummyOnce.Do(func() {
		h.dummyHash, h.dummyErr = bcrypt.GenerateFromPassword([]byte(dummyPassword), h.cost)
	})
	if h.dummyErr != nil {
		return fmt.Errorf("hash dummy password: %w", h.dummyErr)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire hash slot: %w", err)
	}
	defer h.sem.Release(1)

	_, err := compare(h.dummyHash, password)
	return err
}

func compare(hash []byte, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}
