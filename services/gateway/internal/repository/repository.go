package repository

import (
	"context"

	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user. It fails with ErrAlreadyExists when the
	// email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their exact email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// RefreshTokenRepository tracks issued refresh tokens by their digest.
// Implementations must make Consume atomic: of any number of concurrent
// Consume or Revoke calls for the same hash, at most one observes the entry.
type RefreshTokenRepository interface {
	// Put stores a new entry. A duplicate hash fails with ErrConflict.
	Put(ctx context.Context, entry *domain.RefreshTokenEntry) error

	// Consume removes and returns the entry for tokenHash. It fails with
	// ErrInvalidToken when no entry exists.
	Consume(ctx context.Context, tokenHash string) (*domain.RefreshTokenEntry, error)

	// Revoke removes the entry for tokenHash. A missing entry is not an error.
	Revoke(ctx context.Context, tokenHash string) error
}
