package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/auth"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository"
)

// CredentialStore owns user records and checks passwords against them.
type CredentialStore struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	logger *slog.Logger
	now    func() time.Time
}

// NewCredentialStore creates a credential store over users.
func NewCredentialStore(users repository.UserRepository, hasher *auth.PasswordHasher, logger *slog.Logger) *CredentialStore {
	return &CredentialStore{
		users:  users,
		hasher: hasher,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates a user with role "user". It fails with AlreadyExists when
// the email is taken; emails are compared case-sensitively.
func (c *CredentialStore) Register(ctx context.Context, email, password, displayName string) (*domain.User, error) {
	return c.create(ctx, email, password, displayName, domain.RoleUser)
}

func (c *CredentialStore) create(ctx context.Context, email, password, displayName, role string) (*domain.User, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	// Checked before hashing so a duplicate registration costs no bcrypt work.
	if _, err := c.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.AlreadyExists("user", "email", email)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := c.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         role,
		CreatedAt:    c.now().UTC(),
	}

	// The store enforces uniqueness as well, which settles concurrent
	// registrations of the same email.
	if err := c.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Verify returns the user for email if password matches. Unknown emails and
// wrong passwords both fail with InvalidCredentials after the same bcrypt work.
func (c *CredentialStore) Verify(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user by email: %w", err)
		}
		if err := c.hasher.CompareDummy(ctx, password); err != nil {
			return nil, err
		}
		return nil, apperrors.InvalidCredentials()
	}

	ok, err := c.hasher.Compare(ctx, user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.InvalidCredentials()
	}

	return user, nil
}

// FindByID returns the user with id or a NotFound error.
func (c *CredentialStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := c.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// SeedAdmin creates the administrative account unless a user with email
// already exists. It reports whether a record was created.
func (c *CredentialStore) SeedAdmin(ctx context.Context, email, password, displayName string) (bool, error) {
	_, err := c.create(ctx, email, password, displayName, domain.RoleAdmin)
	switch {
	case err == nil:
		c.logger.InfoContext(ctx, "admin user seeded", slog.String("email", email))
		return true, nil
	case errors.Is(err, apperrors.ErrAlreadyExists):
		c.logger.DebugContext(ctx, "admin user already present", slog.String("email", email))
		return false, nil
	default:
		return false, fmt.Errorf("seed admin user: %w", err)
	}
}
