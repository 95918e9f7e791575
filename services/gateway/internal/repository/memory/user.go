package memory

import (
	"context"
	"sync"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

// UserRepository is an in-process user table for single-instance deployments.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

// Create stores a copy of u.
func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return apperrors.AlreadyExists("user", "email", u.Email)
	}
	if _, exists := r.byID[u.ID]; exists {
		return apperrors.AlreadyExists("user", "id", u.ID)
	}

	stored := *u
	r.byID[u.ID] = &stored
	r.byEmail[u.Email] = u.ID
	return nil
}

// GetByID returns a copy of the user with the given id.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByEmail returns a copy of the user with the given email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}
