package memory

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

// RefreshTokenRepository is a mutex-guarded in-process refresh token registry.
type RefreshTokenRepository struct {
	mu      sync.Mutex
	entries map[string]domain.RefreshTokenEntry
}

// NewRefreshTokenRepository creates an empty in-memory registry.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{entries: make(map[string]domain.RefreshTokenEntry)}
}

// Put stores entry.
func (r *RefreshTokenRepository) Put(_ context.Context, entry *domain.RefreshTokenEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.TokenHash]; exists {
		return fmt.Errorf("put refresh token: %w", apperrors.ErrConflict)
	}
	r.entries[entry.TokenHash] = *entry
	return nil
}

// Consume deletes and returns the entry under the same lock as the lookup.
func (r *RefreshTokenRepository) Consume(_ context.Context, tokenHash string) (*domain.RefreshTokenEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[tokenHash]
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	delete(r.entries, tokenHash)
	return &entry, nil
}

// Revoke deletes the entry if present.
func (r *RefreshTokenRepository) Revoke(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, tokenHash)
	return nil
}

// Len returns the number of live entries.
func (r *RefreshTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
