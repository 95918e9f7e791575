package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/auth"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository/memory"
)

const (
	testSecret = "test-secret-key-that-is-at-least-32-chars"
	testIssuer = "draftgenie-gateway"
	testTTL    = 24 * time.Hour
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Put(ctx context.Context, entry *domain.RefreshTokenEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) Consume(ctx context.Context, tokenHash string) (*domain.RefreshTokenEntry, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshTokenEntry), args.Error(1)
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

// --- Mock Event Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockPublisher) PublishUserLoggedIn(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHasher() *auth.PasswordHasher {
	return auth.NewPasswordHasher(bcrypt.MinCost, 4)
}

func newTestIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer(testSecret, testIssuer, testTTL)
}

type testDeps struct {
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	issuer        *auth.TokenIssuer
	events        EventPublisher
}

func newTestService(deps testDeps) (*AuthService, *CredentialStore) {
	if deps.users == nil {
		deps.users = memory.NewUserRepository()
	}
	if deps.refreshTokens == nil {
		deps.refreshTokens = memory.NewRefreshTokenRepository()
	}
	if deps.issuer == nil {
		deps.issuer = newTestIssuer()
	}
	creds := NewCredentialStore(deps.users, newTestHasher(), testLogger())
	svc := NewAuthService(creds, deps.refreshTokens, deps.issuer,
		auth.NewAPIKeyValidator([]string{"service-key-1", "service-key-2"}), deps.events, testLogger())
	return svc, creds
}

func newMemoryService() (*AuthService, *CredentialStore) {
	return newTestService(testDeps{})
}

var errBackend = errors.New("connection refused")
