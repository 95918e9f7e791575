package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/auth"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/event"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository"
)

// maxRefreshAttempts bounds regeneration when a fresh refresh token happens
// to equal the one being rotated.
const maxRefreshAttempts = 3

// EventPublisher publishes auth domain events. Failures are logged and never
// fail the operation that triggered them.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishUserLoggedIn(ctx context.Context, user *domain.User) error
}

// AuthService implements register, login, refresh, logout and session
// validation on top of the credential store and refresh token registry.
type AuthService struct {
	credentials   *CredentialStore
	refreshTokens repository.RefreshTokenRepository
	tokens        *auth.TokenIssuer
	apiKeys       *auth.APIKeyValidator
	events        EventPublisher
	logger        *slog.Logger
	now           func() time.Time
}

// NewAuthService creates a new auth service. A nil events publisher discards
// events.
func NewAuthService(
	credentials *CredentialStore,
	refreshTokens repository.RefreshTokenRepository,
	tokens *auth.TokenIssuer,
	apiKeys *auth.APIKeyValidator,
	events EventPublisher,
	logger *slog.Logger,
) *AuthService {
	if events == nil {
		events = event.Nop{}
	}
	return &AuthService{
		credentials:   credentials,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		apiKeys:       apiKeys,
		events:        events,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates a user and starts a new session for them.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (_ *domain.Session, err error) {
	defer func() { observe(opRegister, err) }()

	user, err := s.credentials.Register(ctx, input.Email, input.Password, input.Name)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, user, uuid.New().String(), "")
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user_registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
	)

	return session, nil
}

// Login verifies credentials and starts a new session lineage.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (_ *domain.Session, err error) {
	defer func() { observe(opLogin, err) }()

	user, err := s.credentials.Verify(ctx, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, user, uuid.New().String(), "")
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishUserLoggedIn(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user_logged_in event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
	)

	return session, nil
}

// Refresh consumes refreshToken and issues a new token pair in the same
// lineage. The presented token is unusable from the moment it is consumed,
// even if this call later fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (_ *domain.Session, err error) {
	defer func() { observe(opRefresh, err) }()

	if refreshToken == "" {
		return nil, apperrors.InvalidToken()
	}

	entry, err := s.refreshTokens.Consume(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidToken) {
			return nil, apperrors.InvalidToken()
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	user, err := s.credentials.FindByID(ctx, entry.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.ErrorContext(ctx, "refresh token owner no longer exists",
				slog.String("user_id", entry.UserID),
				slog.String("lineage_id", entry.LineageID),
			)
			return nil, apperrors.Internal(err)
		}
		return nil, err
	}

	session, err := s.issueSession(ctx, user, entry.LineageID, refreshToken)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "session refreshed",
		slog.String("user_id", user.ID),
		slog.String("lineage_id", entry.LineageID),
	)

	return session, nil
}

// Logout revokes refreshToken. Unknown or already used tokens succeed; only a
// registry failure is reported.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func() { observe(opLogout, err) }()

	if refreshToken == "" {
		return nil
	}
	if err := s.refreshTokens.Revoke(ctx, hashToken(refreshToken)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// ValidateSession verifies accessToken and returns the caller's identity.
// The role is read from the current user record, so a role change applies
// on the next request while the token still carries the old claim.
func (s *AuthService) ValidateSession(ctx context.Context, accessToken string) (_ *domain.Identity, err error) {
	defer func() { observe(opValidateSession, err) }()

	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.credentials.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	return &domain.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}

// ValidateAPIKey reports whether key is an allowed service API key.
func (s *AuthService) ValidateAPIKey(key string) bool {
	ok := s.apiKeys.IsValid(key)
	if ok {
		observe(opValidateAPIKey, nil)
	} else {
		observe(opValidateAPIKey, apperrors.ErrInvalidToken)
	}
	return ok
}

func (s *AuthService) issueSession(ctx context.Context, user *domain.User, lineageID, previous string) (*domain.Session, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	var refreshToken string
	for attempt := 0; attempt < maxRefreshAttempts && (refreshToken == "" || refreshToken == previous); attempt++ {
		if refreshToken, err = s.tokens.IssueRefreshToken(); err != nil {
			return nil, apperrors.Internal(err)
		}
	}
	if refreshToken == previous {
		return nil, apperrors.Internal(errors.New("refresh token rotation produced the presented token"))
	}

	entry := &domain.RefreshTokenEntry{
		TokenHash: hashToken(refreshToken),
		UserID:    user.ID,
		LineageID: lineageID,
		IssuedAt:  s.now().UTC(),
	}
	if err := s.refreshTokens.Put(ctx, entry); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("store refresh token: %w", err))
	}

	return &domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    domain.TokenTypeBearer,
		ExpiresIn:    int64(s.tokens.AccessTokenTTL() / time.Second),
		User:         user.Summary(),
	}, nil
}

// hashToken returns the hex SHA-256 digest under which a refresh token is stored.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
