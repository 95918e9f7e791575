package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

// Claims represents the JWT claims for an access token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 access tokens and generates opaque
// refresh tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// TokenIssuerOption customizes a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithClock replaces the wall clock used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(t *TokenIssuer) { t.now = now }
}

// NewTokenIssuer creates a TokenIssuer signing with secret. Access tokens
// live for ttl.
func NewTokenIssuer(secret, issuer string, ttl time.Duration, opts ...TokenIssuerOption) *TokenIssuer {
	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	return t
}

// AccessTokenTTL returns the lifetime of issued access tokens.
func (t *TokenIssuer) AccessTokenTTL() time.Duration {
	return t.ttl
}

// IssueAccessToken creates a signed access token for u.
func (t *TokenIssuer) IssueAccessToken(u *domain.User) (string, error) {
	now := t.now().UTC()
	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			Issuer:    t.issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken returns a new random opaque token. It carries no claims;
// its owner is found through the refresh token registry.
func (t *TokenIssuer) IssueRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// VerifyAccessToken checks the signature, algorithm, issuer and expiry of
// token. It fails with ErrTokenExpired for an expired but otherwise valid
// token and with ErrInvalidToken for everything else.
func (t *TokenIssuer) VerifyAccessToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := t.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken()
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, apperrors.InvalidToken()
	}
	return claims, nil
}
