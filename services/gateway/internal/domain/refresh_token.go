package domain

import "time"

// RefreshTokenEntry binds a stored refresh token to its owner. Only the
// SHA-256 digest of the token is kept. An entry is removed the first time it
// is consumed or revoked.
type RefreshTokenEntry struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	LineageID string    `json:"lineage_id"`
	IssuedAt  time.Time `json:"issued_at"`
}
