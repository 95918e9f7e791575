package domain

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// Session is returned by register, login and refresh.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         UserSummary `json:"user"`
}

// Identity is the caller materialized from a valid access token. Role comes
// from the current user record, not from the token.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}
