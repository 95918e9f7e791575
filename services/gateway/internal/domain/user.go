package domain

import (
	"time"
)

// User is a registered account. Email is the unique, case-sensitive login key.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSummary is the public view of a user returned with a session.
type UserSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Summary returns the public view of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.DisplayName,
		Role:  u.Role,
	}
}
