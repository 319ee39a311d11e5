package models

import (
	"strconv"
	"time"
)

// User represents a registered account
type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Password   string    `json:"-"` // Never send password in JSON
	IsDisabled bool      `json:"is_disabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserResponse is the safe version of User for API responses
type UserResponse struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		UID:       u.UID(),
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// UID is the opaque identifier handed to clients.
func (u *User) UID() string {
	return strconv.FormatInt(u.ID, 10)
}

// Session is a bearer token bound to a user until ExpiresAt.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

// Identity is the signed-in user as seen by the client.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Token string `json:"token"`
}
