package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the public view of an account. It never carries the password
// hash, the refresh token or one-time token hashes.
type User struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	FullName        string    `json:"fullName,omitempty"`
	AvatarURL       string    `json:"avatarUrl,omitempty"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// UserRecord is a user row including its secrets
type UserRecord struct {
	User
	PasswordHash string
	RefreshToken string
}

// Identity is the authenticated caller bound to a request
type Identity struct {
	UserID   int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// NewUser holds the fields for account creation
type NewUser struct {
	Email              string
	Username           string
	PasswordHash       string
	FullName           string
	AvatarURL          string
	VerificationHash   string
	VerificationExpiry time.Time
}

// TokenPair is an access token with its matching refresh token
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AccessClaims are the claims carried by an access token
type AccessClaims struct {
	UserID   int64  `json:"_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity returns the caller identity described by the claims
func (c *AccessClaims) Identity() *Identity {
	return &Identity{UserID: c.UserID, Email: c.Email, Username: c.Username}
}

// RefreshClaims are the claims carried by a refresh token
type RefreshClaims struct {
	UserID int64 `json:"_id"`
	jwt.RegisteredClaims
}
