package auth

import (
	"context"
	"time"
)

// UserStore persists accounts and their security tokens. Every one-time
// token consumption and refresh token swap is a single atomic operation.
type UserStore interface {
	// CreateUser inserts a new unverified account
	CreateUser(ctx context.Context, u *NewUser) (*UserRecord, error)

	// GetByEmail returns apierr NotFound when no account has the email
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)

	// GetByID returns apierr NotFound when the account does not exist
	GetByID(ctx context.Context, id int64) (*UserRecord, error)

	// EmailOrUsernameTaken reports whether either value is already registered
	EmailOrUsernameTaken(ctx context.Context, email, username string) (bool, error)

	// SetVerificationToken replaces the pending email verification token
	SetVerificationToken(ctx context.Context, userID int64, hash string, expiry time.Time) error

	// ConsumeVerificationToken marks the owner of an unexpired token as
	// verified and clears the token. apierr InvalidOrExpired otherwise.
	ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (*UserRecord, error)

	// SetPasswordResetToken replaces the pending password reset token
	SetPasswordResetToken(ctx context.Context, userID int64, hash string, expiry time.Time) error

	// ConsumePasswordResetToken sets a new password hash for the owner of an
	// unexpired token, clears the token and revokes the refresh token.
	// apierr InvalidOrExpired otherwise.
	ConsumePasswordResetToken(ctx context.Context, hash, newPasswordHash string, now time.Time) (*UserRecord, error)

	// UpdatePassword replaces the password hash
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error

	// SetRefreshToken overwrites the stored refresh token. An empty token
	// clears it.
	SetRefreshToken(ctx context.Context, userID int64, token string) error

	// SwapRefreshToken replaces the stored refresh token only when it still
	// equals current. It reports whether the swap happened.
	SwapRefreshToken(ctx context.Context, userID int64, current, next string) (bool, error)

	// PurgeExpiredTokens clears one-time tokens that expired at or before now
	// and returns the number of accounts touched
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}
