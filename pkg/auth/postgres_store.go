package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apierr"
)

const userColumns = `id, email, username, full_name, avatar_url, password_hash,
	is_email_verified, refresh_token, created_at, updated_at`

// PostgresUserStore implements UserStore on the users table
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a user store
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*UserRecord, error) {
	var (
		u            UserRecord
		fullName     sql.NullString
		avatarURL    sql.NullString
		refreshToken sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &fullName, &avatarURL, &u.PasswordHash,
		&u.IsEmailVerified, &refreshToken, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.FullName = fullName.String
	u.AvatarURL = avatarURL.String
	u.RefreshToken = refreshToken.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateUser inserts a new unverified account
func (s *PostgresUserStore) CreateUser(ctx context.Context, nu *NewUser) (*UserRecord, error) {
	query := `
		INSERT INTO users (
			email, username, password_hash, full_name, avatar_url,
			email_verification_token, email_verification_expiry
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	var expiry sql.NullTime
	if nu.VerificationHash != "" {
		expiry = sql.NullTime{Time: nu.VerificationExpiry, Valid: true}
	}

	u, err := scanUser(s.db.QueryRowContext(ctx, query,
		nu.Email, nu.Username, nu.PasswordHash, nullString(nu.FullName), nullString(nu.AvatarURL),
		nullString(nu.VerificationHash), expiry,
	))
	if err != nil {
		if apierr.IsUniqueViolation(err) {
			return nil, apierr.Wrap(apierr.KindConflict, "User with email or username already exists", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByEmail looks an account up by email
func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// GetByID looks an account up by ID
func (s *PostgresUserStore) GetByID(ctx context.Context, id int64) (*UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// EmailOrUsernameTaken reports whether either value is already registered
func (s *PostgresUserStore) EmailOrUsernameTaken(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 OR username = $2)`
	if err := s.db.QueryRowContext(ctx, query, email, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing user: %w", err)
	}
	return exists, nil
}

// SetVerificationToken replaces the pending email verification token
func (s *PostgresUserStore) SetVerificationToken(ctx context.Context, userID int64, hash string, expiry time.Time) error {
	query := `
		UPDATE users
		SET email_verification_token = $2, email_verification_expiry = $3, updated_at = NOW()
		WHERE id = $1`
	return s.execOne(ctx, "failed to set verification token", query, userID, hash, expiry)
}

// ConsumeVerificationToken verifies the owner of an unexpired token
func (s *PostgresUserStore) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (*UserRecord, error) {
	query := `
		UPDATE users
		SET is_email_verified = TRUE,
			email_verification_token = NULL,
			email_verification_expiry = NULL,
			updated_at = NOW()
		WHERE email_verification_token = $1 AND email_verification_expiry > $2
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query, hash, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.InvalidOrExpired("Invalid User or token expired")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	return u, nil
}

// SetPasswordResetToken replaces the pending password reset token
func (s *PostgresUserStore) SetPasswordResetToken(ctx context.Context, userID int64, hash string, expiry time.Time) error {
	query := `
		UPDATE users
		SET forgot_password_token = $2, forgot_password_expiry = $3, updated_at = NOW()
		WHERE id = $1`
	return s.execOne(ctx, "failed to set password reset token", query, userID, hash, expiry)
}

// ConsumePasswordResetToken resets the password of the owner of an unexpired token
func (s *PostgresUserStore) ConsumePasswordResetToken(ctx context.Context, hash, newPasswordHash string, now time.Time) (*UserRecord, error) {
	query := `
		UPDATE users
		SET password_hash = $2,
			forgot_password_token = NULL,
			forgot_password_expiry = NULL,
			refresh_token = NULL,
			updated_at = NOW()
		WHERE forgot_password_token = $1 AND forgot_password_expiry > $3
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query, hash, newPasswordHash, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.InvalidOrExpired("Invalid User or token expired")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume password reset token: %w", err)
	}
	return u, nil
}

// UpdatePassword replaces the password hash
func (s *PostgresUserStore) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return s.execOne(ctx, "failed to update password", query, userID, passwordHash)
}

// SetRefreshToken overwrites or clears the stored refresh token
func (s *PostgresUserStore) SetRefreshToken(ctx context.Context, userID int64, token string) error {
	query := `UPDATE users SET refresh_token = $2, updated_at = NOW() WHERE id = $1`
	return s.execOne(ctx, "failed to set refresh token", query, userID, nullString(token))
}

// SwapRefreshToken is a compare-and-swap on the stored refresh token
func (s *PostgresUserStore) SwapRefreshToken(ctx context.Context, userID int64, current, next string) (bool, error) {
	query := `
		UPDATE users SET refresh_token = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token = $2`
	result, err := s.db.ExecContext(ctx, query, userID, current, next)
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return rows == 1, nil
}

// PurgeExpiredTokens clears expired verification and reset tokens
func (s *PostgresUserStore) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users SET
			email_verification_token = CASE WHEN email_verification_expiry <= $1 THEN NULL ELSE email_verification_token END,
			email_verification_expiry = CASE WHEN email_verification_expiry <= $1 THEN NULL ELSE email_verification_expiry END,
			forgot_password_token = CASE WHEN forgot_password_expiry <= $1 THEN NULL ELSE forgot_password_token END,
			forgot_password_expiry = CASE WHEN forgot_password_expiry <= $1 THEN NULL ELSE forgot_password_expiry END
		WHERE email_verification_expiry <= $1 OR forgot_password_expiry <= $1`
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresUserStore) execOne(ctx context.Context, message, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", message, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", message, err)
	}
	if rows == 0 {
		return apierr.NotFound("User not found")
	}
	return nil
}
