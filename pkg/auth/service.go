package auth

import (
	"context"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apierr"
)

// ServiceConfig tunes the credential service
type ServiceConfig struct {
	BcryptCost      int
	OneTimeTokenTTL time.Duration
}

// CredentialService implements the account lifecycle: registration, email
// verification, login, password reset and session rotation. Operations that
// mint a one-time token return the raw value so the caller can mail it.
type CredentialService struct {
	store  UserStore
	issuer *TokenIssuer
	cfg    ServiceConfig
	now    func() time.Time
}

// NewCredentialService creates a credential service
func NewCredentialService(store UserStore, issuer *TokenIssuer, cfg ServiceConfig) *CredentialService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	if cfg.OneTimeTokenTTL <= 0 {
		cfg.OneTimeTokenTTL = DefaultOneTimeTokenTTL
	}
	return &CredentialService{store: store, issuer: issuer, cfg: cfg, now: time.Now}
}

// Issuer returns the token issuer used for sessions
func (s *CredentialService) Issuer() *TokenIssuer {
	return s.issuer
}

// RegisterInput is the data needed to open an account
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FullName  string
	AvatarURL string
}

// Register creates an unverified account and returns it with the raw email
// verification token
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (*User, string, error) {
	taken, err := s.store.EmailOrUsernameTaken(ctx, in.Email, in.Username)
	if err != nil {
		return nil, "", err
	}
	if taken {
		return nil, "", apierr.Conflict("User with email or username already exists")
	}

	hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, "", err
	}

	token, err := IssueOneTimeToken(s.now(), s.cfg.OneTimeTokenTTL)
	if err != nil {
		return nil, "", err
	}

	rec, err := s.store.CreateUser(ctx, &NewUser{
		Email:              in.Email,
		Username:           in.Username,
		PasswordHash:       hash,
		FullName:           in.FullName,
		AvatarURL:          in.AvatarURL,
		VerificationHash:   token.Hashed,
		VerificationExpiry: token.Expiry,
	})
	if err != nil {
		return nil, "", err
	}

	user := rec.User
	return &user, token.Raw, nil
}

// VerifyCredential checks an email and password pair. Unknown email is
// NotFound, an unverified account is Forbidden and a wrong password is
// InvalidCredentials.
func (s *CredentialService) VerifyCredential(ctx context.Context, email, password string) (*User, error) {
	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !rec.IsEmailVerified {
		return nil, apierr.Forbidden("User is not verified")
	}

	ok, err := CheckPassword(rec.PasswordHash, password)
	if err != nil {
		return nil, apierr.Internal("failed to verify credentials", err)
	}
	if !ok {
		return nil, apierr.InvalidCredentials("Invalid Credentials")
	}

	user := rec.User
	return &user, nil
}

// Login verifies credentials and starts a new session, replacing any
// earlier refresh token
func (s *CredentialService) Login(ctx context.Context, email, password string) (*User, *TokenPair, error) {
	user, err := s.VerifyCredential(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.issuer.IssuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// ConsumeVerificationToken marks the token owner as verified. The token is
// single use.
func (s *CredentialService) ConsumeVerificationToken(ctx context.Context, raw string) (*User, error) {
	if raw == "" {
		return nil, apierr.InvalidOrExpired("Verification token is required")
	}
	rec, err := s.store.ConsumeVerificationToken(ctx, HashToken(raw), s.now())
	if err != nil {
		return nil, err
	}
	user := rec.User
	return &user, nil
}

// ResendVerification replaces the pending verification token of an
// unverified account and returns the new raw token
func (s *CredentialService) ResendVerification(ctx context.Context, email string) (*User, string, error) {
	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if rec.IsEmailVerified {
		return nil, "", apierr.Conflict("User is already verified")
	}

	token, err := IssueOneTimeToken(s.now(), s.cfg.OneTimeTokenTTL)
	if err != nil {
		return nil, "", err
	}
	if err := s.store.SetVerificationToken(ctx, rec.ID, token.Hashed, token.Expiry); err != nil {
		return nil, "", err
	}

	user := rec.User
	return &user, token.Raw, nil
}

// RequestPasswordReset stores a new reset token for the account and returns
// the raw token. Unknown emails are NotFound; callers hide that from clients.
func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) (*User, string, error) {
	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}

	token, err := IssueOneTimeToken(s.now(), s.cfg.OneTimeTokenTTL)
	if err != nil {
		return nil, "", err
	}
	if err := s.store.SetPasswordResetToken(ctx, rec.ID, token.Hashed, token.Expiry); err != nil {
		return nil, "", err
	}

	user := rec.User
	return &user, token.Raw, nil
}

// ConsumePasswordResetToken sets a new password for the token owner and
// ends their session. The token is single use.
func (s *CredentialService) ConsumePasswordResetToken(ctx context.Context, raw, newPassword string) (*User, error) {
	if raw == "" {
		return nil, apierr.InvalidOrExpired("Reset token is required")
	}
	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.ConsumePasswordResetToken(ctx, HashToken(raw), hash, s.now())
	if err != nil {
		return nil, err
	}
	user := rec.User
	return &user, nil
}

// ChangePassword replaces the password after checking the current one
func (s *CredentialService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	rec, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := CheckPassword(rec.PasswordHash, oldPassword)
	if err != nil {
		return apierr.Internal("failed to verify credentials", err)
	}
	if !ok {
		return apierr.InvalidCredentials("Invalid old password")
	}

	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

// CurrentUser returns the public view of an account
func (s *CredentialService) CurrentUser(ctx context.Context, userID int64) (*User, error) {
	rec, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user := rec.User
	return &user, nil
}

// Refresh rotates a refresh token into a new token pair
func (s *CredentialService) Refresh(ctx context.Context, presented string) (*User, *TokenPair, error) {
	pair, user, err := s.issuer.RotateRefreshToken(ctx, presented)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Logout revokes the caller's refresh token
func (s *CredentialService) Logout(ctx context.Context, userID int64) error {
	return s.issuer.Revoke(ctx, userID)
}

// PurgeExpiredTokens clears expired one-time tokens
func (s *CredentialService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.store.PurgeExpiredTokens(ctx, s.now())
}
