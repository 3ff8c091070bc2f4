package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/taskhub/pkg/apierr"
)

const (
	DefaultAccessTokenTTL  = 5 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenConfig configures the token issuer
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenIssuer signs and validates access and refresh tokens. The refresh
// token is persisted on the user so only the latest one is accepted.
type TokenIssuer struct {
	cfg   TokenConfig
	store UserStore
	now   func() time.Time
}

// NewTokenIssuer creates a token issuer
func NewTokenIssuer(cfg TokenConfig, store UserStore) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("access and refresh secrets are required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	return &TokenIssuer{cfg: cfg, store: store, now: time.Now}, nil
}

// IssueAccessToken signs a short-lived access token for u
func (t *TokenIssuer) IssueAccessToken(u *User) (string, error) {
	now := t.now()
	claims := AccessClaims{
		UserID:   u.ID,
		Email:    u.Email,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (t *TokenIssuer) signRefreshToken(userID int64) (string, error) {
	now := t.now()
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.RefreshTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.RefreshSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken signs a refresh token and stores it on the user,
// replacing any earlier one
func (t *TokenIssuer) IssueRefreshToken(ctx context.Context, u *User) (string, error) {
	token, err := t.signRefreshToken(u.ID)
	if err != nil {
		return "", err
	}
	if err := t.store.SetRefreshToken(ctx, u.ID, token); err != nil {
		return "", err
	}
	return token, nil
}

// IssuePair issues a fresh access and refresh token for u
func (t *TokenIssuer) IssuePair(ctx context.Context, u *User) (*TokenPair, error) {
	access, err := t.IssueAccessToken(u)
	if err != nil {
		return nil, err
	}
	refresh, err := t.IssueRefreshToken(ctx, u)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateAccessToken verifies signature and expiry of an access token
func (t *TokenIssuer) ValidateAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, t.keyFunc(t.cfg.AccessSecret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || claims.UserID == 0 {
		return nil, apierr.Wrap(apierr.KindUnauthorized, "Invalid or expired access token", err)
	}
	return claims, nil
}

func (t *TokenIssuer) parseRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	_, err := jwt.ParseWithClaims(token, claims, t.keyFunc(t.cfg.RefreshSecret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || claims.UserID == 0 {
		return nil, apierr.Wrap(apierr.KindUnauthorized, "Invalid or expired refresh token", err)
	}
	return claims, nil
}

// RefreshTokenOwner returns the user a correctly signed, unexpired refresh
// token was issued to, whether or not it is still the current one
func (t *TokenIssuer) RefreshTokenOwner(token string) (int64, bool) {
	claims, err := t.parseRefreshToken(token)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

func (t *TokenIssuer) keyFunc(secret string) jwt.Keyfunc {
	return func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}
}

// RotateRefreshToken exchanges a refresh token for a new pair. The stored
// token is swapped with a conditional update, so a given refresh token can
// be rotated at most once.
func (t *TokenIssuer) RotateRefreshToken(ctx context.Context, presented string) (*TokenPair, *User, error) {
	if presented == "" {
		return nil, nil, apierr.Unauthorized("Unauthorized Request")
	}

	claims, err := t.parseRefreshToken(presented)
	if err != nil {
		return nil, nil, err
	}

	rec, err := t.store.GetByID(ctx, claims.UserID)
	if err != nil {
		if apierr.IsKind(err, apierr.KindNotFound) {
			return nil, nil, apierr.Unauthorized("Invalid Refresh Token")
		}
		return nil, nil, err
	}
	if rec.RefreshToken != presented {
		return nil, nil, apierr.SessionExpired("Refresh Token Expired")
	}

	access, err := t.IssueAccessToken(&rec.User)
	if err != nil {
		return nil, nil, err
	}
	next, err := t.signRefreshToken(rec.ID)
	if err != nil {
		return nil, nil, err
	}

	swapped, err := t.store.SwapRefreshToken(ctx, rec.ID, presented, next)
	if err != nil {
		return nil, nil, err
	}
	if !swapped {
		return nil, nil, apierr.SessionExpired("Refresh Token Expired")
	}

	user := rec.User
	return &TokenPair{AccessToken: access, RefreshToken: next}, &user, nil
}

// Revoke clears the stored refresh token so no refresh token is accepted
func (t *TokenIssuer) Revoke(ctx context.Context, userID int64) error {
	return t.store.SetRefreshToken(ctx, userID, "")
}
