package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
)

// TokenValidator validates access tokens
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.AccessClaims, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	validator TokenValidator
	logger    *logrus.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// Handler wraps an HTTP handler with authentication. The access token is
// read from a "Bearer" Authorization header, falling back to the
// accessToken cookie.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractAccessToken(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		claims, err := m.validator.ValidateAccessToken(token)
		if err != nil {
			if m.logger != nil {
				m.logger.WithError(err).WithField("path", r.URL.Path).Debug("rejected access token")
			}
			httputil.WriteError(w, apierr.Unauthorized("Invalid or expired access token"))
			return
		}

		identity := claims.Identity()
		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, identity.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractAccessToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", apierr.Unauthorized("Invalid authorization header format")
		}
		return strings.TrimSpace(parts[1]), nil
	}

	if cookie, err := r.Cookie(httputil.AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", apierr.Unauthorized("Unauthorized request")
}

// IdentityFromContext returns the authenticated caller, if any
func IdentityFromContext(ctx context.Context) *auth.Identity {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}

// GetIdentity extracts the authenticated caller from request
func GetIdentity(r *http.Request) *auth.Identity {
	return IdentityFromContext(r.Context())
}
