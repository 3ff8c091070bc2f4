// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/taskhub/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, ok := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All protected API endpoints, authorization middleware
	// Type: *auth.Identity
	IdentityKey Key = "identity"

	// ProjectRoleKey contains the caller's role in the project being accessed
	// Set by: rbac.Authorizer.Require (pkg/rbac/middleware.go)
	// Required by: Project-scoped handlers that need the caller's role
	// Type: rbac.Role
	ProjectRoleKey Key = "project_role"

	// ProjectIDKey contains the project ID parsed from the request path
	// Set by: rbac.Authorizer.Require (pkg/rbac/middleware.go)
	// Used by: Project-scoped handlers
	// Type: int64
	ProjectIDKey Key = "project_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user's ID
	// Set by: Auth middleware after token validation
	// Used by: Logger, audit trail, user-scoped operations
	// Type: int64
	UserIDKey Key = "user_id"

	// ClientIPKey contains the caller's address after trusted proxy hops
	// are stripped
	// Set by: httputil.ClientIPMiddleware
	// Used by: Rate limiting, request logs, audit trail
	// Type: string
	ClientIPKey Key = "client_ip"
)

// WithIdentity adds the authenticated identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithProjectRole adds the caller's project role to the context
func WithProjectRole(ctx context.Context, role interface{}) context.Context {
	return context.WithValue(ctx, ProjectRoleKey, role)
}

// WithProjectID adds the authorized project ID to the context
func WithProjectID(ctx context.Context, projectID int64) context.Context {
	return context.WithValue(ctx, ProjectIDKey, projectID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithClientIP adds the resolved client address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the resolved client address from context
func GetClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ClientIPKey).(string)
	return ip, ok && ip != ""
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetProjectID retrieves the authorized project ID from context
func GetProjectID(ctx context.Context) (int64, bool) {
	projectID, ok := ctx.Value(ProjectIDKey).(int64)
	return projectID, ok
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
