// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Overview
//
// AuthMiddleware validates the caller's access token and binds an
// *auth.Identity to the request context. RateLimitMiddleware throttles
// requests per client IP through a Limiter, either the in-process token
// bucket RateLimiter or the Redis-backed DistributedRateLimiter.
//
// # Middleware Components
//
// AuthMiddleware: access token authentication
//
//	authMW := middleware.NewAuthMiddleware(issuer, logger)
//	router.Use(authMW.Handler)
//	// Reads "Authorization: Bearer <token>" or the accessToken cookie
//
// RateLimitMiddleware: per-IP throttling
//
//	cfg := middleware.LoginRateLimitConfig()
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "ratelimit")
//	loginMW := middleware.NewRateLimitMiddleware(limiter, cfg, logger, metrics)
//
// # Rate Limiting
//
// Login: 5 requests per 5 minutes
// Email-sending endpoints: 5 requests per hour
//
// Exceeded limits return 429 with a Retry-After header. Limiter failures
// fail open.
//
// # Related Packages
//
//   - pkg/auth: Token validation
//   - pkg/rbac: Project permission checking
package middleware
