package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// Name identifies the limiter in keys, metrics and logs
	Name string
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// Message is returned to clients that exceed the limit
	Message string
}

// LoginRateLimitConfig limits login attempts to 5 per 5 minutes
func LoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Name:              "login",
		RequestsPerWindow: 5,
		WindowDuration:    5 * time.Minute,
		Message:           "Too many login attempts. Please try again in 5 minutes.",
	}
}

// EmailRateLimitConfig limits email-sending endpoints to 5 per hour
func EmailRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Name:              "email",
		RequestsPerWindow: 5,
		WindowDuration:    time.Hour,
		Message:           "Too many requests from this IP. Please try again after an hour.",
	}
}

// Limiter decides whether a keyed request may proceed. When it may not,
// retryAfter tells the client how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimiter is an in-process token bucket limiter. Each key refills at
// RequestsPerWindow per WindowDuration and may burst up to RequestsPerWindow.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = LoginRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		every := rl.config.WindowDuration / time.Duration(rl.config.RequestsPerWindow)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), rl.config.RequestsPerWindow)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, rl.config.WindowDuration, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// Cleanup removes buckets idle for longer than two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup starts a background goroutine to cleanup old buckets
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// RateLimitMiddleware limits requests per client IP
type RateLimitMiddleware struct {
	limiter Limiter
	config  *RateLimitConfig
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// NewRateLimitMiddleware creates a rate limit middleware over any Limiter
func NewRateLimitMiddleware(limiter Limiter, config *RateLimitConfig, logger *logrus.Logger, metrics *observability.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Handler wraps an HTTP handler with rate limiting. Limiter errors fail open.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.config.Name + ":" + httputil.ClientIP(r)

		allowed, retryAfter, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			if m.logger != nil {
				m.logger.WithError(err).WithField("limiter", m.config.Name).Warn("rate limiter unavailable, allowing request")
			}
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			m.metrics.RecordRateLimited(m.config.Name)
			seconds := int64(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", "0")
			httputil.WriteError(w, apierr.TooManyRequests(m.config.Message))
			return
		}

		next.ServeHTTP(w, r)
	})
}
