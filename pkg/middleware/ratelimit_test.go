package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/observability"
)

func TestRateLimitConfigs(t *testing.T) {
	login := LoginRateLimitConfig()
	assert.Equal(t, 5, login.RequestsPerWindow)
	assert.Equal(t, 5*time.Minute, login.WindowDuration)

	email := EmailRateLimitConfig()
	assert.Equal(t, 5, email.RequestsPerWindow)
	assert.Equal(t, time.Hour, email.WindowDuration)
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	rl := NewRateLimiter(LoginRateLimitConfig())
	rl.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		allowed, _, err := rl.Allow(ctx, "login:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, retryAfter, err := rl.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)

	// other clients have their own bucket
	allowed, _, err = rl.Allow(ctx, "login:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)

	// one token refills per minute
	now = now.Add(time.Minute)
	allowed, _, err = rl.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, _, err = rl.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(LoginRateLimitConfig())
	rl.now = func() time.Time { return now }

	_, _, _ = rl.Allow(context.Background(), "stale")
	now = now.Add(11 * time.Minute)
	_, _, _ = rl.Allow(context.Background(), "fresh")

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.buckets, "stale")
	assert.Contains(t, rl.buckets, "fresh")
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, EmailRateLimitConfig(), "test")

	for i := 0; i < 5; i++ {
		allowed, _, err := rl.Allow(ctx, "email:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	remaining, err := rl.Remaining(ctx, "email:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	allowed, retryAfter, err := rl.Allow(ctx, "email:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Hour)

	// the window does not slide with further requests
	ttl := mr.TTL("test:email:10.0.0.1")
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(time.Hour + time.Second)

	allowed, _, err = rl.Allow(ctx, "email:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimiter_ResetAndRemaining(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, LoginRateLimitConfig(), "")

	remaining, err := rl.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, _, err = rl.Allow(ctx, "k")
	require.NoError(t, err)
	remaining, err = rl.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)

	require.NoError(t, rl.Reset(ctx, "k"))
	remaining, err = rl.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	assert.NoError(t, rl.HealthCheck(ctx))
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, LoginRateLimitConfig(), "test")
	mr.Close()

	_, _, err := rl.Allow(context.Background(), "k")
	assert.Error(t, err)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	logger, hook := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cfg := LoginRateLimitConfig()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("blocks after the limit with retry-after", func(t *testing.T) {
		m := NewRateLimitMiddleware(NewRateLimiter(cfg), cfg, logger, metrics)
		handler := m.Handler(ok)

		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		env := decodeEnvelope(t, w)
		assert.Equal(t, cfg.Message, env.Message)
		assert.Equal(t, http.StatusTooManyRequests, env.StatusCode)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("login")))

		// a different client is unaffected
		req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.0.2.2:1234"
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("fails open on limiter errors", func(t *testing.T) {
		hook.Reset()
		m := NewRateLimitMiddleware(failingLimiter{}, cfg, logger, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		w := httptest.NewRecorder()
		m.Handler(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, hook.LastEntry())
		assert.Contains(t, hook.LastEntry().Message, "rate limiter unavailable")
	})
}

func TestRateLimitMiddleware_ForwardedHeaders(t *testing.T) {
	cfg := LoginRateLimitConfig()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	login := func(handler http.Handler, remoteAddr, xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = remoteAddr
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-IP", xff)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("rotating headers from an untrusted peer share one bucket", func(t *testing.T) {
		proxies, err := httputil.ParseTrustedProxies(nil)
		require.NoError(t, err)
		m := NewRateLimitMiddleware(NewRateLimiter(cfg), cfg, nil, nil)
		handler := httputil.ClientIPMiddleware(proxies)(m.Handler(ok))

		limited := 0
		for i := 0; i < 20; i++ {
			if login(handler, "203.0.113.9:4000", fmt.Sprintf("10.0.0.%d", i)) == http.StatusTooManyRequests {
				limited++
			}
		}
		assert.Equal(t, 20-cfg.RequestsPerWindow, limited)
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		proxies, err := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		m := NewRateLimitMiddleware(NewRateLimiter(cfg), cfg, nil, nil)
		handler := httputil.ClientIPMiddleware(proxies)(m.Handler(ok))

		for i := 0; i < cfg.RequestsPerWindow; i++ {
			assert.Equal(t, http.StatusOK, login(handler, "10.0.0.1:4000", "198.51.100.1"))
		}
		assert.Equal(t, http.StatusTooManyRequests, login(handler, "10.0.0.1:4000", "198.51.100.1"))
		assert.Equal(t, http.StatusOK, login(handler, "10.0.0.1:4000", "198.51.100.2"))

		// a client-supplied hop left of the real client does not change the key
		assert.Equal(t, http.StatusTooManyRequests, login(handler, "10.0.0.1:4000", "192.0.2.50, 198.51.100.1"))
	})
}
