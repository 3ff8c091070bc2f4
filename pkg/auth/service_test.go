package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/auth/authtest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*auth.CredentialService, *authtest.MemoryUserStore, *testClock) {
	t.Helper()

	store := authtest.NewMemoryUserStore()
	clock := &testClock{now: time.Now()}

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
	}, store)
	require.NoError(t, err)
	issuer.SetClock(clock.Now)

	svc := auth.NewCredentialService(store, issuer, auth.ServiceConfig{BcryptCost: bcrypt.MinCost})
	svc.SetClock(clock.Now)
	return svc, store, clock
}

func registerVerified(t *testing.T, svc *auth.CredentialService, email, username, password string) *auth.User {
	t.Helper()
	ctx := context.Background()

	user, raw, err := svc.Register(ctx, auth.RegisterInput{Email: email, Username: username, Password: password})
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	_, err = svc.ConsumeVerificationToken(ctx, raw)
	require.NoError(t, err)
	return user
}

func TestCredentialService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("new account is unverified and cannot log in", func(t *testing.T) {
		svc, store, _ := newTestService(t)

		user, raw, err := svc.Register(ctx, auth.RegisterInput{
			Email: "alice@example.com", Username: "alice", Password: "Secret123", FullName: "Alice",
		})
		require.NoError(t, err)
		assert.False(t, user.IsEmailVerified)
		assert.Equal(t, "Alice", user.FullName)
		assert.Len(t, raw, auth.OneTimeTokenLength*2)

		rec, err := store.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.NotEqual(t, "Secret123", rec.PasswordHash)

		_, err = svc.VerifyCredential(ctx, "alice@example.com", "Secret123")
		assert.True(t, apierr.IsKind(err, apierr.KindForbidden))
	})

	t.Run("duplicate email or username conflicts", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, _, err := svc.Register(ctx, auth.RegisterInput{Email: "alice@example.com", Username: "alice", Password: "Secret123"})
		require.NoError(t, err)

		_, _, err = svc.Register(ctx, auth.RegisterInput{Email: "alice@example.com", Username: "other", Password: "Secret123"})
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))

		_, _, err = svc.Register(ctx, auth.RegisterInput{Email: "other@example.com", Username: "alice", Password: "Secret123"})
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))
	})
}

func TestCredentialService_VerifyCredential(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	registerVerified(t, svc, "bob@example.com", "bob", "Secret123")

	user, err := svc.VerifyCredential(ctx, "bob@example.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.True(t, user.IsEmailVerified)

	_, err = svc.VerifyCredential(ctx, "bob@example.com", "Wrong123")
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidCredentials))

	_, err = svc.VerifyCredential(ctx, "nobody@example.com", "Secret123")
	assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
}

func TestCredentialService_VerificationToken(t *testing.T) {
	ctx := context.Background()

	t.Run("single use", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, raw, err := svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Username: "aaa", Password: "Secret123"})
		require.NoError(t, err)

		user, err := svc.ConsumeVerificationToken(ctx, raw)
		require.NoError(t, err)
		assert.True(t, user.IsEmailVerified)

		_, err = svc.ConsumeVerificationToken(ctx, raw)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidOrExpired))
	})

	t.Run("expired token rejected", func(t *testing.T) {
		svc, _, clock := newTestService(t)
		_, raw, err := svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Username: "aaa", Password: "Secret123"})
		require.NoError(t, err)

		clock.Advance(auth.DefaultOneTimeTokenTTL + time.Second)

		_, err = svc.ConsumeVerificationToken(ctx, raw)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidOrExpired))
	})

	t.Run("empty and unknown tokens rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.ConsumeVerificationToken(ctx, "")
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidOrExpired))

		_, err = svc.ConsumeVerificationToken(ctx, "deadbeef")
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidOrExpired))
	})

	t.Run("resend replaces the pending token", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, first, err := svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Username: "aaa", Password: "Secret123"})
		require.NoError(t, err)

		_, second, err := svc.ResendVerification(ctx, "a@example.com")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		_, err = svc.ConsumeVerificationToken(ctx, first)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidOrExpired))

		_, err = svc.ConsumeVerificationToken(ctx, second)
		require.NoError(t, err)

		_, _, err = svc.ResendVerification(ctx, "a@example.com")
		assert.True(t, apierr.IsKind(err, apierr.KindConflict))

		_, _, err = svc.ResendVerification(ctx, "missing@example.com")
		assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
	})
}

func TestCredentialService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)
	user := registerVerified(t, svc, "carol@example.com", "carol", "Secret123")

	_, pair, err := svc.Login(ctx, "carol@example.com", "Secret123")
	require.NoError(t, err)

	_, raw, err := svc.RequestPasswordReset(ctx, "carol@example.com")
	require.NoError(t, err)

	_, err = svc.ConsumePasswordResetToken(ctx, raw, "NewSecret1")
	require.NoError(t, err)

	_, err = svc.VerifyCredential(ctx, "carol@example.com", "Secret123")
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidCredentials))
	_, err = svc.VerifyCredential(ctx, "carol@example.com", "NewSecret1")
	require.NoError(t, err)

	rec, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.RefreshToken)

	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.True(t, apierr.IsKind(err, apierr.KindSessionExpired))

	_, err = svc.ConsumePasswordResetToken(ctx, raw, "Another1")
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidOrExpired))

	_, raw, err = svc.RequestPasswordReset(ctx, "carol@example.com")
	require.NoError(t, err)
	clock.Advance(auth.DefaultOneTimeTokenTTL)
	_, err = svc.ConsumePasswordResetToken(ctx, raw, "Another1")
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidOrExpired))

	_, _, err = svc.RequestPasswordReset(ctx, "missing@example.com")
	assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
}

func TestCredentialService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	user := registerVerified(t, svc, "dave@example.com", "dave", "Secret123")

	err := svc.ChangePassword(ctx, user.ID, "Wrong123", "NewSecret1")
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidCredentials))

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "Secret123", "NewSecret1"))

	_, err = svc.VerifyCredential(ctx, "dave@example.com", "NewSecret1")
	assert.NoError(t, err)
}

func TestCredentialService_RefreshRotation(t *testing.T) {
	ctx := context.Background()

	t.Run("a refresh token rotates once", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		registerVerified(t, svc, "erin@example.com", "erin", "Secret123")

		_, first, err := svc.Login(ctx, "erin@example.com", "Secret123")
		require.NoError(t, err)

		user, second, err := svc.Refresh(ctx, first.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "erin", user.Username)
		assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

		_, _, err = svc.Refresh(ctx, first.RefreshToken)
		assert.True(t, apierr.IsKind(err, apierr.KindSessionExpired))

		_, _, err = svc.Refresh(ctx, second.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("concurrent rotations of the same token yield one success", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		registerVerified(t, svc, "frank@example.com", "frank", "Secret123")

		_, pair, err := svc.Login(ctx, "frank@example.com", "Secret123")
		require.NoError(t, err)

		const attempts = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := svc.Refresh(ctx, pair.RefreshToken)
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				assert.True(t, apierr.IsKind(err, apierr.KindSessionExpired))
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)
	})

	t.Run("logout revokes the session", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		user := registerVerified(t, svc, "grace@example.com", "grace", "Secret123")

		_, pair, err := svc.Login(ctx, "grace@example.com", "Secret123")
		require.NoError(t, err)

		require.NoError(t, svc.Logout(ctx, user.ID))

		_, _, err = svc.Refresh(ctx, pair.RefreshToken)
		assert.True(t, apierr.IsKind(err, apierr.KindSessionExpired))
	})

	t.Run("a new login replaces the previous session", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		registerVerified(t, svc, "heidi@example.com", "heidi", "Secret123")

		_, first, err := svc.Login(ctx, "heidi@example.com", "Secret123")
		require.NoError(t, err)
		_, _, err = svc.Login(ctx, "heidi@example.com", "Secret123")
		require.NoError(t, err)

		_, _, err = svc.Refresh(ctx, first.RefreshToken)
		assert.True(t, apierr.IsKind(err, apierr.KindSessionExpired))
	})

	t.Run("garbage and empty tokens are unauthorized", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, _, err := svc.Refresh(ctx, "")
		assert.True(t, apierr.IsKind(err, apierr.KindUnauthorized))

		_, _, err = svc.Refresh(ctx, "not-a-jwt")
		assert.True(t, apierr.IsKind(err, apierr.KindUnauthorized))
	})
}

func TestCredentialService_PurgeExpiredTokens(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	_, _, err := svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Username: "aaa", Password: "Secret123"})
	require.NoError(t, err)
	registerVerified(t, svc, "b@example.com", "bbb", "Secret123")

	purged, err := svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	clock.Advance(auth.DefaultOneTimeTokenTTL)

	purged, err = svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// the account keeps its slot
	_, _, err = svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Username: "zzz", Password: "Secret123"})
	assert.True(t, apierr.IsKind(err, apierr.KindConflict))
}
