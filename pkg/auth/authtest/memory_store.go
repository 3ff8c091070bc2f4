// Package authtest provides an in-memory auth.UserStore for handler and
// service tests.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/auth"
)

type memoryUser struct {
	record             auth.UserRecord
	verificationHash   string
	verificationExpiry time.Time
	resetHash          string
	resetExpiry        time.Time
}

// MemoryUserStore is an in-process auth.UserStore with the same atomicity
// as the Postgres store
type MemoryUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*memoryUser
}

var _ auth.UserStore = (*MemoryUserStore)(nil)

// NewMemoryUserStore creates an empty store
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[int64]*memoryUser)}
}

func (m *MemoryUserStore) snapshot(u *memoryUser) *auth.UserRecord {
	rec := u.record
	return &rec
}

// CreateUser inserts a new unverified account
func (m *MemoryUserStore) CreateUser(_ context.Context, nu *auth.NewUser) (*auth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.record.Email == nu.Email || u.record.Username == nu.Username {
			return nil, apierr.Conflict("User with email or username already exists")
		}
	}

	m.nextID++
	now := time.Now().UTC()
	u := &memoryUser{
		record: auth.UserRecord{
			User: auth.User{
				ID:        m.nextID,
				Email:     nu.Email,
				Username:  nu.Username,
				FullName:  nu.FullName,
				AvatarURL: nu.AvatarURL,
				CreatedAt: now,
				UpdatedAt: now,
			},
			PasswordHash: nu.PasswordHash,
		},
		verificationHash:   nu.VerificationHash,
		verificationExpiry: nu.VerificationExpiry,
	}
	m.users[u.record.ID] = u
	return m.snapshot(u), nil
}

// GetByEmail looks an account up by email
func (m *MemoryUserStore) GetByEmail(_ context.Context, email string) (*auth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.record.Email == email {
			return m.snapshot(u), nil
		}
	}
	return nil, apierr.NotFound("User not found")
}

// GetByID looks an account up by ID
func (m *MemoryUserStore) GetByID(_ context.Context, id int64) (*auth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apierr.NotFound("User not found")
	}
	return m.snapshot(u), nil
}

// EmailOrUsernameTaken reports whether either value is already registered
func (m *MemoryUserStore) EmailOrUsernameTaken(_ context.Context, email, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.record.Email == email || u.record.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// SetVerificationToken replaces the pending email verification token
func (m *MemoryUserStore) SetVerificationToken(_ context.Context, userID int64, hash string, expiry time.Time) error {
	return m.update(userID, func(u *memoryUser) {
		u.verificationHash = hash
		u.verificationExpiry = expiry
	})
}

// ConsumeVerificationToken verifies the owner of an unexpired token
func (m *MemoryUserStore) ConsumeVerificationToken(_ context.Context, hash string, now time.Time) (*auth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if hash != "" && u.verificationHash == hash && now.Before(u.verificationExpiry) {
			u.record.IsEmailVerified = true
			u.verificationHash = ""
			u.verificationExpiry = time.Time{}
			u.record.UpdatedAt = now
			return m.snapshot(u), nil
		}
	}
	return nil, apierr.InvalidOrExpired("Invalid User or token expired")
}

// SetPasswordResetToken replaces the pending password reset token
func (m *MemoryUserStore) SetPasswordResetToken(_ context.Context, userID int64, hash string, expiry time.Time) error {
	return m.update(userID, func(u *memoryUser) {
		u.resetHash = hash
		u.resetExpiry = expiry
	})
}

// ConsumePasswordResetToken resets the password of the owner of an unexpired token
func (m *MemoryUserStore) ConsumePasswordResetToken(_ context.Context, hash, newPasswordHash string, now time.Time) (*auth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if hash != "" && u.resetHash == hash && now.Before(u.resetExpiry) {
			u.record.PasswordHash = newPasswordHash
			u.record.RefreshToken = ""
			u.resetHash = ""
			u.resetExpiry = time.Time{}
			u.record.UpdatedAt = now
			return m.snapshot(u), nil
		}
	}
	return nil, apierr.InvalidOrExpired("Invalid User or token expired")
}

// UpdatePassword replaces the password hash
func (m *MemoryUserStore) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	return m.update(userID, func(u *memoryUser) {
		u.record.PasswordHash = passwordHash
	})
}

// SetRefreshToken overwrites or clears the stored refresh token
func (m *MemoryUserStore) SetRefreshToken(_ context.Context, userID int64, token string) error {
	return m.update(userID, func(u *memoryUser) {
		u.record.RefreshToken = token
	})
}

// SwapRefreshToken is a compare-and-swap on the stored refresh token
func (m *MemoryUserStore) SwapRefreshToken(_ context.Context, userID int64, current, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok || current == "" || u.record.RefreshToken != current {
		return false, nil
	}
	u.record.RefreshToken = next
	return true, nil
}

// PurgeExpiredTokens clears expired verification and reset tokens
func (m *MemoryUserStore) PurgeExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var touched int64
	for _, u := range m.users {
		hit := false
		if u.verificationHash != "" && !now.Before(u.verificationExpiry) {
			u.verificationHash = ""
			u.verificationExpiry = time.Time{}
			hit = true
		}
		if u.resetHash != "" && !now.Before(u.resetExpiry) {
			u.resetHash = ""
			u.resetExpiry = time.Time{}
			hit = true
		}
		if hit {
			touched++
		}
	}
	return touched, nil
}

func (m *MemoryUserStore) update(userID int64, fn func(u *memoryUser)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return apierr.NotFound("User not found")
	}
	fn(u)
	u.record.UpdatedAt = time.Now().UTC()
	return nil
}
