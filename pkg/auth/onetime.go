package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// OneTimeTokenLength is the number of random bytes in a one-time token
	OneTimeTokenLength = 32
	// DefaultOneTimeTokenTTL is how long verification and reset tokens stay valid
	DefaultOneTimeTokenTTL = 20 * time.Minute
)

// OneTimeToken is a single-use token. Raw goes to the user; only Hashed and
// Expiry are stored.
type OneTimeToken struct {
	Raw    string
	Hashed string
	Expiry time.Time
}

// IssueOneTimeToken creates a token that expires ttl after now
func IssueOneTimeToken(now time.Time, ttl time.Duration) (OneTimeToken, error) {
	if ttl <= 0 {
		ttl = DefaultOneTimeTokenTTL
	}

	randomBytes := make([]byte, OneTimeTokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return OneTimeToken{}, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	raw := hex.EncodeToString(randomBytes)
	return OneTimeToken{
		Raw:    raw,
		Hashed: HashToken(raw),
		Expiry: now.Add(ttl),
	}, nil
}

// HashToken computes the SHA256 hex digest of a raw token for lookup
func HashToken(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:])
}
