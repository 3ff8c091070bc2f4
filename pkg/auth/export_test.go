package auth

import "time"

func (t *TokenIssuer) SetClock(now func() time.Time) { t.now = now }

func (t *TokenIssuer) SignRefreshToken(userID int64) (string, error) {
	return t.signRefreshToken(userID)
}

func (t *TokenIssuer) Config() TokenConfig { return t.cfg }

func (s *CredentialService) SetClock(now func() time.Time) { s.now = now }
