// Package auth provides account credentials and session tokens.
//
// # Overview
//
// CredentialService owns the account lifecycle: registration, email
// verification, login, password reset and password change. TokenIssuer signs
// HS256 access tokens and refresh tokens. Only the most recently issued
// refresh token of a user is accepted, and rotating it is a compare-and-swap
// in the UserStore, so a stolen or replayed refresh token can be used at most
// once.
//
// One-time tokens (email verification, password reset) are 32 random bytes,
// hex encoded. Only their SHA256 digest and expiry are stored, and they are
// consumed with a single conditional update.
//
// # Usage
//
//	store := auth.NewPostgresUserStore(db)
//	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
//		AccessSecret:  cfg.Auth.AccessTokenSecret,
//		RefreshSecret: cfg.Auth.RefreshTokenSecret,
//	}, store)
//	svc := auth.NewCredentialService(store, issuer, auth.ServiceConfig{})
//
//	user, rawToken, err := svc.Register(ctx, auth.RegisterInput{...})
//	user, pair, err := svc.Login(ctx, email, password)
//
// # Errors
//
// Every failure a client can cause is an *apierr.Error: NotFound for unknown
// accounts, Forbidden for unverified logins, InvalidCredentials for wrong
// passwords, InvalidOrExpired for spent or stale one-time tokens and
// SessionExpired for a refresh token that is no longer the stored one.
package auth
