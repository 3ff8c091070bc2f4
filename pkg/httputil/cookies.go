package httputil

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieOptions controls the auth cookie attributes
type CookieOptions struct {
	MaxAge time.Duration
	Domain string
}

// SetAuthCookies writes the access/refresh cookie pair
func SetAuthCookies(w http.ResponseWriter, opts CookieOptions, accessToken, refreshToken string) {
	http.SetCookie(w, authCookie(opts, AccessTokenCookie, accessToken, int(opts.MaxAge.Seconds())))
	http.SetCookie(w, authCookie(opts, RefreshTokenCookie, refreshToken, int(opts.MaxAge.Seconds())))
}

// ClearAuthCookies expires the access/refresh cookie pair
func ClearAuthCookies(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, authCookie(opts, AccessTokenCookie, "", -1))
	http.SetCookie(w, authCookie(opts, RefreshTokenCookie, "", -1))
}

func authCookie(opts CookieOptions, name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
