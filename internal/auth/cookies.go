package auth

import (
	"net/http"
	"time"
)

// RefreshCookieMaxAge bounds how long a browser keeps the refresh token.
const RefreshCookieMaxAge = 30 * 24 * time.Hour

// SetSessionCookies stores the access token until it expires and the
// refresh token, when present, for RefreshCookieMaxAge.
func SetSessionCookies(w http.ResponseWriter, s *Session, secure bool) {
	access := sessionCookie(AccessTokenCookie, s.AccessToken, secure)
	if !s.ExpiresAt.IsZero() {
		access.Expires = s.ExpiresAt
	}
	http.SetCookie(w, access)

	if s.RefreshToken != "" {
		refresh := sessionCookie(RefreshTokenCookie, s.RefreshToken, secure)
		refresh.MaxAge = int(RefreshCookieMaxAge / time.Second)
		http.SetCookie(w, refresh)
	}
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		c := sessionCookie(name, "", secure)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func sessionCookie(name, value string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
