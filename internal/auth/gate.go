package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

const (
	// AccessTokenCookie holds the access token for browser requests.
	AccessTokenCookie = "sb-access-token"
	// RefreshTokenCookie holds the token used to renew an expired session.
	RefreshTokenCookie = "sb-refresh-token"
	// SignInPath is where unauthenticated users are sent.
	SignInPath = "/auth/sign-in"
)

// Session is an authenticated user.
type Session struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession stores the session in ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session stored by the gate middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// Refresher exchanges a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// Gate applies one policy to every owner-scoped action: with a session the
// owner is the user; without one the owner is absent if anonymous access
// is allowed, otherwise the action needs sign-in.
type Gate struct {
	verifier       *TokenVerifier
	allowAnonymous bool
	refresher      Refresher
	secureCookies  bool
	logger         *zap.Logger
}

// NewGate builds a gate. A nil verifier resolves no sessions.
func NewGate(verifier *TokenVerifier, allowAnonymous bool, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{verifier: verifier, allowAnonymous: allowAnonymous, logger: logger}
}

// WithRefresher lets Middleware renew sessions whose access token is
// missing or expired from the refresh cookie.
func (g *Gate) WithRefresher(r Refresher, secureCookies bool) *Gate {
	g.refresher = r
	g.secureCookies = secureCookies
	return g
}

func (g *Gate) AllowsAnonymous() bool { return g.allowAnonymous }

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// ResolveSession verifies the request's token, if any.
func (g *Gate) ResolveSession(r *http.Request) (Session, bool) {
	if s, ok := SessionFromContext(r.Context()); ok {
		return s, true
	}
	if g.verifier == nil {
		return Session{}, false
	}
	token := bearerToken(r)
	if token == "" {
		return Session{}, false
	}
	s, err := g.verify(token)
	if err != nil {
		g.logger.Debug("Rejected access token", zap.Error(err))
		return Session{}, false
	}
	return s, true
}

func (g *Gate) verify(token string) (Session, error) {
	claims, err := g.verifier.Verify(token)
	if err != nil {
		return Session{}, err
	}
	s := Session{UserID: claims.UserID(), Email: claims.Email, AccessToken: token}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// refresh renews the session from the refresh cookie and rewrites both
// cookies. A rejected refresh token clears them.
func (g *Gate) refresh(w http.ResponseWriter, r *http.Request) (Session, bool) {
	if g.refresher == nil || g.verifier == nil {
		return Session{}, false
	}
	c, err := r.Cookie(RefreshTokenCookie)
	if err != nil || c.Value == "" {
		return Session{}, false
	}
	renewed, err := g.refresher.Refresh(r.Context(), c.Value)
	if err != nil {
		g.logger.Info("Session refresh failed", zap.Error(err))
		ClearSessionCookies(w, g.secureCookies)
		return Session{}, false
	}
	s, err := g.verify(renewed.AccessToken)
	if err != nil {
		g.logger.Warn("Refreshed access token rejected", zap.Error(err))
		ClearSessionCookies(w, g.secureCookies)
		return Session{}, false
	}
	s.RefreshToken = renewed.RefreshToken
	SetSessionCookies(w, renewed, g.secureCookies)
	g.logger.Debug("Session refreshed", zap.String("user_id", s.UserID))
	return s, true
}

// Owner returns the owner for the request or an AUTH_REQUIRED error.
func (g *Gate) Owner(r *http.Request) (entry.Owner, error) {
	if s, ok := g.ResolveSession(r); ok {
		return entry.UserOwner(s.UserID), nil
	}
	if g.allowAnonymous {
		return entry.Anonymous(), nil
	}
	return entry.Owner{}, apperrors.AuthRequired(r.URL.Path)
}

// Middleware resolves the session once, refreshing it when the access
// token is gone, and stores it on the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.ResolveSession(r)
		if !ok {
			s, ok = g.refresh(w, r)
		}
		if ok {
			r = r.WithContext(WithSession(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}
