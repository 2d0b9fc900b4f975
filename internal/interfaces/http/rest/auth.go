package rest

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/auth"
	"github.com/wangmul/emotion-tracker/internal/interfaces/http/dto"
	"github.com/wangmul/emotion-tracker/internal/middleware"
	"github.com/wangmul/emotion-tracker/pkg/api"
)

func (h *Handler) requireProvider(w http.ResponseWriter) bool {
	if h.provider == nil {
		api.Error(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return false
	}
	return true
}

// providerFailure reports an identity-service rejection with its message.
func (h *Handler) providerFailure(w http.ResponseWriter, r *http.Request, status int, op string, err error) {
	h.logger.Info("Identity provider rejected request",
		zap.String("request_id", middleware.RequestIDOf(r)),
		zap.String("operation", op),
		zap.Error(err),
	)
	api.Fail(w, status, api.ErrorResponse{
		Error:     err.Error(),
		Code:      "AUTH_FAILED",
		RequestID: middleware.RequestIDOf(r),
	})
}

// SignIn handles POST /auth/sign-in with email and password.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	if !h.requireProvider(w) {
		return
	}
	var in dto.CredentialsRequest
	if !h.decode(w, r, &in) {
		return
	}
	s, err := h.provider.SignInWithPassword(r.Context(), in.Email, in.Password)
	if err != nil {
		h.providerFailure(w, r, http.StatusUnauthorized, "sign-in", err)
		return
	}
	auth.SetSessionCookies(w, s, h.cookieSecure)
	api.Success(w, http.StatusOK, dto.NewSessionResponse(s, h.gate.AllowsAnonymous()))
}

// SendMagicLink handles POST /auth/magic-link.
func (h *Handler) SendMagicLink(w http.ResponseWriter, r *http.Request) {
	if !h.requireProvider(w) {
		return
	}
	var in dto.MagicLinkRequest
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.provider.SendMagicLink(r.Context(), in.Email); err != nil {
		h.providerFailure(w, r, http.StatusBadRequest, "magic-link", err)
		return
	}
	api.Success(w, http.StatusAccepted, map[string]bool{"sent": true})
}

// SignUp handles POST /auth/sign-up. When the provider requires email
// confirmation no session is issued.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !h.requireProvider(w) {
		return
	}
	var in dto.CredentialsRequest
	if !h.decode(w, r, &in) {
		return
	}
	s, err := h.provider.SignUp(r.Context(), in.Email, in.Password)
	switch {
	case errors.Is(err, auth.ErrConfirmationPending):
		api.Success(w, http.StatusAccepted, dto.SignUpResponse{ConfirmationPending: true, Message: err.Error()})
	case err != nil:
		h.providerFailure(w, r, http.StatusBadRequest, "sign-up", err)
	default:
		auth.SetSessionCookies(w, s, h.cookieSecure)
		resp := dto.NewSessionResponse(s, h.gate.AllowsAnonymous())
		api.Success(w, http.StatusCreated, dto.SignUpResponse{Session: &resp})
	}
}

// GetSession handles GET /auth/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	var current *auth.Session
	if s, ok := h.gate.ResolveSession(r); ok {
		current = &s
	}
	api.Success(w, http.StatusOK, dto.NewSessionResponse(current, h.gate.AllowsAnonymous()))
}

// SignOut handles POST /auth/sign-out. The cookies are cleared even when
// the provider call fails.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.gate.ResolveSession(r); ok && h.provider != nil {
		if err := h.provider.SignOut(r.Context(), s.AccessToken); err != nil {
			h.logger.Warn("Provider sign-out failed", zap.Error(err))
		}
	}
	auth.ClearSessionCookies(w, h.cookieSecure)
	w.WriteHeader(http.StatusNoContent)
}
