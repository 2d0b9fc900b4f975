// Package rest exposes the journal over JSON HTTP: the three record steps,
// history, the soothing library, sign-in and health.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/auth"
	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/draft"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/history"
	"github.com/wangmul/emotion-tracker/internal/interfaces/http/dto"
	"github.com/wangmul/emotion-tracker/internal/interfaces/http/validation"
	"github.com/wangmul/emotion-tracker/internal/library"
	"github.com/wangmul/emotion-tracker/internal/middleware"
	"github.com/wangmul/emotion-tracker/internal/workflow"
	"github.com/wangmul/emotion-tracker/pkg/api"
)

const maxBodyBytes = 1 << 20

// Pinger is the bounded read behind the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services the handlers call.
type Dependencies struct {
	Workflow *workflow.Service
	History  *history.Reader
	Library  *library.Service
	Gate     *auth.Gate
	// Provider is nil when no identity service is configured; the sign-in
	// endpoints then answer 503.
	Provider     auth.Provider
	Health       Pinger
	Logger       *zap.Logger
	CookieSecure bool
}

// Handler serves every API route.
type Handler struct {
	workflow     *workflow.Service
	history      *history.Reader
	library      *library.Service
	gate         *auth.Gate
	provider     auth.Provider
	health       Pinger
	validator    *validation.Validator
	logger       *zap.Logger
	cookieSecure bool
}

func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		workflow:     deps.Workflow,
		history:      deps.History,
		library:      deps.Library,
		gate:         deps.Gate,
		provider:     deps.Provider,
		health:       deps.Health,
		validator:    validation.GetValidator(),
		logger:       logger,
		cookieSecure: deps.CookieSecure,
	}
}

// draftSession returns the browser-session id, issuing one when absent. The
// cookie has no Expires so it ends with the browser session.
func (h *Handler) draftSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(draft.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := draft.NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     draft.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// owner applies the sign-in policy and writes the 401 itself on failure.
func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (entry.Owner, bool) {
	owner, err := h.gate.Owner(r)
	if err != nil {
		h.writeError(w, r, err)
		return entry.Owner{}, false
	}
	return owner, true
}

// decode reads a JSON body into dst and validates its tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var fieldErr *apperrors.UnifiedError
		if errors.As(err, &fieldErr) {
			h.writeError(w, r, fieldErr)
			return false
		}
		h.writeError(w, r, apperrors.Validation("body", "request body must be valid JSON"))
		return false
	}
	if err := h.validator.Validate(dst); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

// writeError maps an error onto the response contract: a missing draft
// redirects to step one, AUTH_REQUIRED sends only the sign-in location,
// validation lists fields, and store failures pass the store's message
// through with 502.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.RequestIDOf(r)

	if errors.Is(err, workflow.ErrNoDraft) {
		w.Header().Set("Location", dto.StepOnePath)
		api.Fail(w, http.StatusSeeOther, api.ErrorResponse{
			Error:     err.Error(),
			Code:      "NO_DRAFT",
			Redirect:  dto.StepOnePath,
			RequestID: requestID,
		})
		return
	}

	ue, ok := apperrors.As(err)
	if !ok {
		h.logger.Error("Unhandled error",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		api.Fail(w, http.StatusInternalServerError, api.ErrorResponse{
			Error:     "Internal server error",
			RequestID: requestID,
		})
		return
	}

	status := apperrors.HTTPStatus(ue)
	body := api.ErrorResponse{Error: ue.Message, Code: ue.Code, RequestID: requestID}

	switch ue.Type {
	case apperrors.ErrorTypeAuthRequired:
		w.Header().Set("Location", auth.SignInPath)
		api.Fail(w, status, api.ErrorResponse{Redirect: auth.SignInPath})
		return
	case apperrors.ErrorTypeValidation:
		body.Fields = make(map[string]string, len(ue.Fields))
		for _, f := range ue.Fields {
			body.Fields[f.Field] = f.Message
		}
	case apperrors.ErrorTypeRepository:
		h.logger.Warn("Store call failed",
			zap.String("request_id", requestID),
			zap.String("operation", ue.Operation),
			zap.String("message", ue.Message),
		)
	default:
		if status >= http.StatusInternalServerError {
			h.logger.Error("Request failed",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
		}
	}
	api.Fail(w, status, body)
}
