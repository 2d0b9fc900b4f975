package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/interfaces/http/dto"
	"github.com/wangmul/emotion-tracker/internal/library"
	"github.com/wangmul/emotion-tracker/internal/middleware"
	"github.com/wangmul/emotion-tracker/pkg/api"
)

// ListSoothing handles GET /soothing.
func (h *Handler) ListSoothing(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	lib, err := h.library.List(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, lib)
}

// AddSoothing handles POST /soothing.
func (h *Handler) AddSoothing(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var in dto.AddMethodRequest
	if !h.decode(w, r, &in) {
		return
	}
	m, err := h.library.Add(r.Context(), owner, in.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, m)
}

// DeleteSoothing handles DELETE /soothing/{id}. Failures other than sign-in
// and bad ids carry the library's failure message.
func (h *Handler) DeleteSoothing(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	err := h.library.Delete(r.Context(), owner, chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case apperrors.IsValidation(err), apperrors.IsAuthRequired(err):
		h.writeError(w, r, err)
	default:
		api.Fail(w, apperrors.HTTPStatus(err), api.ErrorResponse{
			Error:     library.FailureMessage(err),
			RequestID: middleware.RequestIDOf(r),
		})
	}
}
