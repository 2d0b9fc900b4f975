package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wangmul/emotion-tracker/pkg/api"
)

// GetHistory handles GET /history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	overview, err := h.history.Overview(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, overview)
}

// GetHistoryDay handles GET /history/{date}. An unparsable date shows today.
func (h *Handler) GetHistoryDay(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	day, err := h.history.Day(r.Context(), owner, chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, day)
}
