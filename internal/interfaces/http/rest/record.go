package rest

import (
	"net/http"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/interfaces/http/dto"
	"github.com/wangmul/emotion-tracker/pkg/api"
)

// GetStepOne handles GET /record/step-1?date=YYYY-MM-DD.
func (h *Handler) GetStepOne(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var date *entry.Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := entry.ParseDate(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		date = &d
	}

	view, err := h.workflow.PrepareStepOne(r.Context(), h.draftSession(w, r), owner, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, view)
}

// SubmitStepOne handles POST /record/step-1.
func (h *Handler) SubmitStepOne(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.owner(w, r); !ok {
		return
	}
	var in entry.StepOneInput
	if !h.decode(w, r, &in) {
		return
	}

	saved, err := h.workflow.SubmitStepOne(r.Context(), h.draftSession(w, r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, dto.StepOneSubmitted{Draft: saved, Next: dto.StepTwoPath})
}

// GetStepTwo handles GET /record/step-2.
func (h *Handler) GetStepTwo(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.owner(w, r); !ok {
		return
	}
	cp, err := h.workflow.StepTwo(r.Context(), h.draftSession(w, r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, dto.StepTwoView{Draft: cp.Draft, Stage: cp.Stage})
}

// SubmitStepTwo handles POST /record/step-2.
func (h *Handler) SubmitStepTwo(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var in entry.StepTwoInput
	if !h.decode(w, r, &in) {
		return
	}

	saved, err := h.workflow.SubmitStepTwo(r.Context(), h.draftSession(w, r), owner, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, dto.StepTwoSubmitted{Entry: saved, Next: dto.StepThreePath})
}

// GetStepThree handles GET /record/step-3.
func (h *Handler) GetStepThree(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	view, err := h.workflow.PrepareStepThree(r.Context(), h.draftSession(w, r), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, dto.NewStepThreeView(view))
}

// SubmitStepThree handles POST /record/step-3.
func (h *Handler) SubmitStepThree(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var in dto.StepThreeRequest
	if !h.decode(w, r, &in) {
		return
	}

	done, err := h.workflow.SubmitStepThree(r.Context(), h.draftSession(w, r), owner, in.SelfSoothingMethods)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, done)
}

// AbandonRecord handles DELETE /record.
func (h *Handler) AbandonRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.workflow.Abandon(r.Context(), h.draftSession(w, r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
