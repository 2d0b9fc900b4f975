// Package dto holds the JSON request and response bodies of the HTTP API.
// Step one and step two bodies are the domain input types themselves.
package dto

import (
	"time"

	"github.com/wangmul/emotion-tracker/internal/auth"
	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/draft"
	"github.com/wangmul/emotion-tracker/internal/workflow"
)

// Next-step locations returned to the front end.
const (
	StepOnePath   = "/record/step-1"
	StepTwoPath   = "/record/step-2"
	StepThreePath = "/record/step-3"
)

// StepThreeRequest is the third-screen form. Length is checked in runes by
// the workflow, not here.
type StepThreeRequest struct {
	SelfSoothingMethods string `json:"selfSoothingMethods"`
}

// AddMethodRequest adds a standalone library item.
type AddMethodRequest struct {
	Content string `json:"content" validate:"required,notblank"`
}

// CredentialsRequest is used by password sign-in and sign-up.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,notblank,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// MagicLinkRequest asks for a one-time sign-in link.
type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,notblank,email"`
}

// StepOneSubmitted acknowledges a stored draft.
type StepOneSubmitted struct {
	Draft entry.StepOneDraft `json:"draft"`
	Next  string             `json:"next"`
}

// StepTwoView is what the second screen renders.
type StepTwoView struct {
	Draft entry.StepOneDraft `json:"draft"`
	Stage draft.Stage        `json:"stage"`
}

// StepTwoSubmitted returns the saved entry.
type StepTwoSubmitted struct {
	Entry *entry.DailyEntry `json:"entry"`
	Next  string            `json:"next"`
}

// StepThreeView carries the prefilled note. PrefillFailed means the lookup
// failed and the field starts empty.
type StepThreeView struct {
	Draft               entry.StepOneDraft `json:"draft"`
	SelfSoothingMethods string             `json:"selfSoothingMethods"`
	PrefillFailed       bool               `json:"prefillFailed"`
}

// NewStepThreeView flattens the workflow view.
func NewStepThreeView(v workflow.StepThreeView) StepThreeView {
	return StepThreeView{
		Draft:               v.Draft,
		SelfSoothingMethods: v.Prefill.Note,
		PrefillFailed:       !v.Prefill.OK(),
	}
}

// SessionResponse describes the caller's sign-in state.
type SessionResponse struct {
	Authenticated  bool       `json:"authenticated"`
	UserID         string     `json:"userId,omitempty"`
	Email          string     `json:"email,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	AllowAnonymous bool       `json:"allowAnonymous"`
}

// NewSessionResponse builds the response for a resolved session, if any.
func NewSessionResponse(s *auth.Session, allowAnonymous bool) SessionResponse {
	resp := SessionResponse{AllowAnonymous: allowAnonymous}
	if s == nil {
		return resp
	}
	resp.Authenticated = true
	resp.UserID = s.UserID
	resp.Email = s.Email
	if !s.ExpiresAt.IsZero() {
		at := s.ExpiresAt
		resp.ExpiresAt = &at
	}
	return resp
}

// SignUpResponse reports whether a confirmation email is pending.
type SignUpResponse struct {
	ConfirmationPending bool             `json:"confirmationPending"`
	Message             string           `json:"message,omitempty"`
	Session             *SessionResponse `json:"session,omitempty"`
}

// HealthResponse is the body of /api/health.
type HealthResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
