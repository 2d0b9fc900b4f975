// Package draft is the ephemeral step cache: the step-1 draft and the
// workflow stage, keyed by a browser-session id and expiring after an idle TTL.
package draft

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
)

// CookieName carries the session id. It is set without Expires so it lives
// only as long as the browser session.
const CookieName = "draft_sid"

// DefaultTTL is how long an idle checkpoint survives.
const DefaultTTL = 2 * time.Hour

// Stage is the record workflow state persisted with the draft.
type Stage string

const (
	StageStep1Collecting Stage = "step1_collecting"
	StageStep2Collecting Stage = "step2_collecting"
	StageSubmittingStep2 Stage = "submitting_step2"
	StageStep3Collecting Stage = "step3_collecting"
	StageSubmittingStep3 Stage = "submitting_step3"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

// Checkpoint is what the cache holds for one session.
type Checkpoint struct {
	Stage Stage              `json:"stage"`
	Draft entry.StepOneDraft `json:"draft"`
	// FailedStep and Failure describe the last failed submission.
	FailedStep int       `json:"failedStep,omitempty"`
	Failure    string    `json:"failure,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store persists checkpoints. Save overwrites; Clear on a missing key is a
// no-op; Load reports false for a missing or expired key.
type Store interface {
	Save(ctx context.Context, sessionID string, cp Checkpoint) error
	Load(ctx context.Context, sessionID string) (Checkpoint, bool, error)
	Clear(ctx context.Context, sessionID string) error
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}
