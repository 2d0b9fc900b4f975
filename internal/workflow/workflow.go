// Package workflow runs the three-step record flow: counters and flags,
// task lists, then the self-soothing note. The draft collected by step 1
// and the current stage travel together in a draft.Checkpoint.
//
// Stages: Step1Collecting → Step2Collecting → SubmittingStep2 →
// Step3Collecting → SubmittingStep3 → Done, with Failed reachable from
// either submitting stage. Checkpoints are saved after step 1, after a
// successful step 2 and on failures, and cleared on Done. A user may
// navigate back and resubmit any step while a draft exists.
//
// Each submission is a sequence of independent store calls. A failure
// surfaces the store's message and undoes nothing already written.
package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
	"github.com/wangmul/emotion-tracker/internal/draft"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/events"
	"github.com/wangmul/emotion-tracker/internal/repository"
)

// ErrNoDraft means the session has no step-1 draft; the caller should send
// the user back to step 1. No store call has been made.
var ErrNoDraft = errors.New("no step-1 draft in session")

// Recorder receives workflow metrics.
type Recorder interface {
	RecordTransition(from, to string)
	RecordEntrySaved(step, path string)
	RecordDraftOperation(operation, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string)     {}
func (nopRecorder) RecordEntrySaved(string, string)     {}
func (nopRecorder) RecordDraftOperation(string, string) {}

// Service is the record workflow.
type Service struct {
	entries   repository.EntryRepository
	methods   repository.SoothingRepository
	drafts    draft.Store
	publisher events.Publisher
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the workflow. publisher, recorder and logger may be nil.
func NewService(
	entries repository.EntryRepository,
	methods repository.SoothingRepository,
	drafts draft.Store,
	publisher events.Publisher,
	recorder Recorder,
	logger *zap.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NoOpPublisher{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		entries:   entries,
		methods:   methods,
		drafts:    drafts,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the source of "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) today() entry.Date {
	return entry.Today(s.now)
}

func (s *Service) transition(from, to draft.Stage) {
	if from == "" {
		from = draft.StageStep1Collecting
	}
	s.recorder.RecordTransition(string(from), string(to))
	s.logger.Debug("Record workflow transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (s *Service) load(ctx context.Context, sessionID string) (draft.Checkpoint, bool, error) {
	cp, ok, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		s.recorder.RecordDraftOperation("load", "error")
		return draft.Checkpoint{}, false, apperrors.Internal("failed to load draft", err)
	}
	if !ok {
		s.recorder.RecordDraftOperation("load", "miss")
		return draft.Checkpoint{}, false, nil
	}
	s.recorder.RecordDraftOperation("load", "hit")
	return cp, true, nil
}

func (s *Service) save(ctx context.Context, sessionID string, cp draft.Checkpoint) error {
	if err := s.drafts.Save(ctx, sessionID, cp); err != nil {
		s.recorder.RecordDraftOperation("save", "error")
		return apperrors.Internal("failed to save draft", err)
	}
	s.recorder.RecordDraftOperation("save", "ok")
	return nil
}

// requireDraft is the guard in front of steps 2 and 3.
func (s *Service) requireDraft(ctx context.Context, sessionID string) (draft.Checkpoint, error) {
	cp, ok, err := s.load(ctx, sessionID)
	if err != nil {
		return draft.Checkpoint{}, err
	}
	if !ok {
		return draft.Checkpoint{}, ErrNoDraft
	}
	return cp, nil
}

// fail records a failed submission on the checkpoint and returns cause.
func (s *Service) fail(ctx context.Context, sessionID string, cp draft.Checkpoint, step int, cause error) error {
	s.transition(cp.Stage, draft.StageFailed)
	cp.Stage = draft.StageFailed
	cp.FailedStep = step
	cp.Failure = failureMessage(cause)
	if err := s.save(ctx, sessionID, cp); err != nil {
		s.logger.Warn("Failed to persist failed checkpoint", zap.Error(err))
	}
	s.logger.Warn("Record submission failed",
		zap.Int("step", step),
		zap.String("date", cp.Draft.Date.String()),
		zap.Error(cause),
	)
	return cause
}

func failureMessage(err error) string {
	if ue, ok := apperrors.As(err); ok {
		return ue.Message
	}
	return err.Error()
}

// Abandon discards the session's draft.
func (s *Service) Abandon(ctx context.Context, sessionID string) error {
	if err := s.drafts.Clear(ctx, sessionID); err != nil {
		s.recorder.RecordDraftOperation("clear", "error")
		return apperrors.Internal("failed to clear draft", err)
	}
	s.recorder.RecordDraftOperation("clear", "ok")
	return nil
}

// upsert writes p for (owner, date). Stores with a real key do it in one
// statement. Otherwise the row is looked up and updated or inserted; two
// concurrent callers can both miss the lookup and insert twice when the
// store does not enforce uniqueness (anonymous rows on Supabase). An
// insert that hits a uniqueness conflict is retried once as an update.
// seed supplies the fields of a newly inserted row that p does not set.
func (s *Service) upsert(ctx context.Context, owner entry.Owner, date entry.Date, p, seed entry.Patch) (*entry.DailyEntry, string, error) {
	if u, ok := s.entries.(repository.AtomicUpserter); ok {
		saved, err := u.Upsert(ctx, owner, date, p, seed)
		if !errors.Is(err, repository.ErrAtomicUpsertUnsupported) {
			return saved, "atomic", err
		}
	}

	existing, err := s.entries.FindByDate(ctx, owner, date)
	if err != nil {
		return nil, "lookup", err
	}
	if existing != nil {
		saved, err := s.entries.UpdateByID(ctx, existing.ID, p)
		return saved, "update", err
	}

	saved, err := s.entries.Insert(ctx, entry.New(owner, date, seed.Merge(p)))
	if apperrors.IsConflict(err) {
		saved, err = s.entries.Update(ctx, owner, date, p)
		return saved, "update", err
	}
	return saved, "insert", err
}

// Completion is the result of a finished record flow.
type Completion struct {
	Entry    *entry.DailyEntry `json:"entry"`
	Redirect string            `json:"redirect"`
}

func historyPath(date entry.Date) string {
	return "/history/" + date.String()
}

// newMethod is a library row for a step-3 note.
func newMethod(owner entry.Owner, note string) soothing.Method {
	return soothing.Method{Owner: owner, Content: note}
}
