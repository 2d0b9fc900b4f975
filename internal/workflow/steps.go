package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/draft"
	"github.com/wangmul/emotion-tracker/internal/events"
)

// StepOneView is what the first screen renders.
type StepOneView struct {
	Draft entry.StepOneDraft `json:"draft"`
	Stage draft.Stage        `json:"stage"`
	// Stored is true when the counters came from an existing entry.
	Stored bool `json:"stored"`
}

// PrepareStepOne loads the draft for the chosen date. A nil date means the
// cached draft's date, or today. A cached draft for the same date is
// returned unchanged. Otherwise counters and flags come from the stored
// entry for that date, or reset to defaults, and the draft is saved. A
// failed lookup is logged and the screen falls back to the cached or
// default values.
func (s *Service) PrepareStepOne(ctx context.Context, sessionID string, owner entry.Owner, date *entry.Date) (StepOneView, error) {
	cp, cached, err := s.load(ctx, sessionID)
	if err != nil {
		return StepOneView{}, err
	}

	chosen := s.today()
	switch {
	case date != nil:
		chosen = *date
	case cached && !cp.Draft.Date.IsZero():
		chosen = cp.Draft.Date
	}

	if cached && cp.Draft.Date.Equal(chosen) {
		return StepOneView{Draft: cp.Draft, Stage: cp.Stage}, nil
	}

	existing, err := s.entries.FindByDate(ctx, owner, chosen)
	if err != nil {
		s.logger.Warn("Step one lookup failed, keeping current values",
			zap.String("date", chosen.String()),
			zap.Error(err),
		)
		view := StepOneView{Draft: entry.DefaultDraft(chosen), Stage: draft.StageStep1Collecting}
		if cached {
			view.Draft = cp.Draft
			view.Draft.Date = chosen
			view.Stage = cp.Stage
		}
		return view, nil
	}

	next := draft.Checkpoint{Stage: draft.StageStep1Collecting, Draft: entry.DefaultDraft(chosen)}
	if existing != nil {
		next.Draft = entry.DraftFromEntry(*existing)
		next.Draft.Date = chosen
	}
	if err := s.save(ctx, sessionID, next); err != nil {
		return StepOneView{}, err
	}
	return StepOneView{Draft: next.Draft, Stage: next.Stage, Stored: existing != nil}, nil
}

// SubmitStepOne validates the first screen and caches it. No store call.
func (s *Service) SubmitStepOne(ctx context.Context, sessionID string, in entry.StepOneInput) (entry.StepOneDraft, error) {
	parsed, err := entry.ParseStepOne(in, s.now)
	if err != nil {
		return entry.StepOneDraft{}, err
	}

	prev, _, err := s.load(ctx, sessionID)
	if err != nil {
		return entry.StepOneDraft{}, err
	}
	if err := s.save(ctx, sessionID, draft.Checkpoint{Stage: draft.StageStep2Collecting, Draft: parsed}); err != nil {
		return entry.StepOneDraft{}, err
	}
	s.transition(prev.Stage, draft.StageStep2Collecting)
	return parsed, nil
}

// StepTwo is the guard in front of the second screen.
func (s *Service) StepTwo(ctx context.Context, sessionID string) (draft.Checkpoint, error) {
	return s.requireDraft(ctx, sessionID)
}

// SubmitStepTwo writes the draft's counters and flags plus both task lists
// for the draft's date. The draft stays cached for step 3.
func (s *Service) SubmitStepTwo(ctx context.Context, sessionID string, owner entry.Owner, in entry.StepTwoInput) (*entry.DailyEntry, error) {
	cp, err := s.requireDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.transition(cp.Stage, draft.StageSubmittingStep2)
	cp.Stage = draft.StageSubmittingStep2

	date := cp.Draft.DateOr(s.today())
	mustDo, skipped := in.Tasks()
	p := cp.Draft.Patch()
	p.MustDoTasks = &mustDo
	p.WantedButSkippedTasks = &skipped

	saved, path, err := s.upsert(ctx, owner, date, p, entry.Patch{})
	if err != nil {
		return nil, s.fail(ctx, sessionID, cp, 2, err)
	}
	s.recorder.RecordEntrySaved("2", path)

	s.transition(cp.Stage, draft.StageStep3Collecting)
	cp.Stage = draft.StageStep3Collecting
	cp.FailedStep, cp.Failure = 0, ""
	if err := s.save(ctx, sessionID, cp); err != nil {
		return nil, err
	}
	return saved, nil
}

// Prefill is the best-effort note loaded for step 3. When Err is set the
// lookup failed and the field starts empty.
type Prefill struct {
	Note string
	Err  error
}

// OK reports whether the lookup succeeded.
func (p Prefill) OK() bool { return p.Err == nil }

// StepThreeView is what the third screen renders.
type StepThreeView struct {
	Draft   entry.StepOneDraft
	Prefill Prefill
}

// PrepareStepThree guards the third screen and prefills the note already
// stored for the draft's date.
func (s *Service) PrepareStepThree(ctx context.Context, sessionID string, owner entry.Owner) (StepThreeView, error) {
	cp, err := s.requireDraft(ctx, sessionID)
	if err != nil {
		return StepThreeView{}, err
	}
	date := cp.Draft.DateOr(s.today())
	view := StepThreeView{Draft: cp.Draft}

	existing, err := s.entries.FindByDate(ctx, owner, date)
	switch {
	case err != nil:
		s.logger.Warn("Note prefill failed, starting empty",
			zap.String("date", date.String()),
			zap.Error(err),
		)
		view.Prefill = Prefill{Err: err}
	case existing != nil:
		view.Prefill = Prefill{Note: existing.SelfSoothingMethods}
	}
	return view, nil
}

// SubmitStepThree stores the note. A non-empty note is first added to the
// library; a resubmission adds it again. The entry is then upserted with
// only the note, seeded from the draft if no row exists yet. On success the
// draft is cleared and the caller is sent to the day's history page.
func (s *Service) SubmitStepThree(ctx context.Context, sessionID string, owner entry.Owner, rawNote string) (*Completion, error) {
	cp, err := s.requireDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	note, err := entry.ParseNote(rawNote)
	if err != nil {
		return nil, err
	}

	s.transition(cp.Stage, draft.StageSubmittingStep3)
	cp.Stage = draft.StageSubmittingStep3
	date := cp.Draft.DateOr(s.today())

	if note != "" {
		if _, err := s.methods.Add(ctx, newMethod(owner, note)); err != nil {
			return nil, s.fail(ctx, sessionID, cp, 3, err)
		}
	}

	saved, path, err := s.upsert(ctx, owner, date, entry.NotePatch(note), cp.Draft.Patch())
	if err != nil {
		return nil, s.fail(ctx, sessionID, cp, 3, err)
	}
	s.recorder.RecordEntrySaved("3", path)

	if err := s.Abandon(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to clear draft after completion", zap.Error(err))
	}
	s.transition(cp.Stage, draft.StageDone)

	userID, _ := owner.ID()
	event := events.NewEntryRecorded(saved.ID, userID, date.String(), note != "", s.now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish entry event",
			zap.String("entryId", saved.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Daily entry recorded",
		zap.String("entryId", saved.ID),
		zap.String("date", date.String()),
		zap.String("owner", owner.String()),
	)
	return &Completion{Entry: saved, Redirect: historyPath(date)}, nil
}
