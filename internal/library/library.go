// Package library serves the self-soothing library: standalone methods
// merged with the notes stored on daily entries.
package library

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/repository"
)

const (
	EmptyMessage        = "아직 저장된 항목이 없습니다."
	DeleteFailedMessage = "삭제에 실패했습니다."
)

// Library is the merged list shown to the user.
type Library struct {
	Items        []soothing.Item `json:"items"`
	EmptyMessage string          `json:"emptyMessage,omitempty"`
	// Partial is set when one of the two reads failed and was skipped.
	Partial bool `json:"partial"`
}

// Service reads and edits the library.
type Service struct {
	entries repository.EntryRepository
	methods repository.SoothingRepository
	limit   int
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(entries repository.EntryRepository, methods repository.SoothingRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		entries: entries,
		methods: methods,
		limit:   repository.DefaultLibraryLimit,
		logger:  logger,
		now:     time.Now,
	}
}

// List reads standalone methods and entry notes concurrently and merges
// them. A failed read contributes nothing.
func (s *Service) List(ctx context.Context, owner entry.Owner) (*Library, error) {
	var (
		methods              []soothing.Method
		notes                []entry.DailyEntry
		methodsErr, notesErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		methods, methodsErr = s.methods.List(ctx, owner, s.limit)
		return nil
	})
	g.Go(func() error {
		notes, notesErr = s.entries.ListNotes(ctx, owner, s.limit)
		return nil
	})
	_ = g.Wait()

	if methodsErr != nil {
		s.logger.Warn("Library methods read failed", zap.Error(methodsErr))
		methods = nil
	}
	if notesErr != nil {
		s.logger.Warn("Library notes read failed", zap.Error(notesErr))
		notes = nil
	}

	out := &Library{
		Items:   soothing.Merge(methods, notes),
		Partial: methodsErr != nil || notesErr != nil,
	}
	if len(out.Items) == 0 {
		out.EmptyMessage = EmptyMessage
	}
	return out, nil
}

// Add stores a standalone method.
func (s *Service) Add(ctx context.Context, owner entry.Owner, content string) (*soothing.Method, error) {
	text, err := entry.ParseNote(content)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, apperrors.Validation("content", "must not be empty")
	}
	return s.methods.Add(ctx, soothing.Method{Owner: owner, Content: text, CreatedAt: s.now()})
}

// Delete removes one library item. An entry-note id clears the note on
// that day's entry; any other id deletes a standalone method.
func (s *Service) Delete(ctx context.Context, owner entry.Owner, id string) error {
	date, isNote, err := soothing.ParseItemID(id)
	if err != nil {
		return err
	}
	if isNote {
		_, err := s.entries.Update(ctx, owner, date, entry.NotePatch(""))
		return err
	}
	return s.methods.Delete(ctx, owner, id)
}

// FailureMessage is the text shown when a delete fails.
func FailureMessage(err error) string {
	if ue, ok := apperrors.As(err); ok && ue.Message != "" {
		return ue.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return DeleteFailedMessage
}
