// Package memory provides in-process implementations of the repository
// contracts. They back local development and tests, and support injected
// failures per method.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/repository"
)

// EntryStore keeps entries in a map. Like the hosted store it mirrors, its
// uniqueness check covers only rows with an owner: two anonymous rows for the
// same date can coexist, so it does not implement repository.AtomicUpserter.
type EntryStore struct {
	mu     sync.RWMutex
	rows   map[string]*entry.DailyEntry
	now    func() time.Time
	failOn map[string]error
}

// NewEntryStore creates an empty store.
func NewEntryStore() *EntryStore {
	return &EntryStore{
		rows:   make(map[string]*entry.DailyEntry),
		now:    time.Now,
		failOn: make(map[string]error),
	}
}

// WithClock overrides the timestamp source.
func (s *EntryStore) WithClock(now func() time.Time) *EntryStore {
	s.now = now
	return s
}

// SetError makes method fail with err until cleared.
func (s *EntryStore) SetError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[method] = err
}

// ClearErrors removes all configured errors.
func (s *EntryStore) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = make(map[string]error)
}

func (s *EntryStore) fail(method string) error {
	if err, ok := s.failOn[method]; ok {
		return apperrors.Repository(method, err)
	}
	return nil
}

// All returns a copy of every row, for assertions.
func (s *EntryStore) All() []entry.DailyEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entry.DailyEntry, 0, len(s.rows))
	for _, e := range s.rows {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *EntryStore) FindByDate(ctx context.Context, owner entry.Owner, date entry.Date) (*entry.DailyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("FindByDate"); err != nil {
		return nil, err
	}
	if e := s.find(owner, date); e != nil {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

// find returns the first matching row in creation order.
func (s *EntryStore) find(owner entry.Owner, date entry.Date) *entry.DailyEntry {
	var match *entry.DailyEntry
	for _, e := range s.rows {
		if e.Owner != owner || !e.Date.Equal(date) {
			continue
		}
		if match == nil || e.CreatedAt.Before(match.CreatedAt) {
			match = e
		}
	}
	return match
}

func (s *EntryStore) Insert(ctx context.Context, e entry.DailyEntry) (*entry.DailyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Insert"); err != nil {
		return nil, err
	}
	if !e.Owner.IsAnonymous() && s.find(e.Owner, e.Date) != nil {
		return nil, apperrors.Conflict("daily_entry",
			"duplicate key value violates unique constraint \"daily_entries_user_id_entry_date_key\"")
	}
	now := s.now()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	stored := e
	s.rows[e.ID] = &stored
	return &e, nil
}

func (s *EntryStore) Update(ctx context.Context, owner entry.Owner, date entry.Date, p entry.Patch) (*entry.DailyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Update"); err != nil {
		return nil, err
	}
	e := s.find(owner, date)
	if e == nil {
		return nil, apperrors.NotFound("daily_entry", date.String())
	}
	p.ApplyTo(e)
	e.UpdatedAt = s.now()
	cp := *e
	return &cp, nil
}

func (s *EntryStore) UpdateByID(ctx context.Context, id string, p entry.Patch) (*entry.DailyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateByID"); err != nil {
		return nil, err
	}
	e, ok := s.rows[id]
	if !ok {
		return nil, apperrors.NotFound("daily_entry", id)
	}
	p.ApplyTo(e)
	e.UpdatedAt = s.now()
	cp := *e
	return &cp, nil
}

func (s *EntryStore) ListRecent(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListRecent"); err != nil {
		return nil, err
	}
	rows := s.owned(owner, false)
	sort.Slice(rows, func(i, j int) bool { return rows[j].Date.Before(rows[i].Date) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *EntryStore) ListNotes(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListNotes"); err != nil {
		return nil, err
	}
	rows := s.owned(owner, true)
	sort.Slice(rows, func(i, j int) bool { return rows[j].Date.Before(rows[i].Date) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *EntryStore) owned(owner entry.Owner, withNotes bool) []entry.DailyEntry {
	out := make([]entry.DailyEntry, 0)
	for _, e := range s.rows {
		if e.Owner != owner {
			continue
		}
		if withNotes && e.SelfSoothingMethods == "" {
			continue
		}
		out = append(out, *e)
	}
	return out
}

func (s *EntryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fail("Ping")
}

// SoothingStore keeps standalone methods in a slice.
type SoothingStore struct {
	mu      sync.RWMutex
	methods []soothing.Method
	now     func() time.Time
	failOn  map[string]error
}

// NewSoothingStore creates an empty store.
func NewSoothingStore() *SoothingStore {
	return &SoothingStore{now: time.Now, failOn: make(map[string]error)}
}

// WithClock overrides the timestamp source.
func (s *SoothingStore) WithClock(now func() time.Time) *SoothingStore {
	s.now = now
	return s
}

// SetError makes method fail with err until cleared.
func (s *SoothingStore) SetError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[method] = err
}

func (s *SoothingStore) fail(method string) error {
	if err, ok := s.failOn[method]; ok {
		return apperrors.Repository(method, err)
	}
	return nil
}

func (s *SoothingStore) Add(ctx context.Context, m soothing.Method) (*soothing.Method, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Add"); err != nil {
		return nil, err
	}
	m.ID = uuid.NewString()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.methods = append(s.methods, m)
	return &m, nil
}

func (s *SoothingStore) List(ctx context.Context, owner entry.Owner, limit int) ([]soothing.Method, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("List"); err != nil {
		return nil, err
	}
	out := make([]soothing.Method, 0)
	for _, m := range s.methods {
		if m.Owner == owner {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SoothingStore) Delete(ctx context.Context, owner entry.Owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Delete"); err != nil {
		return err
	}
	for i, m := range s.methods {
		if m.ID == id && m.Owner == owner {
			s.methods = append(s.methods[:i], s.methods[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("self_soothing_method", id)
}

// NewStore returns a repository.Store backed by fresh in-memory stores.
func NewStore() repository.Store {
	return repository.Store{Entries: NewEntryStore(), Soothing: NewSoothingStore()}
}

var (
	_ repository.EntryRepository    = (*EntryStore)(nil)
	_ repository.SoothingRepository = (*SoothingStore)(nil)
)
