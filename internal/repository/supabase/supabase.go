// Package supabase implements the repository contracts against a hosted
// Supabase project through its PostgREST endpoint.
//
// The hosted schema keeps unique(user_id, entry_date), which Postgres does
// not enforce for NULL user_id. Anonymous rows can therefore duplicate under
// concurrent submissions, and this store does not offer an atomic upsert.
package supabase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	supabasego "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/repository"
)

const (
	entriesTable = "daily_entries"
	methodsTable = "self_soothing_methods"

	uniqueViolation = "(23505)"
)

// Querier is satisfied by *supabase.Client.
type Querier interface {
	From(table string) *postgrest.QueryBuilder
}

// NewClient builds a Supabase client from a project URL and API key.
func NewClient(url, key string) (*supabasego.Client, error) {
	client, err := supabasego.NewClient(url, key, nil)
	if err != nil {
		return nil, apperrors.Internal("failed to create supabase client", err)
	}
	return client, nil
}

type entryRow struct {
	ID                    string    `json:"id"`
	UserID                *string   `json:"user_id"`
	EntryDate             string    `json:"entry_date"`
	SaidNoCount           int       `json:"said_no_count"`
	AskedHelpCount        int       `json:"asked_help_count"`
	ChoseForJoyCount      int       `json:"chose_for_joy_count"`
	TookRest              bool      `json:"took_rest"`
	DidCook               bool      `json:"did_cook"`
	DidExercise           bool      `json:"did_exercise"`
	MustDoTasks           []string  `json:"must_do_tasks"`
	WantedButSkippedTasks []string  `json:"wanted_but_skipped_tasks"`
	SelfSoothingMethods   *string   `json:"self_soothing_methods"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (r entryRow) toEntry() (entry.DailyEntry, error) {
	date, err := entry.ParseDate(r.EntryDate)
	if err != nil {
		return entry.DailyEntry{}, err
	}
	e := entry.DailyEntry{
		ID:                    r.ID,
		Owner:                 entry.OwnerFromPtr(r.UserID),
		Date:                  date,
		SaidNoCount:           r.SaidNoCount,
		AskedHelpCount:        r.AskedHelpCount,
		ChoseForJoyCount:      r.ChoseForJoyCount,
		TookRest:              r.TookRest,
		DidCook:               r.DidCook,
		DidExercise:           r.DidExercise,
		MustDoTasks:           entry.NewTaskList(r.MustDoTasks...),
		WantedButSkippedTasks: entry.NewTaskList(r.WantedButSkippedTasks...),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	if r.SelfSoothingMethods != nil {
		e.SelfSoothingMethods = *r.SelfSoothingMethods
	}
	return e, nil
}

func notePayload(note string) any {
	if note == "" {
		return nil
	}
	return note
}

// patchPayload maps a patch onto column names. A cleared note is sent as null.
func patchPayload(p entry.Patch) map[string]any {
	out := map[string]any{}
	if p.SaidNoCount != nil {
		out["said_no_count"] = *p.SaidNoCount
	}
	if p.AskedHelpCount != nil {
		out["asked_help_count"] = *p.AskedHelpCount
	}
	if p.ChoseForJoyCount != nil {
		out["chose_for_joy_count"] = *p.ChoseForJoyCount
	}
	if p.TookRest != nil {
		out["took_rest"] = *p.TookRest
	}
	if p.DidCook != nil {
		out["did_cook"] = *p.DidCook
	}
	if p.DidExercise != nil {
		out["did_exercise"] = *p.DidExercise
	}
	if p.MustDoTasks != nil {
		out["must_do_tasks"] = p.MustDoTasks.Slice()
	}
	if p.WantedButSkippedTasks != nil {
		out["wanted_but_skipped_tasks"] = p.WantedButSkippedTasks.Slice()
	}
	if p.SelfSoothingMethods != nil {
		out["self_soothing_methods"] = notePayload(*p.SelfSoothingMethods)
	}
	return out
}

func classify(op string, err error) error {
	if strings.HasPrefix(err.Error(), uniqueViolation) {
		return apperrors.Conflict("daily_entry", strings.TrimSpace(strings.TrimPrefix(err.Error(), uniqueViolation)))
	}
	return apperrors.Repository(op, err)
}

// byOwner narrows a query to the owner. The anonymous owner matches only rows
// whose user_id is null.
func byOwner(f *postgrest.FilterBuilder, owner entry.Owner) *postgrest.FilterBuilder {
	if id, ok := owner.ID(); ok {
		return f.Eq("user_id", id)
	}
	return f.Is("user_id", "null")
}

// EntryStore implements repository.EntryRepository over PostgREST.
type EntryStore struct {
	client Querier
	logger *zap.Logger
	now    func() time.Time
}

func NewEntryStore(client Querier, logger *zap.Logger) *EntryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntryStore{client: client, logger: logger, now: time.Now}
}

// WithClock overrides the timestamp source.
func (s *EntryStore) WithClock(now func() time.Time) *EntryStore {
	s.now = now
	return s
}

func (s *EntryStore) rows(op string, f *postgrest.FilterBuilder) ([]entry.DailyEntry, error) {
	var rows []entryRow
	if _, err := f.ExecuteTo(&rows); err != nil {
		return nil, classify(op, err)
	}
	out := make([]entry.DailyEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, apperrors.Repository(op, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *EntryStore) FindByDate(ctx context.Context, owner entry.Owner, date entry.Date) (*entry.DailyEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Repository("FindByDate", err)
	}
	f := s.client.From(entriesTable).Select("*", "", false).Eq("entry_date", date.String())
	f = byOwner(f, owner).Order("created_at", &postgrest.OrderOpts{Ascending: true}).Limit(1, "")
	rows, err := s.rows("FindByDate", f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *EntryStore) Insert(ctx context.Context, e entry.DailyEntry) (*entry.DailyEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Repository("Insert", err)
	}
	payload := patchPayload(entry.FullPatch(e))
	payload["user_id"] = e.Owner.Ptr()
	payload["entry_date"] = e.Date.String()
	payload["self_soothing_methods"] = notePayload(e.SelfSoothingMethods)

	rows, err := s.rows("Insert", s.client.From(entriesTable).Insert(payload, false, "", "representation", ""))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.Repository("Insert", errEmptyRepresentation)
	}
	s.logger.Debug("Entry inserted", zap.String("entry_id", rows[0].ID), zap.String("entry_date", e.Date.String()))
	return &rows[0], nil
}

func (s *EntryStore) update(ctx context.Context, op string, p entry.Patch, filter func(*postgrest.FilterBuilder) *postgrest.FilterBuilder, key string) (*entry.DailyEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Repository(op, err)
	}
	payload := patchPayload(p)
	payload["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)

	rows, err := s.rows(op, filter(s.client.From(entriesTable).Update(payload, "representation", "")))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NotFound("daily_entry", key)
	}
	return &rows[0], nil
}

func (s *EntryStore) Update(ctx context.Context, owner entry.Owner, date entry.Date, p entry.Patch) (*entry.DailyEntry, error) {
	return s.update(ctx, "Update", p, func(f *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return byOwner(f.Eq("entry_date", date.String()), owner)
	}, date.String())
}

func (s *EntryStore) UpdateByID(ctx context.Context, id string, p entry.Patch) (*entry.DailyEntry, error) {
	return s.update(ctx, "UpdateByID", p, func(f *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return f.Eq("id", id)
	}, id)
}

func (s *EntryStore) ListRecent(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Repository("ListRecent", err)
	}
	f := byOwner(s.client.From(entriesTable).Select("*", "", false), owner).
		Order("entry_date", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "")
	out, err := s.rows("ListRecent", f)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListNotes filters blank notes client side; PostgREST keys filters by
// column, so a second condition on the note column would replace the first.
func (s *EntryStore) ListNotes(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Repository("ListNotes", err)
	}
	f := byOwner(s.client.From(entriesTable).Select("*", "", false), owner).
		Not("self_soothing_methods", "is", "null").
		Order("entry_date", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "")
	rows, err := s.rows("ListNotes", f)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, e := range rows {
		if strings.TrimSpace(e.SelfSoothingMethods) != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *EntryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Repository("Ping", err)
	}
	var rows []json.RawMessage
	if _, err := s.client.From(entriesTable).Select("id", "", false).Limit(1, "").ExecuteTo(&rows); err != nil {
		return classify("Ping", err)
	}
	return nil
}

type methodRow struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SoothingStore implements repository.SoothingRepository over PostgREST.
type SoothingStore struct {
	client Querier
}

func NewSoothingStore(client Querier) *SoothingStore {
	return &SoothingStore{client: client}
}

func (r methodRow) toMethod() soothing.Method {
	return soothing.Method{ID: r.ID, Owner: entry.OwnerFromPtr(r.UserID), Content: r.Content, CreatedAt: r.CreatedAt}
}

func (s *SoothingStore) Add(ctx context.Context, m soothing.Method) (*soothing.Method, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Repository("Add", err)
	}
	payload := map[string]any{"user_id": m.Owner.Ptr(), "content": m.Content}
	var rows []methodRow
	if _, err := s.client.From(methodsTable).Insert(payload, false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return nil, classify("Add", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.Repository("Add", errEmptyRepresentation)
	}
	out := rows[0].toMethod()
	return &out, nil
}

func (s *SoothingStore) List(ctx context.Context, owner entry.Owner, limit int) ([]soothing.Method, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Repository("List", err)
	}
	var rows []methodRow
	f := byOwner(s.client.From(methodsTable).Select("id,user_id,content,created_at", "", false), owner).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "")
	if _, err := f.ExecuteTo(&rows); err != nil {
		return nil, classify("List", err)
	}
	out := make([]soothing.Method, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMethod())
	}
	return out, nil
}

func (s *SoothingStore) Delete(ctx context.Context, owner entry.Owner, id string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Repository("Delete", err)
	}
	var rows []methodRow
	f := byOwner(s.client.From(methodsTable).Delete("representation", "").Eq("id", id), owner)
	if _, err := f.ExecuteTo(&rows); err != nil {
		return classify("Delete", err)
	}
	if len(rows) == 0 {
		return apperrors.NotFound("self_soothing_method", id)
	}
	return nil
}

var errEmptyRepresentation = apperrors.New("empty response from store")

// NewStore wires both repositories over one client.
func NewStore(client Querier, logger *zap.Logger) repository.Store {
	return repository.Store{
		Entries:  NewEntryStore(client, logger),
		Soothing: NewSoothingStore(client),
	}
}

var (
	_ repository.EntryRepository    = (*EntryStore)(nil)
	_ repository.SoothingRepository = (*SoothingStore)(nil)
	_ Querier                       = (*supabasego.Client)(nil)
)
