// Package sqlstore implements the repository contracts on database/sql for
// Postgres (lib/pq) and SQLite (modernc.org/sqlite). Both schemas carry a
// non-null owner_key column with a unique (owner_key, entry_date) constraint,
// so anonymous rows are covered too and Upsert is a single statement.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/repository"
)

const entryColumns = "id, user_id, owner_key, entry_date, said_no_count, asked_help_count, chose_for_joy_count, " +
	"took_rest, did_cook, did_exercise, must_do_tasks, wanted_but_skipped_tasks, self_soothing_methods, created_at, updated_at"

// OpenPostgres connects with a lib/pq DSN.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a database file, or ":memory:". Writes are serialised on
// one connection, which also keeps an in-memory database alive.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	return db, nil
}

// NewStore wires both repositories over db.
func NewStore(db *sql.DB, d Dialect) repository.Store {
	return repository.Store{
		Entries:  NewEntryStore(db, d),
		Soothing: NewSoothingStore(db, d),
		Close:    db.Close,
	}
}

// args accumulates positional parameters in dialect syntax.
type args struct {
	d    Dialect
	vals []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.Placeholder(len(a.vals))
}

type column struct {
	name  string
	value any
}

func noteValue(note string) any {
	if note == "" {
		return nil
	}
	return note
}

func patchColumns(p entry.Patch, d Dialect) []column {
	var cols []column
	if p.SaidNoCount != nil {
		cols = append(cols, column{"said_no_count", *p.SaidNoCount})
	}
	if p.AskedHelpCount != nil {
		cols = append(cols, column{"asked_help_count", *p.AskedHelpCount})
	}
	if p.ChoseForJoyCount != nil {
		cols = append(cols, column{"chose_for_joy_count", *p.ChoseForJoyCount})
	}
	if p.TookRest != nil {
		cols = append(cols, column{"took_rest", *p.TookRest})
	}
	if p.DidCook != nil {
		cols = append(cols, column{"did_cook", *p.DidCook})
	}
	if p.DidExercise != nil {
		cols = append(cols, column{"did_exercise", *p.DidExercise})
	}
	if p.MustDoTasks != nil {
		cols = append(cols, column{"must_do_tasks", d.TasksValue(*p.MustDoTasks)})
	}
	if p.WantedButSkippedTasks != nil {
		cols = append(cols, column{"wanted_but_skipped_tasks", d.TasksValue(*p.WantedButSkippedTasks)})
	}
	if p.SelfSoothingMethods != nil {
		cols = append(cols, column{"self_soothing_methods", noteValue(*p.SelfSoothingMethods)})
	}
	return cols
}

// EntryStore implements repository.EntryRepository and AtomicUpserter.
type EntryStore struct {
	db  *sql.DB
	d   Dialect
	now func() time.Time
}

func NewEntryStore(db *sql.DB, d Dialect) *EntryStore {
	return &EntryStore{db: db, d: d, now: time.Now}
}

// WithClock overrides the timestamp source.
func (s *EntryStore) WithClock(now func() time.Time) *EntryStore {
	s.now = now
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *EntryStore) scan(row rowScanner) (*entry.DailyEntry, error) {
	var (
		e        entry.DailyEntry
		userID   sql.NullString
		ownerKey string
		date     dateScanner
		note     sql.NullString
		created  timeScanner
		updated  timeScanner
	)
	mustDo := s.d.NewTasksScanner()
	skipped := s.d.NewTasksScanner()
	err := row.Scan(&e.ID, &userID, &ownerKey, &date,
		&e.SaidNoCount, &e.AskedHelpCount, &e.ChoseForJoyCount,
		&e.TookRest, &e.DidCook, &e.DidExercise,
		mustDo, skipped, &note, &created, &updated)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		e.Owner = entry.UserOwner(userID.String)
	}
	e.Date = date.date
	e.MustDoTasks = mustDo.List()
	e.WantedButSkippedTasks = skipped.List()
	e.SelfSoothingMethods = note.String
	e.CreatedAt = created.t
	e.UpdatedAt = updated.t
	return &e, nil
}

func (s *EntryStore) FindByDate(ctx context.Context, owner entry.Owner, date entry.Date) (*entry.DailyEntry, error) {
	a := &args{d: s.d}
	q := "SELECT " + entryColumns + " FROM daily_entries WHERE owner_key = " + a.add(owner.Key()) +
		" AND entry_date = " + a.add(date.String()) + " LIMIT 1"
	e, err := s.scan(s.db.QueryRowContext(ctx, q, a.vals...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.d.Classify("FindByDate", err)
	}
	return e, nil
}

func (s *EntryStore) insertColumns(e entry.DailyEntry, now time.Time) []column {
	return []column{
		{"id", e.ID},
		{"user_id", e.Owner.Ptr()},
		{"owner_key", e.Owner.Key()},
		{"entry_date", e.Date.String()},
		{"said_no_count", e.SaidNoCount},
		{"asked_help_count", e.AskedHelpCount},
		{"chose_for_joy_count", e.ChoseForJoyCount},
		{"took_rest", e.TookRest},
		{"did_cook", e.DidCook},
		{"did_exercise", e.DidExercise},
		{"must_do_tasks", s.d.TasksValue(e.MustDoTasks)},
		{"wanted_but_skipped_tasks", s.d.TasksValue(e.WantedButSkippedTasks)},
		{"self_soothing_methods", noteValue(e.SelfSoothingMethods)},
		{"created_at", s.d.TimeValue(now)},
		{"updated_at", s.d.TimeValue(now)},
	}
}

func (s *EntryStore) insertSQL(cols []column, a *args) string {
	names := make([]string, len(cols))
	holders := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		holders[i] = a.add(c.value)
	}
	return "INSERT INTO daily_entries (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(holders, ", ") + ")"
}

func (s *EntryStore) Insert(ctx context.Context, e entry.DailyEntry) (*entry.DailyEntry, error) {
	e.ID = uuid.NewString()
	a := &args{d: s.d}
	q := s.insertSQL(s.insertColumns(e, s.now()), a) + " RETURNING " + entryColumns
	out, err := s.scan(s.db.QueryRowContext(ctx, q, a.vals...))
	if err != nil {
		return nil, s.d.Classify("Insert", err)
	}
	return out, nil
}

func (s *EntryStore) update(ctx context.Context, op string, where func(*args) string, a *args, p entry.Patch, key string) (*entry.DailyEntry, error) {
	sets := []string{"updated_at = " + a.add(s.d.TimeValue(s.now()))}
	for _, c := range patchColumns(p, s.d) {
		sets = append(sets, c.name+" = "+a.add(c.value))
	}
	q := "UPDATE daily_entries SET " + strings.Join(sets, ", ") + " WHERE " + where(a) + " RETURNING " + entryColumns
	out, err := s.scan(s.db.QueryRowContext(ctx, q, a.vals...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("daily_entry", key)
	}
	if err != nil {
		return nil, s.d.Classify(op, err)
	}
	return out, nil
}

func (s *EntryStore) Update(ctx context.Context, owner entry.Owner, date entry.Date, p entry.Patch) (*entry.DailyEntry, error) {
	a := &args{d: s.d}
	return s.update(ctx, "Update", func(a *args) string {
		return "owner_key = " + a.add(owner.Key()) + " AND entry_date = " + a.add(date.String())
	}, a, p, date.String())
}

func (s *EntryStore) UpdateByID(ctx context.Context, id string, p entry.Patch) (*entry.DailyEntry, error) {
	a := &args{d: s.d}
	return s.update(ctx, "UpdateByID", func(a *args) string {
		return "id = " + a.add(id)
	}, a, p, id)
}

// Upsert inserts seed.Merge(p) or, on a key conflict, applies only p.
func (s *EntryStore) Upsert(ctx context.Context, owner entry.Owner, date entry.Date, p, seed entry.Patch) (*entry.DailyEntry, error) {
	e := entry.New(owner, date, seed.Merge(p))
	e.ID = uuid.NewString()
	a := &args{d: s.d}
	q := s.insertSQL(s.insertColumns(e, s.now()), a)

	sets := []string{"updated_at = excluded.updated_at"}
	for _, c := range patchColumns(p, s.d) {
		sets = append(sets, c.name+" = excluded."+c.name)
	}
	q += " ON CONFLICT (owner_key, entry_date) DO UPDATE SET " + strings.Join(sets, ", ") + " RETURNING " + entryColumns

	out, err := s.scan(s.db.QueryRowContext(ctx, q, a.vals...))
	if err != nil {
		return nil, s.d.Classify("Upsert", err)
	}
	return out, nil
}

func (s *EntryStore) query(ctx context.Context, op, q string, vals []any) ([]entry.DailyEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, vals...)
	if err != nil {
		return nil, s.d.Classify(op, err)
	}
	defer rows.Close()

	out := make([]entry.DailyEntry, 0)
	for rows.Next() {
		e, err := s.scan(rows)
		if err != nil {
			return nil, s.d.Classify(op, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.d.Classify(op, err)
	}
	return out, nil
}

func (s *EntryStore) ListRecent(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error) {
	a := &args{d: s.d}
	q := "SELECT " + entryColumns + " FROM (SELECT " + entryColumns + " FROM daily_entries WHERE owner_key = " +
		a.add(owner.Key()) + " ORDER BY entry_date DESC LIMIT " + a.add(limit) + ") AS recent ORDER BY entry_date ASC"
	return s.query(ctx, "ListRecent", q, a.vals)
}

func (s *EntryStore) ListNotes(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error) {
	a := &args{d: s.d}
	q := "SELECT " + entryColumns + " FROM daily_entries WHERE owner_key = " + a.add(owner.Key()) +
		" AND self_soothing_methods IS NOT NULL AND self_soothing_methods <> '' ORDER BY entry_date DESC LIMIT " + a.add(limit)
	return s.query(ctx, "ListNotes", q, a.vals)
}

func (s *EntryStore) Ping(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM daily_entries LIMIT 1")
	if err != nil {
		return s.d.Classify("Ping", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return s.d.Classify("Ping", err)
	}
	return nil
}

// SoothingStore implements repository.SoothingRepository.
type SoothingStore struct {
	db  *sql.DB
	d   Dialect
	now func() time.Time
}

func NewSoothingStore(db *sql.DB, d Dialect) *SoothingStore {
	return &SoothingStore{db: db, d: d, now: time.Now}
}

func (s *SoothingStore) Add(ctx context.Context, m soothing.Method) (*soothing.Method, error) {
	m.ID = uuid.NewString()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	a := &args{d: s.d}
	q := "INSERT INTO self_soothing_methods (id, user_id, owner_key, content, created_at) VALUES (" +
		a.add(m.ID) + ", " + a.add(m.Owner.Ptr()) + ", " + a.add(m.Owner.Key()) + ", " +
		a.add(m.Content) + ", " + a.add(s.d.TimeValue(m.CreatedAt)) + ")"
	if _, err := s.db.ExecContext(ctx, q, a.vals...); err != nil {
		return nil, s.d.Classify("Add", err)
	}
	return &m, nil
}

func (s *SoothingStore) List(ctx context.Context, owner entry.Owner, limit int) ([]soothing.Method, error) {
	a := &args{d: s.d}
	q := "SELECT id, user_id, content, created_at FROM self_soothing_methods WHERE owner_key = " +
		a.add(owner.Key()) + " ORDER BY created_at DESC LIMIT " + a.add(limit)
	rows, err := s.db.QueryContext(ctx, q, a.vals...)
	if err != nil {
		return nil, s.d.Classify("List", err)
	}
	defer rows.Close()

	out := make([]soothing.Method, 0)
	for rows.Next() {
		var (
			m       soothing.Method
			userID  sql.NullString
			created timeScanner
		)
		if err := rows.Scan(&m.ID, &userID, &m.Content, &created); err != nil {
			return nil, s.d.Classify("List", err)
		}
		if userID.Valid {
			m.Owner = entry.UserOwner(userID.String)
		}
		m.CreatedAt = created.t
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.d.Classify("List", err)
	}
	return out, nil
}

func (s *SoothingStore) Delete(ctx context.Context, owner entry.Owner, id string) error {
	a := &args{d: s.d}
	q := "DELETE FROM self_soothing_methods WHERE id = " + a.add(id) + " AND owner_key = " + a.add(owner.Key())
	res, err := s.db.ExecContext(ctx, q, a.vals...)
	if err != nil {
		return s.d.Classify("Delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.d.Classify("Delete", err)
	}
	if n == 0 {
		return apperrors.NotFound("self_soothing_method", id)
	}
	return nil
}

var (
	_ repository.EntryRepository    = (*EntryStore)(nil)
	_ repository.AtomicUpserter     = (*EntryStore)(nil)
	_ repository.SoothingRepository = (*SoothingStore)(nil)
)
