package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/migration"
)

func setupStore(t *testing.T) (*EntryStore, *SoothingStore) {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runner, err := migration.NewRunner(db, migration.SQLite, nil)
	require.NoError(t, err)
	_, err = runner.Apply(context.Background())
	require.NoError(t, err)

	clock := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	entries := NewEntryStore(db, SQLite{}).WithClock(now)
	methods := NewSoothingStore(db, SQLite{})
	methods.now = now
	return entries, methods
}

func intPtr(v int) *int { return &v }

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	date := entry.MustParseDate("2025-01-02")
	owner := entry.UserOwner("user-1")

	e := entry.New(owner, date, entry.Patch{SaidNoCount: intPtr(2)})
	e.MustDoTasks = entry.NewTaskList("laundry", "", "call mom")
	created, err := s.Insert(ctx, e)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 2, created.SaidNoCount)
	assert.Equal(t, "2025-01-02", created.Date.String())
	assert.Equal(t, entry.TaskList{"laundry", "", "call mom"}, created.MustDoTasks)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := s.FindByDate(ctx, owner, date)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, owner, found.Owner)

	missing, err := s.FindByDate(ctx, entry.Anonymous(), date)
	require.NoError(t, err)
	assert.Nil(t, missing, "anonymous lookups never match owned rows")

	_, err = s.Insert(ctx, entry.New(owner, date, entry.Patch{}))
	assert.True(t, apperrors.IsConflict(err))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	date := entry.MustParseDate("2025-01-02")

	_, err := s.Update(ctx, entry.Anonymous(), date, entry.NotePatch("tea"))
	assert.True(t, apperrors.IsNotFound(err))

	created, err := s.Insert(ctx, entry.New(entry.Anonymous(), date, entry.Patch{AskedHelpCount: intPtr(1)}))
	require.NoError(t, err)

	updated, err := s.Update(ctx, entry.Anonymous(), date, entry.NotePatch("tea"))
	require.NoError(t, err)
	assert.Equal(t, "tea", updated.SelfSoothingMethods)
	assert.Equal(t, 1, updated.AskedHelpCount)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	cleared, err := s.UpdateByID(ctx, created.ID, entry.NotePatch(""))
	require.NoError(t, err)
	assert.Empty(t, cleared.SelfSoothingMethods)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	date := entry.MustParseDate("2025-01-02")
	owner := entry.Anonymous()

	seed := entry.Patch{SaidNoCount: intPtr(3)}
	first, err := s.Upsert(ctx, owner, date, entry.NotePatch("walk"), seed)
	require.NoError(t, err)
	assert.Equal(t, 3, first.SaidNoCount)
	assert.Equal(t, "walk", first.SelfSoothingMethods)

	second, err := s.Upsert(ctx, owner, date, entry.NotePatch("bath"), entry.Patch{SaidNoCount: intPtr(9)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.SaidNoCount, "seed is ignored when the row exists")
	assert.Equal(t, "bath", second.SelfSoothingMethods)
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)
	owner := entry.UserOwner("user-1")
	start := entry.MustParseDate("2025-01-01")
	for i := 0; i < 5; i++ {
		p := entry.Patch{}
		if i%2 == 0 {
			p = entry.NotePatch("note")
		}
		_, err := s.Insert(ctx, entry.New(owner, start.AddDays(i), p))
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, entry.New(entry.Anonymous(), start, entry.NotePatch("other")))
	require.NoError(t, err)

	recent, err := s.ListRecent(ctx, owner, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "2025-01-03", recent[0].Date.String())
	assert.Equal(t, "2025-01-05", recent[2].Date.String())

	notes, err := s.ListNotes(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "2025-01-05", notes[0].Date.String())
	assert.Equal(t, "2025-01-01", notes[2].Date.String())

	require.NoError(t, s.Ping(ctx))
}

func TestSoothingStore(t *testing.T) {
	ctx := context.Background()
	_, s := setupStore(t)
	owner := entry.UserOwner("user-1")

	first, err := s.Add(ctx, soothing.Method{Owner: owner, Content: "breathing"})
	require.NoError(t, err)
	_, err = s.Add(ctx, soothing.Method{Owner: owner, Content: "music"})
	require.NoError(t, err)
	_, err = s.Add(ctx, soothing.Method{Owner: entry.Anonymous(), Content: "walk"})
	require.NoError(t, err)

	list, err := s.List(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "music", list[0].Content)

	assert.True(t, apperrors.IsNotFound(s.Delete(ctx, entry.Anonymous(), first.ID)))
	require.NoError(t, s.Delete(ctx, owner, first.ID))

	list, err = s.List(ctx, owner, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPlaceholders(t *testing.T) {
	a := &args{d: Postgres{}}
	assert.Equal(t, "$1", a.add("x"))
	assert.Equal(t, "$2", a.add(2))
	b := &args{d: SQLite{}}
	assert.Equal(t, "?", b.add("x"))
}
