package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/repository/memory"
)

func clock() time.Time { return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC) }

func seed(t *testing.T, s *memory.EntryStore, owner entry.Owner, date string, saidNo int) {
	t.Helper()
	_, err := s.Insert(context.Background(), entry.New(owner, entry.MustParseDate(date), entry.Patch{SaidNoCount: &saidNo}))
	require.NoError(t, err)
}

func TestOverviewEmpty(t *testing.T) {
	r := NewReader(memory.NewEntryStore(), nil).WithClock(clock)
	o, err := r.Overview(context.Background(), entry.UserOwner("u1"))
	require.NoError(t, err)
	assert.True(t, o.Empty)
	assert.Equal(t, EmptyOverviewMessage, o.EmptyMessage)
	assert.NotNil(t, o.Entries)
	assert.Empty(t, o.Chart.Labels)
	assert.False(t, o.RecordedToday)
}

func TestOverview(t *testing.T) {
	store := memory.NewEntryStore()
	owner := entry.UserOwner("u1")
	seed(t, store, owner, "2025-01-02", 4)
	seed(t, store, owner, "2024-12-31", 1)
	seed(t, store, entry.Anonymous(), "2025-01-01", 9)

	o, err := NewReader(store, nil).WithClock(clock).Overview(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, o.Empty)
	assert.Empty(t, o.EmptyMessage)
	assert.True(t, o.RecordedToday)
	assert.Equal(t, []string{"2024-12-31", "2025-01-02"}, o.Chart.Labels)
	require.Len(t, o.Chart.Datasets, 3)
	assert.Equal(t, []int{1, 4}, o.Chart.Datasets[0].Data)
	assert.Equal(t, "2025-01-02", o.Entries[1].Date.String())
}

func TestOverviewLimit(t *testing.T) {
	store := memory.NewEntryStore()
	owner := entry.UserOwner("u1")
	start := entry.MustParseDate("2024-10-01")
	for i := 0; i < 70; i++ {
		seed(t, store, owner, start.AddDays(i).String(), i)
	}
	o, err := NewReader(store, nil).WithClock(clock).Overview(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, o.Entries, 60)
	assert.Equal(t, start.AddDays(10).String(), o.Chart.Labels[0])
	assert.Equal(t, start.AddDays(69).String(), o.Chart.Labels[59])
}

func TestOverviewFailures(t *testing.T) {
	owner := entry.UserOwner("u1")

	t.Run("trend read fails", func(t *testing.T) {
		store := memory.NewEntryStore()
		store.SetError("ListRecent", errors.New("connection refused"))
		_, err := NewReader(store, nil).WithClock(clock).Overview(context.Background(), owner)
		assert.True(t, apperrors.IsRepository(err))
	})

	t.Run("today read fails", func(t *testing.T) {
		store := memory.NewEntryStore()
		seed(t, store, owner, "2025-01-01", 1)
		store.SetError("FindByDate", errors.New("connection refused"))
		o, err := NewReader(store, nil).WithClock(clock).Overview(context.Background(), owner)
		require.NoError(t, err)
		assert.Len(t, o.Entries, 1)
		assert.False(t, o.RecordedToday)
	})
}

func TestDay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntryStore()
	owner := entry.UserOwner("u1")
	seed(t, store, owner, "2025-01-01", 2)
	r := NewReader(store, nil).WithClock(clock)

	tests := []struct {
		name     string
		raw      string
		date     string
		found    bool
		previous string
		next     string
	}{
		{"stored day", "2025-01-01", "2025-01-01", true, "2024-12-31", "2025-01-02"},
		{"missing day", "2025-01-05", "2025-01-05", false, "2025-01-04", "2025-01-06"},
		{"invalid falls back to today", "not-a-date", "2025-01-02", false, "2025-01-01", "2025-01-03"},
		{"month rollover", "2025-03-01", "2025-03-01", false, "2025-02-28", "2025-03-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := r.Day(ctx, owner, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.date, v.Date)
			assert.Equal(t, tt.previous, v.Previous)
			assert.Equal(t, tt.next, v.Next)
			if tt.found {
				require.NotNil(t, v.Entry)
				assert.Equal(t, 2, v.Entry.SaidNoCount)
				assert.Empty(t, v.Message)
			} else {
				assert.Nil(t, v.Entry)
				assert.Equal(t, EmptyDayMessage, v.Message)
				assert.Equal(t, RecordPath, v.HintPath)
			}
		})
	}

	t.Run("other owners do not see the row", func(t *testing.T) {
		v, err := r.Day(ctx, entry.Anonymous(), "2025-01-01")
		require.NoError(t, err)
		assert.Nil(t, v.Entry)
	})
}
