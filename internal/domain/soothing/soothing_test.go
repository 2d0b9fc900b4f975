package soothing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
)

func TestMerge(t *testing.T) {
	owner := entry.UserOwner("u")
	methods := []Method{
		{ID: "m2", Owner: owner, Content: "walk outside", CreatedAt: time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)},
		{ID: "m1", Owner: owner, Content: "deep breathing", CreatedAt: time.Date(2025, 1, 2, 20, 0, 0, 0, time.UTC)},
	}
	notes := []entry.DailyEntry{
		{Date: entry.MustParseDate("2025-01-04"), SelfSoothingMethods: "tea"},
		{Date: entry.MustParseDate("2025-01-02"), SelfSoothingMethods: " deep breathing "},
		{Date: entry.MustParseDate("2025-01-01"), SelfSoothingMethods: "  "},
	}

	items := Merge(methods, notes)
	require.Len(t, items, 3)
	assert.Equal(t, "m2", items[0].ID)
	assert.Equal(t, "daily-2025-01-04", items[1].ID)
	assert.Equal(t, SourceEntry, items[1].Source)
	assert.Equal(t, "m1", items[2].ID, "standalone method wins the duplicate")
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
}

func TestParseItemID(t *testing.T) {
	d, isEntry, err := ParseItemID("daily-2025-01-02")
	require.NoError(t, err)
	assert.True(t, isEntry)
	assert.Equal(t, "2025-01-02", d.String())

	_, isEntry, err = ParseItemID("5b1f0c2e-0000-4000-8000-000000000000")
	require.NoError(t, err)
	assert.False(t, isEntry)

	_, isEntry, err = ParseItemID("daily-someday")
	assert.True(t, isEntry)
	assert.Error(t, err)

	assert.Equal(t, "daily-2025-01-02", EntryItemID(entry.MustParseDate("2025-01-02")))
}
