// Package soothing models the self-soothing method library: standalone notes
// plus the notes attached to daily entries, merged for display.
package soothing

import (
	"sort"
	"strings"
	"time"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
)

// Method is a standalone note, independent of any entry date.
type Method struct {
	ID        string      `json:"id"`
	Owner     entry.Owner `json:"-"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Source tells where a library item came from.
type Source string

const (
	SourceMethod Source = "method"
	SourceEntry  Source = "entry"
)

// Item is one row of the merged library.
type Item struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Source    Source    `json:"source"`
}

const entryItemPrefix = "daily-"

// EntryItemID is the library id of the note stored on the entry for date.
func EntryItemID(date entry.Date) string {
	return entryItemPrefix + date.String()
}

// ParseItemID reports whether id refers to an entry note and, if so, its date.
func ParseItemID(id string) (entry.Date, bool, error) {
	if !strings.HasPrefix(id, entryItemPrefix) {
		return entry.Date{}, false, nil
	}
	d, err := entry.ParseDate(strings.TrimPrefix(id, entryItemPrefix))
	if err != nil {
		return entry.Date{}, true, err
	}
	return d, true, nil
}

// Merge combines standalone methods and entry notes, keeps the first item
// for each trimmed content, and orders the result newest first. Methods win
// over entry notes with the same content. Entry notes are dated at midnight
// UTC of their entry date.
func Merge(methods []Method, notes []entry.DailyEntry) []Item {
	combined := make([]Item, 0, len(methods)+len(notes))
	for _, m := range methods {
		combined = append(combined, Item{ID: m.ID, Content: m.Content, CreatedAt: m.CreatedAt, Source: SourceMethod})
	}
	for _, e := range notes {
		if strings.TrimSpace(e.SelfSoothingMethods) == "" {
			continue
		}
		combined = append(combined, Item{
			ID:        EntryItemID(e.Date),
			Content:   e.SelfSoothingMethods,
			CreatedAt: e.Date.Time(),
			Source:    SourceEntry,
		})
	}

	seen := make(map[string]struct{}, len(combined))
	out := combined[:0]
	for _, it := range combined {
		key := strings.TrimSpace(it.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
