// Package repository defines the storage contracts consumed by the workflow,
// the history reader and the soothing library. Implementations live in the
// sub-packages (memory, sqlstore, supabase, dynamodb) and decorators.
package repository

import (
	"context"
	"errors"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
)

const (
	// DefaultHistoryLimit is how many recent entries the history chart shows.
	DefaultHistoryLimit = 60
	// DefaultLibraryLimit bounds each branch of the library merge.
	DefaultLibraryLimit = 100
)

// ErrAtomicUpsertUnsupported is returned by decorators whose inner store has
// no single-statement upsert. Callers fall back to lookup-then-write.
var ErrAtomicUpsertUnsupported = errors.New("atomic upsert not supported by store")

// EntryRepository is the daily entry store. Every method is one round trip.
// Failures are *errors.UnifiedError of type REPOSITORY, NOT_FOUND or CONFLICT.
type EntryRepository interface {
	// FindByDate returns nil, nil when no row matches. The anonymous owner
	// only matches rows whose owner is absent.
	FindByDate(ctx context.Context, owner entry.Owner, date entry.Date) (*entry.DailyEntry, error)
	// Insert assigns ID and timestamps. A duplicate (owner, date) yields a
	// CONFLICT error where the store enforces uniqueness.
	Insert(ctx context.Context, e entry.DailyEntry) (*entry.DailyEntry, error)
	// Update patches the row for (owner, date); NOT_FOUND if absent.
	Update(ctx context.Context, owner entry.Owner, date entry.Date, p entry.Patch) (*entry.DailyEntry, error)
	UpdateByID(ctx context.Context, id string, p entry.Patch) (*entry.DailyEntry, error)
	// ListRecent returns the newest limit rows ordered by date ascending.
	ListRecent(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error)
	// ListNotes returns rows with a non-empty note, newest date first.
	ListNotes(ctx context.Context, owner entry.Owner, limit int) ([]entry.DailyEntry, error)
	// Ping performs a trivial bounded read.
	Ping(ctx context.Context) error
}

// AtomicUpserter is implemented by stores with a real uniqueness constraint
// over (owner, date) including the absent owner. Upsert inserts
// seed.Merge(p) when no row exists, otherwise applies only p.
type AtomicUpserter interface {
	Upsert(ctx context.Context, owner entry.Owner, date entry.Date, p entry.Patch, seed entry.Patch) (*entry.DailyEntry, error)
}

// SoothingRepository stores standalone self-soothing methods.
type SoothingRepository interface {
	Add(ctx context.Context, m soothing.Method) (*soothing.Method, error)
	// List returns the owner's methods, newest first.
	List(ctx context.Context, owner entry.Owner, limit int) ([]soothing.Method, error)
	// Delete removes one method; NOT_FOUND if the owner has no such row.
	Delete(ctx context.Context, owner entry.Owner, id string) error
}

// Store bundles both repositories for a backend.
type Store struct {
	Entries  EntryRepository
	Soothing SoothingRepository
	// Close releases connections; nil when the backend holds none.
	Close func() error
}
