// Package decorators layers cross-cutting concerns over the repository
// contracts: circuit breaking, Prometheus metrics, tracing and logging.
package decorators

import (
	"context"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/domain/soothing"
	"github.com/wangmul/emotion-tracker/internal/repository"
)

const (
	entriesTable = "daily_entries"
	methodsTable = "self_soothing_methods"
)

// Hook runs call on behalf of one repository operation. A hook may observe,
// short-circuit or annotate the call; it must return call's error unchanged
// unless it refuses to run it.
type Hook func(ctx context.Context, table, op string, call func(context.Context) error) error

// Entries applies hook to every EntryRepository method.
func Entries(inner repository.EntryRepository, hook Hook) repository.EntryRepository {
	return &hookedEntries{inner: inner, hook: hook}
}

// Soothing applies hook to every SoothingRepository method.
func Soothing(inner repository.SoothingRepository, hook Hook) repository.SoothingRepository {
	return &hookedSoothing{inner: inner, hook: hook}
}

type hookedEntries struct {
	inner repository.EntryRepository
	hook  Hook
}

func (h *hookedEntries) FindByDate(ctx context.Context, owner entry.Owner, date entry.Date) (out *entry.DailyEntry, err error) {
	err = h.hook(ctx, entriesTable, "FindByDate", func(ctx context.Context) error {
		out, err = h.inner.FindByDate(ctx, owner, date)
		return err
	})
	return out, err
}

func (h *hookedEntries) Insert(ctx context.Context, e entry.DailyEntry) (out *entry.DailyEntry, err error) {
	err = h.hook(ctx, entriesTable, "Insert", func(ctx context.Context) error {
		out, err = h.inner.Insert(ctx, e)
		return err
	})
	return out, err
}

func (h *hookedEntries) Update(ctx context.Context, owner entry.Owner, date entry.Date, p entry.Patch) (out *entry.DailyEntry, err error) {
	err = h.hook(ctx, entriesTable, "Update", func(ctx context.Context) error {
		out, err = h.inner.Update(ctx, owner, date, p)
		return err
	})
	return out, err
}

func (h *hookedEntries) UpdateByID(ctx context.Context, id string, p entry.Patch) (out *entry.DailyEntry, err error) {
	err = h.hook(ctx, entriesTable, "UpdateByID", func(ctx context.Context) error {
		out, err = h.inner.UpdateByID(ctx, id, p)
		return err
	})
	return out, err
}

// Upsert is only hooked when the inner store supports it.
func (h *hookedEntries) Upsert(ctx context.Context, owner entry.Owner, date entry.Date, p, seed entry.Patch) (out *entry.DailyEntry, err error) {
	upserter, ok := h.inner.(repository.AtomicUpserter)
	if !ok {
		return nil, repository.ErrAtomicUpsertUnsupported
	}
	err = h.hook(ctx, entriesTable, "Upsert", func(ctx context.Context) error {
		out, err = upserter.Upsert(ctx, owner, date, p, seed)
		return err
	})
	return out, err
}

func (h *hookedEntries) ListRecent(ctx context.Context, owner entry.Owner, limit int) (out []entry.DailyEntry, err error) {
	err = h.hook(ctx, entriesTable, "ListRecent", func(ctx context.Context) error {
		out, err = h.inner.ListRecent(ctx, owner, limit)
		return err
	})
	return out, err
}

func (h *hookedEntries) ListNotes(ctx context.Context, owner entry.Owner, limit int) (out []entry.DailyEntry, err error) {
	err = h.hook(ctx, entriesTable, "ListNotes", func(ctx context.Context) error {
		out, err = h.inner.ListNotes(ctx, owner, limit)
		return err
	})
	return out, err
}

func (h *hookedEntries) Ping(ctx context.Context) error {
	return h.hook(ctx, entriesTable, "Ping", h.inner.Ping)
}

type hookedSoothing struct {
	inner repository.SoothingRepository
	hook  Hook
}

func (h *hookedSoothing) Add(ctx context.Context, m soothing.Method) (out *soothing.Method, err error) {
	err = h.hook(ctx, methodsTable, "Add", func(ctx context.Context) error {
		out, err = h.inner.Add(ctx, m)
		return err
	})
	return out, err
}

func (h *hookedSoothing) List(ctx context.Context, owner entry.Owner, limit int) (out []soothing.Method, err error) {
	err = h.hook(ctx, methodsTable, "List", func(ctx context.Context) error {
		out, err = h.inner.List(ctx, owner, limit)
		return err
	})
	return out, err
}

func (h *hookedSoothing) Delete(ctx context.Context, owner entry.Owner, id string) error {
	return h.hook(ctx, methodsTable, "Delete", func(ctx context.Context) error {
		return h.inner.Delete(ctx, owner, id)
	})
}

var (
	_ repository.EntryRepository    = (*hookedEntries)(nil)
	_ repository.AtomicUpserter     = (*hookedEntries)(nil)
	_ repository.SoothingRepository = (*hookedSoothing)(nil)
)
