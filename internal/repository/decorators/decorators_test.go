package decorators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
	"github.com/wangmul/emotion-tracker/internal/repository"
	"github.com/wangmul/emotion-tracker/internal/repository/memory"
)

type recorded struct {
	op, table, status string
}

type fakeRecorder struct {
	calls []recorded
}

func (f *fakeRecorder) RecordDBOperation(op, table, status string, _ time.Duration) {
	f.calls = append(f.calls, recorded{op, table, status})
}

func TestChainOrder(t *testing.T) {
	var trail []string
	mark := func(name string) Hook {
		return func(ctx context.Context, table, op string, call func(context.Context) error) error {
			trail = append(trail, name+">")
			err := call(ctx)
			trail = append(trail, "<"+name)
			return err
		}
	}
	c := NewChain(mark("outer"), nil, mark("inner"))
	assert.Equal(t, 2, c.Len())

	err := c.Hook()(context.Background(), "t", "op", func(context.Context) error {
		trail = append(trail, "call")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer>", "inner>", "call", "<inner", "<outer"}, trail)
}

func TestMetricsStatusLabels(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	base := memory.NewStore()
	store := NewChain(Metrics(rec)).Decorate(base)

	_, err := store.Entries.FindByDate(ctx, entry.Anonymous(), entry.MustParseDate("2025-01-02"))
	require.NoError(t, err)
	_, err = store.Entries.Update(ctx, entry.Anonymous(), entry.MustParseDate("2025-01-02"), entry.NotePatch("x"))
	require.Error(t, err)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, recorded{"FindByDate", "daily_entries", "success"}, rec.calls[0])
	assert.Equal(t, recorded{"Update", "daily_entries", "not_found"}, rec.calls[1])
}

func TestUpsertUnsupportedPassesThrough(t *testing.T) {
	store := NewChain(Metrics(&fakeRecorder{})).Decorate(memory.NewStore())
	upserter, ok := store.Entries.(repository.AtomicUpserter)
	require.True(t, ok)

	_, err := upserter.Upsert(context.Background(), entry.Anonymous(), entry.MustParseDate("2025-01-02"), entry.Patch{}, entry.Patch{})
	assert.ErrorIs(t, err, repository.ErrAtomicUpsertUnsupported)
}

func TestBreakerOpensOnStoreFailures(t *testing.T) {
	ctx := context.Background()
	base := memory.NewEntryStore()
	base.SetError("FindByDate", errors.New("connection refused"))

	var states []float64
	cfg := DefaultBreakerConfig("store")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	repo := Entries(base, Breaker(cfg, zap.NewNop(), func(_ string, s float64) { states = append(states, s) }))

	for i := 0; i < 2; i++ {
		_, err := repo.FindByDate(ctx, entry.Anonymous(), entry.MustParseDate("2025-01-02"))
		require.Error(t, err)
		ue, _ := apperrors.As(err)
		assert.Equal(t, "connection refused", ue.Message)
	}

	_, err := repo.FindByDate(ctx, entry.Anonymous(), entry.MustParseDate("2025-01-02"))
	ue, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "CIRCUIT_OPEN", ue.Code)
	assert.True(t, apperrors.IsRepository(err))
	assert.Equal(t, []float64{2}, states)
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultBreakerConfig("store")
	cfg.MinRequests = 1
	cfg.FailureThreshold = 0.1
	repo := Entries(memory.NewEntryStore(), Breaker(cfg, nil, nil))

	for i := 0; i < 3; i++ {
		_, err := repo.Update(ctx, entry.Anonymous(), entry.MustParseDate("2025-01-02"), entry.NotePatch("x"))
		assert.True(t, apperrors.IsNotFound(err))
	}
}

func TestLoggingAndTracingHooks(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := memory.NewEntryStore()
	base.SetError("ListRecent", errors.New("timeout"))
	repo := Entries(base, NewChain(Logging(zap.New(core)), Tracing(noop.NewTracerProvider().Tracer("test"), "memory")).Hook())

	_, err := repo.ListRecent(context.Background(), entry.Anonymous(), 10)
	require.Error(t, err)
	require.NoError(t, repo.Ping(context.Background()))

	assert.Equal(t, 1, logs.FilterMessage("Store call failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Store call").Len())
}
