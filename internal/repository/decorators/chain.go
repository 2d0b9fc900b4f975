package decorators

import (
	"context"

	"github.com/wangmul/emotion-tracker/internal/repository"
)

// Chain composes hooks. The first hook is outermost.
type Chain struct {
	hooks []Hook
}

// NewChain builds a chain; nil hooks are skipped so callers can pass
// feature-gated hooks directly.
func NewChain(hooks ...Hook) *Chain {
	c := &Chain{}
	for _, h := range hooks {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
	return c
}

// Len reports how many hooks are applied.
func (c *Chain) Len() int { return len(c.hooks) }

// Hook folds the chain into one hook.
func (c *Chain) Hook() Hook {
	return func(ctx context.Context, table, op string, call func(context.Context) error) error {
		return c.run(0, ctx, table, op, call)
	}
}

func (c *Chain) run(i int, ctx context.Context, table, op string, call func(context.Context) error) error {
	if i == len(c.hooks) {
		return call(ctx)
	}
	return c.hooks[i](ctx, table, op, func(ctx context.Context) error {
		return c.run(i+1, ctx, table, op, call)
	})
}

// Decorate wraps both repositories of a store. An empty chain returns the
// store unchanged.
func (c *Chain) Decorate(store repository.Store) repository.Store {
	if len(c.hooks) == 0 {
		return store
	}
	hook := c.Hook()
	return repository.Store{
		Entries:  Entries(store.Entries, hook),
		Soothing: Soothing(store.Soothing, hook),
		Close:    store.Close,
	}
}
