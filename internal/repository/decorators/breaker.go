package decorators

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the defaults used when config leaves them unset.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// breakerStateValue maps gobreaker states onto the gauge encoding.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// countsAsFailure is true only for store failures. Misses, conflicts and
// validation errors are answers, not outages.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	ue, ok := apperrors.As(err)
	if !ok {
		return !errors.Is(err, context.Canceled)
	}
	return ue.Type == apperrors.ErrorTypeRepository
}

// Breaker returns a hook guarding the store with a gobreaker circuit
// breaker. onState, if non-nil, observes state changes.
func Breaker(config BreakerConfig, logger *zap.Logger, onState func(name string, state float64)) Hook {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if onState != nil {
				onState(name, breakerStateValue(to))
			}
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
	})

	return func(ctx context.Context, table, op string, call func(context.Context) error) error {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, call(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apperrors.NewError(apperrors.ErrorTypeRepository, "CIRCUIT_OPEN", "store temporarily unavailable").
				WithOperation(op).
				WithResource(table).
				WithRetryable(true).
				WithCause(err).
				Build()
		}
		return err
	}
}
