package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/pkg/api"
)

var errServerFailure = errors.New("handler returned 5xx")

// CircuitBreakerConfig holds configuration for circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
	// IsFailure decides which statuses count against the breaker.
	// Nil counts every 5xx.
	IsFailure func(status int) bool
}

// LocalFailure counts 5xx except 502. Handlers answer 502 for store
// failures, which the store's own breaker already counts.
func LocalFailure(status int) bool {
	return status >= 500 && status != http.StatusBadGateway
}

// DefaultCircuitBreakerConfig returns the breaker settings used for the API.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// CircuitBreaker fails fast with 503 once enough handlers answered with a
// failing status.
// onState, when set, receives 0 closed, 1 half-open and 2 open.
func CircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger, onState func(name string, state float64)) func(http.Handler) http.Handler {
	isFailure := config.IsFailure
	if isFailure == nil {
		isFailure = func(status int) bool { return status >= 500 }
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
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if onState != nil {
				onState(name, stateValue(to))
			}
		},
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := cb.Execute(func() (any, error) {
				wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
				next.ServeHTTP(wrapper, r)
				if isFailure(wrapper.statusCode) {
					return nil, errServerFailure
				}
				return nil, nil
			})

			switch {
			case err == nil, errors.Is(err, errServerFailure):
				// The handler already answered.
			case errors.Is(err, gobreaker.ErrOpenState):
				logger.Warn("Circuit breaker open; rejecting request",
					zap.String("breaker", config.Name),
					zap.String("path", r.URL.Path),
				)
				api.Error(w, http.StatusServiceUnavailable, "Service temporarily unavailable - too many failures")
			case errors.Is(err, gobreaker.ErrTooManyRequests):
				api.Error(w, http.StatusServiceUnavailable, "Service temporarily unavailable - too many requests")
			default:
				api.Error(w, http.StatusInternalServerError, "Service error")
			}
		})
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
