package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wangmul/emotion-tracker/pkg/api"
)

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("Should generate request ID when not provided", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, RequestIDOf(r))
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("Should use provided request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "test-request-id")
		w := httptest.NewRecorder()

		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-request-id", RequestIDOf(r))
		}))
		handler.ServeHTTP(w, req)

		assert.Equal(t, "test-request-id", w.Header().Get(RequestIDHeader))
	})

	t.Run("Should replace unusable request IDs", func(t *testing.T) {
		for _, bad := range []string{"forged\nlevel=error", "has space", strings.Repeat("a", 129)} {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(RequestIDHeader, bad)
			w := httptest.NewRecorder()

			var seen string
			RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDOf(r)
			})).ServeHTTP(w, req)

			assert.NotEqual(t, bad, seen)
			_, err := uuid.Parse(seen)
			assert.NoError(t, err, seen)
			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
		}
	})

	t.Run("Should return empty string without middleware", func(t *testing.T) {
		assert.Empty(t, RequestIDFrom(context.Background()))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	t.Run("Should handle panic gracefully", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "error")
		require.Equal(t, 1, logs.FilterMessage("Handler panicked").Len())
	})

	t.Run("Should pass through normal requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
		}))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("Should allow normal requests to complete", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := Timeout(time.Second, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Handler", "yes")
			api.Success(w, http.StatusCreated, map[string]string{"status": "ok"})
		}))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "yes", w.Header().Get("X-Handler"))
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("Should answer 408 when the handler overruns", func(t *testing.T) {
		release := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		w := httptest.NewRecorder()
		handler := Timeout(20*time.Millisecond, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer wg.Done()
			<-release
			_, err := w.Write([]byte("late"))
			assert.ErrorIs(t, err, http.ErrHandlerTimeout)
		}))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/slow", nil))
		close(release)
		wg.Wait()

		assert.Equal(t, http.StatusRequestTimeout, w.Code)
		assert.NotContains(t, w.Body.String(), "late")
	})

	t.Run("Should propagate handler panics", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := Recovery(zap.NewNop())(Timeout(time.Second, zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	t.Run("Should pass through successful requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := CircuitBreaker(DefaultCircuitBreakerConfig("test"), zap.NewNop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
		}))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should open after repeated 5xx", func(t *testing.T) {
		config := DefaultCircuitBreakerConfig("test-failure")
		config.MinRequests = 2
		config.FailureThreshold = 1
		var states []float64
		handler := CircuitBreaker(config, zap.NewNop(), func(_ string, s float64) {
			states = append(states, s)
		})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, http.StatusBadGateway, w.Code, "the handler's own status is kept")
		}

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, []float64{2}, states)
	})

	t.Run("Should leave store failures to the store breaker", func(t *testing.T) {
		config := DefaultCircuitBreakerConfig("test-local")
		config.MinRequests = 1
		config.FailureThreshold = 0.1
		config.IsFailure = LocalFailure
		status := http.StatusBadGateway
		handler := CircuitBreaker(config, zap.NewNop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, http.StatusBadGateway, w.Code)
		}

		status = http.StatusInternalServerError
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("Should not count 4xx as failures", func(t *testing.T) {
		config := DefaultCircuitBreakerConfig("test-client")
		config.MinRequests = 1
		config.FailureThreshold = 0.1
		handler := CircuitBreaker(config, zap.NewNop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		}
	})
}

type httpObservation struct {
	method, route, status string
}

type fakeHTTPRecorder struct {
	seen []httpObservation
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, route, status string, _ time.Duration) {
	f.seen = append(f.seen, httpObservation{method, route, status})
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	recorder := &fakeHTTPRecorder{}

	r := chi.NewRouter()
	r.Use(RequestID, AccessLog(zap.New(core), recorder))
	r.Get("/history/{date}", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, nil)
	})
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusBadGateway, "store down")
	})

	for _, path := range []string{"/history/2025-01-02", "/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	assert.Equal(t, []httpObservation{
		{"GET", "/history/{date}", "200"},
		{"GET", "/broken", "502"},
	}, recorder.seen)

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}
