package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/middleware"
	"github.com/wangmul/emotion-tracker/internal/observability"
)

// RouterConfig selects the cross-cutting behaviour around the handlers.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// CircuitBreaker guards the journal routes; nil disables it.
	CircuitBreaker *middleware.CircuitBreakerConfig
	// Metrics, when set, records requests and is served at MetricsPath.
	Metrics     *observability.Collector
	MetricsPath string
}

// NewRouter wires middleware and routes.
func NewRouter(h *Handler, config RouterConfig, logger *zap.Logger) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	var recorder middleware.HTTPRecorder
	if config.Metrics != nil {
		recorder = config.Metrics
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.AccessLog(logger, recorder))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Location", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(config.RequestTimeout, logger))
	}
	r.Use(h.gate.Middleware)

	r.Get("/api/health", h.Health)
	if config.Metrics != nil {
		path := config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, config.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/sign-in", h.SignIn)
		r.Post("/magic-link", h.SendMagicLink)
		r.Post("/sign-up", h.SignUp)
		r.Get("/session", h.GetSession)
		r.Post("/sign-out", h.SignOut)
	})

	r.Group(func(r chi.Router) {
		if config.CircuitBreaker != nil {
			var onState func(string, float64)
			if config.Metrics != nil {
				onState = config.Metrics.SetBreakerState
			}
			r.Use(middleware.CircuitBreaker(*config.CircuitBreaker, logger, onState))
		}

		r.Route("/record", func(r chi.Router) {
			r.Delete("/", h.AbandonRecord)
			r.Get("/step-1", h.GetStepOne)
			r.Post("/step-1", h.SubmitStepOne)
			r.Get("/step-2", h.GetStepTwo)
			r.Post("/step-2", h.SubmitStepTwo)
			r.Get("/step-3", h.GetStepThree)
			r.Post("/step-3", h.SubmitStepThree)
		})

		r.Get("/history", h.GetHistory)
		r.Get("/history/{date}", h.GetHistoryDay)

		r.Get("/soothing", h.ListSoothing)
		r.Post("/soothing", h.AddSoothing)
		r.Delete("/soothing/{id}", h.DeleteSoothing)
	})

	return r
}
