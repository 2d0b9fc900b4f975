// Package di assembles the service from configuration. Container is built
// by hand in NewContainer; the same providers are grouped into Wire sets in
// wire_sets.go for InitializeContainer.
package di

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/auth"
	"github.com/wangmul/emotion-tracker/internal/config"
	"github.com/wangmul/emotion-tracker/internal/draft"
	"github.com/wangmul/emotion-tracker/internal/events"
	"github.com/wangmul/emotion-tracker/internal/history"
	"github.com/wangmul/emotion-tracker/internal/interfaces/http/rest"
	"github.com/wangmul/emotion-tracker/internal/library"
	"github.com/wangmul/emotion-tracker/internal/observability"
	"github.com/wangmul/emotion-tracker/internal/repository"
	"github.com/wangmul/emotion-tracker/internal/workflow"
)

// Container holds every long-lived dependency of the service.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	LogLevel zap.AtomicLevel
	// Metrics is nil when metrics are disabled.
	Metrics *observability.Collector
	Tracer  *observability.TracerProvider

	Store     repository.Store
	Drafts    draft.Store
	Publisher events.Publisher

	Workflow *workflow.Service
	History  *history.Reader
	Library  *library.Service
	Gate     *auth.Gate
	// AuthProvider is nil when Supabase Auth is not configured.
	AuthProvider auth.Provider

	Handler *rest.Handler
	Router  *chi.Mux

	watcher  *config.ConfigWatcher
	cleanups []func()
}

func provideContainer(
	cfg *config.Config,
	logger *zap.Logger,
	level zap.AtomicLevel,
	collector *observability.Collector,
	tp *observability.TracerProvider,
	store repository.Store,
	drafts draft.Store,
	publisher events.Publisher,
	wf *workflow.Service,
	reader *history.Reader,
	lib *library.Service,
	gate *auth.Gate,
	provider auth.Provider,
	handler *rest.Handler,
	router *chi.Mux,
) *Container {
	return &Container{
		Config:       cfg,
		Logger:       logger,
		LogLevel:     level,
		Metrics:      collector,
		Tracer:       tp,
		Store:        store,
		Drafts:       drafts,
		Publisher:    publisher,
		Workflow:     wf,
		History:      reader,
		Library:      lib,
		Gate:         gate,
		AuthProvider: provider,
		Handler:      handler,
		Router:       router,
	}
}

// NewContainer builds the container in dependency order. On failure every
// resource opened so far is released.
func NewContainer(ctx context.Context, cfg *config.Config) (c *Container, err error) {
	var cleanups []func()
	defer func() {
		if err != nil {
			runCleanups(cleanups)
		}
	}()

	level := provideLogLevel()
	logger, err := provideLogger(cfg, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	collector := provideMetricsCollector(cfg)

	tp, tpCleanup, err := provideTracerProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, tpCleanup)

	awsCfg, err := provideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, storeCleanup, err := provideStore(ctx, cfg, awsCfg, logger, collector, tp)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	cleanups = append(cleanups, storeCleanup)

	drafts, draftCleanup, err := provideDraftStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize draft store: %w", err)
	}
	cleanups = append(cleanups, draftCleanup)

	publisher := providePublisher(cfg, awsCfg, logger)
	wf := provideWorkflowService(store, drafts, publisher, collector, logger)
	reader := provideHistoryReader(store, logger)
	lib := provideLibraryService(store, logger)

	verifier, err := provideTokenVerifier(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	provider, err := provideAuthProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth provider: %w", err)
	}
	gate := provideGate(cfg, verifier, provider, logger)

	handler := provideHandler(cfg, wf, reader, lib, gate, provider, store, logger)
	router := provideRouter(cfg, handler, collector, logger)

	c = provideContainer(cfg, logger, level, collector, tp, store, drafts, publisher,
		wf, reader, lib, gate, provider, handler, router)
	c.cleanups = cleanups

	logger.Info("Container initialized",
		zap.String("environment", string(cfg.Environment)),
		zap.String("store", cfg.Store.Backend),
		zap.String("drafts", cfg.Draft.Backend),
		zap.Bool("allow_anonymous", cfg.Security.AllowAnonymous),
		zap.Bool("auth_provider", provider != nil),
	)
	return c, nil
}

// WatchConfig reloads configuration through loader and applies the new log
// level. Other settings need a restart. Outside development the watcher is
// inert.
func (c *Container) WatchConfig(loader *config.Loader) error {
	w, err := config.NewConfigWatcher(c.Config, loader, c.Logger)
	if err != nil {
		return err
	}
	w.OnChange(func(next *config.Config) {
		if next.Logging.Level != c.Config.Logging.Level {
			c.LogLevel.SetLevel(observability.ParseLevel(next.Logging.Level))
			c.Logger.Info("Log level changed", zap.String("level", next.Logging.Level))
		}
		c.Config.Logging.Level = next.Logging.Level
	})
	c.watcher = w
	return nil
}

// Shutdown releases resources in reverse order of creation.
func (c *Container) Shutdown() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	runCleanups(c.cleanups)
	_ = c.Logger.Sync()
}

func runCleanups(cleanups []func()) {
	for i := len(cleanups) - 1; i >= 0; i-- {
		if cleanups[i] != nil {
			cleanups[i]()
		}
	}
}
