package di

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/auth"
	"github.com/wangmul/emotion-tracker/internal/config"
	"github.com/wangmul/emotion-tracker/internal/draft"
	"github.com/wangmul/emotion-tracker/internal/events"
	"github.com/wangmul/emotion-tracker/internal/history"
	"github.com/wangmul/emotion-tracker/internal/interfaces/http/rest"
	"github.com/wangmul/emotion-tracker/internal/library"
	"github.com/wangmul/emotion-tracker/internal/middleware"
	"github.com/wangmul/emotion-tracker/internal/migration"
	"github.com/wangmul/emotion-tracker/internal/observability"
	"github.com/wangmul/emotion-tracker/internal/repository"
	"github.com/wangmul/emotion-tracker/internal/repository/decorators"
	ddbstore "github.com/wangmul/emotion-tracker/internal/repository/dynamodb"
	"github.com/wangmul/emotion-tracker/internal/repository/memory"
	"github.com/wangmul/emotion-tracker/internal/repository/sqlstore"
	"github.com/wangmul/emotion-tracker/internal/repository/supabase"
	"github.com/wangmul/emotion-tracker/internal/workflow"
)

// provideLogLevel is the level shared by every core of the logger so a
// config reload can change it in place.
func provideLogLevel() zap.AtomicLevel {
	return zap.NewAtomicLevel()
}

func provideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, error) {
	return observability.NewLogger(observability.LoggingConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Environment: string(cfg.Environment),
		Dynamic:     &level,
	})
}

// provideMetricsCollector returns nil when metrics are disabled.
func provideMetricsCollector(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func provideTracerProvider(cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	tp, err := observability.InitTracing(observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// provideAWSConfig loads the default credential chain. Nothing is contacted
// until a client makes a call, so this is safe for non-AWS backends.
func provideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func newDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})
}

// migrate applies the embedded schema when store.migrate is set.
func migrate(ctx context.Context, cfg *config.Config, db *sql.DB, d migration.Dialect, logger *zap.Logger) error {
	if !cfg.Store.Migrate {
		return nil
	}
	runner, err := migration.NewRunner(db, d, logger)
	if err != nil {
		return err
	}
	applied, err := runner.Apply(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("Schema migrations applied", zap.String("dialect", string(d)), zap.Int("applied", applied))
	return nil
}

// openBaseStore builds the undecorated store for the configured backend.
func openBaseStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (repository.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.NewStore(), nil

	case config.BackendSQLite:
		db, err := sqlstore.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return repository.Store{}, err
		}
		if err := migrate(ctx, cfg, db, migration.SQLite, logger); err != nil {
			db.Close()
			return repository.Store{}, err
		}
		return sqlstore.NewStore(db, sqlstore.SQLite{}), nil

	case config.BackendPostgres:
		db, err := sqlstore.OpenPostgres(cfg.Postgres.DSN)
		if err != nil {
			return repository.Store{}, err
		}
		if err := migrate(ctx, cfg, db, migration.Postgres, logger); err != nil {
			db.Close()
			return repository.Store{}, err
		}
		return sqlstore.NewStore(db, sqlstore.Postgres{}), nil

	case config.BackendSupabase:
		client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.Key())
		if err != nil {
			return repository.Store{}, err
		}
		return supabase.NewStore(client, logger), nil

	case config.BackendDynamoDB:
		return ddbstore.NewStore(newDynamoDBClient(awsCfg, cfg), ddbstore.Config{
			TableName: cfg.DynamoDB.TableName,
			IndexName: cfg.DynamoDB.IndexName,
		}, logger), nil

	default:
		return repository.Store{}, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// provideStore opens the backend and wraps it with logging, metrics,
// tracing and the circuit breaker, outermost first.
func provideStore(
	ctx context.Context,
	cfg *config.Config,
	awsCfg aws.Config,
	logger *zap.Logger,
	collector *observability.Collector,
	tp *observability.TracerProvider,
) (repository.Store, func(), error) {
	base, err := openBaseStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		return repository.Store{}, nil, err
	}

	var metricsHook, breakerHook decorators.Hook
	var onState func(string, float64)
	if collector != nil {
		metricsHook = decorators.Metrics(collector)
		onState = collector.SetBreakerState
	}
	if cfg.CircuitBreaker.Enabled {
		breakerHook = decorators.Breaker(storeBreakerConfig(cfg), logger, onState)
	}
	store := decorators.NewChain(
		decorators.Logging(logger),
		metricsHook,
		decorators.Tracing(tp.Tracer(), cfg.Store.Backend),
		breakerHook,
	).Decorate(base)

	logger.Info("Store ready", zap.String("backend", cfg.Store.Backend))
	cleanup := func() {
		if store.Close == nil {
			return
		}
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	return store, cleanup, nil
}

func storeBreakerConfig(cfg *config.Config) decorators.BreakerConfig {
	bc := decorators.DefaultBreakerConfig("store-" + cfg.Store.Backend)
	cb := cfg.CircuitBreaker
	if cb.MaxRequests > 0 {
		bc.MaxRequests = cb.MaxRequests
	}
	if cb.Interval > 0 {
		bc.Interval = cb.Interval
	}
	if cb.Timeout > 0 {
		bc.Timeout = cb.Timeout
	}
	if cb.FailureThreshold > 0 {
		bc.FailureThreshold = cb.FailureThreshold
	}
	if cb.MinRequests > 0 {
		bc.MinRequests = cb.MinRequests
	}
	return bc
}

// provideDraftStore returns the step cache. The in-memory store gets a
// janitor that runs until cleanup.
func provideDraftStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (draft.Store, func(), error) {
	switch cfg.Draft.Backend {
	case "redis":
		client, err := draft.NewRedisClient(ctx, draft.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}
		return draft.NewRedisStore(client, cfg.Draft.TTL), cleanup, nil

	default:
		store := draft.NewMemoryStore(cfg.Draft.TTL)
		janitorCtx, cancel := context.WithCancel(context.Background())
		if cfg.Draft.SweepInterval > 0 {
			go store.RunJanitor(janitorCtx, cfg.Draft.SweepInterval)
		}
		return store, cancel, nil
	}
}

func providePublisher(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) events.Publisher {
	switch cfg.Events.Provider {
	case "eventbridge":
		return events.NewEventBridgePublisher(awseventbridge.NewFromConfig(awsCfg), cfg.Events.EventBusName, logger)
	case "none":
		return events.NoOpPublisher{}
	default:
		return events.NewLogPublisher(logger)
	}
}

func provideWorkflowService(
	store repository.Store,
	drafts draft.Store,
	publisher events.Publisher,
	collector *observability.Collector,
	logger *zap.Logger,
) *workflow.Service {
	var recorder workflow.Recorder
	if collector != nil {
		recorder = collector
	}
	return workflow.NewService(store.Entries, store.Soothing, drafts, publisher, recorder, logger)
}

func provideHistoryReader(store repository.Store, logger *zap.Logger) *history.Reader {
	return history.NewReader(store.Entries, logger)
}

func provideLibraryService(store repository.Store, logger *zap.Logger) *library.Service {
	return library.NewService(store.Entries, store.Soothing, logger)
}

// provideTokenVerifier returns nil without a JWT secret; the gate then
// resolves no sessions.
func provideTokenVerifier(cfg *config.Config, logger *zap.Logger) (*auth.TokenVerifier, error) {
	if cfg.Security.JWTSecret == "" {
		logger.Warn("No JWT secret configured, every request is unauthenticated")
		return nil, nil
	}
	return auth.NewTokenVerifier(auth.VerifierConfig{
		Secret:   cfg.Security.JWTSecret,
		Audience: cfg.Security.JWTAudience,
		Issuer:   cfg.Security.JWTIssuer,
		Leeway:   cfg.Security.JWTLeeway,
	})
}

// provideGate refreshes expired sessions when a provider is configured.
func provideGate(cfg *config.Config, verifier *auth.TokenVerifier, provider auth.Provider, logger *zap.Logger) *auth.Gate {
	gate := auth.NewGate(verifier, cfg.Security.AllowAnonymous, logger)
	if provider != nil {
		gate.WithRefresher(provider, cfg.Security.CookieSecure)
	}
	return gate
}

// provideAuthProvider returns nil unless Supabase Auth is configured.
func provideAuthProvider(cfg *config.Config) (auth.Provider, error) {
	if cfg.Supabase.URL == "" || cfg.Supabase.AnonKey == "" {
		return nil, nil
	}
	client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey)
	if err != nil {
		return nil, err
	}
	return auth.NewSupabaseProvider(client.Auth), nil
}

func provideHandler(
	cfg *config.Config,
	wf *workflow.Service,
	reader *history.Reader,
	lib *library.Service,
	gate *auth.Gate,
	provider auth.Provider,
	store repository.Store,
	logger *zap.Logger,
) *rest.Handler {
	return rest.NewHandler(rest.Dependencies{
		Workflow:     wf,
		History:      reader,
		Library:      lib,
		Gate:         gate,
		Provider:     provider,
		Health:       store.Entries,
		Logger:       logger,
		CookieSecure: cfg.Security.CookieSecure,
	})
}

func provideRouter(cfg *config.Config, h *rest.Handler, collector *observability.Collector, logger *zap.Logger) *chi.Mux {
	rc := rest.RouterConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        collector,
		MetricsPath:    cfg.Metrics.Path,
	}
	if cfg.CircuitBreaker.Enabled {
		cb := cfg.CircuitBreaker
		rc.CircuitBreaker = &middleware.CircuitBreakerConfig{
			Name:             "journal-routes",
			MaxRequests:      cb.MaxRequests,
			Interval:         cb.Interval,
			Timeout:          cb.Timeout,
			FailureThreshold: cb.FailureThreshold,
			MinRequests:      cb.MinRequests,
			IsFailure:        middleware.LocalFailure,
		}
	}
	return rest.NewRouter(h, rc, logger)
}
