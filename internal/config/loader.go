package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader applies the configuration layers for one environment.
type Loader struct {
	basePath    string
	environment Environment
	sources     []string
	fileLoaders []FileLoader
	lookupEnv   func(string) (string, bool)
}

// FileLoader decodes one configuration file format.
type FileLoader interface {
	Load(reader io.Reader, target interface{}) error
	Extension() string
}

// NewLoader creates a loader reading files from basePath.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	loader := &Loader{
		basePath:    basePath,
		environment: env,
		lookupEnv:   os.LookupEnv,
	}
	loader.RegisterLoader(&YAMLLoader{})
	loader.RegisterLoader(&JSONLoader{})
	return loader
}

// RegisterLoader adds a file format. Formats are tried in registration order.
func (l *Loader) RegisterLoader(loader FileLoader) {
	l.fileLoaders = append(l.fileLoaders, loader)
}

// WithLookup replaces the environment variable source.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load builds, overlays, defaults and validates a configuration.
func (l *Loader) Load() (*Config, error) {
	l.sources = l.sources[:0]
	cfg := l.defaultConfig()
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s config: %w", envFile, err)
	}

	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load local config: %v\n", err)
		}
	}

	if err := l.loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	l.sources = append(l.sources, "environment")

	// Files may not move the environment away from the one being loaded.
	cfg.Environment = l.environment
	cfg.LoadedFrom = append([]string(nil), l.sources...)
	cfg.applyEnvironmentDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, loader := range l.fileLoaders {
		path := filepath.Join(l.basePath, fmt.Sprintf("%s.%s", name, loader.Extension()))

		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		err = loader.Load(file, cfg)
		file.Close()
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		l.sources = append(l.sources, path)
		return nil
	}
	return os.ErrNotExist
}

// loadEnvironmentVariables overlays environment variables. Malformed numeric
// or duration values are reported rather than silently dropped.
func (l *Loader) loadEnvironmentVariables(cfg *Config) error {
	var problems []string
	str := func(key string, target *string) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			*target = val
		}
	}
	boolean := func(key string, target *bool) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			*target = parseBool(val)
		}
	}
	integer := func(key string, target *int) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*target = n
		}
	}
	duration := func(key string, target *time.Duration) {
		if val, ok := l.lookupEnv(key); ok && val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*target = d
		}
	}

	integer("SERVER_PORT", &cfg.Server.Port)
	str("SERVER_HOST", &cfg.Server.Host)

	str("STORE_BACKEND", &cfg.Store.Backend)
	boolean("STORE_MIGRATE", &cfg.Store.Migrate)

	str("SUPABASE_URL", &cfg.Supabase.URL)
	str("SUPABASE_ANON_KEY", &cfg.Supabase.AnonKey)
	str("SUPABASE_SERVICE_ROLE_KEY", &cfg.Supabase.ServiceRoleKey)
	str("DATABASE_URL", &cfg.Postgres.DSN)
	str("SQLITE_PATH", &cfg.SQLite.Path)

	str("TABLE_NAME", &cfg.DynamoDB.TableName)
	str("INDEX_NAME", &cfg.DynamoDB.IndexName)
	str("AWS_REGION", &cfg.DynamoDB.Region)
	str("DYNAMODB_ENDPOINT", &cfg.DynamoDB.Endpoint)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	integer("REDIS_DB", &cfg.Redis.DB)
	str("DRAFT_BACKEND", &cfg.Draft.Backend)
	duration("DRAFT_TTL", &cfg.Draft.TTL)

	boolean("ALLOW_ANONYMOUS", &cfg.Security.AllowAnonymous)
	str("SUPABASE_JWT_SECRET", &cfg.Security.JWTSecret)
	str("JWT_SECRET", &cfg.Security.JWTSecret)
	boolean("COOKIE_SECURE", &cfg.Security.CookieSecure)
	if val, ok := l.lookupEnv("ALLOWED_ORIGINS"); ok && val != "" {
		cfg.Security.AllowedOrigins = splitList(val)
	}

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("LOG_FILE", &cfg.Logging.File)

	boolean("ENABLE_METRICS", &cfg.Metrics.Enabled)
	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)

	str("EVENTS_PROVIDER", &cfg.Events.Provider)
	str("EVENT_BUS_NAME", &cfg.Events.EventBusName)

	if len(problems) > 0 {
		return fmt.Errorf("invalid environment variables: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (l *Loader) defaultConfig() *Config {
	return &Config{
		Environment: l.environment,
		Server: Server{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Store: Store{Backend: BackendMemory},
		SQLite: SQLite{
			Path: "emotion-tracker.db",
		},
		DynamoDB: DynamoDB{
			TableName: "emotion-tracker-" + strings.ToLower(string(l.environment)),
			IndexName: "GSI1",
			Region:    "us-east-1",
		},
		Redis: Redis{Addr: "localhost:6379"},
		Draft: Draft{
			Backend:       "memory",
			TTL:           2 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Security: Security{
			JWTAudience:    "authenticated",
			JWTLeeway:      30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "emotion_tracker",
			Path:      "/metrics",
		},
		Tracing: Tracing{
			ServiceName: "emotion-tracker",
		},
		Events: Events{Provider: "log"},
		CircuitBreaker: CircuitBreaker{
			Enabled:          true,
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
	}
}

// YAMLLoader loads configuration from YAML files.
type YAMLLoader struct{}

func (y *YAMLLoader) Load(reader io.Reader, target interface{}) error {
	return yaml.NewDecoder(reader).Decode(target)
}

func (y *YAMLLoader) Extension() string {
	return "yaml"
}

// JSONLoader loads configuration from JSON files.
type JSONLoader struct{}

func (j *JSONLoader) Load(reader io.Reader, target interface{}) error {
	return json.NewDecoder(reader).Decode(target)
}

func (j *JSONLoader) Extension() string {
	return "json"
}

func parseBool(s string) bool {
	val, _ := strconv.ParseBool(s)
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// configDir is where LoadWithLoader and the watcher look for files.
func configDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}

// DefaultLoader reads CONFIG_DIR for the APP_ENV environment.
func DefaultLoader() *Loader {
	return NewLoader(configDir(), getEnvironment())
}

// LoadWithLoader loads configuration for APP_ENV from CONFIG_DIR.
func LoadWithLoader() (*Config, error) {
	return DefaultLoader().Load()
}

// MustLoadWithLoader loads configuration and panics on error.
// Use this only in main functions.
func MustLoadWithLoader() *Config {
	cfg, err := LoadWithLoader()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
