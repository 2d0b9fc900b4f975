// Package config loads the service configuration from layered YAML/JSON files
// and environment variables, and hot reloads it in development.
//
// Loading order, lowest priority first:
//
//	1. defaults in code
//	2. config/base.yaml
//	3. config/<environment>.yaml
//	4. config/local.yaml (development only)
//	5. environment variables
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Test        Environment = "test"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendDynamoDB = "dynamodb"
)

// Config is the complete service configuration.
type Config struct {
	Environment    Environment    `yaml:"environment" json:"environment"`
	Server         Server         `yaml:"server" json:"server"`
	Store          Store          `yaml:"store" json:"store"`
	Supabase       Supabase       `yaml:"supabase" json:"supabase"`
	Postgres       Postgres       `yaml:"postgres" json:"postgres"`
	SQLite         SQLite         `yaml:"sqlite" json:"sqlite"`
	DynamoDB       DynamoDB       `yaml:"dynamodb" json:"dynamodb"`
	Redis          Redis          `yaml:"redis" json:"redis"`
	Draft          Draft          `yaml:"draft" json:"draft"`
	Security       Security       `yaml:"security" json:"security"`
	Logging        Logging        `yaml:"logging" json:"logging"`
	Metrics        Metrics        `yaml:"metrics" json:"metrics"`
	Tracing        Tracing        `yaml:"tracing" json:"tracing"`
	Events         Events         `yaml:"events" json:"events"`
	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker" json:"circuit_breaker"`

	// LoadedFrom lists the sources applied, in order.
	LoadedFrom []string `yaml:"-" json:"-"`
}

type Server struct {
	Port            int           `yaml:"port" json:"port"`
	Host            string        `yaml:"host" json:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Store struct {
	Backend string `yaml:"backend" json:"backend"`
	// Migrate applies embedded migrations on startup for SQL backends.
	Migrate bool `yaml:"migrate" json:"migrate"`
}

type Supabase struct {
	URL            string `yaml:"url" json:"url"`
	AnonKey        string `yaml:"anon_key" json:"anon_key"`
	ServiceRoleKey string `yaml:"service_role_key" json:"service_role_key"`
}

// Key returns the key used for data access, preferring the service role.
func (s Supabase) Key() string {
	if s.ServiceRoleKey != "" {
		return s.ServiceRoleKey
	}
	return s.AnonKey
}

type Postgres struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

type SQLite struct {
	Path string `yaml:"path" json:"path"`
}

type DynamoDB struct {
	TableName string `yaml:"table_name" json:"table_name"`
	IndexName string `yaml:"index_name" json:"index_name"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
}

type Redis struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

type Draft struct {
	Backend       string        `yaml:"backend" json:"backend"` // memory or redis
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

type Security struct {
	AllowAnonymous bool          `yaml:"allow_anonymous" json:"allow_anonymous"`
	JWTSecret      string        `yaml:"jwt_secret" json:"jwt_secret"`
	JWTAudience    string        `yaml:"jwt_audience" json:"jwt_audience"`
	JWTIssuer      string        `yaml:"jwt_issuer" json:"jwt_issuer"`
	JWTLeeway      time.Duration `yaml:"jwt_leeway" json:"jwt_leeway"`
	CookieSecure   bool          `yaml:"cookie_secure" json:"cookie_secure"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
}

type Logging struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
	Path      string `yaml:"path" json:"path"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
}

type Events struct {
	Provider     string `yaml:"provider" json:"provider"` // log, eventbridge or none
	EventBusName string `yaml:"event_bus_name" json:"event_bus_name"`
}

type CircuitBreaker struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold" json:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests" json:"min_requests"`
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Environment {
	case Development, Staging, Production, Test:
	default:
		problems = append(problems, fmt.Sprintf("unknown environment %q", c.Environment))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.WriteTimeout > 0 && c.Server.RequestTimeout >= c.Server.WriteTimeout {
		problems = append(problems, fmt.Sprintf("server.request_timeout %s must be below server.write_timeout %s",
			c.Server.RequestTimeout, c.Server.WriteTimeout))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			problems = append(problems, "sqlite.path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			problems = append(problems, "postgres.dsn is required for the postgres backend")
		}
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.Key() == "" {
			problems = append(problems, "supabase.url and a supabase key are required for the supabase backend")
		}
	case BackendDynamoDB:
		if c.DynamoDB.TableName == "" {
			problems = append(problems, "dynamodb.table_name is required for the dynamodb backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.backend %q", c.Store.Backend))
	}

	switch c.Draft.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required for the redis draft backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown draft.backend %q", c.Draft.Backend))
	}
	if c.Draft.TTL <= 0 {
		problems = append(problems, "draft.ttl must be positive")
	}

	if !c.Security.AllowAnonymous && c.Security.JWTSecret == "" {
		problems = append(problems, "security.jwt_secret is required unless allow_anonymous is set")
	}
	if c.Environment == Production && c.Security.AllowAnonymous {
		problems = append(problems, "security.allow_anonymous cannot be enabled in production")
	}

	switch c.Events.Provider {
	case "log", "none", "":
	case "eventbridge":
		if c.Events.EventBusName == "" {
			problems = append(problems, "events.event_bus_name is required for eventbridge")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown events.provider %q", c.Events.Provider))
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		problems = append(problems, "tracing.endpoint is required when tracing is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// applyEnvironmentDefaults tightens settings the files left loose.
func (c *Config) applyEnvironmentDefaults() {
	switch c.Environment {
	case Production, Staging:
		c.Security.CookieSecure = true
		if c.Logging.Format == "" {
			c.Logging.Format = "json"
		}
	case Development:
		if c.Logging.Format == "" {
			c.Logging.Format = "console"
		}
	case Test:
		c.Tracing.Enabled = false
	}
}

// IsDevelopment reports whether hot reload and console logging apply.
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// getEnvironment reads APP_ENV, defaulting to development.
func getEnvironment() Environment {
	switch strings.ToLower(os.Getenv("APP_ENV")) {
	case "production", "prod":
		return Production
	case "staging":
		return Staging
	case "test":
		return Test
	default:
		return Development
	}
}
