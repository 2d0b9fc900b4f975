package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader(t.TempDir(), Test).WithLookup(envMap(map[string]string{
		"ALLOW_ANONYMOUS": "true",
	})).Load()
	require.NoError(t, err)

	assert.Equal(t, Test, cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Draft.TTL)
	assert.Equal(t, "authenticated", cfg.Security.JWTAudience)
	assert.Equal(t, []string{"defaults", "environment"}, cfg.LoadedFrom)
}

func TestShippedConfigRespondsBeforeWriteDeadline(t *testing.T) {
	dir := filepath.Join("..", "..", "config")
	cfg, err := NewLoader(dir, Test).WithLookup(envMap(nil)).Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.LoadedFrom, filepath.Join(dir, "base.yaml"))
	assert.Less(t, cfg.Server.RequestTimeout, cfg.Server.WriteTimeout)
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: 9000
store:
  backend: sqlite
sqlite:
  path: base.db
draft:
  ttl: 30m
security:
  jwt_secret: from-file
`)
	writeFile(t, dir, "staging.yaml", `
sqlite:
  path: staging.db
logging:
  level: warn
`)

	cfg, err := NewLoader(dir, Staging).WithLookup(envMap(map[string]string{
		"SQLITE_PATH": "/data/env.db",
		"LOG_LEVEL":   "error",
	})).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/data/env.db", cfg.SQLite.Path)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 30*time.Minute, cfg.Draft.TTL)
	assert.True(t, cfg.Security.CookieSecure, "staging forces secure cookies")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Len(t, cfg.LoadedFrom, 4)
}

func TestLoadLocalOnlyInDevelopment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "security:\n  allow_anonymous: true\n")
	writeFile(t, dir, "local.json", `{"server": {"port": 7000}}`)

	dev, err := NewLoader(dir, Development).WithLookup(envMap(nil)).Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, dev.Server.Port)
	assert.Equal(t, "console", dev.Logging.Format)

	test, err := NewLoader(dir, Test).WithLookup(envMap(nil)).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, test.Server.Port)
}

func TestLoadErrors(t *testing.T) {
	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "server: [unclosed")
		_, err := NewLoader(dir, Test).WithLookup(envMap(nil)).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load base config")
	})

	t.Run("malformed env duration", func(t *testing.T) {
		_, err := NewLoader(t.TempDir(), Test).WithLookup(envMap(map[string]string{
			"ALLOW_ANONYMOUS": "true",
			"DRAFT_TTL":       "soon",
		})).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DRAFT_TTL")
	})

	t.Run("validation", func(t *testing.T) {
		_, err := NewLoader(t.TempDir(), Test).WithLookup(envMap(nil)).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt_secret")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := NewLoader(t.TempDir(), Test).WithLookup(envMap(map[string]string{
			"JWT_SECRET": "secret",
		})).Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"request timeout outlives write timeout", func(c *Config) {
			c.Server.RequestTimeout = 30 * time.Second
			c.Server.WriteTimeout = 15 * time.Second
		}, "server.request_timeout"},
		{"no write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }, ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, "store.backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, "postgres.dsn"},
		{"supabase without key", func(c *Config) {
			c.Store.Backend = BackendSupabase
			c.Supabase.URL = "https://x.supabase.co"
		}, "supabase key"},
		{"supabase with anon key", func(c *Config) {
			c.Store.Backend = BackendSupabase
			c.Supabase.URL = "https://x.supabase.co"
			c.Supabase.AnonKey = "anon"
		}, ""},
		{"redis drafts without addr", func(c *Config) {
			c.Draft.Backend = "redis"
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"zero ttl", func(c *Config) { c.Draft.TTL = 0 }, "draft.ttl"},
		{"anonymous in production", func(c *Config) {
			c.Environment = Production
			c.Security.AllowAnonymous = true
		}, "allow_anonymous"},
		{"eventbridge without bus", func(c *Config) { c.Events.Provider = "eventbridge" }, "event_bus_name"},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, "tracing.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSupabaseKeyPrefersServiceRole(t *testing.T) {
	assert.Equal(t, "anon", Supabase{AnonKey: "anon"}.Key())
	assert.Equal(t, "service", Supabase{AnonKey: "anon", ServiceRoleKey: "service"}.Key())
}

func TestGetEnvironment(t *testing.T) {
	for raw, want := range map[string]Environment{
		"":           Development,
		"prod":       Production,
		"PRODUCTION": Production,
		"staging":    Staging,
		"test":       Test,
	} {
		t.Setenv("APP_ENV", raw)
		assert.Equal(t, want, getEnvironment(), raw)
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "security:\n  allow_anonymous: true\nlogging:\n  level: info\n")
	loader := NewLoader(dir, Test).WithLookup(envMap(nil))
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := NewConfigWatcher(initial, loader, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var levels []string
	w.OnChange(func(c *Config) { levels = append(levels, c.Logging.Level) })
	w.OnChange(func(*Config) { panic("listener bug") })

	w.Reload()
	assert.Empty(t, levels, "unchanged configuration notifies nobody")

	writeFile(t, dir, "base.yaml", "security:\n  allow_anonymous: true\nlogging:\n  level: debug\n")
	w.Reload()
	assert.Equal(t, []string{"debug"}, levels)
	assert.Equal(t, "debug", w.GetConfig().Logging.Level)

	writeFile(t, dir, "base.yaml", "store:\n  backend: nope\n")
	w.Reload()
	assert.Equal(t, "debug", w.GetConfig().Logging.Level, "invalid reload keeps the current config")
	assert.Len(t, levels, 1)

	w.Stop()
}

func TestWatcherPicksUpFileChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "security:\n  allow_anonymous: true\n")
	loader := NewLoader(dir, Development).WithLookup(envMap(nil))
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := NewConfigWatcher(initial, loader, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan string, 1)
	w.OnChange(func(c *Config) {
		select {
		case changed <- c.Logging.Level:
		default:
		}
	})

	writeFile(t, dir, "base.yaml", "security:\n  allow_anonymous: true\nlogging:\n  level: warn\n")
	select {
	case level := <-changed:
		assert.Equal(t, "warn", level)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
}

func TestIsConfigFile(t *testing.T) {
	for path, want := range map[string]bool{
		"config/base.yaml": true,
		"local.yml":        true,
		"x.json":           true,
		"x.yaml.swp":       false,
		".env":             false,
	} {
		assert.Equal(t, want, isConfigFile(path), path)
	}
}
