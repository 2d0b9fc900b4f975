package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/config"
	"github.com/wangmul/emotion-tracker/internal/migration"
	"github.com/wangmul/emotion-tracker/internal/observability"
	"github.com/wangmul/emotion-tracker/internal/repository/sqlstore"
)

type runContext struct {
	cfg    *config.Config
	logger *zap.Logger
}

// Target picks the database from flags, falling back to the configured
// backend.
type Target struct {
	Postgres string `help:"Postgres DSN. Overrides the configured backend." env:"DATABASE_URL"`
	SQLite   string `name:"sqlite" help:"SQLite file path. Overrides the configured backend." type:"path"`
}

func (t Target) open(cfg *config.Config) (*sql.DB, migration.Dialect, error) {
	switch {
	case t.Postgres != "":
		db, err := sqlstore.OpenPostgres(t.Postgres)
		return db, migration.Postgres, err
	case t.SQLite != "":
		db, err := sqlstore.OpenSQLite(t.SQLite)
		return db, migration.SQLite, err
	case cfg.Store.Backend == config.BackendPostgres:
		db, err := sqlstore.OpenPostgres(cfg.Postgres.DSN)
		return db, migration.Postgres, err
	case cfg.Store.Backend == config.BackendSQLite:
		db, err := sqlstore.OpenSQLite(cfg.SQLite.Path)
		return db, migration.SQLite, err
	default:
		return nil, "", fmt.Errorf("store backend %q has no SQL schema; pass --postgres or --sqlite", cfg.Store.Backend)
	}
}

type UpCmd struct {
	Target  `embed:""`
	Timeout time.Duration `help:"Give up after this long." default:"2m"`
}

func (c *UpCmd) Run(rc *runContext) error {
	db, dialect, err := c.open(rc.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := migration.NewRunner(db, dialect, rc.logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	applied, err := runner.Apply(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Applied %d migration(s) to %s\n", applied, dialect)
	return nil
}

type StatusCmd struct {
	Target `embed:""`
}

func (c *StatusCmd) Run(rc *runContext) error {
	db, dialect, err := c.open(rc.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := migration.NewRunner(db, dialect, rc.logger)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := runner.EnsureSchemaVersionTable(ctx); err != nil {
		return err
	}
	current, err := runner.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	all, err := runner.ReadMigrations()
	if err != nil {
		return err
	}
	latest := 0
	if len(all) > 0 {
		latest = all[len(all)-1].Version
	}
	fmt.Printf("%s schema at version %d of %d\n", dialect, current, latest)
	for _, m := range all {
		if m.Version > current {
			fmt.Printf("  pending: %04d %s\n", m.Version, m.Name)
		}
	}
	return nil
}

var CLI struct {
	LogLevel string `help:"Log level." default:"info" enum:"debug,info,warn,error"`

	Up     UpCmd     `cmd:"" help:"Apply pending migrations." default:"1"`
	Status StatusCmd `cmd:"" help:"Show the current schema version."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("migrate"),
		kong.Description("Apply the journal schema to a Postgres or SQLite database"),
		kong.UsageOnError(),
	)

	cfg, err := config.LoadWithLoader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(observability.LoggingConfig{
		Level:       CLI.LogLevel,
		Format:      "console",
		Environment: string(cfg.Environment),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := ctx.Run(&runContext{cfg: cfg, logger: logger}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
