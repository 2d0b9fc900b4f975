package migration

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReadMigrations(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite} {
		t.Run(string(d), func(t *testing.T) {
			r, err := NewRunner(nil, d, nil)
			require.NoError(t, err)
			migrations, err := r.ReadMigrations()
			require.NoError(t, err)
			require.Len(t, migrations, 2)
			assert.Equal(t, 1, migrations[0].Version)
			assert.Equal(t, "init", migrations[0].Name)
			assert.Equal(t, "self_soothing_methods", migrations[1].Name)
		})
	}
}

func TestUnknownDialect(t *testing.T) {
	_, err := NewRunner(nil, Dialect("mysql"), nil)
	assert.Error(t, err)
}

func TestApplySQLite(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	r, err := NewRunner(db, SQLite, nil)
	require.NoError(t, err)

	applied, err := r.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	version, err := r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	applied, err = r.Apply(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	_, err = db.ExecContext(ctx, `INSERT INTO daily_entries (id, owner_key, entry_date, created_at, updated_at) VALUES ('a', '', '2025-01-02', 'x', 'x')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO daily_entries (id, owner_key, entry_date, created_at, updated_at) VALUES ('b', '', '2025-01-02', 'x', 'x')`)
	assert.Error(t, err, "owner_key/entry_date is unique including the anonymous owner")
}

func TestApplyRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	r, err := NewRunner(db, SQLite, nil)
	require.NoError(t, err)
	require.NoError(t, r.EnsureSchemaVersionTable(ctx))
	_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (99)")
	require.NoError(t, err)

	_, err = r.Apply(ctx)
	assert.ErrorContains(t, err, "newer than supported")
}
