package database

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrationsPath = "../../migrations"

func TestNewMigrator_Validation(t *testing.T) {
	_, err := NewMigrator(nil, migrationsPath, zerolog.Nop())
	assert.ErrorContains(t, err, "database config is required")

	cfg := testConfig(t)
	_, err = NewMigrator(cfg, "", zerolog.Nop())
	assert.ErrorContains(t, err, "migrations path is required")

	_, err = NewMigrator(cfg, "does-not-exist", zerolog.Nop())
	assert.ErrorContains(t, err, "migrations path validation failed")
}

func TestMigrator_UpDown(t *testing.T) {
	cfg := testConfig(t)

	m, err := NewMigrator(cfg, migrationsPath, zerolog.Nop())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// Up again is a no-op.
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
}

func TestMigrator_CreatesSchema(t *testing.T) {
	cfg := testConfig(t)

	m, err := NewMigrator(cfg, migrationsPath, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"search_history", "articles"} {
		var name string
		err := db.SQL().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}
