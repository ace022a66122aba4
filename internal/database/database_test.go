package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pubmed-search-service/internal/config"
)

func testConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	return &config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: time.Second,
	}
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)

	db, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	assert.NotNil(t, db.SQL())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestHealth(t *testing.T) {
	cfg := testConfig(t)

	db, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	status := db.Health(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Empty(t, status.Error)
	assert.Equal(t, cfg.Path, status.Path)
}

func TestForeignKeysEnabled(t *testing.T) {
	cfg := testConfig(t)

	db, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	var enabled int
	require.NoError(t, db.SQL().QueryRow("PRAGMA foreign_keys").Scan(&enabled))
	assert.Equal(t, 1, enabled)
}
