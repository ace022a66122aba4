// Package database provides SQLite connectivity and schema management for the
// PubMed search service.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/config"
)

// Database operational constants.
const (
	// HealthCheckTimeout is the maximum time to wait for a health check ping.
	HealthCheckTimeout = 5 * time.Second
)

// HealthStatus contains database health information.
type HealthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Path   string `json:"path"`
}

// DB represents the SQLite database handle.
type DB struct {
	sqlDB  *sql.DB
	config *config.DatabaseConfig
	logger zerolog.Logger
}

// New opens the SQLite database and verifies the connection.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// contention between concurrent jobs.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	logger.Info().
		Str("path", cfg.Path).
		Msg("database opened")

	return &DB{
		sqlDB:  sqlDB,
		config: cfg,
		logger: logger,
	}, nil
}

// SQL returns the underlying sql.DB handle.
func (db *DB) SQL() *sql.DB {
	return db.sqlDB
}

// Close closes the database.
func (db *DB) Close() {
	if db.sqlDB != nil {
		if err := db.sqlDB.Close(); err != nil {
			db.logger.Error().Err(err).Msg("failed to close database")
			return
		}
		db.logger.Info().Msg("database closed")
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	return db.sqlDB.PingContext(ctx)
}

// Health returns the current database health status.
func (db *DB) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status: "healthy",
		Path:   db.config.Path,
	}

	if err := db.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.Error = err.Error()
	}

	return status
}
