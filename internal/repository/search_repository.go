// Package repository handles persistence of search runs and their articles.
package repository

import (
	"context"

	"github.com/helixir/pubmed-search-service/internal/domain"
)

// History listing bounds.
const (
	// DefaultHistoryLimit is applied when the caller does not specify one.
	DefaultHistoryLimit = 10
	// MaxHistoryLimit caps the number of history rows per listing.
	MaxHistoryLimit = 100
)

// SearchRepository persists completed search runs and serves the history API.
type SearchRepository interface {
	// Save stores a completed search run together with its filtered
	// articles and returns the assigned search ID. Duplicate PMIDs within
	// the run are stored once.
	Save(ctx context.Context, params *domain.SearchParameters, articles []domain.Article) (int64, error)

	// GetHistory returns the most recent search runs, newest first.
	// A non-positive limit falls back to DefaultHistoryLimit.
	GetHistory(ctx context.Context, limit int) ([]domain.SearchSummary, error)

	// GetByID returns one persisted search run with its articles in
	// descending score order.
	// Returns domain.ErrNotFound if no matching run exists.
	GetByID(ctx context.Context, id int64) (*domain.SearchRecord, error)
}
