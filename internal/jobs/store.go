// Package jobs runs search pipelines asynchronously and tracks their
// progress in a poll-able per-job record.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
)

// Store is a concurrency-safe table of job progress records. The worker
// executing a job is the sole writer for that job id; pollers receive
// point-in-time snapshots. Finished jobs are retained until evicted by an
// optional TTL sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry

	now func() time.Time
}

type storeEntry struct {
	progress   domain.JobProgress
	finishedAt time.Time
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*storeEntry),
		now:     time.Now,
	}
}

// Create registers a new job record in the starting state.
func (s *Store) Create(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[jobID] = &storeEntry{
		progress: domain.JobProgress{
			JobID:   jobID,
			Status:  domain.StatusStarting,
			Message: "Search job created",
		},
	}
}

// Get returns a snapshot of the job's progress record.
func (s *Store) Get(jobID string) (domain.JobProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[jobID]
	if !ok {
		return domain.JobProgress{}, false
	}
	return snapshot(&entry.progress), true
}

// Update applies fn to the job's record under the store lock. Terminal
// records are never modified. The worker owning the job id is the only
// expected caller.
func (s *Store) Update(jobID string, fn func(*domain.JobProgress)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[jobID]
	if !ok || entry.progress.Status.IsTerminal() {
		return
	}

	fn(&entry.progress)

	if entry.progress.Status.IsTerminal() {
		entry.finishedAt = s.now()
	}
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictExpired removes terminal records that finished more than ttl ago.
// Returns the number of evicted records.
func (s *Store) evictExpired(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, entry := range s.entries {
		if entry.progress.Status.IsTerminal() && entry.finishedAt.Before(cutoff) {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

// StartCleanup evicts expired terminal records every interval until the
// context is cancelled. A non-positive ttl disables eviction entirely.
func (s *Store) StartCleanup(ctx context.Context, ttl, interval time.Duration, logger zerolog.Logger) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.evictExpired(ttl); n > 0 {
					logger.Debug().Int("evicted", n).Msg("evicted expired job records")
				}
			}
		}
	}()
}

// snapshot copies the record so pollers never share memory with the worker.
func snapshot(p *domain.JobProgress) domain.JobProgress {
	out := *p
	if p.Result != nil {
		result := *p.Result
		out.Result = &result
	}
	return out
}
