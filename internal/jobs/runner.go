package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/events"
	"github.com/helixir/pubmed-search-service/internal/observability"
	"github.com/helixir/pubmed-search-service/internal/pubmed"
	"github.com/helixir/pubmed-search-service/internal/repository"
	"github.com/helixir/pubmed-search-service/internal/scoring"
)

// Stage progress percentages. Fetching advances linearly from its floor to
// its ceiling proportional to processed/total.
const (
	progressSearching    = 10
	progressFetchFloor   = 30
	progressFetchCeiling = 70
	progressProcessing   = 80
	progressCompleted    = 100
)

// Searcher runs the two-phase count/fetch search.
type Searcher interface {
	Search(ctx context.Context, query string) (*domain.SearchResultSet, error)
}

// DetailFetcher retrieves full article records for a result set.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, rs *domain.SearchResultSet, onProgress pubmed.ProgressFunc) ([]domain.Article, error)
}

// Runner executes search pipelines, one goroutine per submitted job.
type Runner struct {
	store     *Store
	searcher  Searcher
	fetcher   DetailFetcher
	scorer    *scoring.Engine
	repo      repository.SearchRepository
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger

	// jobTimeout bounds one pipeline run. Zero means no deadline.
	jobTimeout time.Duration

	now func() time.Time
}

// RunnerConfig holds the collaborators and settings for a Runner.
type RunnerConfig struct {
	Store      *Store
	Searcher   Searcher
	Fetcher    DetailFetcher
	Scorer     *scoring.Engine
	Repository repository.SearchRepository
	Publisher  events.Publisher
	Metrics    *observability.Metrics
	JobTimeout time.Duration
}

// NewRunner creates a job runner.
func NewRunner(cfg RunnerConfig, logger zerolog.Logger) *Runner {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = scoring.NewEngine()
	}

	return &Runner{
		store:      cfg.Store,
		searcher:   cfg.Searcher,
		fetcher:    cfg.Fetcher,
		scorer:     scorer,
		repo:       cfg.Repository,
		publisher:  publisher,
		metrics:    cfg.Metrics,
		logger:     logger.With().Str("component", "job_runner").Logger(),
		jobTimeout: cfg.JobTimeout,
		now:        time.Now,
	}
}

// Submit registers a new job and starts its pipeline in the background.
// The returned job id is immediately poll-able via the store.
func (r *Runner) Submit(req domain.SearchRequest) string {
	jobID := uuid.NewString()
	r.store.Create(jobID)

	if r.metrics != nil {
		r.metrics.RecordJobStarted()
	}

	go r.run(jobID, req)

	return jobID
}

// Poll returns a snapshot of the job's progress record.
func (r *Runner) Poll(jobID string) (domain.JobProgress, bool) {
	return r.store.Get(jobID)
}

// run executes the full pipeline for one job. It is the sole writer of the
// job's progress record and always leaves it in a terminal state.
func (r *Runner) run(jobID string, req domain.SearchRequest) {
	logger := observability.WithJobContext(r.logger, jobID)
	started := r.now()

	ctx := context.Background()
	if r.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}
	ctx = observability.WithJobID(ctx, jobID)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("job panicked")
			r.fail(jobID, started, fmt.Sprintf("Search failed unexpectedly: %v", rec))
		}
	}()

	logger.Info().Str("query", req.Query).Msg("starting search job")

	// Search phase.
	r.store.Update(jobID, func(p *domain.JobProgress) {
		p.Status = domain.StatusSearching
		p.Progress = progressSearching
		p.Message = "Searching PubMed..."
	})

	rs, err := r.searcher.Search(ctx, req.Query)
	if err != nil {
		logger.Error().Err(err).Msg("search phase failed")
		r.fail(jobID, started, "Search request failed: "+err.Error())
		return
	}
	if rs.IsEmpty() {
		logger.Info().Msg("search returned no results")
		r.fail(jobID, started, "No articles found matching the search criteria")
		return
	}

	// Fetch phase.
	r.store.Update(jobID, func(p *domain.JobProgress) {
		p.Status = domain.StatusFetching
		p.Progress = progressFetchFloor
		p.TotalArticles = rs.TotalCount
		p.Message = fmt.Sprintf("Fetching details for %d articles...", rs.TotalCount)
	})

	articles, err := r.fetcher.FetchDetails(ctx, rs, func(processed, total int) {
		r.store.Update(jobID, func(p *domain.JobProgress) {
			p.ProcessedArticles = processed
			p.Progress = fetchProgress(processed, total)
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("fetch phase failed")
		r.fail(jobID, started, "Fetching article details failed: "+err.Error())
		return
	}
	if len(articles) == 0 {
		logger.Warn().Msg("no article details could be retrieved")
		r.fail(jobID, started, "No article details could be retrieved")
		return
	}

	// Processing phase: score, then the two filter stages.
	r.store.Update(jobID, func(p *domain.JobProgress) {
		p.Status = domain.StatusProcessing
		p.Progress = progressProcessing
		p.Message = "Scoring and filtering articles..."
	})

	r.scorer.Score(articles)
	filtered := scoring.FilterByMinScore(articles, req.MinScore)
	filtered = scoring.FilterByTypes(filtered, req.ArticleTypes)

	params := domain.SearchParameters{
		UserTopic:        req.UserTopic,
		AIGeneratedQuery: req.AIGeneratedQuery,
		FinalQuery:       req.Query,
		JournalFilter:    req.JournalFilter,
		YearRange:        yearRange(req.MinYear, req.MaxYear),
		MinScore:         req.MinScore,
		ArticleTypes:     strings.Join(req.ArticleTypes, ", "),
		TotalResults:     rs.TotalCount,
		FilteredResults:  len(filtered),
	}

	searchID, err := r.repo.Save(ctx, &params, filtered)
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist search results")
		r.fail(jobID, started, "Saving search results failed: "+err.Error())
		return
	}

	if err := r.publisher.PublishSearchCompleted(ctx, events.SearchCompletedEvent{
		JobID:         jobID,
		SearchID:      searchID,
		UserTopic:     req.UserTopic,
		FinalQuery:    req.Query,
		TotalFound:    rs.TotalCount,
		FilteredCount: len(filtered),
		CompletedAt:   r.now(),
	}); err != nil {
		// Event delivery is best-effort; the job result is already durable.
		logger.Warn().Err(err).Msg("failed to publish search completed event")
	}

	r.store.Update(jobID, func(p *domain.JobProgress) {
		p.Status = domain.StatusCompleted
		p.Progress = progressCompleted
		p.Message = fmt.Sprintf("Search completed: %d articles after filtering", len(filtered))
		p.TotalFound = rs.TotalCount
		p.FilteredCount = len(filtered)
		p.SearchID = searchID
		p.Result = &domain.JobResult{
			Articles:   filtered,
			Parameters: params,
			SearchID:   searchID,
		}
	})

	if r.metrics != nil {
		r.metrics.RecordJobCompleted(r.now().Sub(started).Seconds(), len(filtered))
	}

	logger.Info().
		Int64("search_id", searchID).
		Int("total_found", rs.TotalCount).
		Int("filtered", len(filtered)).
		Msg("search job completed")
}

// fail moves the job to the terminal error state with progress reset.
func (r *Runner) fail(jobID string, started time.Time, message string) {
	r.store.Update(jobID, func(p *domain.JobProgress) {
		p.Status = domain.StatusError
		p.Progress = 0
		p.Message = message
	})

	if r.metrics != nil {
		r.metrics.RecordJobFailed(r.now().Sub(started).Seconds())
	}
}

// fetchProgress maps processed/total onto the fetching progress band.
func fetchProgress(processed, total int) int {
	if total <= 0 {
		return progressFetchFloor
	}
	p := progressFetchFloor + processed*(progressFetchCeiling-progressFetchFloor)/total
	if p > progressFetchCeiling {
		p = progressFetchCeiling
	}
	return p
}

// yearRange renders the persisted year-range display string.
func yearRange(minYear, maxYear string) string {
	switch {
	case minYear != "" && maxYear != "":
		return minYear + "-" + maxYear
	case minYear != "":
		return minYear + "-"
	case maxYear != "":
		return "-" + maxYear
	default:
		return ""
	}
}
