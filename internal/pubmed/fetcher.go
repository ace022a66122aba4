package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/httpx"
	"github.com/helixir/pubmed-search-service/internal/observability"
)

const (
	// DefaultBatchSize is the number of PMIDs requested per efetch call.
	DefaultBatchSize = 1000

	// postIDThreshold is the batch size above which efetch switches to
	// a form-encoded POST to avoid URI-length limits.
	postIDThreshold = 200

	// DefaultFetchTimeout is the per-request timeout for efetch calls,
	// which return far larger payloads than esearch.
	DefaultFetchTimeout = 120 * time.Second

	// DefaultInterBatchDelay paces successive efetch batches.
	DefaultInterBatchDelay = time.Second

	// DefaultRetryDelay is the initial backoff before a batch retry.
	DefaultRetryDelay = 2 * time.Second

	// DefaultMaxAttempts bounds attempts per batch, including the first.
	DefaultMaxAttempts = 3

	// cursorRetMax is the retrieval bound for the history-cursor path.
	cursorRetMax = 10000
)

// ProgressFunc receives fetch progress at batch boundaries. It is
// called synchronously from the fetch path and must return promptly.
type ProgressFunc func(processed, total int)

// FetcherConfig holds the configuration for the detail fetcher.
type FetcherConfig struct {
	// BaseURL is the base URL for the E-utilities API.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	APIKey string

	// BatchSize is the number of PMIDs per efetch call.
	BatchSize int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// InterBatchDelay is the pause between successive batches.
	InterBatchDelay time.Duration

	// RetryDelay is the initial backoff before a batch retry. It
	// doubles on each subsequent retry.
	RetryDelay time.Duration

	// MaxAttempts bounds attempts per batch, including the first.
	MaxAttempts int
}

func (c *FetcherConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultFetchTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.InterBatchDelay == 0 {
		c.InterBatchDelay = DefaultInterBatchDelay
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
}

// Fetcher retrieves full article records from the efetch endpoint in
// bounded batches, with per-batch retry and inter-batch pacing. A
// batch that exhausts its retries is dropped; the fetch continues with
// the remaining batches.
type Fetcher struct {
	config     FetcherConfig
	httpClient *httpx.Client
	normalizer *Normalizer
	sleep      httpx.SleepFunc
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// SetMetrics attaches a metrics registry. Recording is skipped when
// none is attached.
func (f *Fetcher) SetMetrics(m *observability.Metrics) {
	f.metrics = m
}

// NewFetcher creates a detail fetcher with its own rate-limited HTTP
// client and the given normalizer.
func NewFetcher(cfg FetcherConfig, normalizer *Normalizer, logger zerolog.Logger) *Fetcher {
	cfg.applyDefaults()

	httpCfg := httpx.ClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}

	return &Fetcher{
		config:     cfg,
		httpClient: httpx.NewClient(httpCfg),
		normalizer: normalizer,
		sleep:      httpx.SleepWithContext,
		logger:     logger.With().Str("component", "pubmed_fetcher").Logger(),
	}
}

// NewFetcherWithHTTPClient creates a fetcher with a custom HTTP client
// and sleep primitive. This is useful for testing with mock servers.
func NewFetcherWithHTTPClient(cfg FetcherConfig, httpClient *httpx.Client, normalizer *Normalizer, sleep httpx.SleepFunc, logger zerolog.Logger) *Fetcher {
	cfg.applyDefaults()
	if sleep == nil {
		sleep = httpx.SleepWithContext
	}
	return &Fetcher{
		config:     cfg,
		httpClient: httpClient,
		normalizer: normalizer,
		sleep:      sleep,
		logger:     logger.With().Str("component", "pubmed_fetcher").Logger(),
	}
}

// FetchDetails retrieves and normalizes full records for the result
// set. With a materialized ID list the PMIDs are fetched in batches in
// original order; with only a history cursor a single bounded request
// is issued. onProgress, when non-nil, is invoked before each batch
// and once more after the last.
func (f *Fetcher) FetchDetails(ctx context.Context, rs *domain.SearchResultSet, onProgress ProgressFunc) ([]domain.Article, error) {
	if rs == nil || rs.IsEmpty() {
		return nil, domain.ErrNoResults
	}

	if len(rs.IDs) > 0 {
		return f.fetchByIDs(ctx, rs.IDs, onProgress)
	}
	return f.fetchByCursor(ctx, rs.WebEnv, rs.QueryKey)
}

func (f *Fetcher) fetchByIDs(ctx context.Context, pmids []string, onProgress ProgressFunc) ([]domain.Article, error) {
	total := len(pmids)
	batchSize := f.config.BatchSize
	totalBatches := (total + batchSize - 1) / batchSize

	var articles []domain.Article
	for i := 0; i < total; i += batchSize {
		end := i + batchSize
		if end > total {
			end = total
		}
		batch := pmids[i:end]
		batchNum := i/batchSize + 1

		f.report(onProgress, i, total)

		if f.metrics != nil {
			f.metrics.RecordFetchBatch()
		}
		batchArticles, err := f.fetchBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return articles, ctx.Err()
			}
			if f.metrics != nil {
				f.metrics.RecordFetchBatchFailed()
			}
			// Dropped batch; articles from it are simply absent.
			f.logger.Error().
				Err(err).
				Int("batch", batchNum).
				Int("total_batches", totalBatches).
				Int("batch_size", len(batch)).
				Msg("batch failed after retries, dropping")
		} else {
			articles = append(articles, batchArticles...)
			f.logger.Debug().
				Int("batch", batchNum).
				Int("total_batches", totalBatches).
				Int("articles", len(batchArticles)).
				Msg("batch complete")
		}

		if end < total {
			if err := f.sleep(ctx, f.config.InterBatchDelay); err != nil {
				return articles, err
			}
		}
	}

	f.report(onProgress, total, total)
	if f.metrics != nil {
		f.metrics.RecordArticlesFetched(len(articles))
	}

	f.logger.Info().Int("articles", len(articles)).Int("pmids", total).Msg("detail fetch complete")
	return articles, nil
}

// fetchBatch requests one batch of PMIDs with retry on
// connection-class failures.
func (f *Fetcher) fetchBatch(ctx context.Context, pmids []string) ([]domain.Article, error) {
	policy := httpx.RetryPolicy{
		MaxAttempts:  f.config.MaxAttempts,
		InitialDelay: f.config.RetryDelay,
		Retryable:    httpx.IsConnectionError,
		Sleep:        f.sleep,
	}

	var articles []domain.Article
	err := policy.Do(ctx, func() error {
		params := url.Values{}
		params.Set("db", "pubmed")
		params.Set("retmode", "xml")
		params.Set("id", strings.Join(pmids, ","))
		if f.config.APIKey != "" {
			params.Set("api_key", f.config.APIKey)
		}

		set, err := f.efetch(ctx, params, len(pmids) > postIDThreshold)
		if err != nil {
			return err
		}
		articles = f.normalizer.Parse(set)
		return nil
	})
	return articles, err
}

func (f *Fetcher) fetchByCursor(ctx context.Context, webEnv, queryKey string) ([]domain.Article, error) {
	f.logger.Debug().Msg("fetching details via history cursor")

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("retmode", "xml")
	params.Set("WebEnv", webEnv)
	params.Set("query_key", queryKey)
	params.Set("retstart", "0")
	params.Set("retmax", strconv.Itoa(cursorRetMax))
	if f.config.APIKey != "" {
		params.Set("api_key", f.config.APIKey)
	}

	if f.metrics != nil {
		f.metrics.RecordFetchBatch()
	}
	set, err := f.efetch(ctx, params, false)
	if err != nil {
		if f.metrics != nil {
			f.metrics.RecordFetchBatchFailed()
		}
		return nil, err
	}
	articles := f.normalizer.Parse(set)
	if f.metrics != nil {
		f.metrics.RecordArticlesFetched(len(articles))
	}
	f.logger.Info().Int("articles", len(articles)).Msg("cursor fetch complete")
	return articles, nil
}

// efetch executes one efetch call and parses the article set.
func (f *Fetcher) efetch(ctx context.Context, params url.Values, usePost bool) (*PubmedArticleSet, error) {
	endpoint := f.config.BaseURL + "/efetch.fcgi"
	encoded := params.Encode()

	var req *http.Request
	var err error
	if usePost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+encoded, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%s returned an empty response", sourceName)
	}

	var set PubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}
	return &set, nil
}

// report forwards progress to the sink, shielding the fetch path from
// a misbehaving callback.
func (f *Fetcher) report(onProgress ProgressFunc, processed, total int) {
	if onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn().Interface("panic", r).Msg("progress callback panicked")
		}
	}()
	onProgress(processed, total)
}
