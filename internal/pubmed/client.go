package pubmed

import (
	"context"
	"encoding/xml"
	"errors"
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
	"github.com/helixir/pubmed-search-service/internal/query"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout for esearch calls.
	DefaultTimeout = 30 * time.Second

	// MaxResultsLimit is the maximum results allowed per request by the API.
	MaxResultsLimit = 10000

	// maxGetURLLength is the estimated encoded size above which requests
	// switch to a form-encoded POST, to stay clear of URI-length limits.
	maxGetURLLength = 2000

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 10 << 20

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed search client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Timeout is the request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit (3 req/sec) if zero.
	// With an API key, you can increase this to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client executes the two-phase count/fetch search protocol against
// the esearch endpoint.
type Client struct {
	config     Config
	httpClient *httpx.Client
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// New creates a new PubMed search client with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpCfg := httpx.ClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}

	return &Client{
		config:     cfg,
		httpClient: httpx.NewClient(httpCfg),
		logger:     logger.With().Str("component", "pubmed_client").Logger(),
	}
}

// NewWithHTTPClient creates a client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *httpx.Client, logger zerolog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "pubmed_client").Logger(),
	}
}

// SetMetrics attaches a metrics registry. A nil registry leaves the
// client unchanged; recording is skipped when none is attached.
func (c *Client) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Search executes the two-phase search protocol:
//  1. A count-only esearch (retmax=0) to learn the total match count.
//  2. If matches exist, a second esearch with retmax capped at the API
//     limit to obtain PMIDs and, when granted, a WebEnv/QueryKey
//     history cursor.
//
// A structured error in the response is returned as a RemoteError; a
// zero match count returns an empty result set and no error. When the
// server rejects the query as too long even after POST pre-selection,
// the query is simplified once and both round-trips are re-run.
func (c *Client) Search(ctx context.Context, searchQuery string) (*domain.SearchResultSet, error) {
	if strings.TrimSpace(searchQuery) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if c.metrics != nil {
		c.metrics.RecordSearchRequest()
	}

	rs, err := c.searchOnce(ctx, searchQuery)
	if err != nil && errors.Is(err, domain.ErrQueryTooLong) {
		simplified := query.Simplify(searchQuery)
		c.logger.Warn().
			Int("original_length", len(searchQuery)).
			Int("simplified_length", len(simplified)).
			Msg("query rejected as too long, retrying with simplified query")
		if c.metrics != nil {
			c.metrics.RecordQuerySimplified()
		}
		rs, err = c.searchOnce(ctx, simplified)
	}
	if err != nil && c.metrics != nil {
		c.metrics.RecordSearchRequestFailed(searchErrorType(err))
	}
	return rs, err
}

// searchErrorType buckets search failures into a bounded label set.
func searchErrorType(err error) string {
	var remoteErr *domain.RemoteError
	var apiErr *domain.ExternalAPIError
	switch {
	case errors.Is(err, domain.ErrQueryTooLong):
		return "query_too_long"
	case errors.As(err, &remoteErr):
		return "remote_error"
	case errors.As(err, &apiErr):
		return "upstream_status"
	default:
		return "transport"
	}
}

// searchOnce runs both round-trips for a single query.
func (c *Client) searchOnce(ctx context.Context, searchQuery string) (*domain.SearchResultSet, error) {
	countResult, err := c.esearch(ctx, searchQuery, 0)
	if err != nil {
		return nil, err
	}
	if countResult.Error != "" {
		return nil, &domain.RemoteError{Source: sourceName, Message: countResult.Error}
	}

	totalCount := countResult.Count
	c.logger.Debug().Int("total_count", totalCount).Msg("search count phase complete")

	if totalCount == 0 {
		return &domain.SearchResultSet{}, nil
	}

	retMax := totalCount
	if retMax > MaxResultsLimit {
		retMax = MaxResultsLimit
	}

	idResult, err := c.esearch(ctx, searchQuery, retMax)
	if err != nil {
		return nil, err
	}
	if idResult.Error != "" {
		return nil, &domain.RemoteError{Source: sourceName, Message: idResult.Error}
	}

	rs := &domain.SearchResultSet{
		IDs:        idResult.IDList.IDs,
		TotalCount: totalCount,
	}
	if idResult.WebEnv != "" && idResult.QueryKey != "" {
		rs.WebEnv = idResult.WebEnv
		rs.QueryKey = idResult.QueryKey
	} else if len(rs.IDs) == 0 {
		// No cursor and no IDs: nothing fetchable came back.
		return &domain.SearchResultSet{}, nil
	}

	c.logger.Info().
		Int("total_count", totalCount).
		Int("ids", len(rs.IDs)).
		Bool("has_cursor", rs.HasCursor()).
		Msg("search complete")
	return rs, nil
}

// esearch performs one esearch round-trip with the given retmax.
func (c *Client) esearch(ctx context.Context, searchQuery string, retMax int) (*ESearchResult, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", searchQuery)
	params.Set("retmode", "xml")
	params.Set("retmax", strconv.Itoa(retMax))
	params.Set("usehistory", "y")
	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}

	endpoint := c.config.BaseURL + "/esearch.fcgi"

	body, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var result ESearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}

	return &result, nil
}

// doRequest executes a request against an E-utilities endpoint,
// selecting GET or form-encoded POST by estimated URL size, and
// returns the response body.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	encoded := params.Encode()

	var req *http.Request
	var err error
	if len(endpoint)+len(encoded)+1 > maxGetURLLength {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestURITooLong {
		return nil, fmt.Errorf("%s rejected request: %w", sourceName, domain.ErrQueryTooLong)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
