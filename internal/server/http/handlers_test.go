package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockRunner implements JobRunner for HTTP handler tests.
type mockRunner struct {
	submitFn func(req domain.SearchRequest) string
	pollFn   func(jobID string) (domain.JobProgress, bool)
}

func (m *mockRunner) Submit(req domain.SearchRequest) string {
	if m.submitFn != nil {
		return m.submitFn(req)
	}
	return "job-test"
}

func (m *mockRunner) Poll(jobID string) (domain.JobProgress, bool) {
	if m.pollFn != nil {
		return m.pollFn(jobID)
	}
	return domain.JobProgress{}, false
}

// mockGenerator implements QueryGenerator for HTTP handler tests.
type mockGenerator struct {
	enabled    bool
	generateFn func(ctx context.Context, topic string) (string, error)
}

func (m *mockGenerator) Enabled() bool { return m.enabled }

func (m *mockGenerator) Model() string { return "test-model" }

func (m *mockGenerator) Generate(ctx context.Context, topic string) (string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, topic)
	}
	return "", errors.New("not configured")
}

// mockSearchRepo implements repository.SearchRepository for HTTP handler tests.
type mockSearchRepo struct {
	saveFn       func(ctx context.Context, params *domain.SearchParameters, articles []domain.Article) (int64, error)
	getHistoryFn func(ctx context.Context, limit int) ([]domain.SearchSummary, error)
	getByIDFn    func(ctx context.Context, id int64) (*domain.SearchRecord, error)
}

func (m *mockSearchRepo) Save(ctx context.Context, params *domain.SearchParameters, articles []domain.Article) (int64, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, params, articles)
	}
	return 1, nil
}

func (m *mockSearchRepo) GetHistory(ctx context.Context, limit int) ([]domain.SearchSummary, error) {
	if m.getHistoryFn != nil {
		return m.getHistoryFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockSearchRepo) GetByID(ctx context.Context, id int64) (*domain.SearchRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestHTTPServer creates a Server configured for testing with mocked dependencies.
func newTestHTTPServer(runner JobRunner, generator QueryGenerator, repo *mockSearchRepo) *Server {
	s := &Server{
		runner:     runner,
		generator:  generator,
		searchRepo: repo,
		validate:   validator.New(),
		logger:     zerolog.Nop(),
	}
	s.router = s.buildRouter("")
	return s
}

// serveHTTP dispatches a request through the test server's router and returns the recorder.
func serveHTTP(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, r)
	return rr
}

// postJSON builds a POST request with a JSON body.
func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeJSON decodes a JSON response body into the given target.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Tests: submitSearch
// ---------------------------------------------------------------------------

func TestSubmitSearch_Success(t *testing.T) {
	var submitted domain.SearchRequest
	runner := &mockRunner{
		submitFn: func(req domain.SearchRequest) string {
			submitted = req
			return "job-42"
		},
	}
	srv := newTestHTTPServer(runner, nil, &mockSearchRepo{})

	body := `{"query":"telomere[tiab] AND aging[tiab]","user_topic":"telomeres and aging","min_year":"2020","max_year":"2024","min_score":25,"article_types":["Review"]}`
	rr := serveHTTP(srv, postJSON("/api/v1/searches", body))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp searchSubmitResponse
	decodeJSON(t, rr, &resp)

	if resp.JobID != "job-42" {
		t.Errorf("expected job_id job-42, got %s", resp.JobID)
	}
	if resp.Status != string(domain.StatusStarting) {
		t.Errorf("expected status %q, got %q", domain.StatusStarting, resp.Status)
	}

	if submitted.UserTopic != "telomeres and aging" {
		t.Errorf("expected user topic to be passed through, got %q", submitted.UserTopic)
	}
	if submitted.MinScore != 25 {
		t.Errorf("expected min_score 25, got %v", submitted.MinScore)
	}
	// The submitted query must carry the year filter.
	want := "telomere[tiab] AND aging[tiab] AND 2020:2024[pdat]"
	if submitted.Query != want {
		t.Errorf("expected final query %q, got %q", want, submitted.Query)
	}
}

func TestSubmitSearch_MissingQuery(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, postJSON("/api/v1/searches", `{"user_topic":"aging"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitSearch_InvalidJSON(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, postJSON("/api/v1/searches", `{"query":`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSubmitSearch_InvalidYears(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	cases := map[string]string{
		"non-numeric year": `{"query":"cancer","min_year":"20xx"}`,
		"short year":       `{"query":"cancer","min_year":"99"}`,
		"inverted range":   `{"query":"cancer","min_year":"2024","max_year":"2020"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := serveHTTP(srv, postJSON("/api/v1/searches", body))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSubmitSearch_NegativeMinScore(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, postJSON("/api/v1/searches", `{"query":"cancer","min_score":-1}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Tests: pollSearch
// ---------------------------------------------------------------------------

func TestPollSearch_Found(t *testing.T) {
	runner := &mockRunner{
		pollFn: func(jobID string) (domain.JobProgress, bool) {
			if jobID != "job-7" {
				t.Errorf("expected poll for job-7, got %s", jobID)
			}
			return domain.JobProgress{
				JobID:    "job-7",
				Status:   domain.StatusFetching,
				Progress: 45,
				Message:  "Fetching details for 120 articles...",
			}, true
		},
	}
	srv := newTestHTTPServer(runner, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/searches/job-7", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var progress domain.JobProgress
	decodeJSON(t, rr, &progress)
	if progress.Status != domain.StatusFetching {
		t.Errorf("expected fetching status, got %s", progress.Status)
	}
	if progress.Progress != 45 {
		t.Errorf("expected progress 45, got %d", progress.Progress)
	}
}

func TestPollSearch_NotFound(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/searches/unknown", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: generateQuery
// ---------------------------------------------------------------------------

func TestGenerateQuery_UsesGenerator(t *testing.T) {
	generator := &mockGenerator{
		enabled: true,
		generateFn: func(_ context.Context, topic string) (string, error) {
			if topic != "CRISPR off-target effects" {
				t.Errorf("unexpected topic %q", topic)
			}
			return "CRISPR[tiab] AND off-target[tiab]", nil
		},
	}
	srv := newTestHTTPServer(&mockRunner{}, generator, &mockSearchRepo{})

	body := `{"topic":"CRISPR off-target effects","min_year":"2021"}`
	rr := serveHTTP(srv, postJSON("/api/v1/queries", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp queryGenerateResponse
	decodeJSON(t, rr, &resp)

	if resp.FallbackUsed {
		t.Error("expected fallback_used to be false")
	}
	if resp.Query != "CRISPR[tiab] AND off-target[tiab]" {
		t.Errorf("unexpected query %q", resp.Query)
	}
	if resp.Model != "test-model" {
		t.Errorf("expected model to be reported, got %q", resp.Model)
	}
	want := "CRISPR[tiab] AND off-target[tiab] AND 2021:[pdat]"
	if resp.FinalQuery != want {
		t.Errorf("expected final query %q, got %q", want, resp.FinalQuery)
	}
}

func TestGenerateQuery_FallbackOnError(t *testing.T) {
	generator := &mockGenerator{
		enabled: true,
		generateFn: func(_ context.Context, _ string) (string, error) {
			return "", errors.New("upstream down")
		},
	}
	srv := newTestHTTPServer(&mockRunner{}, generator, &mockSearchRepo{})

	rr := serveHTTP(srv, postJSON("/api/v1/queries", `{"topic":"insulin resistance"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp queryGenerateResponse
	decodeJSON(t, rr, &resp)

	if !resp.FallbackUsed {
		t.Error("expected fallback_used to be true")
	}
	if resp.Query == "" {
		t.Error("expected a fallback query")
	}
	if resp.Model != "" {
		t.Errorf("expected no model on fallback, got %q", resp.Model)
	}
}

func TestGenerateQuery_NoGeneratorConfigured(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, postJSON("/api/v1/queries", `{"topic":"gut microbiome"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp queryGenerateResponse
	decodeJSON(t, rr, &resp)
	if !resp.FallbackUsed {
		t.Error("expected fallback_used to be true")
	}
}

func TestGenerateQuery_MissingTopic(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, postJSON("/api/v1/queries", `{"topic":"  "}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: history
// ---------------------------------------------------------------------------

func TestListHistory_DefaultLimit(t *testing.T) {
	var requestedLimit int
	repo := &mockSearchRepo{
		getHistoryFn: func(_ context.Context, limit int) ([]domain.SearchSummary, error) {
			requestedLimit = limit
			return []domain.SearchSummary{
				{ID: 2, UserTopic: "aging", TotalResults: 120, FilteredResults: 40},
				{ID: 1, UserTopic: "cancer", TotalResults: 300, FilteredResults: 75},
			}, nil
		},
	}
	srv := newTestHTTPServer(&mockRunner{}, nil, repo)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if requestedLimit != 10 {
		t.Errorf("expected default limit 10, got %d", requestedLimit)
	}

	var resp historyListResponse
	decodeJSON(t, rr, &resp)
	if resp.Count != 2 {
		t.Errorf("expected count 2, got %d", resp.Count)
	}
	if resp.Searches[0].ID != 2 {
		t.Errorf("expected newest search first, got id %d", resp.Searches[0].ID)
	}
}

func TestListHistory_ExplicitLimit(t *testing.T) {
	var requestedLimit int
	repo := &mockSearchRepo{
		getHistoryFn: func(_ context.Context, limit int) ([]domain.SearchSummary, error) {
			requestedLimit = limit
			return nil, nil
		},
	}
	srv := newTestHTTPServer(&mockRunner{}, nil, repo)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=25", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if requestedLimit != 25 {
		t.Errorf("expected limit 25, got %d", requestedLimit)
	}
}

func TestListHistory_InvalidLimit(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=abc", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestGetHistoryEntry_Success(t *testing.T) {
	repo := &mockSearchRepo{
		getByIDFn: func(_ context.Context, id int64) (*domain.SearchRecord, error) {
			if id != 12 {
				t.Errorf("expected lookup of id 12, got %d", id)
			}
			return &domain.SearchRecord{
				Summary:  domain.SearchSummary{ID: 12, UserTopic: "sepsis biomarkers"},
				Articles: []domain.Article{{PMID: "100", Title: "A sepsis study", Score: 55}},
			}, nil
		},
	}
	srv := newTestHTTPServer(&mockRunner{}, nil, repo)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/history/12", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var record domain.SearchRecord
	decodeJSON(t, rr, &record)
	if record.Summary.ID != 12 {
		t.Errorf("expected summary id 12, got %d", record.Summary.ID)
	}
	if len(record.Articles) != 1 || record.Articles[0].PMID != "100" {
		t.Errorf("unexpected articles payload: %+v", record.Articles)
	}
}

func TestGetHistoryEntry_NotFound(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/history/999", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestGetHistoryEntry_InvalidID(t *testing.T) {
	srv := newTestHTTPServer(&mockRunner{}, nil, &mockSearchRepo{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/history/zero", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
