package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/httpx"
)

// articleXML renders a minimal valid PubmedArticle for the given PMID.
func articleXML(pmid string) string {
	return fmt.Sprintf(`<PubmedArticle>
	<MedlineCitation>
		<PMID Version="1">%s</PMID>
		<Article>
			<Journal>
				<JournalIssue>
					<Volume>1</Volume>
					<PubDate><Year>2024</Year></PubDate>
				</JournalIssue>
				<Title>Nature</Title>
				<ISOAbbreviation>Nature</ISOAbbreviation>
			</Journal>
			<ArticleTitle>Article %s</ArticleTitle>
			<AuthorList>
				<Author><LastName>Doe</LastName><ForeName>Jane</ForeName></Author>
			</AuthorList>
		</Article>
	</MedlineCitation>
	<PubmedData>
		<ArticleIdList><ArticleId IdType="pubmed">%s</ArticleId></ArticleIdList>
	</PubmedData>
</PubmedArticle>`, pmid, pmid, pmid)
}

func articleSetXML(pmids ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" ?><PubmedArticleSet>`)
	for _, pmid := range pmids {
		b.WriteString(articleXML(pmid))
	}
	b.WriteString(`</PubmedArticleSet>`)
	return b.String()
}

type progressCall struct {
	processed int
	total     int
}

func pmidRange(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", 10000000+i)
	}
	return ids
}

func newTestFetcher(t *testing.T, baseURL string, cfg FetcherConfig, sleep httpx.SleepFunc) *Fetcher {
	t.Helper()
	cfg.BaseURL = baseURL
	normalizer := NewNormalizer(false, testLogger())
	return NewFetcherWithHTTPClient(cfg, testHTTPClient(), normalizer, sleep, testLogger())
}

func TestFetcher_FetchDetails(t *testing.T) {
	t.Run("partitions ids into batches and reports progress", func(t *testing.T) {
		var batchSizes []int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			ids := strings.Split(r.Form.Get("id"), ",")
			batchSizes = append(batchSizes, len(ids))
			fmt.Fprint(w, articleSetXML(ids[0]))
		}))
		defer server.Close()

		var delays []time.Duration
		sleep := func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}

		fetcher := newTestFetcher(t, server.URL, FetcherConfig{BatchSize: 1000}, sleep)

		var calls []progressCall
		rs := &domain.SearchResultSet{IDs: pmidRange(2500), TotalCount: 2500}
		articles, err := fetcher.FetchDetails(context.Background(), rs, func(processed, total int) {
			calls = append(calls, progressCall{processed, total})
		})
		require.NoError(t, err)

		assert.Equal(t, []int{1000, 1000, 500}, batchSizes)
		assert.Len(t, articles, 3)
		assert.Equal(t, []progressCall{
			{0, 2500},
			{1000, 2500},
			{2000, 2500},
			{2500, 2500},
		}, calls)
		// Pacing between batches, not after the last.
		assert.Equal(t, []time.Duration{DefaultInterBatchDelay, DefaultInterBatchDelay}, delays)
	})

	t.Run("small batches use GET, large batches use POST", func(t *testing.T) {
		var methods []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			methods = append(methods, r.Method)
			require.NoError(t, r.ParseForm())
			ids := strings.Split(r.Form.Get("id"), ",")
			fmt.Fprint(w, articleSetXML(ids[0]))
		}))
		defer server.Close()

		noSleep := func(context.Context, time.Duration) error { return nil }

		fetcher := newTestFetcher(t, server.URL, FetcherConfig{BatchSize: 150}, noSleep)
		rs := &domain.SearchResultSet{IDs: pmidRange(150), TotalCount: 150}
		_, err := fetcher.FetchDetails(context.Background(), rs, nil)
		require.NoError(t, err)

		fetcher = newTestFetcher(t, server.URL, FetcherConfig{BatchSize: 300}, noSleep)
		rs = &domain.SearchResultSet{IDs: pmidRange(300), TotalCount: 300}
		_, err = fetcher.FetchDetails(context.Background(), rs, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{http.MethodGet, http.MethodPost}, methods)
	})

	t.Run("failed batch is dropped and fetch continues", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			if strings.Contains(r.Form.Get("id"), "10000000") {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			ids := strings.Split(r.Form.Get("id"), ",")
			fmt.Fprint(w, articleSetXML(ids[0]))
		}))
		defer server.Close()

		noSleep := func(context.Context, time.Duration) error { return nil }
		fetcher := newTestFetcher(t, server.URL, FetcherConfig{BatchSize: 1}, noSleep)

		rs := &domain.SearchResultSet{IDs: []string{"10000000", "10000001"}, TotalCount: 2}
		articles, err := fetcher.FetchDetails(context.Background(), rs, nil)
		require.NoError(t, err)

		require.Len(t, articles, 1)
		assert.Equal(t, "10000001", articles[0].PMID)
	})

	t.Run("connection failures retry with doubling backoff", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		serverURL := server.URL
		server.Close()

		var delays []time.Duration
		sleep := func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}

		fetcher := newTestFetcher(t, serverURL, FetcherConfig{
			BatchSize:   10,
			RetryDelay:  2 * time.Second,
			MaxAttempts: 3,
		}, sleep)

		rs := &domain.SearchResultSet{IDs: pmidRange(10), TotalCount: 10}
		articles, err := fetcher.FetchDetails(context.Background(), rs, nil)
		require.NoError(t, err)
		assert.Empty(t, articles)

		// The batch retry policy sleeps twice: 2s then 4s. The inner
		// HTTP client adds its own short waits which use real time.
		assert.Contains(t, delays, 2*time.Second)
		assert.Contains(t, delays, 4*time.Second)
	})

	t.Run("cursor reference issues a single bounded request", func(t *testing.T) {
		var requests int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "MCID_abc123", r.Form.Get("WebEnv"))
			assert.Equal(t, "1", r.Form.Get("query_key"))
			assert.Equal(t, "0", r.Form.Get("retstart"))
			assert.Equal(t, "10000", r.Form.Get("retmax"))
			fmt.Fprint(w, articleSetXML("11111111", "22222222"))
		}))
		defer server.Close()

		noSleep := func(context.Context, time.Duration) error { return nil }
		fetcher := newTestFetcher(t, server.URL, FetcherConfig{}, noSleep)

		rs := &domain.SearchResultSet{WebEnv: "MCID_abc123", QueryKey: "1", TotalCount: 2}
		articles, err := fetcher.FetchDetails(context.Background(), rs, nil)
		require.NoError(t, err)

		assert.Equal(t, 1, requests)
		assert.Len(t, articles, 2)
	})

	t.Run("empty result set is rejected", func(t *testing.T) {
		noSleep := func(context.Context, time.Duration) error { return nil }
		fetcher := newTestFetcher(t, "http://127.0.0.1:0", FetcherConfig{}, noSleep)

		_, err := fetcher.FetchDetails(context.Background(), &domain.SearchResultSet{}, nil)
		require.ErrorIs(t, err, domain.ErrNoResults)
	})

	t.Run("panicking progress sink does not abort the fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			ids := strings.Split(r.Form.Get("id"), ",")
			fmt.Fprint(w, articleSetXML(ids[0]))
		}))
		defer server.Close()

		noSleep := func(context.Context, time.Duration) error { return nil }
		fetcher := newTestFetcher(t, server.URL, FetcherConfig{BatchSize: 10}, noSleep)

		rs := &domain.SearchResultSet{IDs: pmidRange(10), TotalCount: 10}
		articles, err := fetcher.FetchDetails(context.Background(), rs, func(int, int) {
			panic("sink failure")
		})
		require.NoError(t, err)
		assert.Len(t, articles, 1)
	})
}
