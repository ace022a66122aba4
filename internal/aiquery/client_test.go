package aiquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pubmed-search-service/internal/domain"
)

const generatedQuery = `(telomere OR telomeres OR "telomere length") AND (aging OR ageing OR senescence)`

func chatResponseJSON(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id": "gen-123",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
	return string(body)
}

func newTestGenerator(t *testing.T, baseURL string) *Generator {
	t.Helper()

	g := NewGenerator(Config{
		APIKey:   "test-key",
		BaseURL:  baseURL,
		SiteURL:  "https://example.com",
		SiteName: "Example",
	}, zerolog.Nop())
	g.retryDelay = time.Millisecond
	return g
}

func TestGenerator_Generate(t *testing.T) {
	t.Run("returns generated query", func(t *testing.T) {
		var gotReq chatRequest
		var gotAuth, gotReferer, gotTitle string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotReferer = r.Header.Get("HTTP-Referer")
			gotTitle = r.Header.Get("X-Title")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			fmt.Fprint(w, chatResponseJSON(generatedQuery))
		}))
		defer server.Close()

		g := newTestGenerator(t, server.URL)

		query, err := g.Generate(context.Background(), "telomeres and aging")
		require.NoError(t, err)
		assert.Equal(t, generatedQuery, query)

		assert.Equal(t, "Bearer test-key", gotAuth)
		assert.Equal(t, "https://example.com", gotReferer)
		assert.Equal(t, "Example", gotTitle)
		assert.Equal(t, DefaultModel, gotReq.Model)
		assert.InDelta(t, DefaultTemperature, gotReq.Temperature, 0.001)
		assert.InDelta(t, DefaultTopP, gotReq.TopP, 0.001)
		require.Len(t, gotReq.Messages, 1)
		assert.Equal(t, "user", gotReq.Messages[0].Role)
		assert.Contains(t, gotReq.Messages[0].Content, "telomeres and aging")
	})

	t.Run("strips code fences from response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, chatResponseJSON("```pubmed\n"+generatedQuery+"\n```"))
		}))
		defer server.Close()

		g := newTestGenerator(t, server.URL)

		query, err := g.Generate(context.Background(), "telomeres")
		require.NoError(t, err)
		assert.Equal(t, generatedQuery, query)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, chatResponseJSON(generatedQuery))
		}))
		defer server.Close()

		g := newTestGenerator(t, server.URL)

		query, err := g.Generate(context.Background(), "telomeres")
		require.NoError(t, err)
		assert.Equal(t, generatedQuery, query)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
		}))
		defer server.Close()

		g := newTestGenerator(t, server.URL)

		_, err := g.Generate(context.Background(), "telomeres")
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "invalid api key", apiErr.Message)
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"id":"gen-123","choices":[]}`)
		}))
		defer server.Close()

		g := newTestGenerator(t, server.URL)

		_, err := g.Generate(context.Background(), "telomeres")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})

	t.Run("missing api key", func(t *testing.T) {
		g := NewGenerator(Config{}, zerolog.Nop())
		assert.False(t, g.Enabled())

		_, err := g.Generate(context.Background(), "telomeres")
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	})

	t.Run("empty topic", func(t *testing.T) {
		g := newTestGenerator(t, "http://unused.invalid")

		_, err := g.Generate(context.Background(), "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bare query", generatedQuery, generatedQuery},
		{"surrounding whitespace", "  " + generatedQuery + "\n", generatedQuery},
		{"plain fence", "```\n" + generatedQuery + "\n```", generatedQuery},
		{"pubmed fence", "```pubmed\n" + generatedQuery + "\n```", generatedQuery},
		{"uppercase fence tag", "```PubMed\n" + generatedQuery + "\n```", generatedQuery},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanResponse(tt.content))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("connection refused")))
	assert.True(t, isTransient(domain.NewExternalAPIError(sourceName, 429, "slow down", nil)))
	assert.True(t, isTransient(domain.NewExternalAPIError(sourceName, 502, "bad gateway", nil)))
	assert.False(t, isTransient(domain.NewExternalAPIError(sourceName, 400, "bad request", nil)))
	assert.False(t, isTransient(domain.NewExternalAPIError(sourceName, 401, "unauthorized", nil)))
}
