package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the PubMed search service.
// Metrics are organized by subsystem: search jobs, PubMed API traffic,
// query generation, and the HTTP API. All counters and histograms are
// registered via promauto with the default Prometheus registry.
type Metrics struct {
	// JobsStarted counts the total number of search jobs submitted.
	JobsStarted prometheus.Counter

	// JobsCompleted counts the total number of jobs that finished successfully.
	JobsCompleted prometheus.Counter

	// JobsFailed counts the total number of jobs that ended in an error state.
	JobsFailed prometheus.Counter

	// JobDuration observes the end-to-end duration of search jobs in seconds.
	JobDuration prometheus.Histogram

	// ArticlesPerJob observes the number of articles a completed job returned.
	ArticlesPerJob prometheus.Histogram

	// SearchRequestsTotal counts ESearch calls to the PubMed API.
	SearchRequestsTotal prometheus.Counter

	// SearchRequestsFailed counts failed ESearch calls, labeled by error type.
	SearchRequestsFailed *prometheus.CounterVec

	// QueriesSimplified counts searches that fell back to a simplified query.
	QueriesSimplified prometheus.Counter

	// FetchBatchesTotal counts EFetch batch requests.
	FetchBatchesTotal prometheus.Counter

	// FetchBatchesFailed counts EFetch batches dropped after exhausting retries.
	FetchBatchesFailed prometheus.Counter

	// ArticlesFetched counts the total number of article records retrieved.
	ArticlesFetched prometheus.Counter

	// QueryGenerationsTotal counts AI query generation requests, labeled by model.
	QueryGenerationsTotal *prometheus.CounterVec

	// QueryGenerationsFailed counts failed AI query generations, labeled by model.
	QueryGenerationsFailed *prometheus.CounterVec

	// HTTPRequestsTotal counts API requests, labeled by method, route, and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes API request duration in seconds, labeled by method and route.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		JobsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of search jobs submitted",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of search jobs completed successfully",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of search jobs that failed",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of search jobs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),
		ArticlesPerJob: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "articles_per_job",
			Help:      "Number of articles returned per completed job",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		SearchRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of PubMed search requests",
		}),
		SearchRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_failed_total",
			Help:      "Total number of failed PubMed search requests by error type",
		}, []string{"error_type"}),
		QueriesSimplified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_simplified_total",
			Help:      "Total number of searches retried with a simplified query",
		}),

		FetchBatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_batches_total",
			Help:      "Total number of article detail batches requested",
		}),
		FetchBatchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_batches_failed_total",
			Help:      "Total number of article detail batches dropped after retries",
		}),
		ArticlesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_fetched_total",
			Help:      "Total number of article records retrieved",
		}),

		QueryGenerationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_generations_total",
			Help:      "Total number of AI query generation requests by model",
		}, []string{"model"}),
		QueryGenerationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_generations_failed_total",
			Help:      "Total number of failed AI query generations by model",
		}, []string{"model"}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
}

// RecordJobStarted records that a search job has started.
func (m *Metrics) RecordJobStarted() {
	m.JobsStarted.Inc()
}

// RecordJobCompleted records a successful job with its duration and result size.
func (m *Metrics) RecordJobCompleted(durationSeconds float64, articleCount int) {
	m.JobsCompleted.Inc()
	m.JobDuration.Observe(durationSeconds)
	m.ArticlesPerJob.Observe(float64(articleCount))
}

// RecordJobFailed records a failed job with its duration.
func (m *Metrics) RecordJobFailed(durationSeconds float64) {
	m.JobsFailed.Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordSearchRequest records a PubMed search request.
func (m *Metrics) RecordSearchRequest() {
	m.SearchRequestsTotal.Inc()
}

// RecordSearchRequestFailed records a failed PubMed search request.
func (m *Metrics) RecordSearchRequestFailed(errorType string) {
	m.SearchRequestsFailed.WithLabelValues(errorType).Inc()
}

// RecordQuerySimplified records a search retried with a simplified query.
func (m *Metrics) RecordQuerySimplified() {
	m.QueriesSimplified.Inc()
}

// RecordFetchBatch records a requested article detail batch.
func (m *Metrics) RecordFetchBatch() {
	m.FetchBatchesTotal.Inc()
}

// RecordFetchBatchFailed records a batch dropped after exhausting retries.
func (m *Metrics) RecordFetchBatchFailed() {
	m.FetchBatchesFailed.Inc()
}

// RecordArticlesFetched records retrieved article records.
func (m *Metrics) RecordArticlesFetched(count int) {
	m.ArticlesFetched.Add(float64(count))
}

// RecordQueryGeneration records an AI query generation request.
func (m *Metrics) RecordQueryGeneration(model string) {
	m.QueryGenerationsTotal.WithLabelValues(model).Inc()
}

// RecordQueryGenerationFailed records a failed AI query generation.
func (m *Metrics) RecordQueryGenerationFailed(model string) {
	m.QueryGenerationsFailed.WithLabelValues(model).Inc()
}

// RecordHTTPRequest records an API request with its duration.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
