// Package observability provides structured logging and Prometheus metrics
// for the PubMed search service.
package observability
