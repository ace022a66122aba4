package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/query"
	"github.com/helixir/pubmed-search-service/internal/repository"
)

// Validation constants.
const (
	maxTopicLength     = 2000
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// submitSearch handles POST /api/v1/searches. It validates the request,
// composes the final PubMed query from the base query plus journal and
// year filters, and starts an asynchronous search job.
func (s *Server) submitSearch(w http.ResponseWriter, r *http.Request) {
	var req searchSubmitRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	req.UserTopic = strings.TrimSpace(req.UserTopic)

	domainReq := domain.SearchRequest{
		Query:            req.Query,
		UserTopic:        req.UserTopic,
		AIGeneratedQuery: req.AIGeneratedQuery,
		JournalFilter:    req.JournalFilter,
		MinYear:          req.MinYear,
		MaxYear:          req.MaxYear,
		MinScore:         req.MinScore,
		ArticleTypes:     req.ArticleTypes,
	}
	if err := s.validate.Struct(&domainReq); err != nil {
		writeValidationError(w, err)
		return
	}
	if msg, ok := validateYears(req.MinYear, req.MaxYear); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	// Journal and year filters become part of the query sent to PubMed.
	domainReq.Query = query.Build(req.Query, req.JournalFilter, req.MinYear, req.MaxYear)

	jobID := s.runner.Submit(domainReq)

	writeJSON(w, http.StatusAccepted, searchSubmitResponse{
		JobID:   jobID,
		Status:  string(domain.StatusStarting),
		Message: "search job accepted",
	})
}

// pollSearch handles GET /api/v1/searches/{jobID}. It returns the
// current progress snapshot for a job, including the full result
// payload once the job has completed.
func (s *Server) pollSearch(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	progress, ok := s.runner.Poll(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "search job not found")
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// generateQuery handles POST /api/v1/queries. It turns a free-text
// research topic into a PubMed query, preferring the AI generator and
// falling back to the deterministic builder when generation is
// unavailable or fails. The composed final query, with journal and
// year filters applied, is included so clients can submit it directly.
func (s *Server) generateQuery(w http.ResponseWriter, r *http.Request) {
	var req queryGenerateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if len(req.Topic) > maxTopicLength {
		writeError(w, http.StatusBadRequest, "topic is too long")
		return
	}
	if msg, ok := validateYears(req.MinYear, req.MaxYear); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	resp := queryGenerateResponse{FallbackUsed: true}
	if s.generator != nil && s.generator.Enabled() {
		generated, err := s.generator.Generate(r.Context(), req.Topic)
		if err != nil {
			s.logger.Warn().Err(err).Msg("query generation failed, using fallback query")
		} else {
			resp.Query = generated
			resp.Model = s.generator.Model()
			resp.FallbackUsed = false
		}
	}
	if resp.FallbackUsed {
		resp.Query = query.Fallback(req.Topic)
	}
	resp.FinalQuery = query.Build(resp.Query, req.JournalFilter, req.MinYear, req.MaxYear)

	writeJSON(w, http.StatusOK, resp)
}

// listHistory handles GET /api/v1/history.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := repository.DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	summaries, err := s.searchRepo.GetHistory(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, historyListResponse{
		Searches: summaries,
		Count:    len(summaries),
	})
}

// getHistoryEntry handles GET /api/v1/history/{searchID}. It returns
// the persisted search parameters together with every stored article.
func (s *Server) getHistoryEntry(w http.ResponseWriter, r *http.Request) {
	searchID, err := strconv.ParseInt(chi.URLParam(r, "searchID"), 10, 64)
	if err != nil || searchID < 1 {
		writeError(w, http.StatusBadRequest, "search_id must be a positive integer")
		return
	}

	record, err := s.searchRepo.GetByID(r.Context(), searchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// decodeRequest reads and unmarshals a JSON request body, writing a 400
// response and returning false on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// validateYears checks that year filters, when present, are four-digit
// years and that the range is not inverted.
func validateYears(minYear, maxYear string) (string, bool) {
	min, ok := parseYear(minYear)
	if !ok {
		return "min_year must be a four-digit year", false
	}
	max, ok := parseYear(maxYear)
	if !ok {
		return "max_year must be a four-digit year", false
	}
	if min > 0 && max > 0 && min > max {
		return "min_year must not be greater than max_year", false
	}
	return "", true
}

func parseYear(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	if len(s) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1000 {
		return 0, false
	}
	return year, true
}

// writeValidationError converts validator errors into a 400 response
// naming the first offending field.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		writeError(w, http.StatusBadRequest, "invalid value for field "+field)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request")
}

// writeDomainError maps domain errors to appropriate HTTP status codes
// and writes a JSON error response. Internal error details are not
// leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		var apiErr *domain.ExternalAPIError
		if errors.As(err, &apiErr) {
			writeError(w, http.StatusBadGateway, "upstream service error")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
