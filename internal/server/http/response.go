package httpserver

import "github.com/helixir/pubmed-search-service/internal/domain"

// searchSubmitRequest is the JSON request body for starting a search job.
type searchSubmitRequest struct {
	Query            string   `json:"query"`
	UserTopic        string   `json:"user_topic,omitempty"`
	AIGeneratedQuery string   `json:"ai_generated_query,omitempty"`
	JournalFilter    string   `json:"journal_filter,omitempty"`
	MinYear          string   `json:"min_year,omitempty"`
	MaxYear          string   `json:"max_year,omitempty"`
	MinScore         float64  `json:"min_score,omitempty"`
	ArticleTypes     []string `json:"article_types,omitempty"`
}

// searchSubmitResponse acknowledges an accepted search job.
type searchSubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// queryGenerateRequest is the JSON request body for query generation.
type queryGenerateRequest struct {
	Topic         string `json:"topic"`
	JournalFilter string `json:"journal_filter,omitempty"`
	MinYear       string `json:"min_year,omitempty"`
	MaxYear       string `json:"max_year,omitempty"`
}

// queryGenerateResponse carries the generated query. FinalQuery has the
// journal and year filters already applied and can be submitted as-is.
type queryGenerateResponse struct {
	Query        string `json:"query"`
	FinalQuery   string `json:"final_query"`
	Model        string `json:"model,omitempty"`
	FallbackUsed bool   `json:"fallback_used"`
}

// historyListResponse is the search history listing.
type historyListResponse struct {
	Searches []domain.SearchSummary `json:"searches"`
	Count    int                    `json:"count"`
}
