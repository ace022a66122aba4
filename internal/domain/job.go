package domain

// JobStatus enumerates the states of an asynchronous search job.
type JobStatus string

// Job states. A job moves strictly forward through the happy path and
// may drop into StatusError from any non-terminal state.
const (
	StatusStarting   JobStatus = "starting"
	StatusSearching  JobStatus = "searching"
	StatusFetching   JobStatus = "fetching"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// JobResult is the payload attached to a completed job in the same
// update that sets the terminal status.
type JobResult struct {
	Articles   []Article        `json:"articles"`
	Parameters SearchParameters `json:"search_params"`
	SearchID   int64            `json:"search_id"`
}

// JobProgress is the poll-able progress record for one search job.
// Writes come exclusively from the single worker executing the job;
// pollers receive point-in-time snapshots.
type JobProgress struct {
	JobID             string     `json:"job_id"`
	Status            JobStatus  `json:"status"`
	Progress          int        `json:"progress"`
	Message           string     `json:"message"`
	TotalArticles     int        `json:"total_articles"`
	ProcessedArticles int        `json:"processed_articles"`
	TotalFound        int        `json:"total_found,omitempty"`
	FilteredCount     int        `json:"filtered_count,omitempty"`
	SearchID          int64      `json:"search_id,omitempty"`
	Result            *JobResult `json:"results_data,omitempty"`
}

// SearchRequest is a validated request to start a search job.
type SearchRequest struct {
	Query            string   `json:"query" validate:"required,min=1"`
	UserTopic        string   `json:"user_topic"`
	AIGeneratedQuery string   `json:"ai_generated_query"`
	JournalFilter    string   `json:"journal_filter"`
	MinYear          string   `json:"min_year"`
	MaxYear          string   `json:"max_year"`
	MinScore         float64  `json:"min_score" validate:"gte=0"`
	ArticleTypes     []string `json:"article_types"`
}
