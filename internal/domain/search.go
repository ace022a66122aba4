package domain

// SearchResultSet is the handle produced by the first search phase. It
// carries either a materialized PMID list or a server-side history
// cursor (WebEnv plus QueryKey), together with the total match count.
// A zero TotalCount with no IDs and no cursor is a successful empty
// search, not a failure.
type SearchResultSet struct {
	IDs        []string
	WebEnv     string
	QueryKey   string
	TotalCount int
}

// HasCursor reports whether the result set references a server-side
// history context instead of a materialized ID list.
func (rs *SearchResultSet) HasCursor() bool {
	return rs.WebEnv != "" && rs.QueryKey != ""
}

// IsEmpty reports whether the result set offers nothing to fetch.
func (rs *SearchResultSet) IsEmpty() bool {
	return len(rs.IDs) == 0 && !rs.HasCursor()
}

// SearchParameters describes one completed pipeline run. It is
// persisted alongside the filtered article list and echoed back on
// history reads.
type SearchParameters struct {
	UserTopic        string  `json:"user_topic"`
	AIGeneratedQuery string  `json:"ai_generated_query,omitempty"`
	FinalQuery       string  `json:"final_query"`
	JournalFilter    string  `json:"journal_filter,omitempty"`
	YearRange        string  `json:"year_range,omitempty"`
	MinScore         float64 `json:"min_score"`
	ArticleTypes     string  `json:"article_types,omitempty"`
	TotalResults     int     `json:"total_results"`
	FilteredResults  int     `json:"filtered_results"`
}

// SearchSummary is one row of the search history listing.
type SearchSummary struct {
	ID              int64   `json:"id"`
	SearchDate      string  `json:"search_date"`
	UserTopic       string  `json:"user_topic"`
	FinalQuery      string  `json:"final_query"`
	JournalFilter   string  `json:"journal_filter,omitempty"`
	YearRange       string  `json:"year_range,omitempty"`
	MinScore        float64 `json:"min_score"`
	ArticleTypes    string  `json:"article_types,omitempty"`
	TotalResults    int     `json:"total_results"`
	FilteredResults int     `json:"filtered_results"`
}

// SearchRecord is a fully materialized persisted search: its summary
// plus every stored article, in descending score order.
type SearchRecord struct {
	Summary  SearchSummary `json:"summary"`
	Articles []Article     `json:"articles"`
}
