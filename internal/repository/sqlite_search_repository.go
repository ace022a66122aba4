package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/helixir/pubmed-search-service/internal/domain"
)

// Compile-time interface verification.
var _ SearchRepository = (*SQLiteSearchRepository)(nil)

// SQLiteSearchRepository is a SQLite implementation of SearchRepository.
type SQLiteSearchRepository struct {
	db *sql.DB
}

// NewSQLiteSearchRepository creates a new SQLite search repository.
func NewSQLiteSearchRepository(db *sql.DB) *SQLiteSearchRepository {
	return &SQLiteSearchRepository{db: db}
}

// Save stores a completed search run together with its filtered articles.
func (r *SQLiteSearchRepository) Save(ctx context.Context, params *domain.SearchParameters, articles []domain.Article) (int64, error) {
	if params == nil {
		return 0, domain.NewValidationError("params", "search parameters cannot be nil")
	}
	if params.UserTopic == "" && params.FinalQuery == "" {
		return 0, domain.NewValidationError("final_query", "a topic or query is required")
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal search parameters: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO search_history (
			search_date, user_topic, ai_generated_query, final_query,
			journal_filter, year_range, min_score, article_types,
			total_results, filtered_results, search_parameters
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		params.UserTopic,
		params.AIGeneratedQuery,
		params.FinalQuery,
		params.JournalFilter,
		params.YearRange,
		params.MinScore,
		params.ArticleTypes,
		params.TotalResults,
		params.FilteredResults,
		string(paramsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert search history: %w", err)
	}

	searchID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read search id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO articles (
			search_id, pmid, title, journal, journal_abbr, year,
			volume, issue, pages, doi, abstract, authors,
			article_types, keywords, citation, pubmed_url,
			impact_factor, score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare article insert: %w", err)
	}
	defer stmt.Close()

	for i := range articles {
		a := &articles[i]

		authorsJSON, err := json.Marshal(a.Authors)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal authors for %s: %w", a.PMID, err)
		}
		typesJSON, err := json.Marshal(a.ArticleTypes)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal article types for %s: %w", a.PMID, err)
		}
		keywordsJSON, err := json.Marshal(a.Keywords)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal keywords for %s: %w", a.PMID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			searchID, a.PMID, a.Title, a.Journal, a.JournalAbbr, a.Year,
			a.Volume, a.Issue, a.Pages, a.DOI, a.Abstract, string(authorsJSON),
			string(typesJSON), string(keywordsJSON), a.Citation, a.PubMedURL,
			a.ImpactFactor, a.Score,
		); err != nil {
			return 0, fmt.Errorf("failed to insert article %s: %w", a.PMID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit search: %w", err)
	}

	return searchID, nil
}

// GetHistory returns the most recent search runs, newest first.
func (r *SQLiteSearchRepository) GetHistory(ctx context.Context, limit int) ([]domain.SearchSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, search_date, user_topic, final_query,
		       journal_filter, year_range, min_score, article_types,
		       total_results, filtered_results
		FROM search_history
		ORDER BY search_date DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.SearchSummary, 0, limit)
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search history: %w", err)
	}

	return summaries, nil
}

// GetByID returns one persisted search run with its articles.
func (r *SQLiteSearchRepository) GetByID(ctx context.Context, id int64) (*domain.SearchRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, search_date, user_topic, final_query,
		       journal_filter, year_range, min_score, article_types,
		       total_results, filtered_results
		FROM search_history
		WHERE id = ?`, id)

	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("search", strconv.FormatInt(id, 10))
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT pmid, title, journal, journal_abbr, year,
		       volume, issue, pages, doi, abstract, authors,
		       article_types, keywords, citation, pubmed_url,
		       impact_factor, score
		FROM articles
		WHERE search_id = ?
		ORDER BY score DESC, pmid ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	articles := make([]domain.Article, 0)
	for rows.Next() {
		var a domain.Article
		var authorsJSON, typesJSON, keywordsJSON sql.NullString

		if err := rows.Scan(
			&a.PMID, &a.Title, &a.Journal, &a.JournalAbbr, &a.Year,
			&a.Volume, &a.Issue, &a.Pages, &a.DOI, &a.Abstract, &authorsJSON,
			&typesJSON, &keywordsJSON, &a.Citation, &a.PubMedURL,
			&a.ImpactFactor, &a.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}

		if err := unmarshalList(authorsJSON, &a.Authors); err != nil {
			return nil, fmt.Errorf("failed to decode authors for %s: %w", a.PMID, err)
		}
		if err := unmarshalList(typesJSON, &a.ArticleTypes); err != nil {
			return nil, fmt.Errorf("failed to decode article types for %s: %w", a.PMID, err)
		}
		if err := unmarshalList(keywordsJSON, &a.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords for %s: %w", a.PMID, err)
		}

		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	return &domain.SearchRecord{
		Summary:  *summary,
		Articles: articles,
	}, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*domain.SearchSummary, error) {
	var s domain.SearchSummary
	var topic, query, journal, years, types sql.NullString
	var minScore sql.NullFloat64
	var total, filtered sql.NullInt64

	if err := row.Scan(
		&s.ID, &s.SearchDate, &topic, &query,
		&journal, &years, &minScore, &types,
		&total, &filtered,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan search history row: %w", err)
	}

	s.UserTopic = topic.String
	s.FinalQuery = query.String
	s.JournalFilter = journal.String
	s.YearRange = years.String
	s.MinScore = minScore.Float64
	s.ArticleTypes = types.String
	s.TotalResults = int(total.Int64)
	s.FilteredResults = int(filtered.Int64)

	return &s, nil
}

func unmarshalList(src sql.NullString, dst *[]string) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}
