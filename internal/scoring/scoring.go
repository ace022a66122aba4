// Package scoring assigns relevance scores to articles from journal
// impact, publication-type bonuses and recency, then provides the
// minimum-score and article-type filters applied to the sorted set.
package scoring

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/pubmed-search-service/internal/domain"
)

// Publication-type bonuses, applied additively on top of the journal
// impact factor.
const (
	ReviewBonus        = 8.0
	ClinicalTrialBonus = 7.0
	MetaAnalysisBonus  = 6.0

	RecentBonus   = 5.0 // published within the last 2 years
	ModerateBonus = 3.0 // published within the last 5 years
)

// AllTypesSentinel disables article-type filtering when present in a
// requested type list, alone or combined with other entries.
const AllTypesSentinel = "all"

// Engine scores and filters article sets. The zero value uses the
// current wall-clock year; tests pin Now for deterministic recency.
type Engine struct {
	// Now supplies the reference time for recency bonuses.
	Now func() time.Time
}

// NewEngine creates a scoring engine using the system clock.
func NewEngine() *Engine {
	return &Engine{Now: time.Now}
}

// Score assigns a score to every article in place, then sorts the set
// descending by score. The sort is stable so equal-scored articles
// keep their fetch order.
func (e *Engine) Score(articles []domain.Article) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	currentYear := now().Year()

	for i := range articles {
		articles[i].Score = e.scoreOne(&articles[i], currentYear)
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].Score > articles[j].Score
	})
}

func (e *Engine) scoreOne(a *domain.Article, currentYear int) float64 {
	score := a.ImpactFactor

	if a.HasTypeContaining("Review") {
		score += ReviewBonus
	}
	if a.HasTypeContaining("Clinical Trial") || a.HasTypeContaining("Randomized Controlled Trial") {
		score += ClinicalTrialBonus
	}
	if a.HasTypeContaining("Meta-Analysis") {
		score += MetaAnalysisBonus
	}

	if year, ok := parseYear(a.Year); ok {
		switch {
		case year >= currentYear-2:
			score += RecentBonus
		case year >= currentYear-5:
			score += ModerateBonus
		}
	}

	return math.Round(score*100) / 100
}

// parseYear extracts a numeric year from the article's year string,
// tolerating trailing text. An unparseable year is simply no bonus.
func parseYear(s string) (int, bool) {
	if len(s) > 4 {
		s = s[:4]
	}
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return year, true
}

// FilterByMinScore keeps articles scoring at or above the threshold.
// A zero or negative threshold keeps everything.
func FilterByMinScore(articles []domain.Article, minScore float64) []domain.Article {
	if minScore <= 0 {
		return articles
	}

	filtered := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if a.Score >= minScore {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// FilterByTypes keeps articles whose tags contain any requested label
// as a case-insensitive substring. An empty request or one containing
// the "all" sentinel keeps everything.
func FilterByTypes(articles []domain.Article, requested []string) []domain.Article {
	specific := make([]string, 0, len(requested))
	for _, r := range requested {
		if strings.EqualFold(r, AllTypesSentinel) {
			return articles
		}
		if r != "" {
			specific = append(specific, r)
		}
	}
	if len(specific) == 0 {
		return articles
	}

	filtered := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		for _, label := range specific {
			if a.HasTypeContaining(label) {
				filtered = append(filtered, a)
				break
			}
		}
	}
	return filtered
}
