package domain

import (
	"fmt"
	"strings"
)

// PubMedArticleURL is the base URL for article landing pages.
const PubMedArticleURL = "https://pubmed.ncbi.nlm.nih.gov"

// Article represents a normalized PubMed article.
type Article struct {
	PMID         string   `json:"pmid"`
	Title        string   `json:"title"`
	Journal      string   `json:"journal"`
	JournalAbbr  string   `json:"journal_abbr,omitempty"`
	Year         string   `json:"year,omitempty"`
	Volume       string   `json:"volume,omitempty"`
	Issue        string   `json:"issue,omitempty"`
	Pages        string   `json:"pages,omitempty"`
	DOI          string   `json:"doi,omitempty"`
	Abstract     string   `json:"abstract,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	ArticleTypes []string `json:"article_types,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Citation     string   `json:"citation"`
	PubMedURL    string   `json:"pubmed_url"`
	ImpactFactor float64  `json:"impact_factor"`
	Score        float64  `json:"score"`
}

// URL returns the deterministic landing-page URL for the article's PMID.
func (a *Article) URL() string {
	return fmt.Sprintf("%s/%s/", PubMedArticleURL, a.PMID)
}

// BuildCitation composes a citation string in the NLM style: up to three
// authors (with "et al" when more exist), title, journal abbreviation
// (falling back to the full journal name), year, then volume(issue):pages
// and DOI when present. Missing fields are skipped so partially populated
// records still render cleanly.
func (a *Article) BuildCitation() string {
	authors := strings.Join(firstN(a.Authors, 3), ", ")
	if len(a.Authors) > 3 {
		authors += ", et al"
	}

	journal := a.JournalAbbr
	if journal == "" {
		journal = a.Journal
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s. %s. %s. %s", authors, a.Title, journal, a.Year)
	if a.Volume != "" {
		fmt.Fprintf(&b, ";%s", a.Volume)
	}
	if a.Issue != "" {
		fmt.Fprintf(&b, "(%s)", a.Issue)
	}
	if a.Pages != "" {
		fmt.Fprintf(&b, ":%s", a.Pages)
	}
	b.WriteString(".")
	if a.DOI != "" {
		fmt.Fprintf(&b, " doi: %s.", a.DOI)
	}
	return b.String()
}

// HasTypeContaining reports whether any of the article's publication
// type tags contains the given label, case-insensitively.
func (a *Article) HasTypeContaining(label string) bool {
	needle := strings.ToLower(label)
	for _, t := range a.ArticleTypes {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

func firstN(ss []string, n int) []string {
	if len(ss) <= n {
		return ss
	}
	return ss[:n]
}
