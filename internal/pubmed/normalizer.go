package pubmed

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/journals"
)

// UnknownYear marks records whose publication year could not be
// resolved from either the structured date or the Medline date.
const UnknownYear = "unknown"

var leadingYearRe = regexp.MustCompile(`^\d{4}`)

// Normalizer converts efetch article sets into domain articles,
// optionally restricting output to the curated journal allow-list.
type Normalizer struct {
	allowListOnly bool
	logger        zerolog.Logger
}

// NewNormalizer creates a normalizer. When allowListOnly is true,
// records from journals outside the curated list are dropped.
func NewNormalizer(allowListOnly bool, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		allowListOnly: allowListOnly,
		logger:        logger.With().Str("component", "normalizer").Logger(),
	}
}

// Parse normalizes every record in the set. Records without a PMID
// are dropped silently; records failing the journal allow-list are
// dropped; any other per-record irregularity is absorbed so one bad
// record never discards the batch.
func (n *Normalizer) Parse(set *PubmedArticleSet) []domain.Article {
	if set == nil {
		return nil
	}

	articles := make([]domain.Article, 0, len(set.Articles))
	for _, raw := range set.Articles {
		article, ok := n.guard(func() (domain.Article, bool) {
			return n.normalize(raw)
		})
		if !ok {
			continue
		}
		articles = append(articles, article)
	}
	return articles
}

// guard runs the normalization of one record, converting a panic into
// a dropped record so the rest of the batch survives.
func (n *Normalizer) guard(fn func() (domain.Article, bool)) (a domain.Article, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn().Interface("panic", r).Msg("record normalization panicked, skipping record")
			a, ok = domain.Article{}, false
		}
	}()
	return fn()
}

func (n *Normalizer) normalize(raw PubmedArticle) (domain.Article, bool) {
	citation := raw.MedlineCitation
	pmid := strings.TrimSpace(citation.PMID.Value)
	if pmid == "" {
		return domain.Article{}, false
	}

	journalName := citation.Article.Journal.Title
	if n.allowListOnly && !journals.IsAllowed(journalName) {
		n.logger.Debug().Str("pmid", pmid).Str("journal", journalName).Msg("journal outside allow-list, dropping record")
		return domain.Article{}, false
	}

	a := domain.Article{
		PMID:        pmid,
		Title:       strings.TrimSpace(string(citation.Article.ArticleTitle)),
		Journal:     journalName,
		JournalAbbr: citation.Article.Journal.ISOAbbreviation,
		Year:        extractYear(citation.Article.Journal.JournalIssue.PubDate),
		Volume:      citation.Article.Journal.JournalIssue.Volume,
		Issue:       citation.Article.Journal.JournalIssue.Issue,
		DOI:         extractDOI(citation.Article, raw.PubmedData),
		Abstract:    extractAbstract(citation.Article.Abstract),
		Authors:     extractAuthors(citation.Article.AuthorList),
	}

	if citation.Article.Pagination != nil {
		a.Pages = extractPages(citation.Article.Pagination)
	}

	if ptl := citation.Article.PublicationTypeList; ptl != nil {
		for _, pt := range ptl.PublicationTypes {
			if pt.Value != "" {
				a.ArticleTypes = append(a.ArticleTypes, pt.Value)
			}
		}
	}

	if kwl := citation.KeywordList; kwl != nil {
		for _, kw := range kwl.Keywords {
			if kw.Value != "" {
				a.Keywords = append(a.Keywords, kw.Value)
			}
		}
	}

	a.ImpactFactor = journals.ImpactFactor(a.Journal, a.JournalAbbr)
	a.PubMedURL = a.URL()
	a.Citation = a.BuildCitation()

	return a, true
}

// extractYear prefers the explicit Year element, then the leading
// 4-digit run of the free-text MedlineDate. A record is never dropped
// for a missing year.
func extractYear(pd PubDate) string {
	if pd.Year != "" {
		return pd.Year
	}
	if pd.MedlineDate != "" {
		if m := leadingYearRe.FindString(pd.MedlineDate); m != "" {
			return m
		}
	}
	return UnknownYear
}

// extractAbstract concatenates all abstract sections in document
// order, prefixing each with its uppercased label when present.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, section := range abstract.AbstractTexts {
		text := strings.TrimSpace(section.Value)
		if text == "" {
			continue
		}
		if section.Label != "" {
			parts = append(parts, strings.ToUpper(section.Label)+": "+text)
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// extractAuthors builds display names, preferring "forename surname"
// and falling back to a collective name. Authors contributing no
// usable name are skipped.
func extractAuthors(list *AuthorList) []string {
	if list == nil {
		return nil
	}

	authors := make([]string, 0, len(list.Authors))
	for _, author := range list.Authors {
		name := strings.TrimSpace(strings.TrimSpace(author.ForeName) + " " + strings.TrimSpace(author.LastName))
		if name == "" {
			name = strings.TrimSpace(author.CollectiveName)
		}
		if name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

// extractDOI looks for a DOI first among the ELocationIDs, then in
// the PubMed article ID list.
func extractDOI(article ArticleEntry, data PubmedData) string {
	for _, loc := range article.ELocationID {
		if strings.EqualFold(loc.EIdType, "doi") && loc.Value != "" {
			return loc.Value
		}
	}
	for _, aid := range data.ArticleIdList.ArticleIds {
		if strings.EqualFold(aid.IdType, "doi") && aid.Value != "" {
			return aid.Value
		}
	}
	return ""
}

// extractPages prefers the Medline pagination form, falling back to a
// start-end range.
func extractPages(p *Pagination) string {
	if p.MedlinePgn != "" {
		return p.MedlinePgn
	}
	if p.StartPage != "" && p.EndPage != "" {
		return p.StartPage + "-" + p.EndPage
	}
	return p.StartPage
}
