// Package query composes PubMed search expressions from free-text
// input, journal filters and year ranges, and owns the lossy
// simplification fallback used when a composed query is too long for
// the transport.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helixir/pubmed-search-service/internal/journals"
)

const (
	// maxORTermsBeforeSimplify is the OR-term count above which an
	// AND-group is considered oversized and gets truncated.
	maxORTermsBeforeSimplify = 10

	// simplifyCandidateWindow bounds how many leading OR-terms are
	// even considered when truncating an oversized group.
	simplifyCandidateWindow = 15

	// simplifyKeepTerms is the hard per-group term cap after truncation.
	simplifyKeepTerms = 8

	// simplifyMeSHPreference caps how many MeSH-tagged terms are kept
	// before free-text terms are preferred.
	simplifyMeSHPreference = 5

	// simplifyMaxQueryLength triggers the final fallback of keeping
	// only the first two AND-groups.
	simplifyMaxQueryLength = 1000
)

// Build composes the final search expression. The journal filter is a
// comma-separated list of journal names; names matching the curated
// allow-list expand to all their variants as quoted journal-field
// terms, unmatched names are searched verbatim. Year bounds add a
// [pdat] range term. CJK list punctuation in the base query is
// replaced with spaces. An empty base query yields an empty result.
func Build(baseQuery, journalFilter, minYear, maxYear string) string {
	q := strings.TrimSpace(normalizePunctuation(baseQuery))
	if q == "" {
		return ""
	}

	if seg := journalClause(journalFilter); seg != "" {
		q += fmt.Sprintf(" AND (%s)", seg)
	}

	switch {
	case minYear != "" && maxYear != "":
		q += fmt.Sprintf(" AND %s:%s[pdat]", minYear, maxYear)
	case minYear != "":
		q += fmt.Sprintf(" AND %s:[pdat]", minYear)
	case maxYear != "":
		q += fmt.Sprintf(" AND :%s[pdat]", maxYear)
	}

	return q
}

// journalClause expands a comma-separated journal filter into an
// OR-joined sequence of quoted journal-field terms.
func journalClause(journalFilter string) string {
	names := splitJournalFilter(journalFilter)
	if len(names) == 0 {
		return ""
	}

	var verbatim []string
	matched := make(map[string]struct{})
	for _, name := range names {
		variants, found := journals.Match(name)
		if !found {
			verbatim = append(verbatim, fmt.Sprintf("%q[journal]", name))
			continue
		}
		for _, v := range variants {
			matched[fmt.Sprintf("%q[journal]", v)] = struct{}{}
		}
	}

	parts := verbatim
	if len(matched) > 0 {
		expanded := make([]string, 0, len(matched))
		for term := range matched {
			expanded = append(expanded, term)
		}
		sort.Strings(expanded)
		parts = append(parts, expanded...)
	}

	return strings.Join(parts, " OR ")
}

// normalizePunctuation replaces CJK list punctuation in the base
// query with plain spaces so mixed-language input still parses as
// separate terms server-side.
func normalizePunctuation(q string) string {
	return strings.NewReplacer("，", " ", "、", " ").Replace(q)
}

func splitJournalFilter(filter string) []string {
	if strings.TrimSpace(filter) == "" {
		return nil
	}
	raw := strings.FieldsFunc(filter, func(r rune) bool {
		return r == ',' || r == ';' || r == '、' || r == '，'
	})
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Simplify reduces an over-long query by truncating oversized
// OR-groups. Within any AND-group with more than ten OR-terms, only
// the first fifteen terms are candidates, at most eight survive, and
// free-text terms are preferred once five MeSH-tagged terms have been
// kept. If the result still exceeds a thousand characters, only the
// first two AND-groups are retained. The reduction is lossy; recall
// is traded for a query the transport will accept.
func Simplify(q string) string {
	andParts := strings.Split(q, " AND ")

	simplified := make([]string, 0, len(andParts))
	for _, part := range andParts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if strings.Count(part, " OR ") > maxORTermsBeforeSimplify && isParenthesized(part) {
			simplified = append(simplified, truncateORGroup(part))
		} else {
			simplified = append(simplified, part)
		}
	}

	out := strings.Join(simplified, " AND ")
	if len(out) > simplifyMaxQueryLength {
		parts := strings.Split(out, " AND ")
		if len(parts) > 2 {
			out = strings.Join(parts[:2], " AND ")
		}
	}
	return out
}

func isParenthesized(part string) bool {
	return strings.HasPrefix(part, "(") && strings.HasSuffix(part, ")")
}

func truncateORGroup(part string) string {
	inner := part[1 : len(part)-1]
	terms := strings.Split(inner, " OR ")
	if len(terms) > simplifyCandidateWindow {
		terms = terms[:simplifyCandidateWindow]
	}

	kept := make([]string, 0, simplifyKeepTerms)
	meshKept := 0
	for _, term := range terms {
		term = strings.TrimSpace(term)
		isMeSH := strings.Contains(term, "[MeSH Terms]")
		if isMeSH && meshKept >= simplifyMeSHPreference {
			continue
		}
		kept = append(kept, term)
		if isMeSH {
			meshKept++
		}
		if len(kept) >= simplifyKeepTerms {
			break
		}
	}

	return "(" + strings.Join(kept, " OR ") + ")"
}

// Fallback builds a deterministic search expression from a raw topic
// when the AI collaborator is unavailable. It casts a wide net: the
// full topic as a quoted phrase OR-ed with each individual word, all
// restricted to title/abstract.
func Fallback(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}

	words := strings.Fields(topic)
	if len(words) == 1 {
		return fmt.Sprintf("%s[tiab]", topic)
	}

	terms := []string{fmt.Sprintf("%q[tiab]", topic)}
	for _, w := range words {
		if len(w) > 2 {
			terms = append(terms, fmt.Sprintf("%s[tiab]", w))
		}
	}
	return "(" + strings.Join(terms, " OR ") + ")"
}
