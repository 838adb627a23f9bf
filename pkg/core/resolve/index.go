package resolve

import (
	"strconv"
	"strings"

	"holdings13f/pkg/core/edgar"
)

// IndexExactResolver matches against the SEC reference index by CIK (for the
// rare filings that put a CIK in the issuer field) or by normalized name.
type IndexExactResolver struct {
	Index *edgar.TickerIndex
}

func (r *IndexExactResolver) Name() string { return "index-exact" }

func (r *IndexExactResolver) Resolve(cusip, issuerName string) (string, bool) {
	if cik, err := strconv.Atoi(strings.TrimSpace(issuerName)); err == nil {
		if e, ok := r.Index.ByCIK(cik); ok {
			return e.Ticker, true
		}
	}
	if e, ok := r.Index.ByName(issuerName); ok {
		return e.Ticker, true
	}
	return "", false
}

// IndexSubstringResolver accepts a registrant whose normalized name contains
// the normalized issuer name, or vice versa. Short names are skipped to
// avoid matching "FIRST" against half the index.
type IndexSubstringResolver struct {
	Index *edgar.TickerIndex
}

func (r *IndexSubstringResolver) Name() string { return "index-substring" }

func (r *IndexSubstringResolver) Resolve(cusip, issuerName string) (string, bool) {
	normalized := edgar.NormalizeCompanyName(issuerName)
	if len(normalized) < 6 {
		return "", false
	}

	for _, e := range r.Index.Entries() {
		candidate := edgar.NormalizeCompanyName(e.Title)
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, normalized) || strings.Contains(normalized, candidate) {
			return e.Ticker, true
		}
	}
	return "", false
}

// IndexWordOverlapResolver accepts a registrant when at least two significant
// words (longer than three characters) of the issuer name appear in the
// candidate's normalized name.
type IndexWordOverlapResolver struct {
	Index *edgar.TickerIndex
}

func (r *IndexWordOverlapResolver) Name() string { return "index-word-overlap" }

func (r *IndexWordOverlapResolver) Resolve(cusip, issuerName string) (string, bool) {
	words := significantWords(edgar.NormalizeCompanyName(issuerName))
	if len(words) < 2 {
		return "", false
	}

	for _, e := range r.Index.Entries() {
		candidate := edgar.NormalizeCompanyName(e.Title)
		if candidate == "" {
			continue
		}
		matches := 0
		for _, w := range words {
			if containsWord(candidate, w) {
				matches++
				if matches >= 2 {
					return e.Ticker, true
				}
			}
		}
	}
	return "", false
}

func significantWords(normalized string) []string {
	var out []string
	for _, w := range strings.Fields(normalized) {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func containsWord(haystack, word string) bool {
	for _, w := range strings.Fields(haystack) {
		if w == word {
			return true
		}
	}
	return false
}
