// Package textmatch provides normalized text comparison against source
// documents: verbatim and fuzzy containment, numeric token extraction, and
// page search. Everything here is pure and stateless.
package textmatch

import (
	"strings"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultFuzzyThreshold is the minimum window similarity for a fuzzy match.
const DefaultFuzzyThreshold = 0.90

// windowSlack widens the sliding window by ±10% of the needle length so
// benign insertions/deletions in the source don't defeat the match.
const windowSlack = 0.10

var foldCaser = cases.Fold()

// Normalize canonicalizes text for comparison: Unicode NFKC, case folding,
// and whitespace runs collapsed to single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = foldCaser.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// ContainsVerbatim reports whether needle appears as a substring of haystack
// after normalization.
func ContainsVerbatim(needle, haystack string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}

// ContainsFuzzy reports whether needle appears in haystack either verbatim or
// within edit-similarity threshold of some window of haystack. The window
// slides across the normalized haystack at sizes len(needle) ± 10%, which
// absorbs paraphrase and whitespace drift without accepting fabricated text.
func ContainsFuzzy(needle, haystack string, threshold float64) bool {
	n := Normalize(needle)
	h := Normalize(haystack)
	if n == "" || h == "" {
		return false
	}
	if strings.Contains(h, n) {
		return true
	}

	// Edit similarity alone would forgive a single altered digit, which is
	// exactly the fabrication this matcher exists to catch. Any numeral in
	// the needle must literally occur in the haystack before a fuzzy match
	// can succeed.
	if len(MissingNumericTokensInText(n, h)) > 0 {
		return false
	}

	nr := []rune(n)
	hr := []rune(h)
	if len(hr) < len(nr) {
		// Haystack shorter than needle: compare whole strings directly.
		return levenshtein.Similarity(n, h, nil) >= threshold
	}

	slack := int(float64(len(nr)) * windowSlack)
	if slack < 1 {
		slack = 1
	}

	// Step a fraction of the needle length; the ±slack window overlap keeps
	// matches from falling between steps.
	step := len(nr) / 10
	if step < 1 {
		step = 1
	}

	for size := len(nr) - slack; size <= len(nr)+slack; size += slack {
		if size < 1 || size > len(hr) {
			continue
		}
		for start := 0; start+size <= len(hr); start += step {
			window := string(hr[start : start+size])
			if levenshtein.Similarity(n, window, nil) >= threshold {
				return true
			}
		}
	}
	return false
}

// PagesContaining returns the 1-indexed pages on which fragment fuzzily
// appears. Pages are assumed ordered; pages[0] is page 1.
func PagesContaining(fragment string, pages []string, threshold float64) []int {
	var found []int
	for i, page := range pages {
		if ContainsFuzzy(fragment, page, threshold) {
			found = append(found, i+1)
		}
	}
	return found
}

// WordOverlap computes the fraction of distinct words in a that also occur
// in b, after normalization. Used by the description-consistency check.
// Returns 1.0 when a has no words.
func WordOverlap(a, b string) float64 {
	aWords := strings.Fields(Normalize(a))
	if len(aWords) == 0 {
		return 1.0
	}
	bSet := make(map[string]bool)
	for _, w := range strings.Fields(Normalize(b)) {
		bSet[strings.Trim(w, ".,;:!?()[]\"'")] = true
	}
	seen := make(map[string]bool)
	var distinct, hit int
	for _, w := range aWords {
		w = strings.Trim(w, ".,;:!?()[]\"'")
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		distinct++
		if bSet[w] {
			hit++
		}
	}
	if distinct == 0 {
		return 1.0
	}
	return float64(hit) / float64(distinct)
}
