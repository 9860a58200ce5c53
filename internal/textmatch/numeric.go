package textmatch

import (
	"regexp"
	"sort"
	"strings"
)

// numericPattern matches numeral-bearing substrings including an optional
// leading currency symbol and an optional trailing unit word.
var numericPattern = regexp.MustCompile(
	`[$€£]?\d[\d,]*(?:\.\d+)?(?:\s*(?:%|percent|percentage points|pp|bps|x|months?|years?|weeks?|days?))?`)

// unitNormalizer folds unit spelling variants to one canonical form so
// "12 months" and "12-month" compare equal.
var unitNormalizer = strings.NewReplacer(
	"percentage points", "pp",
	"percent", "%",
	"months", "month",
	"years", "year",
	"weeks", "week",
	"days", "day",
)

// CanonicalizeNumeric normalizes a single numeral-bearing token: thousands
// separators stripped, "percent" folded to "%", unit words singularized,
// currency symbol preserved, internal whitespace removed.
func CanonicalizeNumeric(tok string) string {
	t := strings.ToLower(strings.TrimSpace(tok))
	t = strings.ReplaceAll(t, ",", "")
	t = unitNormalizer.Replace(t)
	t = strings.Join(strings.Fields(t), "")
	return t
}

// ExtractNumericTokens pulls every canonicalized numeral-bearing token out of
// the metric values. The returned set is what the numeric cross-check must
// find inside the claimed source text.
func ExtractNumericTokens(metrics map[string]string) map[string]bool {
	tokens := make(map[string]bool)
	for _, v := range metrics {
		for _, m := range numericPattern.FindAllString(v, -1) {
			tokens[CanonicalizeNumeric(m)] = true
		}
	}
	return tokens
}

// NumericTokensIn extracts the canonicalized numeric tokens present in free
// text, for membership tests against ExtractNumericTokens output.
func NumericTokensIn(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, m := range numericPattern.FindAllString(text, -1) {
		tokens[CanonicalizeNumeric(m)] = true
	}
	return tokens
}

// MissingNumericTokens returns the metric tokens not found in sourceText,
// sorted for stable feedback messages. Bare-number fallback: a token with a
// unit suffix still counts as present when its bare numeral appears, since
// source text often states "grew 250%" for a metric recorded as "250%".
func MissingNumericTokens(metrics map[string]string, sourceText string) []string {
	return diffTokens(ExtractNumericTokens(metrics), NumericTokensIn(sourceText))
}

// MissingNumericTokensInText returns the numeric tokens of fragment that do
// not occur anywhere in text, with the same bare-number fallback. Used to
// anchor a claimed quote's numerals to the document itself.
func MissingNumericTokensInText(fragment, text string) []string {
	return diffTokens(NumericTokensIn(fragment), NumericTokensIn(text))
}

func diffTokens(want, have map[string]bool) []string {
	var missing []string
	for tok := range want {
		if have[tok] {
			continue
		}
		if bare := bareNumber(tok); bare != "" && have[bare] {
			continue
		}
		missing = append(missing, tok)
	}
	sort.Strings(missing)
	return missing
}

// bareNumber strips currency and unit decoration, leaving only the numeral,
// or "" if nothing would change.
func bareNumber(tok string) string {
	b := strings.TrimLeft(tok, "$€£")
	b = strings.TrimRight(b, "%xabcdefghijklmnopqrstuvwxyz")
	if b == tok {
		return ""
	}
	return b
}
