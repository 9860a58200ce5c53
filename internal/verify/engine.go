// Package verify implements the source verification engine: the fixed set of
// checks that accept or reject a candidate extraction against its source
// document. The engine is a pure decision function — it never retries and
// never touches storage — so it is unit-testable against fixed fixtures.
package verify

import (
	"fmt"
	"strings"

	"github.com/sells-group/claimtrace/internal/model"
	"github.com/sells-group/claimtrace/internal/textmatch"
)

// Config holds the check thresholds and soft-issue penalties.
type Config struct {
	FuzzyThreshold       float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	ConfidenceFloor      float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	DescriptionOverlap   float64 `yaml:"description_overlap" mapstructure:"description_overlap"`
	PageMismatchPenalty  float64 `yaml:"page_mismatch_penalty" mapstructure:"page_mismatch_penalty"`
	DescMismatchPenalty  float64 `yaml:"desc_mismatch_penalty" mapstructure:"desc_mismatch_penalty"`
}

// DefaultConfig returns the standard verification thresholds.
func DefaultConfig() Config {
	return Config{
		FuzzyThreshold:      textmatch.DefaultFuzzyThreshold,
		ConfidenceFloor:     0.7,
		DescriptionOverlap:  0.2,
		PageMismatchPenalty: 0.8,
		DescMismatchPenalty: 0.9,
	}
}

// Engine runs the verification checks.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine, filling zero-valued config fields with
// defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = def.FuzzyThreshold
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	if cfg.DescriptionOverlap <= 0 {
		cfg.DescriptionOverlap = def.DescriptionOverlap
	}
	if cfg.PageMismatchPenalty <= 0 {
		cfg.PageMismatchPenalty = def.PageMismatchPenalty
	}
	if cfg.DescMismatchPenalty <= 0 {
		cfg.DescMismatchPenalty = def.DescMismatchPenalty
	}
	return &Engine{cfg: cfg}
}

// Verify runs every check against the candidate and returns the verdict.
// Checks are evaluated independently, never short-circuited, so the verdict
// always carries the complete issue list for retry feedback.
func (e *Engine) Verify(cand model.CandidateExtraction, doc model.SourceDocument) model.VerificationVerdict {
	v := model.VerificationVerdict{ConfidenceMultiplier: 1.0}

	// Text presence (hard): the claimed quote must exist in the document.
	if textmatch.ContainsVerbatim(cand.SourceText, doc.FullText) ||
		textmatch.ContainsFuzzy(cand.SourceText, doc.FullText, e.cfg.FuzzyThreshold) {
		v.ChecksPassed = append(v.ChecksPassed, model.CheckTextPresence)
	} else {
		v.ChecksFailed = append(v.ChecksFailed, model.CheckTextPresence)
		v.HardFailed = true
	}

	// Numeric cross-check (hard): every numeral in the metrics must appear in
	// the claimed source text, and every numeral in the quote must appear in
	// the document. Primary defense against numeric inflation/compression.
	missing := textmatch.MissingNumericTokens(cand.Metrics, cand.SourceText)
	unanchored := textmatch.MissingNumericTokensInText(cand.SourceText, doc.FullText)
	if len(missing) == 0 && len(unanchored) == 0 {
		v.ChecksPassed = append(v.ChecksPassed, model.CheckNumericMatch)
	} else {
		v.ChecksFailed = append(v.ChecksFailed, model.CheckNumericMatch)
		v.HardFailed = true
	}

	// Page location (soft): page segmentation is imprecise, so a mismatch
	// only lowers confidence.
	actualPages := textmatch.PagesContaining(cand.SourceText, doc.Pages, e.cfg.FuzzyThreshold)
	if len(doc.Pages) == 0 || len(cand.PageNumbers) == 0 || intersects(actualPages, cand.PageNumbers) {
		v.ChecksPassed = append(v.ChecksPassed, model.CheckPageLocation)
	} else {
		v.ChecksFailed = append(v.ChecksFailed, model.CheckPageLocation)
		v.SoftIssues = append(v.SoftIssues, fmt.Sprintf(
			"source text not found on claimed pages %v (found on %v)", cand.PageNumbers, actualPages))
		v.ConfidenceMultiplier *= e.cfg.PageMismatchPenalty
	}

	// Confidence floor (soft, informational): no multiplier, downstream
	// consumers decide whether to accept low-confidence rows.
	if cand.StatedConfidence >= e.cfg.ConfidenceFloor {
		v.ChecksPassed = append(v.ChecksPassed, model.CheckConfidenceFloor)
	} else {
		v.ChecksFailed = append(v.ChecksFailed, model.CheckConfidenceFloor)
		v.SoftIssues = append(v.SoftIssues, fmt.Sprintf(
			"stated confidence %.2f below floor %.2f", cand.StatedConfidence, e.cfg.ConfidenceFloor))
	}

	// Description consistency (soft): heuristic word-overlap only, so
	// legitimate paraphrase is never hard-failed.
	overlap := textmatch.WordOverlap(cand.ClaimedDescription, cand.SourceText)
	if cand.ClaimedDescription == "" || overlap >= e.cfg.DescriptionOverlap {
		v.ChecksPassed = append(v.ChecksPassed, model.CheckDescription)
	} else {
		v.ChecksFailed = append(v.ChecksFailed, model.CheckDescription)
		v.SoftIssues = append(v.SoftIssues, fmt.Sprintf(
			"claimed description shares only %.0f%% of its words with the source text", overlap*100))
		v.ConfidenceMultiplier *= e.cfg.DescMismatchPenalty
	}

	return v
}

// Feedback renders a verdict's hard failures as corrective lines for the next
// proposal attempt: which fragment was not found and which numeric tokens
// were missing.
func (e *Engine) Feedback(cand model.CandidateExtraction, doc model.SourceDocument, v model.VerificationVerdict) []string {
	var lines []string
	for _, check := range v.ChecksFailed {
		switch check {
		case model.CheckTextPresence:
			lines = append(lines, fmt.Sprintf(
				"the quoted source text %q does not appear in the document; quote the document verbatim", cand.SourceText))
		case model.CheckNumericMatch:
			if missing := textmatch.MissingNumericTokens(cand.Metrics, cand.SourceText); len(missing) > 0 {
				lines = append(lines, fmt.Sprintf(
					"metric values [%s] do not appear in the quoted source text; every number must come from the quote",
					strings.Join(missing, ", ")))
			}
			if unanchored := textmatch.MissingNumericTokensInText(cand.SourceText, doc.FullText); len(unanchored) > 0 {
				lines = append(lines, fmt.Sprintf(
					"numbers [%s] in the quoted source text do not appear anywhere in the document",
					strings.Join(unanchored, ", ")))
			}
		}
	}
	return lines
}

func intersects(a, b []int) bool {
	set := make(map[int]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if set[y] {
			return true
		}
	}
	return false
}
