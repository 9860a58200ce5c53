package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimtrace/internal/model"
)

var testDoc = model.SourceDocument{
	URL:         "https://example.com/q2-report.pdf",
	ContentHash: "sha256:abc123",
	FullText: "Q2 2024 Financial Results.\n" +
		"Revenue grew 10% in Q2.\n" +
		"Gross margin improved to 62%.\n" +
		"Headcount reached 140 at quarter end.",
	Pages: []string{
		"Q2 2024 Financial Results.",
		"Revenue grew 10% in Q2.\nGross margin improved to 62%.",
		"Headcount reached 140 at quarter end.",
	},
}

func validCandidate() model.CandidateExtraction {
	return model.CandidateExtraction{
		ClaimedName:        "q2_revenue_growth",
		ClaimedDescription: "Revenue grew 10% in Q2",
		Metrics:            map[string]string{"revenue_growth": "10%"},
		SourceText:         "Revenue grew 10% in Q2.",
		PageNumbers:        []int{2},
		StatedConfidence:   0.9,
	}
}

func TestVerifyAcceptsVerbatimMatch(t *testing.T) {
	e := NewEngine(Config{})

	v := e.Verify(validCandidate(), testDoc)

	assert.False(t, v.HardFailed)
	assert.Empty(t, v.SoftIssues)
	assert.InDelta(t, 1.0, v.ConfidenceMultiplier, 1e-9)
	assert.ElementsMatch(t, []string{
		model.CheckTextPresence,
		model.CheckNumericMatch,
		model.CheckPageLocation,
		model.CheckConfidenceFloor,
		model.CheckDescription,
	}, v.ChecksPassed)
	assert.Empty(t, v.ChecksFailed)
}

func TestVerifyHardFailsFabricatedQuote(t *testing.T) {
	e := NewEngine(Config{})

	cand := validCandidate()
	cand.SourceText = "Revenue grew 50% in Q2."
	cand.Metrics = map[string]string{"revenue_growth": "50%"}
	cand.ClaimedDescription = "Revenue grew 50% in Q2"

	v := e.Verify(cand, testDoc)

	require.True(t, v.HardFailed)
	// A single inflated digit must fail both hard checks: the quote is not
	// in the document and its numerals are unanchored.
	assert.Contains(t, v.ChecksFailed, model.CheckTextPresence)
	assert.Contains(t, v.ChecksFailed, model.CheckNumericMatch)

	fb := e.Feedback(cand, testDoc, v)
	require.NotEmpty(t, fb)
	assert.Contains(t, fb[0], "Revenue grew 50% in Q2.")
}

func TestVerifyHardFailsMissingNumericToken(t *testing.T) {
	e := NewEngine(Config{})

	// Quote is genuine but the metric value is not in it.
	cand := validCandidate()
	cand.Metrics = map[string]string{"gross_margin": "62%"}

	v := e.Verify(cand, testDoc)

	require.True(t, v.HardFailed)
	assert.Contains(t, v.ChecksFailed, model.CheckNumericMatch)
	assert.Contains(t, v.ChecksPassed, model.CheckTextPresence)

	fb := e.Feedback(cand, testDoc, v)
	require.Len(t, fb, 1)
	assert.Contains(t, fb[0], "62%")
}

func TestVerifySoftFailsPageMismatch(t *testing.T) {
	e := NewEngine(Config{})

	cand := validCandidate()
	cand.PageNumbers = []int{9}

	v := e.Verify(cand, testDoc)

	assert.False(t, v.HardFailed)
	require.Len(t, v.SoftIssues, 1)
	assert.Contains(t, v.SoftIssues[0], "claimed pages [9]")
	assert.InDelta(t, 0.8, v.ConfidenceMultiplier, 1e-9)
	assert.True(t, v.Flagged())
}

func TestVerifySoftFailsLowConfidence(t *testing.T) {
	e := NewEngine(Config{})

	cand := validCandidate()
	cand.StatedConfidence = 0.5

	v := e.Verify(cand, testDoc)

	assert.False(t, v.HardFailed)
	require.Len(t, v.SoftIssues, 1)
	assert.Contains(t, v.SoftIssues[0], "below floor")
	// Floor is informational: no multiplier applied.
	assert.InDelta(t, 1.0, v.ConfidenceMultiplier, 1e-9)
}

func TestVerifySoftFailsDescriptionMismatch(t *testing.T) {
	e := NewEngine(Config{})

	cand := validCandidate()
	cand.ClaimedDescription = "Customer satisfaction scores improved dramatically worldwide"

	v := e.Verify(cand, testDoc)

	assert.False(t, v.HardFailed)
	require.Len(t, v.SoftIssues, 1)
	assert.InDelta(t, 0.9, v.ConfidenceMultiplier, 1e-9)
}

func TestVerifyPenaltiesCompound(t *testing.T) {
	e := NewEngine(Config{})

	cand := validCandidate()
	cand.PageNumbers = []int{9}
	cand.ClaimedDescription = "Customer satisfaction scores improved dramatically worldwide"

	v := e.Verify(cand, testDoc)

	assert.False(t, v.HardFailed)
	assert.Len(t, v.SoftIssues, 2)
	assert.InDelta(t, 0.8*0.9, v.ConfidenceMultiplier, 1e-9)
}

func TestVerifyChecksAreNotShortCircuited(t *testing.T) {
	e := NewEngine(Config{})

	// Fails both hard checks and a soft check; all must be reported.
	cand := model.CandidateExtraction{
		ClaimedName:        "fabricated",
		ClaimedDescription: "Entirely unrelated claim about satellites",
		Metrics:            map[string]string{"orbit": "900 km"},
		SourceText:         "Satellites orbit at 900 km altitude.",
		PageNumbers:        []int{1},
		StatedConfidence:   0.3,
	}

	v := e.Verify(cand, testDoc)

	require.True(t, v.HardFailed)
	assert.Contains(t, v.ChecksFailed, model.CheckTextPresence)
	assert.Contains(t, v.ChecksFailed, model.CheckConfidenceFloor)
	assert.Contains(t, v.ChecksFailed, model.CheckPageLocation)
}
