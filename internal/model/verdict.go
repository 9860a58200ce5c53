package model

// Check identifiers used in VerificationVerdict.ChecksPassed/ChecksFailed.
const (
	CheckTextPresence    = "text_presence"
	CheckNumericMatch    = "numeric_consistency"
	CheckPageLocation    = "page_location"
	CheckConfidenceFloor = "confidence_floor"
	CheckDescription     = "description_consistency"
)

// VerificationVerdict is the outcome of running all verification checks
// against one candidate extraction. Transient; one verdict per attempt.
type VerificationVerdict struct {
	// HardFailed is true when the candidate fails a check whose failure is
	// conclusive evidence of fabrication (text presence, numeric match).
	HardFailed bool `json:"hard_failed"`

	// SoftIssues holds human-readable advisory findings in check order.
	SoftIssues []string `json:"soft_issues,omitempty"`

	// ConfidenceMultiplier is the product of per-soft-issue penalties,
	// 1.0 when no soft check fired. Always in [0, 1].
	ConfidenceMultiplier float64 `json:"confidence_multiplier"`

	ChecksPassed []string `json:"checks_passed"`
	ChecksFailed []string `json:"checks_failed,omitempty"`
}

// Flagged reports whether an accepted candidate should carry the "flagged"
// verification status.
func (v VerificationVerdict) Flagged() bool {
	return len(v.SoftIssues) > 0
}
