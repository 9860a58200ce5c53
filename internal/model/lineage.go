package model

import "time"

// VerificationStatus classifies an accepted extraction.
type VerificationStatus string

const (
	// StatusVerified means the extraction passed every check cleanly.
	StatusVerified VerificationStatus = "verified"
	// StatusFlagged means the extraction passed hard checks but carries
	// soft issues for human review. Flagged rows remain eligible for
	// downstream linking; flags are informational, not blocking.
	StatusFlagged VerificationStatus = "flagged"
)

// ExtractionLineage is the persisted audit record for one accepted
// extraction: where it came from, how it was verified, and everything
// downstream that consumes it. One row exists per accepted extraction;
// rejected attempts never produce a row.
//
// UsedInModels and UsedInDashboards are append-only sets — linking the same
// id twice is a no-op. SourceDocumentHash is immutable after creation; a
// changed document requires a new extraction, never a mutation of this row.
type ExtractionLineage struct {
	ExtractionID       string             `json:"extraction_id"`
	SourceDocumentURL  string             `json:"source_document_url"`
	SourceDocumentHash string             `json:"source_document_hash"`
	ExtractionAgent    string             `json:"extraction_agent"`
	ExtractionModel    string             `json:"extraction_model"`
	ExtractionTime     time.Time          `json:"extraction_timestamp"`
	Status             VerificationStatus `json:"verification_status"`
	Issues             []string           `json:"verification_issues,omitempty"`
	RetryAttempts      int                `json:"retry_attempts"`
	FinalConfidence    float64            `json:"final_confidence"`
	UsedInModels       []string           `json:"used_in_models"`
	UsedInDashboards   []string           `json:"used_in_dashboards"`

	// Accepted claim content, persisted for audit display.
	ClaimedName        string            `json:"claimed_name,omitempty"`
	ClaimedDescription string            `json:"claimed_description,omitempty"`
	Metrics            map[string]string `json:"metrics,omitempty"`
	SourceText         string            `json:"source_text,omitempty"`
	PageNumbers        []int             `json:"page_numbers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsedInModel reports whether modelID is already in the usage set.
func (l *ExtractionLineage) UsedInModel(modelID string) bool {
	for _, m := range l.UsedInModels {
		if m == modelID {
			return true
		}
	}
	return false
}

// UsedInDashboard reports whether dashboardID is already in the usage set.
func (l *ExtractionLineage) UsedInDashboard(dashboardID string) bool {
	for _, d := range l.UsedInDashboards {
		if d == dashboardID {
			return true
		}
	}
	return false
}
