package model

import "time"

// ReviewEntry is an extraction request that exhausted its retry budget and
// was handed off for manual drafting. Entries never become lineage rows;
// a human either drafts the claim by hand or discards it.
type ReviewEntry struct {
	ID                 string    `json:"id"`
	SourceDocumentURL  string    `json:"source_document_url"`
	SourceDocumentHash string    `json:"source_document_hash"`
	ExtractionContext  string    `json:"extraction_context,omitempty"`
	// IssueHistory holds one feedback line per failed check per attempt,
	// in attempt order.
	IssueHistory []string  `json:"issue_history"`
	Attempts     int       `json:"attempts"`
	Resolved     bool      `json:"resolved"`
	CreatedAt    time.Time `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}
