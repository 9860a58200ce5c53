package model

// CandidateExtraction is a single claimed fact proposed by the generative
// collaborator. Candidates are produced fresh on every retry attempt and are
// never persisted; only the accepted candidate's content is copied onto its
// lineage row.
//
// Metrics maps metric name to value. Values may be numeric-bearing strings
// like "250%" or "12 months".
type CandidateExtraction struct {
	ClaimedName        string            `json:"claimed_name"`
	ClaimedDescription string            `json:"claimed_description"`
	Metrics            map[string]string `json:"metrics"`
	SourceText         string            `json:"source_text"`
	PageNumbers        []int             `json:"page_numbers"`
	StatedConfidence   float64           `json:"stated_confidence"`
}
