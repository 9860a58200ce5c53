package model

// ImpactReport answers the backward query "what must be regenerated if this
// document is wrong": every extraction drawn from the document, plus the
// union of all models and dashboards built on those extractions.
type ImpactReport struct {
	DocumentHash  string   `json:"document_hash"`
	ExtractionIDs []string `json:"extraction_ids"`
	ModelIDs      []string `json:"model_ids"`
	DashboardIDs  []string `json:"dashboard_ids"`
}

// Empty reports whether the document hash has no recorded lineage at all.
func (r *ImpactReport) Empty() bool {
	return len(r.ExtractionIDs) == 0
}
