package monitoring

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimtrace/internal/lineage"
	"github.com/sells-group/claimtrace/internal/model"
	"github.com/sells-group/claimtrace/internal/store"
)

// StalenessReport describes one document whose content changed after
// extraction, with the downstream artifacts built on the stale content.
type StalenessReport struct {
	DocumentURL  string              `json:"document_url"`
	RecordedHash string              `json:"recorded_hash"`
	CurrentHash  string              `json:"current_hash"`
	Impact       *model.ImpactReport `json:"impact"`
}

// StalenessChecker compares the document hashes recorded on lineage rows
// against current ingestion output.
type StalenessChecker struct {
	store   store.Store
	lineage *lineage.Service
}

func NewStalenessChecker(st store.Store, svc *lineage.Service) *StalenessChecker {
	return &StalenessChecker{store: st, lineage: svc}
}

// Check takes the current url→hash view from ingestion and reports every
// recorded digest whose hash has drifted. URLs absent from the current view
// are skipped: no re-ingest means no evidence of change.
func (c *StalenessChecker) Check(ctx context.Context, current map[string]string) ([]StalenessReport, error) {
	recorded, err := c.store.ListDocumentDigests(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "staleness: list recorded digests")
	}

	var reports []StalenessReport
	for _, d := range recorded {
		currentHash, ok := current[d.URL]
		if !ok {
			continue
		}
		impact, stale, err := c.lineage.CheckStaleness(ctx, d.ContentHash, currentHash)
		if err != nil {
			return nil, eris.Wrapf(err, "staleness: check %s", d.URL)
		}
		if !stale {
			continue
		}
		reports = append(reports, StalenessReport{
			DocumentURL:  d.URL,
			RecordedHash: d.ContentHash,
			CurrentHash:  currentHash,
			Impact:       impact,
		})
	}
	return reports, nil
}
