// Package lineage implements the provenance update protocol on top of the
// store: linking extractions into models, propagating model usage to
// dashboards, and answering impact queries.
package lineage

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/model"
	"github.com/sells-group/claimtrace/internal/store"
)

// Service coordinates lineage updates. All set mutations are delegated to the
// store's atomic add-if-absent operations; the service never reads a row to
// decide whether to write it.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// LinkToModel records that modelID consumed the given extractions. Idempotent:
// re-linking already-linked extractions is a no-op, and the returned count is
// the number of rows newly linked.
func (s *Service) LinkToModel(ctx context.Context, extractionIDs []string, modelID string) (int64, error) {
	if modelID == "" {
		return 0, eris.New("lineage: model id is required")
	}
	if len(extractionIDs) == 0 {
		return 0, nil
	}

	n, err := s.store.AddModelLink(ctx, extractionIDs, modelID)
	if err != nil {
		return 0, err
	}
	zap.L().Info("lineage: linked extractions to model",
		zap.String("model_id", modelID),
		zap.Int("requested", len(extractionIDs)),
		zap.Int64("newly_linked", n),
	)
	return n, nil
}

// LinkToDashboard records that dashboardID consumed modelID, propagating the
// dashboard to every extraction that feeds the model. Returns the number of
// extraction rows newly linked; zero means either the model is unknown or
// every feeding row already carries the dashboard.
func (s *Service) LinkToDashboard(ctx context.Context, modelID, dashboardID string) (int64, error) {
	if modelID == "" || dashboardID == "" {
		return 0, eris.New("lineage: model id and dashboard id are required")
	}

	n, err := s.store.AddDashboardLink(ctx, modelID, dashboardID)
	if err != nil {
		return 0, err
	}
	zap.L().Info("lineage: linked dashboard to model",
		zap.String("model_id", modelID),
		zap.String("dashboard_id", dashboardID),
		zap.Int64("newly_linked", n),
	)
	return n, nil
}

// Get returns a single lineage row by extraction id.
func (s *Service) Get(ctx context.Context, extractionID string) (*model.ExtractionLineage, error) {
	return s.store.GetLineage(ctx, extractionID)
}

// ImpactAnalysis reports everything downstream of a source document: the
// extractions drawn from it and the deduplicated union of models and
// dashboards built on them. An unknown hash yields an empty report, not an
// error; absence of lineage is a valid answer.
func (s *Service) ImpactAnalysis(ctx context.Context, documentHash string) (*model.ImpactReport, error) {
	if documentHash == "" {
		return nil, eris.New("lineage: document hash is required")
	}

	rows, err := s.store.FindByDocumentHash(ctx, documentHash)
	if err != nil {
		return nil, err
	}

	report := &model.ImpactReport{
		DocumentHash:  documentHash,
		ExtractionIDs: make([]string, 0, len(rows)),
		ModelIDs:      []string{},
		DashboardIDs:  []string{},
	}
	models := map[string]bool{}
	dashboards := map[string]bool{}
	for i := range rows {
		report.ExtractionIDs = append(report.ExtractionIDs, rows[i].ExtractionID)
		for _, m := range rows[i].UsedInModels {
			if !models[m] {
				models[m] = true
				report.ModelIDs = append(report.ModelIDs, m)
			}
		}
		for _, d := range rows[i].UsedInDashboards {
			if !dashboards[d] {
				dashboards[d] = true
				report.DashboardIDs = append(report.DashboardIDs, d)
			}
		}
	}
	sort.Strings(report.ModelIDs)
	sort.Strings(report.DashboardIDs)
	return report, nil
}

// CheckStaleness compares a document's recorded hash against its current
// content hash. On mismatch it returns the impact report for the recorded
// hash, so callers know what was built on the now-stale content.
func (s *Service) CheckStaleness(ctx context.Context, recordedHash, currentHash string) (*model.ImpactReport, bool, error) {
	if recordedHash == currentHash {
		return nil, false, nil
	}

	report, err := s.ImpactAnalysis(ctx, recordedHash)
	if err != nil {
		return nil, false, err
	}
	if !report.Empty() {
		zap.L().Warn("lineage: source document content changed since extraction",
			zap.String("recorded_hash", recordedHash),
			zap.String("current_hash", currentHash),
			zap.Int("affected_extractions", len(report.ExtractionIDs)),
			zap.Int("affected_models", len(report.ModelIDs)),
			zap.Int("affected_dashboards", len(report.DashboardIDs)),
		)
	}
	return report, true, nil
}
