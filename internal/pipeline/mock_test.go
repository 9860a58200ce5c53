package pipeline

import (
	"context"
	"sync"

	"github.com/sells-group/claimtrace/internal/model"
	"github.com/sells-group/claimtrace/internal/store"
)

// stubProposer returns scripted proposals in order, recording each request.
type stubProposer struct {
	mu        sync.Mutex
	proposals []func(req ProposalRequest) (*Proposal, error)
	requests  []ProposalRequest
}

func (s *stubProposer) Propose(_ context.Context, req ProposalRequest) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.proposals) {
		idx = len(s.proposals) - 1
	}
	return s.proposals[idx](req)
}

// stubStore is an in-memory store.Store for orchestrator tests.
type stubStore struct {
	mu      sync.Mutex
	rows    map[string]*model.ExtractionLineage
	reviews []*model.ReviewEntry

	createErr error
}

func newStubStore() *stubStore {
	return &stubStore{rows: map[string]*model.ExtractionLineage{}}
}

func (s *stubStore) CreateLineage(_ context.Context, row *model.ExtractionLineage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.rows[row.ExtractionID]; ok {
		return store.ErrDuplicateExtraction
	}
	s.rows[row.ExtractionID] = row
	return nil
}

func (s *stubStore) GetLineage(_ context.Context, id string) (*model.ExtractionLineage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return row, nil
}

func (s *stubStore) FindByDocumentHash(_ context.Context, hash string) ([]model.ExtractionLineage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExtractionLineage
	for _, row := range s.rows {
		if row.SourceDocumentHash == hash {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *stubStore) ListDocumentDigests(_ context.Context) ([]model.DocumentDigest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []model.DocumentDigest
	for _, row := range s.rows {
		key := row.SourceDocumentURL + "\x00" + row.SourceDocumentHash
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.DocumentDigest{URL: row.SourceDocumentURL, ContentHash: row.SourceDocumentHash})
	}
	return out, nil
}

func (s *stubStore) AddModelLink(_ context.Context, ids []string, modelID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		row, ok := s.rows[id]
		if !ok || row.UsedInModel(modelID) {
			continue
		}
		row.UsedInModels = append(row.UsedInModels, modelID)
		n++
	}
	return n, nil
}

func (s *stubStore) AddDashboardLink(_ context.Context, modelID, dashboardID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if !row.UsedInModel(modelID) || row.UsedInDashboard(dashboardID) {
			continue
		}
		row.UsedInDashboards = append(row.UsedInDashboards, dashboardID)
		n++
	}
	return n, nil
}

func (s *stubStore) EnqueueReview(_ context.Context, entry *model.ReviewEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = append(s.reviews, entry)
	return nil
}

func (s *stubStore) ListReviews(_ context.Context, _ store.ReviewFilter) ([]model.ReviewEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ReviewEntry, 0, len(s.reviews))
	for _, e := range s.reviews {
		out = append(out, *e)
	}
	return out, nil
}

func (s *stubStore) ResolveReview(_ context.Context, _ string) error { return nil }
func (s *stubStore) Migrate(_ context.Context) error                 { return nil }
func (s *stubStore) Close() error                                    { return nil }
