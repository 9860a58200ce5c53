// Package store persists extraction lineage: one row per accepted
// extraction, plus the review queue of extractions that exhausted their
// retry budget. The Postgres backend is the system of record; the SQLite
// backend supports local runs and tests.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimtrace/internal/model"
)

// ErrDuplicateExtraction is returned when a lineage insert collides with an
// existing extraction id. Ids are freshly minted at acceptance, so a
// collision indicates a duplicate-insert bug upstream and must surface.
var ErrDuplicateExtraction = eris.New("store: duplicate extraction id")

// ErrNotFound is returned by point lookups for unknown ids.
var ErrNotFound = eris.New("store: not found")

// ReviewFilter specifies criteria for listing review-queue entries.
type ReviewFilter struct {
	IncludeResolved bool `json:"include_resolved,omitempty"`
	Limit           int  `json:"limit,omitempty"`
}

// Store defines the persistence interface for extraction lineage.
//
// AddModelLink and AddDashboardLink must be implemented as atomic
// add-to-set-if-absent operations at the storage layer, never as
// application-level read-modify-write: concurrent builders legitimately link
// overlapping extraction sets, and a lost update here silently corrupts the
// audit trail.
type Store interface {
	// Lineage rows
	CreateLineage(ctx context.Context, row *model.ExtractionLineage) error
	GetLineage(ctx context.Context, extractionID string) (*model.ExtractionLineage, error)
	FindByDocumentHash(ctx context.Context, hash string) ([]model.ExtractionLineage, error)
	// ListDocumentDigests returns the distinct url/hash pairs across all
	// lineage rows, for staleness checks against current ingestion output.
	ListDocumentDigests(ctx context.Context) ([]model.DocumentDigest, error)

	// Usage-set linking. Both return the number of rows actually modified;
	// already-linked rows are skipped, never errors.
	AddModelLink(ctx context.Context, extractionIDs []string, modelID string) (int64, error)
	AddDashboardLink(ctx context.Context, modelID, dashboardID string) (int64, error)

	// Review queue
	EnqueueReview(ctx context.Context, entry *model.ReviewEntry) error
	ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewEntry, error)
	ResolveReview(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
