package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimtrace/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateAndGetLineage(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	row := sampleLineage("ext-1", "sha256:abc")
	row.Issues = []string{"claimed pages [9] do not contain the quote"}
	row.Status = model.StatusFlagged
	require.NoError(t, st.CreateLineage(ctx, row))

	got, err := st.GetLineage(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", got.ExtractionID)
	assert.Equal(t, "sha256:abc", got.SourceDocumentHash)
	assert.Equal(t, model.StatusFlagged, got.Status)
	assert.Equal(t, row.Issues, got.Issues)
	assert.Equal(t, map[string]string{"revenue_growth": "10%"}, got.Metrics)
	assert.Equal(t, []int{2}, got.PageNumbers)
	assert.InDelta(t, 0.9, got.FinalConfidence, 1e-9)
	assert.WithinDuration(t, row.ExtractionTime, got.ExtractionTime, time.Second)
	// Usage sets start empty but never nil.
	assert.NotNil(t, got.UsedInModels)
	assert.NotNil(t, got.UsedInDashboards)
	assert.Empty(t, got.UsedInModels)
	assert.Empty(t, got.UsedInDashboards)
}

func TestSQLite_CreateLineage_DuplicateID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-1", "sha256:abc")))

	err := st.CreateLineage(ctx, sampleLineage("ext-1", "sha256:other"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateExtraction)
}

func TestSQLite_GetLineage_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetLineage(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_FindByDocumentHash(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-1", "sha256:abc")))
	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-2", "sha256:abc")))
	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-3", "sha256:other")))

	result, err := st.FindByDocumentHash(ctx, "sha256:abc")
	require.NoError(t, err)
	require.Len(t, result, 2)

	result, err = st.FindByDocumentHash(ctx, "sha256:missing")
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestSQLite_AddModelLink_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-1", "sha256:abc")))
	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-2", "sha256:abc")))

	n, err := st.AddModelLink(ctx, []string{"ext-1", "ext-2"}, "model-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Second identical call is a no-op.
	n, err = st.AddModelLink(ctx, []string{"ext-1", "ext-2"}, "model-a")
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := st.GetLineage(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"model-a"}, got.UsedInModels)
}

func TestSQLite_AddModelLink_SkipsAlreadyLinked(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-1", "sha256:abc")))
	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-2", "sha256:abc")))

	_, err := st.AddModelLink(ctx, []string{"ext-1"}, "model-a")
	require.NoError(t, err)

	// Overlapping set: only the unlinked row is touched.
	n, err := st.AddModelLink(ctx, []string{"ext-1", "ext-2"}, "model-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_AddDashboardLink_Propagates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-1", "sha256:abc")))
	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-2", "sha256:abc")))
	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-3", "sha256:other")))

	_, err := st.AddModelLink(ctx, []string{"ext-1", "ext-2"}, "model-a")
	require.NoError(t, err)

	// The dashboard reaches every extraction feeding model-a, and only those.
	n, err := st.AddDashboardLink(ctx, "model-a", "dash-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.GetLineage(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"dash-1"}, got.UsedInDashboards)

	got, err = st.GetLineage(ctx, "ext-3")
	require.NoError(t, err)
	assert.Empty(t, got.UsedInDashboards)

	// Re-linking is a no-op.
	n, err = st.AddDashboardLink(ctx, "model-a", "dash-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_AddDashboardLink_UnknownModel(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-1", "sha256:abc")))

	n, err := st.AddDashboardLink(ctx, "model-unknown", "dash-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// One extraction feeding two models, each model feeding two dashboards: the
// row must end up with both models and all four dashboards.
func TestSQLite_UsageSets_AccumulateAcrossModels(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLineage(ctx, sampleLineage("ext-1", "sha256:abc")))

	for _, m := range []string{"model-a", "model-b"} {
		_, err := st.AddModelLink(ctx, []string{"ext-1"}, m)
		require.NoError(t, err)
	}
	for _, link := range [][2]string{
		{"model-a", "dash-1"}, {"model-a", "dash-2"},
		{"model-b", "dash-3"}, {"model-b", "dash-4"},
	} {
		_, err := st.AddDashboardLink(ctx, link[0], link[1])
		require.NoError(t, err)
	}

	got, err := st.GetLineage(ctx, "ext-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"model-a", "model-b"}, got.UsedInModels)
	assert.ElementsMatch(t, []string{"dash-1", "dash-2", "dash-3", "dash-4"}, got.UsedInDashboards)
}

func TestSQLite_ReviewQueue_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := &model.ReviewEntry{
		ID:                 "rev-1",
		SourceDocumentURL:  "https://example.com/q2-report.pdf",
		SourceDocumentHash: "sha256:abc",
		ExtractionContext:  "quarterly metrics",
		IssueHistory:       []string{"quote not found", "quote not found", "metric value 10% missing"},
		Attempts:           3,
	}
	require.NoError(t, st.EnqueueReview(ctx, entry))

	entries, err := st.ListReviews(ctx, ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rev-1", entries[0].ID)
	assert.Equal(t, entry.IssueHistory, entries[0].IssueHistory)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.False(t, entries[0].Resolved)
	assert.Nil(t, entries[0].ResolvedAt)

	require.NoError(t, st.ResolveReview(ctx, "rev-1"))

	entries, err = st.ListReviews(ctx, ReviewFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = st.ListReviews(ctx, ReviewFilter{IncludeResolved: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Resolved)
	assert.NotNil(t, entries[0].ResolvedAt)
}

func TestSQLite_ResolveReview_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.ResolveReview(context.Background(), "rev-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
