package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/claimtrace/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Usage sets are JSON
// arrays manipulated with the JSON1 functions; every set mutation is a
// single guarded UPDATE statement, and SQLite's writer serialization makes
// it atomic.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_lineage (
	id                   TEXT PRIMARY KEY,
	source_document_url  TEXT NOT NULL,
	source_document_hash TEXT NOT NULL,
	extraction_agent     TEXT NOT NULL DEFAULT '',
	extraction_model     TEXT NOT NULL DEFAULT '',
	extracted_at         DATETIME NOT NULL,
	verification_status  TEXT NOT NULL,
	verification_issues  TEXT NOT NULL DEFAULT '[]',
	retry_attempts       INTEGER NOT NULL DEFAULT 1,
	final_confidence     REAL NOT NULL,
	claimed_name         TEXT NOT NULL DEFAULT '',
	claimed_description  TEXT NOT NULL DEFAULT '',
	metrics              TEXT NOT NULL DEFAULT '{}',
	source_text          TEXT NOT NULL DEFAULT '',
	page_numbers         TEXT NOT NULL DEFAULT '[]',
	used_in_models       TEXT NOT NULL DEFAULT '[]',
	used_in_dashboards   TEXT NOT NULL DEFAULT '[]',
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_lineage_doc_hash ON extraction_lineage(source_document_hash);

CREATE TABLE IF NOT EXISTS review_queue (
	id                   TEXT PRIMARY KEY,
	source_document_url  TEXT NOT NULL,
	source_document_hash TEXT NOT NULL,
	extraction_context   TEXT NOT NULL DEFAULT '',
	issue_history        TEXT NOT NULL DEFAULT '[]',
	attempts             INTEGER NOT NULL DEFAULT 0,
	resolved             INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	resolved_at          DATETIME
);

CREATE INDEX IF NOT EXISTS idx_review_queue_resolved ON review_queue(resolved);
`

const sqliteLineageColumns = `id, source_document_url, source_document_hash, extraction_agent, extraction_model,
	extracted_at, verification_status, verification_issues, retry_attempts, final_confidence,
	claimed_name, claimed_description, metrics, source_text, page_numbers,
	used_in_models, used_in_dashboards, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateLineage(ctx context.Context, row *model.ExtractionLineage) error {
	issuesJSON, err := json.Marshal(issuesOrEmpty(row.Issues))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal issues")
	}
	metricsJSON, err := json.Marshal(metricsOrEmpty(row.Metrics))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}
	pagesJSON, err := json.Marshal(pagesOrEmpty(row.PageNumbers))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pages")
	}
	modelsJSON, _ := json.Marshal(strSlice(row.UsedInModels))
	dashboardsJSON, _ := json.Marshal(strSlice(row.UsedInDashboards))

	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_lineage (`+sqliteLineageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ExtractionID, row.SourceDocumentURL, row.SourceDocumentHash,
		row.ExtractionAgent, row.ExtractionModel, row.ExtractionTime,
		string(row.Status), string(issuesJSON), row.RetryAttempts, row.FinalConfidence,
		row.ClaimedName, row.ClaimedDescription, string(metricsJSON), row.SourceText,
		string(pagesJSON), string(modelsJSON), string(dashboardsJSON), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return eris.Wrapf(ErrDuplicateExtraction, "sqlite: insert lineage %s", row.ExtractionID)
		}
		return eris.Wrapf(err, "sqlite: insert lineage %s", row.ExtractionID)
	}
	return nil
}

func (s *SQLiteStore) GetLineage(ctx context.Context, extractionID string) (*model.ExtractionLineage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLineageColumns+` FROM extraction_lineage WHERE id = ?`,
		extractionID,
	)
	l, err := scanSQLiteLineage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: lineage %s", extractionID)
		}
		return nil, eris.Wrapf(err, "sqlite: get lineage %s", extractionID)
	}
	return l, nil
}

func (s *SQLiteStore) FindByDocumentHash(ctx context.Context, hash string) ([]model.ExtractionLineage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLineageColumns+` FROM extraction_lineage
		 WHERE source_document_hash = ? ORDER BY created_at`,
		hash,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find by document hash")
	}
	defer rows.Close()

	var result []model.ExtractionLineage
	for rows.Next() {
		l, err := scanSQLiteLineage(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lineage")
		}
		result = append(result, *l)
	}
	return result, eris.Wrap(rows.Err(), "sqlite: find by document hash iterate")
}

func (s *SQLiteStore) ListDocumentDigests(ctx context.Context) ([]model.DocumentDigest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT source_document_url, source_document_hash FROM extraction_lineage`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list document digests")
	}
	defer rows.Close()

	var digests []model.DocumentDigest
	for rows.Next() {
		var d model.DocumentDigest
		if err := rows.Scan(&d.URL, &d.ContentHash); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document digest")
		}
		digests = append(digests, d)
	}
	return digests, eris.Wrap(rows.Err(), "sqlite: list document digests iterate")
}

func (s *SQLiteStore) AddModelLink(ctx context.Context, extractionIDs []string, modelID string) (int64, error) {
	if len(extractionIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(extractionIDs)), ",")
	args := []any{modelID, time.Now().UTC()}
	for _, id := range extractionIDs {
		args = append(args, id)
	}
	args = append(args, modelID)

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE extraction_lineage
		 SET used_in_models = json_insert(used_in_models, '$[#]', ?), updated_at = ?
		 WHERE id IN (%s)
		   AND NOT EXISTS (SELECT 1 FROM json_each(extraction_lineage.used_in_models) WHERE json_each.value = ?)`,
		placeholders), args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: link model %s", modelID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: link model rows affected")
}

func (s *SQLiteStore) AddDashboardLink(ctx context.Context, modelID, dashboardID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_lineage
		 SET used_in_dashboards = json_insert(used_in_dashboards, '$[#]', ?), updated_at = ?
		 WHERE EXISTS (SELECT 1 FROM json_each(extraction_lineage.used_in_models) WHERE json_each.value = ?)
		   AND NOT EXISTS (SELECT 1 FROM json_each(extraction_lineage.used_in_dashboards) WHERE json_each.value = ?)`,
		dashboardID, time.Now().UTC(), modelID, dashboardID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: link dashboard %s to model %s", dashboardID, modelID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: link dashboard rows affected")
}

func (s *SQLiteStore) EnqueueReview(ctx context.Context, entry *model.ReviewEntry) error {
	historyJSON, err := json.Marshal(issuesOrEmpty(entry.IssueHistory))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal issue history")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_queue (id, source_document_url, source_document_hash, extraction_context, issue_history, attempts, resolved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		entry.ID, entry.SourceDocumentURL, entry.SourceDocumentHash,
		entry.ExtractionContext, string(historyJSON), entry.Attempts, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue review")
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewEntry, error) {
	query := `SELECT id, source_document_url, source_document_hash, extraction_context, issue_history, attempts, resolved, created_at, resolved_at
	          FROM review_queue`
	if !filter.IncludeResolved {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY created_at LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	var entries []model.ReviewEntry
	for rows.Next() {
		var e model.ReviewEntry
		var historyJSON string
		var resolved int
		if err := rows.Scan(&e.ID, &e.SourceDocumentURL, &e.SourceDocumentHash,
			&e.ExtractionContext, &historyJSON, &e.Attempts, &resolved,
			&e.CreatedAt, &e.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review entry")
		}
		e.Resolved = resolved != 0
		if err := json.Unmarshal([]byte(historyJSON), &e.IssueHistory); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal issue history")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list reviews iterate")
}

func (s *SQLiteStore) ResolveReview(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_queue SET resolved = 1, resolved_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve review %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: resolve review rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: review entry %s", id)
	}
	return nil
}

// scanSQLiteLineage reads one lineage row given a Scan function.
func scanSQLiteLineage(scan func(dest ...any) error) (*model.ExtractionLineage, error) {
	var l model.ExtractionLineage
	var status, issuesJSON, metricsJSON, pagesJSON, modelsJSON, dashboardsJSON string

	if err := scan(&l.ExtractionID, &l.SourceDocumentURL, &l.SourceDocumentHash,
		&l.ExtractionAgent, &l.ExtractionModel, &l.ExtractionTime,
		&status, &issuesJSON, &l.RetryAttempts, &l.FinalConfidence,
		&l.ClaimedName, &l.ClaimedDescription, &metricsJSON, &l.SourceText,
		&pagesJSON, &modelsJSON, &dashboardsJSON, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}

	l.Status = model.VerificationStatus(status)
	for _, col := range []struct {
		raw string
		dst any
	}{
		{issuesJSON, &l.Issues},
		{metricsJSON, &l.Metrics},
		{pagesJSON, &l.PageNumbers},
		{modelsJSON, &l.UsedInModels},
		{dashboardsJSON, &l.UsedInDashboards},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, eris.Wrap(err, "unmarshal lineage column")
		}
	}
	if l.UsedInModels == nil {
		l.UsedInModels = []string{}
	}
	if l.UsedInDashboards == nil {
		l.UsedInDashboards = []string{}
	}
	return &l, nil
}

func pagesOrEmpty(pages []int) []int {
	if pages == nil {
		return []int{}
	}
	return pages
}
