package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claimtrace/internal/db"
	"github.com/sells-group/claimtrace/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk lineage import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_lineage (
	id                   TEXT PRIMARY KEY,
	source_document_url  TEXT NOT NULL,
	source_document_hash TEXT NOT NULL,
	extraction_agent     TEXT NOT NULL DEFAULT '',
	extraction_model     TEXT NOT NULL DEFAULT '',
	extracted_at         TIMESTAMPTZ NOT NULL,
	verification_status  TEXT NOT NULL,
	verification_issues  JSONB NOT NULL DEFAULT '[]',
	retry_attempts       INTEGER NOT NULL DEFAULT 1,
	final_confidence     DOUBLE PRECISION NOT NULL,
	claimed_name         TEXT NOT NULL DEFAULT '',
	claimed_description  TEXT NOT NULL DEFAULT '',
	metrics              JSONB NOT NULL DEFAULT '{}',
	source_text          TEXT NOT NULL DEFAULT '',
	page_numbers         INTEGER[] NOT NULL DEFAULT '{}',
	used_in_models       TEXT[] NOT NULL DEFAULT '{}',
	used_in_dashboards   TEXT[] NOT NULL DEFAULT '{}',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lineage_doc_hash ON extraction_lineage(source_document_hash);
CREATE INDEX IF NOT EXISTS idx_lineage_models ON extraction_lineage USING GIN (used_in_models);
CREATE INDEX IF NOT EXISTS idx_lineage_dashboards ON extraction_lineage USING GIN (used_in_dashboards);

CREATE TABLE IF NOT EXISTS review_queue (
	id                   TEXT PRIMARY KEY,
	source_document_url  TEXT NOT NULL,
	source_document_hash TEXT NOT NULL,
	extraction_context   TEXT NOT NULL DEFAULT '',
	issue_history        JSONB NOT NULL DEFAULT '[]',
	attempts             INTEGER NOT NULL DEFAULT 0,
	resolved             BOOLEAN NOT NULL DEFAULT FALSE,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at          TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_review_queue_resolved ON review_queue(resolved);
`

const lineageColumns = `id, source_document_url, source_document_hash, extraction_agent, extraction_model,
	extracted_at, verification_status, verification_issues, retry_attempts, final_confidence,
	claimed_name, claimed_description, metrics, source_text, page_numbers,
	used_in_models, used_in_dashboards, created_at, updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateLineage(ctx context.Context, row *model.ExtractionLineage) error {
	issuesJSON, err := json.Marshal(issuesOrEmpty(row.Issues))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal issues")
	}
	metricsJSON, err := json.Marshal(metricsOrEmpty(row.Metrics))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}

	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_lineage (`+lineageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		row.ExtractionID, row.SourceDocumentURL, row.SourceDocumentHash,
		row.ExtractionAgent, row.ExtractionModel, row.ExtractionTime,
		string(row.Status), issuesJSON, row.RetryAttempts, row.FinalConfidence,
		row.ClaimedName, row.ClaimedDescription, metricsJSON, row.SourceText,
		intSlice(row.PageNumbers), strSlice(row.UsedInModels), strSlice(row.UsedInDashboards),
		now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(ErrDuplicateExtraction, "postgres: insert lineage %s", row.ExtractionID)
		}
		return eris.Wrapf(err, "postgres: insert lineage %s", row.ExtractionID)
	}
	return nil
}

func (s *PostgresStore) GetLineage(ctx context.Context, extractionID string) (*model.ExtractionLineage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+lineageColumns+` FROM extraction_lineage WHERE id = $1`,
		extractionID,
	)
	l, err := scanLineage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: lineage %s", extractionID)
		}
		return nil, eris.Wrapf(err, "postgres: get lineage %s", extractionID)
	}
	return l, nil
}

func (s *PostgresStore) FindByDocumentHash(ctx context.Context, hash string) ([]model.ExtractionLineage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lineageColumns+` FROM extraction_lineage
		 WHERE source_document_hash = $1 ORDER BY created_at`,
		hash,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by document hash")
	}
	defer rows.Close()

	var result []model.ExtractionLineage
	for rows.Next() {
		l, err := scanLineage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lineage")
		}
		result = append(result, *l)
	}
	return result, eris.Wrap(rows.Err(), "postgres: find by document hash iterate")
}

func (s *PostgresStore) ListDocumentDigests(ctx context.Context) ([]model.DocumentDigest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT source_document_url, source_document_hash FROM extraction_lineage`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list document digests")
	}
	defer rows.Close()

	var digests []model.DocumentDigest
	for rows.Next() {
		var d model.DocumentDigest
		if err := rows.Scan(&d.URL, &d.ContentHash); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document digest")
		}
		digests = append(digests, d)
	}
	return digests, eris.Wrap(rows.Err(), "postgres: list document digests iterate")
}

// AddModelLink atomically appends modelID to used_in_models on every listed
// row that does not already contain it. A single guarded UPDATE — the guard
// and the append happen in one statement, so concurrent callers cannot lose
// each other's links or produce duplicates.
func (s *PostgresStore) AddModelLink(ctx context.Context, extractionIDs []string, modelID string) (int64, error) {
	if len(extractionIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_lineage
		 SET used_in_models = used_in_models || $1::text, updated_at = now()
		 WHERE id = ANY($2::text[]) AND NOT ($1 = ANY(used_in_models))`,
		modelID, extractionIDs,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: link model %s", modelID)
	}
	return tag.RowsAffected(), nil
}

// AddDashboardLink atomically appends dashboardID to used_in_dashboards on
// every row whose used_in_models contains modelID. This is the one operation
// that fans out from one id to a variable number of rows, so it must be a
// single scan-and-update statement, not row-by-row best effort.
func (s *PostgresStore) AddDashboardLink(ctx context.Context, modelID, dashboardID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_lineage
		 SET used_in_dashboards = used_in_dashboards || $2::text, updated_at = now()
		 WHERE $1 = ANY(used_in_models) AND NOT ($2 = ANY(used_in_dashboards))`,
		modelID, dashboardID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: link dashboard %s to model %s", dashboardID, modelID)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) EnqueueReview(ctx context.Context, entry *model.ReviewEntry) error {
	historyJSON, err := json.Marshal(issuesOrEmpty(entry.IssueHistory))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal issue history")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_queue (id, source_document_url, source_document_hash, extraction_context, issue_history, attempts, resolved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		entry.ID, entry.SourceDocumentURL, entry.SourceDocumentHash,
		entry.ExtractionContext, historyJSON, entry.Attempts, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: enqueue review")
}

func (s *PostgresStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewEntry, error) {
	query := `SELECT id, source_document_url, source_document_hash, extraction_context, issue_history, attempts, resolved, created_at, resolved_at
	          FROM review_queue`
	if !filter.IncludeResolved {
		query += ` WHERE resolved = FALSE`
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, query+` LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var entries []model.ReviewEntry
	for rows.Next() {
		var e model.ReviewEntry
		var historyJSON []byte
		if err := rows.Scan(&e.ID, &e.SourceDocumentURL, &e.SourceDocumentHash,
			&e.ExtractionContext, &historyJSON, &e.Attempts, &e.Resolved,
			&e.CreatedAt, &e.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review entry")
		}
		if err := json.Unmarshal(historyJSON, &e.IssueHistory); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal issue history")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list reviews iterate")
}

func (s *PostgresStore) ResolveReview(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_queue SET resolved = TRUE, resolved_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve review %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: review entry %s", id)
	}
	return nil
}

// BulkImport backfills lineage rows exported from a prior system via COPY.
// Duplicate ids abort the COPY and surface as an error; an audit table must
// never silently skip rows.
func (s *PostgresStore) BulkImport(ctx context.Context, rows []model.ExtractionLineage) (int64, error) {
	data := make([][]any, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		issuesJSON, err := json.Marshal(issuesOrEmpty(r.Issues))
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal issues")
		}
		metricsJSON, err := json.Marshal(metricsOrEmpty(r.Metrics))
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal metrics")
		}
		data = append(data, []any{
			r.ExtractionID, r.SourceDocumentURL, r.SourceDocumentHash,
			r.ExtractionAgent, r.ExtractionModel, r.ExtractionTime,
			string(r.Status), issuesJSON, r.RetryAttempts, r.FinalConfidence,
			r.ClaimedName, r.ClaimedDescription, metricsJSON, r.SourceText,
			intSlice(r.PageNumbers), strSlice(r.UsedInModels), strSlice(r.UsedInDashboards),
			r.CreatedAt, r.UpdatedAt,
		})
	}

	return db.CopyFrom(ctx, s.pool, "extraction_lineage", []string{
		"id", "source_document_url", "source_document_hash", "extraction_agent", "extraction_model",
		"extracted_at", "verification_status", "verification_issues", "retry_attempts", "final_confidence",
		"claimed_name", "claimed_description", "metrics", "source_text", "page_numbers",
		"used_in_models", "used_in_dashboards", "created_at", "updated_at",
	}, data)
}

// scanLineage reads one lineage row from a pgx row/rows cursor.
func scanLineage(row pgx.Row) (*model.ExtractionLineage, error) {
	var l model.ExtractionLineage
	var status string
	var issuesJSON, metricsJSON []byte
	var pages []int32

	if err := row.Scan(&l.ExtractionID, &l.SourceDocumentURL, &l.SourceDocumentHash,
		&l.ExtractionAgent, &l.ExtractionModel, &l.ExtractionTime,
		&status, &issuesJSON, &l.RetryAttempts, &l.FinalConfidence,
		&l.ClaimedName, &l.ClaimedDescription, &metricsJSON, &l.SourceText,
		&pages, &l.UsedInModels, &l.UsedInDashboards, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}

	l.Status = model.VerificationStatus(status)
	if err := json.Unmarshal(issuesJSON, &l.Issues); err != nil {
		return nil, eris.Wrap(err, "unmarshal issues")
	}
	if err := json.Unmarshal(metricsJSON, &l.Metrics); err != nil {
		return nil, eris.Wrap(err, "unmarshal metrics")
	}
	l.PageNumbers = make([]int, 0, len(pages))
	for _, p := range pages {
		l.PageNumbers = append(l.PageNumbers, int(p))
	}
	if l.UsedInModels == nil {
		l.UsedInModels = []string{}
	}
	if l.UsedInDashboards == nil {
		l.UsedInDashboards = []string{}
	}
	return &l, nil
}

func issuesOrEmpty(issues []string) []string {
	if issues == nil {
		return []string{}
	}
	return issues
}

func metricsOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func intSlice(s []int) []int32 {
	out := make([]int32, 0, len(s))
	for _, v := range s {
		out = append(out, int32(v))
	}
	return out
}

func strSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
