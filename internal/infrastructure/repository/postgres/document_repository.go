package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

// DocumentRepository is the Postgres ingest catalog: one row per doc id with
// the status of its latest ingest.
type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ports.DocumentCatalog = (*DocumentRepository)(nil)
	_ ports.DocumentReader  = (*DocumentRepository)(nil)
)

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across cli/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS rag_documents (
	doc_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	embedding_dim INTEGER NOT NULL DEFAULT 0,
	version TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rag_documents_status ON rag_documents(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// upsertStatus moves a document to a new status, creating the row on first use.
// Bundle fields are left untouched so a failed re-ingest still reports the
// version that is being served.
func (r *DocumentRepository) upsertStatus(ctx context.Context, docID string, status domain.DocumentStatus, errMessage string) error {
	now := r.now()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO rag_documents (doc_id, status, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (doc_id) DO UPDATE
SET status = EXCLUDED.status, error_message = EXCLUDED.error_message, updated_at = EXCLUDED.updated_at
`, docID, string(status), errMessage, now)
	if err != nil {
		return fmt.Errorf("set document status=%s: %w", status, err)
	}
	return nil
}

func (r *DocumentRepository) MarkQueued(ctx context.Context, docID string) error {
	return r.upsertStatus(ctx, docID, domain.StatusQueued, "")
}

func (r *DocumentRepository) MarkIngesting(ctx context.Context, docID string) error {
	return r.upsertStatus(ctx, docID, domain.StatusIngesting, "")
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, docID string, errMessage string) error {
	return r.upsertStatus(ctx, docID, domain.StatusFailed, errMessage)
}

func (r *DocumentRepository) MarkReady(ctx context.Context, meta domain.BundleMeta) error {
	now := r.now()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO rag_documents (doc_id, status, chunk_count, embedding_dim, version, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, '', $6, $6)
ON CONFLICT (doc_id) DO UPDATE
SET status = EXCLUDED.status, chunk_count = EXCLUDED.chunk_count, embedding_dim = EXCLUDED.embedding_dim,
	version = EXCLUDED.version, error_message = '', updated_at = EXCLUDED.updated_at
`, meta.DocID, string(domain.StatusReady), meta.ChunkCount, meta.EmbeddingDim, meta.Version, now)
	if err != nil {
		return fmt.Errorf("set document status=ready: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, docID string) (*domain.DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT doc_id, status, chunk_count, embedding_dim, version, error_message, updated_at
FROM rag_documents
WHERE doc_id = $1
`, docID)

	var rec domain.DocumentRecord
	var status string
	err := row.Scan(&rec.DocID, &status, &rec.ChunkCount, &rec.EmbeddingDim, &rec.Version, &rec.Error, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("doc %s", docID))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	rec.Status = domain.DocumentStatus(status)
	return &rec, nil
}
