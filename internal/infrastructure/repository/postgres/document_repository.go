package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const documentColumns = `id, filename, mime_type, file_size, storage_path, status,
	COALESCE(extracted_text, ''), COALESCE(summary, ''), COALESCE(document_type, ''), confidence,
	COALESCE(classification_method, ''), COALESCE(department, ''), COALESCE(priority, ''),
	sensitive, needs_review, COALESCE(error_message, ''), created_at, updated_at`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
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

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	extracted_text TEXT,
	summary TEXT,
	document_type TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	classification_method TEXT,
	department TEXT,
	priority TEXT,
	sensitive BOOLEAN NOT NULL DEFAULT FALSE,
	needs_review BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_department ON documents(department);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, file_size, storage_path, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.Size, doc.StoragePath,
		string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document by id", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

const recentDocumentsLimit = 5

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, int, error) {
	status := string(filter.Status)
	search := likeEscaper.Replace(filter.Search)

	var total int
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM documents
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR filename ILIKE '%' || $2 || '%')
`, status, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	offset := (filter.Page - 1) * filter.PerPage
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+`
FROM documents
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR filename ILIKE '%' || $2 || '%')
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`, status, search, filter.PerPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0, filter.PerPage)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan listed document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return out, total, nil
}

func (r *DocumentRepository) Stats(ctx context.Context) (domain.DocumentStats, error) {
	var stats domain.DocumentStats
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1) FROM documents
`, string(domain.StatusProcessed)).Scan(&stats.Total, &stats.Processed); err != nil {
		return domain.DocumentStats{}, fmt.Errorf("count documents: %w", err)
	}
	stats.Pending = stats.Total - stats.Processed

	recent, err := r.recentDocuments(ctx)
	if err != nil {
		return domain.DocumentStats{}, err
	}
	stats.Recent = recent

	if stats.DocumentTypes, err = r.countBy(ctx, "document_type"); err != nil {
		return domain.DocumentStats{}, err
	}
	if stats.Departments, err = r.countBy(ctx, "department"); err != nil {
		return domain.DocumentStats{}, err
	}
	return stats, nil
}

func (r *DocumentRepository) recentDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+`
FROM documents
ORDER BY created_at DESC
LIMIT $1
`, recentDocumentsLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0, recentDocumentsLimit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recent document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent documents: %w", err)
	}
	return out, nil
}

// countBy groups documents on a fixed column name; never pass user input.
func (r *DocumentRepository) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+column+`, COUNT(*) FROM documents
WHERE `+column+` IS NOT NULL AND `+column+` <> ''
GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("count documents by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", column, err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return counts, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(res, "update document status", id)
}

func (r *DocumentRepository) SaveResult(ctx context.Context, id string, result domain.ProcessingResult) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extracted_text = $2, summary = $3, document_type = $4, confidence = $5, classification_method = $6,
	department = $7, priority = $8, sensitive = $9, needs_review = $10, updated_at = $11
WHERE id = $1
`,
		id, result.ExtractedText, result.Summary,
		result.Classification.DocumentType, result.Classification.Confidence, string(result.Classification.Method),
		result.Routing.Department, string(result.Routing.Priority), result.Routing.Sensitive, result.Routing.NeedsReview,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}
	return requireAffected(res, "save processing result", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(res, "delete document", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status, method, priority string
	if err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.Size, &doc.StoragePath, &status,
		&doc.ExtractedText, &doc.Summary, &doc.DocumentType, &doc.Confidence,
		&method, &doc.Department, &priority,
		&doc.Sensitive, &doc.NeedsReview, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.ClassificationMethod = domain.ClassificationMethod(method)
	doc.Priority = domain.Priority(priority)
	return &doc, nil
}

func requireAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
