package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/ocr-manager/constants"
	"github.com/avolkov/ocr-manager/internal/common"
	"github.com/avolkov/ocr-manager/internal/entity"
)

// DocumentRepository persists recognition output. CreateWithPages is the
// single atomic commit point of the pipeline: document, pages, and the owning
// file's status land together or not at all.
type DocumentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	ListByFileID(ctx context.Context, fileID uuid.UUID) ([]*entity.Document, error)
	ListPages(ctx context.Context, documentID uuid.UUID) ([]*entity.Page, error)
	CreateWithPages(ctx context.Context, doc *entity.Document, pages []entity.PageResult, engineTag string) (uuid.UUID, error)
}

type documentRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDocumentRepository(db *sql.DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{db: db, logger: logger}
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, file_id, text_content, page_count, confidence_score, processing_time_seconds,
		        processed_at, is_synced, needs_sync
		 FROM documents WHERE id = ?`, id.String())
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return doc, err
}

func (r *documentRepo) ListByFileID(ctx context.Context, fileID uuid.UUID) ([]*entity.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_id, text_content, page_count, confidence_score, processing_time_seconds,
		        processed_at, is_synced, needs_sync
		 FROM documents WHERE file_id = ? ORDER BY processed_at`, fileID.String())
	if err != nil {
		return nil, common.PersistenceError("list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *documentRepo) ListPages(ctx context.Context, documentID uuid.UUID) ([]*entity.Page, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, page_number, text_content, confidence, bounding_boxes
		 FROM document_pages WHERE document_id = ? ORDER BY page_number`, documentID.String())
	if err != nil {
		return nil, common.PersistenceError("list pages", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Page
	for rows.Next() {
		var p entity.Page
		var id, docID string
		if err := rows.Scan(&id, &docID, &p.PageNumber, &p.TextContent, &p.Confidence, &p.BoundingBoxes); err != nil {
			return nil, err
		}
		p.ID, _ = uuid.Parse(id)
		p.DocumentID, _ = uuid.Parse(docID)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CreateWithPages inserts the document and its pages and flips the owning
// file to PROCESSED with the engine tag inside one transaction. Any failure
// rolls everything back and leaves the file in its prior state.
func (r *documentRepo) CreateWithPages(ctx context.Context, doc *entity.Document, pages []entity.PageResult, engineTag string) (uuid.UUID, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, common.PersistenceError("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.logger.Error("rollback failed", "document_id", doc.ID, "error", err)
			}
		}
	}()

	var conf sql.NullFloat64
	if doc.ConfidenceScore != nil {
		conf = sql.NullFloat64{Float64: float64(*doc.ConfidenceScore), Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, file_id, text_content, page_count, confidence_score,
		                        processing_time_seconds, processed_at, is_synced, needs_sync)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID.String(), doc.FileID.String(), doc.TextContent, doc.PageCount, conf,
		doc.ProcessingTimeSeconds, doc.ProcessedAt, doc.IsSynced, doc.NeedsSync)
	if err != nil {
		return uuid.Nil, common.PersistenceError("insert document", err)
	}

	for _, p := range pages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO document_pages (id, document_id, page_number, text_content, confidence, bounding_boxes)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), doc.ID.String(), p.PageNumber, p.Text, p.Confidence, p.BoundingBoxes)
		if err != nil {
			return uuid.Nil, common.PersistenceError("insert page", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE files SET status = ?, selected_engine = ?, updated_at = ? WHERE id = ?`,
		string(constants.StatusProcessed), engineTag, time.Now().UTC(), doc.FileID.String())
	if err != nil {
		return uuid.Nil, common.PersistenceError("update file status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return uuid.Nil, common.PersistenceError("update file status", common.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, common.PersistenceError("commit", err)
	}
	committed = true
	return doc.ID, nil
}

func scanDocument(row interface{ Scan(...any) error }) (*entity.Document, error) {
	var doc entity.Document
	var id, fileID string
	var conf sql.NullFloat64
	if err := row.Scan(&id, &fileID, &doc.TextContent, &doc.PageCount, &conf,
		&doc.ProcessingTimeSeconds, &doc.ProcessedAt, &doc.IsSynced, &doc.NeedsSync); err != nil {
		return nil, err
	}
	if conf.Valid {
		f := float32(conf.Float64)
		doc.ConfidenceScore = &f
	}
	doc.ID, _ = uuid.Parse(id)
	doc.FileID, _ = uuid.Parse(fileID)
	return &doc, nil
}
