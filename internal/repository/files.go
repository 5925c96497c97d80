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

// FileRepository persists FileRecord rows. The unique index on content_hash
// backs the dedup guarantee.
type FileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.FileRecord, error)
	GetByHash(ctx context.Context, hash string) (*entity.FileRecord, error)
	Create(ctx context.Context, rec *entity.FileRecord) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.ProcessingStatus) error
	ListByStatus(ctx context.Context, status constants.ProcessingStatus) ([]*entity.FileRecord, error)
}

type fileRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFileRepository(db *sql.DB, logger *slog.Logger) FileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &fileRepo{db: db, logger: logger}
}

const fileColumns = `id, filename, filepath, content_hash, size_bytes, mime_type, status, selected_engine, created_at, updated_at`

func scanFile(row interface{ Scan(...any) error }) (*entity.FileRecord, error) {
	var rec entity.FileRecord
	var id, status string
	if err := row.Scan(&id, &rec.Filename, &rec.Filepath, &rec.ContentHash, &rec.SizeBytes,
		&rec.MimeType, &status, &rec.SelectedEngine, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	rec.ID = parsed
	rec.Status = constants.ProcessingStatus(status)
	return &rec, nil
}

func (r *fileRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.FileRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id.String())
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return rec, err
}

func (r *fileRepo) GetByHash(ctx context.Context, hash string) (*entity.FileRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE content_hash = ?`, hash)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return rec, err
}

func (r *fileRepo) Create(ctx context.Context, rec *entity.FileRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = constants.StatusPending
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Filename, rec.Filepath, rec.ContentHash, rec.SizeBytes,
		rec.MimeType, string(rec.Status), rec.SelectedEngine, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create file record", "filepath", rec.Filepath, "error", err)
		return common.PersistenceError("insert file", err)
	}
	return nil
}

func (r *fileRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.ProcessingStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id.String())
	if err != nil {
		r.logger.Error("failed to update file status", "file_id", id, "status", status, "error", err)
		return common.PersistenceError("update file status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *fileRepo) ListByStatus(ctx context.Context, status constants.ProcessingStatus) ([]*entity.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, common.PersistenceError("list files", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	var out []*entity.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
