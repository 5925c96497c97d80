package ingest

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/avolkov/ocr-manager/constants"
	"github.com/avolkov/ocr-manager/internal/broadcast"
	"github.com/avolkov/ocr-manager/internal/common"
	"github.com/avolkov/ocr-manager/internal/entity"
	"github.com/avolkov/ocr-manager/internal/queue"
	"github.com/avolkov/ocr-manager/internal/repository"
)

// Registrar turns a detected path into a registered FileRecord and a queued
// task. It enforces the dedup guarantee: no two records share a content
// hash, and no content is enqueued twice.
type Registrar struct {
	files           repository.FileRepository
	queue           *queue.Queue
	events          *broadcast.Broadcaster
	allowedExts     map[string]struct{}
	defaultPriority int
	logger          *slog.Logger
}

func NewRegistrar(
	files repository.FileRepository,
	q *queue.Queue,
	events *broadcast.Broadcaster,
	allowedExts map[string]struct{},
	defaultPriority int,
	logger *slog.Logger,
) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	if allowedExts == nil {
		allowedExts = constants.AllowedExtensions
	}
	return &Registrar{
		files:           files,
		queue:           q,
		events:          events,
		allowedExts:     allowedExts,
		defaultPriority: defaultPriority,
		logger:          logger,
	}
}

// OnFileDetected registers path and enqueues a task for it. Returns the file
// id and false when content was new, or uuid.Nil and true when the content
// hash matched an existing record (duplicate, skipped silently).
//
// All failures are per-file: they are logged and returned, never fatal to
// the watch loop. A persistence failure leaves the file unregistered so a
// later scan can retry it.
func (r *Registrar) OnFileDetected(ctx context.Context, path string) (uuid.UUID, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		r.logger.Error("cannot resolve path", "path", path, "error", err)
		return uuid.Nil, false, common.FileAccessError(path, err)
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if _, ok := r.allowedExts[ext]; !ok {
		r.logger.Debug("ignoring unsupported extension", "path", abs, "ext", ext)
		return uuid.Nil, false, nil
	}

	st, err := os.Stat(abs)
	if err != nil {
		r.logger.Error("cannot stat file", "path", abs, "error", err)
		return uuid.Nil, false, common.FileAccessError(abs, err)
	}
	if st.IsDir() {
		r.logger.Debug("ignoring directory", "path", abs)
		return uuid.Nil, false, nil
	}

	hash, err := HashFile(abs)
	if err != nil {
		r.logger.Error("cannot hash file", "path", abs, "error", err)
		return uuid.Nil, false, err
	}

	// Dedup gate: identical content under any name is registered once.
	if existing, err := r.files.GetByHash(ctx, hash); err == nil {
		r.logger.Info("skipping duplicate content", "path", abs, "existing_id", existing.ID)
		return uuid.Nil, true, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		r.logger.Error("dedup lookup failed", "path", abs, "error", err)
		return uuid.Nil, false, err
	}

	mimeType := mime.TypeByExtension("." + ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	rec := &entity.FileRecord{
		Filename:    filepath.Base(abs),
		Filepath:    abs,
		ContentHash: hash,
		SizeBytes:   st.Size(),
		MimeType:    mimeType,
		Status:      constants.StatusPending,
	}
	if err := r.files.Create(ctx, rec); err != nil {
		r.logger.Error("failed to register file", "path", abs, "error", err)
		return uuid.Nil, false, err
	}

	if err := r.queue.Enqueue(queue.Task{FileID: rec.ID, Priority: r.defaultPriority}); err != nil {
		// Shutdown in progress. The record stays PENDING and is picked up
		// by the next startup scan.
		r.logger.Warn("queue closed, file registered but not enqueued", "file_id", rec.ID)
		return rec.ID, false, err
	}

	r.events.Broadcast(broadcast.Event{Type: broadcast.EventFileAdded, FileID: rec.ID})
	r.logger.Info("registered new file", "file_id", rec.ID, "path", abs, "size", st.Size())
	return rec.ID, false, nil
}
