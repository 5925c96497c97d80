// Package assemble persists recognition outcomes. It is the only component
// that mutates a FileRecord after registration.
package assemble

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avolkov/ocr-manager/constants"
	"github.com/avolkov/ocr-manager/internal/entity"
	"github.com/avolkov/ocr-manager/internal/repository"
	"github.com/avolkov/ocr-manager/internal/search"
)

type Assembler struct {
	files  repository.FileRepository
	docs   repository.DocumentRepository
	index  search.Indexer
	logger *slog.Logger
}

func NewAssembler(files repository.FileRepository, docs repository.DocumentRepository, index search.Indexer, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{files: files, docs: docs, index: index, logger: logger}
}

// MarkProcessing flags the record as picked up by a worker.
func (a *Assembler) MarkProcessing(ctx context.Context, fileID uuid.UUID) error {
	return a.files.UpdateStatus(ctx, fileID, constants.StatusProcessing)
}

// MarkFailed records a terminal failure for the attempt. The document-side
// transaction has already rolled back by the time this runs.
func (a *Assembler) MarkFailed(ctx context.Context, fileID uuid.UUID) error {
	return a.files.UpdateStatus(ctx, fileID, constants.StatusFailed)
}

// Complete atomically persists the outcome: document row, page rows, and the
// file's PROCESSED status with its engine tag commit together or not at all.
// On success the document is handed to the full-text index; indexing is
// best-effort and never fails the attempt.
func (a *Assembler) Complete(ctx context.Context, file *entity.FileRecord, out entity.RecognitionOutcome) (uuid.UUID, error) {
	// Reprocessing accumulates documents on the same file; purge the index
	// entries of earlier attempts so a query does not return stale hits.
	if prior, err := a.docs.ListByFileID(ctx, file.ID); err == nil {
		for _, d := range prior {
			a.index.Delete(ctx, d.ID)
		}
	}

	conf := out.Confidence
	doc := &entity.Document{
		FileID:                file.ID,
		TextContent:           out.Text,
		PageCount:             out.PageCount,
		ConfidenceScore:       &conf,
		ProcessingTimeSeconds: out.Duration.Seconds(),
		NeedsSync:             true,
	}
	docID, err := a.docs.CreateWithPages(ctx, doc, out.Pages, out.UsedEngine)
	if err != nil {
		a.logger.Error("failed to persist document", "file_id", file.ID, "error", err)
		return uuid.Nil, err
	}

	a.index.Index(ctx, docID, file.Filename, out.Text)

	a.logger.Info("document persisted",
		"file_id", file.ID, "document_id", docID,
		"pages", out.PageCount, "engine", out.UsedEngine,
		"confidence", out.Confidence, "seconds", out.Duration.Seconds())
	return docID, nil
}
