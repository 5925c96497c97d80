// Package search maintains the FTS5 full-text index over processed
// documents. Indexing is best-effort: failures are logged, never propagated
// into the pipeline, and never tied to the persistence transaction.
package search

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
)

// Indexer is the boundary the assembler talks to.
type Indexer interface {
	Index(ctx context.Context, documentID uuid.UUID, filename, text string)
	Delete(ctx context.Context, documentID uuid.UUID)
}

// Result is one full-text hit.
type Result struct {
	DocumentID uuid.UUID
	Filename   string
	Snippet    string
}

type FTSIndex struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFTSIndex(db *sql.DB, logger *slog.Logger) *FTSIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &FTSIndex{db: db, logger: logger}
}

// Ensure creates the FTS5 virtual table if it does not exist.
func (f *FTSIndex) Ensure(ctx context.Context) error {
	_, err := f.db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts
		USING fts5(
			document_id UNINDEXED,
			filename,
			text_content,
			tokenize='unicode61 remove_diacritics 1'
		);`)
	if err != nil {
		f.logger.Error("failed to create FTS table", "error", err)
		return err
	}
	f.logger.Info("FTS table ready")
	return nil
}

// Index upserts a document into the index. Fire-and-forget.
func (f *FTSIndex) Index(ctx context.Context, documentID uuid.UUID, filename, text string) {
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO documents_fts(document_id, filename, text_content) VALUES(?, ?, ?)`,
		documentID.String(), filename, text)
	if err != nil {
		f.logger.Error("failed to index document", "document_id", documentID, "error", err)
		return
	}
	f.logger.Debug("indexed document", "document_id", documentID, "filename", filename)
}

// Delete removes a document's entries from the index.
func (f *FTSIndex) Delete(ctx context.Context, documentID uuid.UUID) {
	_, err := f.db.ExecContext(ctx,
		`DELETE FROM documents_fts WHERE document_id = ?`, documentID.String())
	if err != nil {
		f.logger.Error("failed to delete from FTS index", "document_id", documentID, "error", err)
	}
}

// Search returns ranked matches with highlighted snippets.
func (f *FTSIndex) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := f.db.QueryContext(ctx, `
		SELECT document_id, filename,
		       snippet(documents_fts, 2, '<mark>', '</mark>', '...', 32)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		f.logger.Error("search failed", "query", query, "error", err)
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Result
	for rows.Next() {
		var r Result
		var id string
		if err := rows.Scan(&id, &r.Filename, &r.Snippet); err != nil {
			return nil, err
		}
		r.DocumentID, _ = uuid.Parse(id)
		out = append(out, r)
	}
	return out, rows.Err()
}
