package search

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/ocr-manager/internal/repository"
)

func newTestIndex(t *testing.T) *FTSIndex {
	t.Helper()
	db, err := repository.Open(context.Background(),
		repository.Config{Path: filepath.Join(t.TempDir(), "fts.db")}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	idx := NewFTSIndex(db, nil)
	require.NoError(t, idx.Ensure(context.Background()))
	return idx
}

func TestFTSIndex_IndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	invoiceID := uuid.New()
	idx.Index(ctx, invoiceID, "invoice-march.pdf", "Total amount due: 1500 euros for consulting services")
	idx.Index(ctx, uuid.New(), "minutes.pdf", "Quarterly planning meeting notes")

	hits, err := idx.Search(ctx, "consulting", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, invoiceID, hits[0].DocumentID)
	assert.Equal(t, "invoice-march.pdf", hits[0].Filename)
	assert.Contains(t, hits[0].Snippet, "<mark>consulting</mark>")
}

func TestFTSIndex_MatchesFilename(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	docID := uuid.New()
	idx.Index(ctx, docID, "tax-return-2025.pdf", "irrelevant body text")

	hits, err := idx.Search(ctx, "tax", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, docID, hits[0].DocumentID)
}

func TestFTSIndex_SearchNoMatches(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	idx.Index(ctx, uuid.New(), "doc.pdf", "nothing of interest here")

	hits, err := idx.Search(ctx, "submarine", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTSIndex_DeleteRemovesEntries(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	docID := uuid.New()
	idx.Index(ctx, docID, "stale.pdf", "obsolete recognition output")
	idx.Delete(ctx, docID)

	hits, err := idx.Search(ctx, "obsolete", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTSIndex_SearchLimit(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		idx.Index(ctx, uuid.New(), "report.pdf", "recurring monthly report")
	}

	hits, err := idx.Search(ctx, "recurring", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestFTSIndex_IndexFailureIsSilent(t *testing.T) {
	db, err := repository.Open(context.Background(),
		repository.Config{Path: filepath.Join(t.TempDir(), "bare.db")}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Ensure was never called, so the virtual table is missing; Index must
	// swallow the failure instead of surfacing it to the pipeline.
	idx := NewFTSIndex(db, nil)
	idx.Index(context.Background(), uuid.New(), "doc.pdf", "text")
	idx.Delete(context.Background(), uuid.New())
}
