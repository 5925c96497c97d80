package entity

import (
	"time"

	"github.com/google/uuid"
)

// Document is the persisted outcome of one successful processing attempt.
// A FileRecord may accumulate several documents across reprocessing.
type Document struct {
	ID                    uuid.UUID
	FileID                uuid.UUID
	TextContent           string
	PageCount             int
	ConfidenceScore       *float32 // nil when the extraction path skipped OCR scoring
	ProcessingTimeSeconds float64
	ProcessedAt           time.Time
	IsSynced              bool
	NeedsSync             bool
}

// Page carries per-page OCR output. Present only when the OCR path ran;
// immutable once written.
type Page struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	PageNumber    int // 1-based, unique within a document
	TextContent   string
	Confidence    float32
	BoundingBoxes string // opaque JSON payload from the engine
}
