package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/ocr-manager/constants"
)

// FileRecord is a registered source file. ContentHash is unique across all
// records: at most one record per distinct byte content.
type FileRecord struct {
	ID             uuid.UUID
	Filename       string
	Filepath       string
	ContentHash    string // hex sha256 of the full byte content
	SizeBytes      int64
	MimeType       string
	Status         constants.ProcessingStatus
	SelectedEngine string // "<engine>:<mode>" or "text_extraction"; empty until processed
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
