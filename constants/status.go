package constants

// ProcessingStatus is the canonical status for rows in files.
type ProcessingStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    ProcessingStatus = "PENDING"    // registered, waiting for a worker
	StatusProcessing ProcessingStatus = "PROCESSING" // picked up by a worker
	StatusProcessed  ProcessingStatus = "PROCESSED"  // document persisted
	StatusFailed     ProcessingStatus = "FAILED"     // terminal failure of the last attempt
)

// EngineTextExtraction is the engine tag recorded when embedded text was
// extracted directly, without invoking a recognition engine.
const EngineTextExtraction = "text_extraction"
