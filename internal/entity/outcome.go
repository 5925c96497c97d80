package entity

import "time"

// PageResult is one recognized page before persistence.
type PageResult struct {
	PageNumber    int
	Text          string
	Confidence    float32
	BoundingBoxes string // JSON-encoded line boxes
}

// RecognitionOutcome is the aggregated result of one dispatch run,
// handed to the assembler for atomic persistence.
type RecognitionOutcome struct {
	Text       string
	PageCount  int
	Confidence float32 // 1.0 on the extraction path, mean page confidence otherwise
	UsedEngine string
	Pages      []PageResult // nil on the extraction path
	Duration   time.Duration
}
