// Package engine abstracts over interchangeable recognition backends.
package engine

import (
	"context"
	"encoding/json"
)

// Mode selects which capability a dispatch invokes. Engines are unaware of
// each other and interchangeable behind this interface.
type Mode int

const (
	ModePrinted Mode = iota
	ModeHandwritten
)

func (m Mode) String() string {
	if m == ModeHandwritten {
		return "handwritten"
	}
	return "printed"
}

// BoundingBox is a rectangle in pixel coordinates, origin at the upper-left
// corner of the page image.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Line is one recognized text line with its location.
type Line struct {
	Text       string      `json:"text"`
	Confidence float32     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// RecognitionResult is a single image's recognition output. An engine that
// detects nothing returns the zero result, never an error.
type RecognitionResult struct {
	Text       string
	Confidence float32 // mean over lines, in [0,1]
	Lines      []Line
}

// Engine is the capability set every recognition backend implements.
// The image payload is an encoded raster (PNG).
type Engine interface {
	Name() string
	RecognizePrinted(ctx context.Context, image []byte) (RecognitionResult, error)
	RecognizeHandwritten(ctx context.Context, image []byte) (RecognitionResult, error)
}

// Recognize invokes the capability selected by mode.
func Recognize(ctx context.Context, e Engine, image []byte, mode Mode) (RecognitionResult, error) {
	if mode == ModeHandwritten {
		return e.RecognizeHandwritten(ctx, image)
	}
	return e.RecognizePrinted(ctx, image)
}

// MarshalBoxes encodes lines as the opaque bounding-box payload stored on a
// page row.
func MarshalBoxes(lines []Line) string {
	if len(lines) == 0 {
		return ""
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return ""
	}
	return string(b)
}
