package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/avolkov/ocr-manager/internal/common"
)

// EasyOCRConfig tunes the exec-backed EasyOCR engine.
type EasyOCRConfig struct {
	// Bin is the helper executable that loads the EasyOCR models and prints
	// recognition results as JSON on stdout.
	Bin       string
	Languages []string
}

// EasyOCREngine shells out to an EasyOCR helper process. The helper is a
// black box; this side only speaks its JSON contract:
//
//	[{"text": "...", "confidence": 0.93, "box": [x, y, w, h]}, ...]
type EasyOCREngine struct {
	cfg    EasyOCRConfig
	runner common.Runner
	logger *slog.Logger
}

// NewEasyOCREngine constructs the engine. The helper binary must be on PATH
// (or configured absolutely); a missing binary fails construction.
func NewEasyOCREngine(cfg EasyOCRConfig, logger *slog.Logger) (*EasyOCREngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bin == "" {
		cfg.Bin = "easyocr-json"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	if _, err := exec.LookPath(cfg.Bin); err != nil {
		return nil, fmt.Errorf("easyocr helper %q not found: %w", cfg.Bin, err)
	}
	return &EasyOCREngine{cfg: cfg, runner: common.ExecRunner{}, logger: logger}, nil
}

func (e *EasyOCREngine) Name() string { return "easyocr" }

func (e *EasyOCREngine) RecognizePrinted(ctx context.Context, image []byte) (RecognitionResult, error) {
	return e.recognize(ctx, image, ModePrinted)
}

func (e *EasyOCREngine) RecognizeHandwritten(ctx context.Context, image []byte) (RecognitionResult, error) {
	return e.recognize(ctx, image, ModeHandwritten)
}

type easyOCRDetection struct {
	Text       string     `json:"text"`
	Confidence float32    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

func (e *EasyOCREngine) recognize(ctx context.Context, image []byte, mode Mode) (RecognitionResult, error) {
	tmp, err := os.CreateTemp("", "easyocr-*.png")
	if err != nil {
		return RecognitionResult{}, err
	}
	path := tmp.Name()
	defer func() {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("failed to remove temp image", "path", path, "error", err)
		}
	}()
	if _, err := tmp.Write(image); err != nil {
		_ = tmp.Close()
		return RecognitionResult{}, err
	}
	if err := tmp.Close(); err != nil {
		return RecognitionResult{}, err
	}

	args := []string{
		"--lang", strings.Join(e.cfg.Languages, ","),
		"--mode", mode.String(),
		filepath.Clean(path),
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Bin, args...)
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("easyocr run: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	var detections []easyOCRDetection
	if err := json.Unmarshal(out, &detections); err != nil {
		return RecognitionResult{}, fmt.Errorf("easyocr output: %w", err)
	}
	return fromDetections(detections), nil
}

func fromDetections(dets []easyOCRDetection) RecognitionResult {
	// Zero detections is a valid empty result, not an error.
	if len(dets) == 0 {
		return RecognitionResult{}
	}
	lines := make([]Line, 0, len(dets))
	var parts []string
	var sum float32
	for _, d := range dets {
		sum += d.Confidence
		parts = append(parts, d.Text)
		lines = append(lines, Line{
			Text:       d.Text,
			Confidence: d.Confidence,
			Box:        BoundingBox{X: d.Box[0], Y: d.Box[1], Width: d.Box[2], Height: d.Box[3]},
		})
	}
	return RecognitionResult{
		Text:       strings.Join(parts, "\n"),
		Confidence: sum / float32(len(dets)),
		Lines:      lines,
	}
}
