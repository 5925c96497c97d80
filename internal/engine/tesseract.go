package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractConfig tunes the gosseract-backed engine.
type TesseractConfig struct {
	Languages   []string
	TessdataDir string
	DPI         int
}

// TesseractEngine recognizes text with the Tesseract library via gosseract.
// A fresh client is created per call, so concurrent page recognition from
// multiple workers is safe.
type TesseractEngine struct {
	cfg           TesseractConfig
	clientFactory func() *gosseract.Client
	logger        *slog.Logger
}

// NewTesseractEngine constructs the engine, verifying the tesseract
// installation up front so a broken install surfaces as a construction
// failure rather than a per-page one.
func NewTesseractEngine(cfg TesseractConfig, logger *slog.Logger) (*TesseractEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	if _, err := exec.LookPath("tesseract"); err != nil {
		return nil, fmt.Errorf("tesseract not installed: %w", err)
	}
	return &TesseractEngine{
		cfg:           cfg,
		clientFactory: gosseract.NewClient,
		logger:        logger,
	}, nil
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) RecognizePrinted(ctx context.Context, image []byte) (RecognitionResult, error) {
	return e.recognize(ctx, image, gosseract.PSM_AUTO)
}

// RecognizeHandwritten runs the same model with a uniform-block segmentation,
// which behaves better on unstructured handwriting than full page layout
// analysis.
func (e *TesseractEngine) RecognizeHandwritten(ctx context.Context, image []byte) (RecognitionResult, error) {
	return e.recognize(ctx, image, gosseract.PSM_SINGLE_BLOCK)
}

func (e *TesseractEngine) recognize(ctx context.Context, image []byte, psm gosseract.PageSegMode) (RecognitionResult, error) {
	select {
	case <-ctx.Done():
		return RecognitionResult{}, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	// Scoped to this client; never mutates the process environment.
	if e.cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(e.cfg.TessdataDir); err != nil {
			return RecognitionResult{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return RecognitionResult{}, fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(e.cfg.Languages...); err != nil {
		return RecognitionResult{}, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetPageSegMode(psm); err != nil {
		return RecognitionResult{}, fmt.Errorf("set segmentation mode: %w", err)
	}
	if e.cfg.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.cfg.DPI)); err != nil {
			return RecognitionResult{}, fmt.Errorf("set dpi: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("recognize text: %w", err)
	}

	lines, avg := extractLines(c)
	return RecognitionResult{
		Text:       strings.TrimSpace(text),
		Confidence: avg,
		Lines:      lines,
	}, nil
}

func extractLines(c *gosseract.Client) ([]Line, float32) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	lines := make([]Line, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := b.Confidence / 100.0
		sum += conf
		lines = append(lines, Line{
			Text:       strings.TrimSpace(b.Word),
			Confidence: float32(conf),
			Box: BoundingBox{
				X:      float64(b.Box.Min.X),
				Y:      float64(b.Box.Min.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
		})
	}
	return lines, float32(sum / float64(len(lines)))
}

