// Package dispatch decides the extraction strategy per file and produces a
// unified recognition outcome.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avolkov/ocr-manager/constants"
	"github.com/avolkov/ocr-manager/internal/common"
	"github.com/avolkov/ocr-manager/internal/engine"
	"github.com/avolkov/ocr-manager/internal/entity"
	"github.com/avolkov/ocr-manager/internal/pdf"
)

// Config tunes the dispatcher.
type Config struct {
	DefaultEngine       string
	DPI                 int
	PageParallelism     int     // concurrent page recognitions per document
	ConfidenceThreshold float32 // warn below this aggregated confidence; 0 disables
}

// Request is one dispatch invocation.
type Request struct {
	File   *entity.FileRecord
	Engine string // engine name or "auto"/"" for the configured default
	Mode   engine.Mode
	Force  bool // always OCR, even when the document carries native text
}

// Dispatcher turns a registered file into an aggregated recognition outcome.
type Dispatcher struct {
	cfg      Config
	registry *engine.Registry
	reader   pdf.Reader
	logger   *slog.Logger
}

func NewDispatcher(cfg Config, registry *engine.Registry, reader pdf.Reader, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PageParallelism <= 0 {
		cfg.PageParallelism = 1
	}
	return &Dispatcher{cfg: cfg, registry: registry, reader: reader, logger: logger}
}

// Process runs the full decision path: embedded-text extraction when the
// document is text-bearing and OCR was not forced, per-page recognition
// otherwise. Any per-page failure aborts the whole document.
func (d *Dispatcher) Process(ctx context.Context, req Request) (entity.RecognitionOutcome, error) {
	start := time.Now()
	path := req.File.Filepath
	format := constants.MapExtToFormat(filepath.Ext(path))

	switch format {
	case constants.PDF:
		return d.processPDF(ctx, req, start)
	case constants.IMAGE:
		return d.processImage(ctx, req, start)
	default:
		return entity.RecognitionOutcome{}, common.ProcessingError(path, "unsupported format",
			fmt.Errorf("extension %q", filepath.Ext(path)))
	}
}

func (d *Dispatcher) processPDF(ctx context.Context, req Request, start time.Time) (entity.RecognitionOutcome, error) {
	path := req.File.Filepath
	info, err := d.reader.Info(ctx, path)
	if err != nil {
		return entity.RecognitionOutcome{}, err
	}

	if info.HasText && !req.Force {
		d.logger.Info("extracting embedded text", "file_id", req.File.ID, "path", path, "pages", info.PageCount)
		texts, err := d.reader.ExtractText(ctx, path)
		if err != nil {
			return entity.RecognitionOutcome{}, err
		}
		return entity.RecognitionOutcome{
			Text:       strings.Join(texts, constants.PageBreak),
			PageCount:  len(texts),
			Confidence: 1.0,
			UsedEngine: constants.EngineTextExtraction,
			Duration:   time.Since(start),
		}, nil
	}

	d.logger.Info("running OCR", "file_id", req.File.ID, "path", path,
		"engine", d.resolveEngine(req.Engine), "mode", req.Mode.String(), "dpi", d.cfg.DPI)
	images, err := d.reader.RenderPages(ctx, path, d.cfg.DPI)
	if err != nil {
		return entity.RecognitionOutcome{}, err
	}
	return d.recognizePages(ctx, req, images, start)
}

func (d *Dispatcher) processImage(ctx context.Context, req Request, start time.Time) (entity.RecognitionOutcome, error) {
	path := req.File.Filepath
	data, err := os.ReadFile(path)
	if err != nil {
		return entity.RecognitionOutcome{}, common.FileAccessError(path, err)
	}
	return d.recognizePages(ctx, req, [][]byte{data}, start)
}

// recognizePages runs the selected engine over every page image and
// aggregates the results. Pages run concurrently up to PageParallelism, so a
// multi-page scan does not serialize on single-page inference.
func (d *Dispatcher) recognizePages(ctx context.Context, req Request, images [][]byte, start time.Time) (entity.RecognitionOutcome, error) {
	name := d.resolveEngine(req.Engine)
	eng, err := d.registry.Get(name)
	if err != nil {
		return entity.RecognitionOutcome{}, err
	}

	path := req.File.Filepath
	pages := make([]entity.PageResult, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.PageParallelism)
	for i, img := range images {
		g.Go(func() error {
			res, err := engine.Recognize(gctx, eng, img, req.Mode)
			if err != nil {
				return common.ProcessingError(path, fmt.Sprintf("recognize page %d", i+1), err)
			}
			pages[i] = entity.PageResult{
				PageNumber:    i + 1,
				Text:          res.Text,
				Confidence:    res.Confidence,
				BoundingBoxes: engine.MarshalBoxes(res.Lines),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return entity.RecognitionOutcome{}, err
	}

	texts := make([]string, len(pages))
	var sum float32
	for i, p := range pages {
		texts[i] = p.Text
		sum += p.Confidence
	}
	confidence := float32(0)
	if len(pages) > 0 {
		confidence = sum / float32(len(pages))
	}
	if d.cfg.ConfidenceThreshold > 0 && confidence < d.cfg.ConfidenceThreshold {
		d.logger.Warn("low recognition confidence",
			"file_id", req.File.ID, "path", path,
			"confidence", confidence, "threshold", d.cfg.ConfidenceThreshold)
	}

	return entity.RecognitionOutcome{
		Text:       strings.Join(texts, constants.PageBreak),
		PageCount:  len(pages),
		Confidence: confidence,
		UsedEngine: fmt.Sprintf("%s:%s", name, req.Mode),
		Pages:      pages,
		Duration:   time.Since(start),
	}, nil
}

func (d *Dispatcher) resolveEngine(name string) string {
	if name == "" || name == "auto" {
		return d.cfg.DefaultEngine
	}
	return name
}
