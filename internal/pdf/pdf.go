// Package pdf reads source PDFs: metadata, embedded text, and page rasters.
package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/avolkov/ocr-manager/internal/common"
)

// embeddedTextThreshold is the trimmed first-page text length above which a
// PDF is treated as text-bearing and skips OCR.
const embeddedTextThreshold = 50

// Info is the metadata the dispatcher needs to pick a strategy.
type Info struct {
	PageCount int
	HasText   bool // trimmed first-page native text exceeds the threshold
}

// Reader exposes the document operations the dispatcher consumes; the
// concrete Processor below reads real files.
type Reader interface {
	Info(ctx context.Context, path string) (Info, error)
	ExtractText(ctx context.Context, path string) ([]string, error)
	RenderPages(ctx context.Context, path string, dpi int) ([][]byte, error)
}

// Config tunes the processor.
type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	MaxPages int    // 0 = no limit
}

// Processor implements Reader over pdfcpu, ledongthuc/pdf, and pdftoppm.
type Processor struct {
	cfg    Config
	runner common.Runner
	logger *slog.Logger
}

func NewProcessor(cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	return &Processor{cfg: cfg, runner: common.ExecRunner{}, logger: logger}
}

// Info returns the page count and whether the first page carries enough
// native text to skip rasterization.
func (p *Processor) Info(ctx context.Context, path string) (Info, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return Info{}, common.ProcessingError(path, "page count", err)
	}

	first, err := p.nativePageText(path, 1)
	if err != nil {
		// A PDF with no extractable text layer is normal for scans; the
		// caller falls through to OCR.
		p.logger.Debug("no native text on first page", "path", path, "error", err)
		first = ""
	}
	return Info{
		PageCount: count,
		HasText:   len(strings.TrimSpace(first)) > embeddedTextThreshold,
	}, nil
}

// ExtractText returns the native text of every page, in page order.
func (p *Processor) ExtractText(ctx context.Context, path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, common.ProcessingError(path, "open pdf", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			p.logger.Warn("failed to close pdf", "path", path, "error", err)
		}
	}()

	total := r.NumPage()
	if p.cfg.MaxPages > 0 && total > p.cfg.MaxPages {
		total = p.cfg.MaxPages
	}
	texts := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, common.ProcessingError(path, fmt.Sprintf("extract text from page %d", i), err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (p *Processor) nativePageText(path string, pageNum int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if pageNum > r.NumPage() {
		return "", nil
	}
	page := r.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
