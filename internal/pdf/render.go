package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/avolkov/ocr-manager/internal/common"
)

// RenderPages rasterizes every page to PNG at the given DPI and returns the
// encoded images in page order.
func (p *Processor) RenderPages(ctx context.Context, path string, dpi int) ([][]byte, error) {
	if dpi <= 0 {
		dpi = 300
	}
	tmpDir, err := os.MkdirTemp("", "ocrm-pp-*")
	if err != nil {
		return nil, common.ProcessingError(path, "create temp dir", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", dpi), "-png", path, prefix)
	if err != nil {
		return nil, common.ProcessingError(path, fmt.Sprintf("rasterize: %s", string(errb)), err)
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if p.cfg.MaxPages > 0 && len(matches) > p.cfg.MaxPages {
		matches = matches[:p.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, common.ProcessingError(path, "rasterize", fmt.Errorf("no pages rendered"))
	}

	images := make([][]byte, 0, len(matches))
	for _, img := range matches {
		data, err := os.ReadFile(img)
		if err != nil {
			return nil, common.ProcessingError(path, "read rendered page", err)
		}
		images = append(images, data)
	}
	return images, nil
}
