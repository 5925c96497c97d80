package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/ocr-manager/constants"
	"github.com/avolkov/ocr-manager/internal/common"
	"github.com/avolkov/ocr-manager/internal/engine"
	"github.com/avolkov/ocr-manager/internal/entity"
	"github.com/avolkov/ocr-manager/internal/pdf"
)

// fakeReader serves canned PDF metadata and content.
type fakeReader struct {
	info        pdf.Info
	infoErr     error
	texts       []string
	extractErr  error
	pages       [][]byte
	renderErr   error
	renderedDPI int
}

func (f *fakeReader) Info(ctx context.Context, path string) (pdf.Info, error) {
	return f.info, f.infoErr
}

func (f *fakeReader) ExtractText(ctx context.Context, path string) ([]string, error) {
	return f.texts, f.extractErr
}

func (f *fakeReader) RenderPages(ctx context.Context, path string, dpi int) ([][]byte, error) {
	f.renderedDPI = dpi
	return f.pages, f.renderErr
}

// scriptedEngine returns a per-page result keyed by the image payload.
type scriptedEngine struct {
	name    string
	results map[string]engine.RecognitionResult
	errs    map[string]error
}

func (s *scriptedEngine) Name() string { return s.name }

func (s *scriptedEngine) RecognizePrinted(ctx context.Context, image []byte) (engine.RecognitionResult, error) {
	return s.recognize(image)
}

func (s *scriptedEngine) RecognizeHandwritten(ctx context.Context, image []byte) (engine.RecognitionResult, error) {
	return s.recognize(image)
}

func (s *scriptedEngine) recognize(image []byte) (engine.RecognitionResult, error) {
	if err, ok := s.errs[string(image)]; ok {
		return engine.RecognitionResult{}, err
	}
	return s.results[string(image)], nil
}

func newTestDispatcher(t *testing.T, cfg Config, reader pdf.Reader, eng engine.Engine) *Dispatcher {
	t.Helper()
	reg := engine.NewRegistry(nil)
	if eng != nil {
		reg.Register(eng.Name(), func() (engine.Engine, error) { return eng, nil })
	}
	return NewDispatcher(cfg, reg, reader, nil)
}

func pdfFile(path string) *entity.FileRecord {
	return &entity.FileRecord{ID: uuid.New(), Filename: filepath.Base(path), Filepath: path}
}

func TestDispatcher_EmbeddedTextShortcut(t *testing.T) {
	reader := &fakeReader{
		info:  pdf.Info{PageCount: 2, HasText: true},
		texts: []string{"first page", "second page"},
	}
	d := newTestDispatcher(t, Config{DefaultEngine: "stub"}, reader, nil)

	out, err := d.Process(context.Background(), Request{File: pdfFile("/in/report.pdf")})
	require.NoError(t, err)

	assert.Equal(t, "first page\fsecond page", out.Text)
	assert.Equal(t, 2, out.PageCount)
	assert.Equal(t, float32(1.0), out.Confidence)
	assert.Equal(t, constants.EngineTextExtraction, out.UsedEngine)
	assert.Nil(t, out.Pages)
}

func TestDispatcher_OCRAggregatesPages(t *testing.T) {
	reader := &fakeReader{
		info:  pdf.Info{PageCount: 3, HasText: false},
		pages: [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")},
	}
	eng := &scriptedEngine{
		name: "stub",
		results: map[string]engine.RecognitionResult{
			"p1": {Text: "alpha", Confidence: 0.9},
			"p2": {Text: "beta", Confidence: 0.8},
			"p3": {Text: "gamma", Confidence: 0.7},
		},
	}
	d := newTestDispatcher(t, Config{DefaultEngine: "stub", DPI: 150, PageParallelism: 2}, reader, eng)

	out, err := d.Process(context.Background(), Request{File: pdfFile("/in/scan.pdf"), Mode: engine.ModePrinted})
	require.NoError(t, err)

	assert.Equal(t, "alpha\fbeta\fgamma", out.Text)
	assert.Equal(t, 3, out.PageCount)
	assert.InDelta(t, 0.8, float64(out.Confidence), 1e-6)
	assert.Equal(t, "stub:printed", out.UsedEngine)
	assert.Equal(t, 150, reader.renderedDPI)

	require.Len(t, out.Pages, 3)
	for i, p := range out.Pages {
		assert.Equal(t, i+1, p.PageNumber)
	}
	assert.Equal(t, "beta", out.Pages[1].Text)
}

func TestDispatcher_ForceBypassesTextShortcut(t *testing.T) {
	reader := &fakeReader{
		info:  pdf.Info{PageCount: 1, HasText: true},
		texts: []string{"native text that must not be used"},
		pages: [][]byte{[]byte("p1")},
	}
	eng := &scriptedEngine{
		name:    "stub",
		results: map[string]engine.RecognitionResult{"p1": {Text: "ocr text", Confidence: 0.5}},
	}
	d := newTestDispatcher(t, Config{DefaultEngine: "stub"}, reader, eng)

	out, err := d.Process(context.Background(), Request{File: pdfFile("/in/doc.pdf"), Force: true})
	require.NoError(t, err)

	assert.Equal(t, "ocr text", out.Text)
	assert.Equal(t, "stub:printed", out.UsedEngine)
}

func TestDispatcher_PageFailureAborts(t *testing.T) {
	reader := &fakeReader{
		info:  pdf.Info{PageCount: 2},
		pages: [][]byte{[]byte("p1"), []byte("p2")},
	}
	eng := &scriptedEngine{
		name:    "stub",
		results: map[string]engine.RecognitionResult{"p1": {Text: "ok", Confidence: 0.9}},
		errs:    map[string]error{"p2": fmt.Errorf("inference blew up")},
	}
	d := newTestDispatcher(t, Config{DefaultEngine: "stub"}, reader, eng)

	_, err := d.Process(context.Background(), Request{File: pdfFile("/in/bad.pdf")})
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.CodeProcessing))
	assert.Contains(t, err.Error(), "recognize page 2")
}

func TestDispatcher_ExplicitEngineOverridesDefault(t *testing.T) {
	reader := &fakeReader{pages: [][]byte{[]byte("p1")}}
	eng := &scriptedEngine{
		name:    "other",
		results: map[string]engine.RecognitionResult{"p1": {Text: "x", Confidence: 1}},
	}
	d := newTestDispatcher(t, Config{DefaultEngine: "stub"}, reader, eng)

	out, err := d.Process(context.Background(), Request{
		File:   pdfFile("/in/scan.pdf"),
		Engine: "other",
	})
	require.NoError(t, err)
	assert.Equal(t, "other:printed", out.UsedEngine)
}

func TestDispatcher_AutoResolvesToDefault(t *testing.T) {
	reader := &fakeReader{pages: [][]byte{[]byte("p1")}}
	eng := &scriptedEngine{
		name:    "stub",
		results: map[string]engine.RecognitionResult{"p1": {Text: "x", Confidence: 1}},
	}
	d := newTestDispatcher(t, Config{DefaultEngine: "stub"}, reader, eng)

	out, err := d.Process(context.Background(), Request{File: pdfFile("/in/scan.pdf"), Engine: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "stub:printed", out.UsedEngine)
}

func TestDispatcher_ImageIsSinglePage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

	eng := &scriptedEngine{
		name:    "stub",
		results: map[string]engine.RecognitionResult{"png-bytes": {Text: "sign text", Confidence: 0.65}},
	}
	d := newTestDispatcher(t, Config{DefaultEngine: "stub"}, &fakeReader{}, eng)

	out, err := d.Process(context.Background(), Request{File: pdfFile(path)})
	require.NoError(t, err)

	assert.Equal(t, "sign text", out.Text)
	assert.Equal(t, 1, out.PageCount)
	require.Len(t, out.Pages, 1)
	assert.Equal(t, 1, out.Pages[0].PageNumber)
	assert.True(t, math.Abs(float64(out.Pages[0].Confidence)-0.65) < 1e-6)
}

func TestDispatcher_WarnsBelowConfidenceThreshold(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	reader := &fakeReader{pages: [][]byte{[]byte("p1"), []byte("p2")}}
	eng := &scriptedEngine{
		name: "stub",
		results: map[string]engine.RecognitionResult{
			"p1": {Text: "blurry", Confidence: 0.3},
			"p2": {Text: "smudged", Confidence: 0.1},
		},
	}
	reg := engine.NewRegistry(nil)
	reg.Register("stub", func() (engine.Engine, error) { return eng, nil })
	d := NewDispatcher(Config{DefaultEngine: "stub", ConfidenceThreshold: 0.5}, reg, reader, logger)

	out, err := d.Process(context.Background(), Request{File: pdfFile("/in/faded.pdf")})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, float64(out.Confidence), 1e-6)
	assert.Contains(t, logs.String(), "low recognition confidence")

	// Above the threshold nothing is logged.
	logs.Reset()
	eng.results["p1"] = engine.RecognitionResult{Text: "sharp", Confidence: 0.9}
	eng.results["p2"] = engine.RecognitionResult{Text: "clean", Confidence: 0.8}
	_, err = d.Process(context.Background(), Request{File: pdfFile("/in/crisp.pdf")})
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "low recognition confidence")
}

func TestDispatcher_UnsupportedExtension(t *testing.T) {
	d := newTestDispatcher(t, Config{DefaultEngine: "stub"}, &fakeReader{}, nil)

	_, err := d.Process(context.Background(), Request{File: pdfFile("/in/notes.txt")})
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.CodeProcessing))
}
