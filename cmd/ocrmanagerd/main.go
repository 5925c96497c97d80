package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avolkov/ocr-manager/internal/assemble"
	"github.com/avolkov/ocr-manager/internal/broadcast"
	"github.com/avolkov/ocr-manager/internal/common"
	"github.com/avolkov/ocr-manager/internal/dispatch"
	"github.com/avolkov/ocr-manager/internal/engine"
	"github.com/avolkov/ocr-manager/internal/pdf"
	"github.com/avolkov/ocr-manager/internal/pipeline"
	"github.com/avolkov/ocr-manager/internal/repository"
	"github.com/avolkov/ocr-manager/internal/search"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, repository.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		logger.Error("cannot open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	if err := repository.HealthCheck(ctx, db, cfg.Database.BusyTimeout); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	index := search.NewFTSIndex(db, logger)
	if err := index.Ensure(ctx); err != nil {
		logger.Error("cannot initialize full-text index", "error", err)
		os.Exit(1)
	}

	files := repository.NewFileRepository(db, logger)
	docs := repository.NewDocumentRepository(db, logger)

	registry := engine.NewRegistry(logger)
	registry.Register("tesseract", func() (engine.Engine, error) {
		return engine.NewTesseractEngine(engine.TesseractConfig{
			Languages:   cfg.OCR.Languages,
			TessdataDir: cfg.OCR.TessdataDir,
			DPI:         cfg.OCR.DPI,
		}, logger)
	})
	registry.Register("easyocr", func() (engine.Engine, error) {
		return engine.NewEasyOCREngine(engine.EasyOCRConfig{
			Bin:       cfg.OCR.EasyOCRBin,
			Languages: cfg.OCR.Languages,
		}, logger)
	})

	reader := pdf.NewProcessor(pdf.Config{Pdftoppm: cfg.OCR.Pdftoppm}, logger)
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		DefaultEngine:       cfg.OCR.DefaultEngine,
		DPI:                 cfg.OCR.DPI,
		PageParallelism:     cfg.OCR.PageParallelism,
		ConfidenceThreshold: cfg.OCR.ConfidenceThreshold,
	}, registry, reader, logger)

	events := broadcast.New(logger)
	assembler := assemble.NewAssembler(files, docs, index, logger)

	pipe := pipeline.New(cfg, files, dispatcher, assembler, events, logger)
	if err := pipe.Start(ctx); err != nil {
		logger.Error("cannot start pipeline", "error", err)
		os.Exit(1)
	}
	logger.Info("pipeline running",
		"watch_dir", cfg.Watch.Dir,
		"workers", cfg.OCR.Workers,
		"default_engine", cfg.OCR.DefaultEngine)

	<-ctx.Done()
	logger.Info("shutting down...")
	pipe.Stop(cfg.OCR.ShutdownGrace)
}
