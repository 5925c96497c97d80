// Package pipeline wires detection, queueing, dispatch, and persistence into
// one explicitly constructed unit owned by the process, not by globals.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/ocr-manager/constants"
	"github.com/avolkov/ocr-manager/internal/assemble"
	"github.com/avolkov/ocr-manager/internal/broadcast"
	"github.com/avolkov/ocr-manager/internal/common"
	"github.com/avolkov/ocr-manager/internal/dispatch"
	"github.com/avolkov/ocr-manager/internal/engine"
	"github.com/avolkov/ocr-manager/internal/ingest"
	"github.com/avolkov/ocr-manager/internal/queue"
	"github.com/avolkov/ocr-manager/internal/repository"
	"github.com/avolkov/ocr-manager/internal/worker"
)

// Pipeline owns the ingestion-to-completion flow: watcher → registrar →
// queue → workers → dispatcher → assembler → broadcaster.
type Pipeline struct {
	cfg        *common.Config
	files      repository.FileRepository
	registrar  *ingest.Registrar
	dispatcher *dispatch.Dispatcher
	assembler  *assemble.Assembler
	queue      *queue.Queue
	pool       *worker.Pool
	events     *broadcast.Broadcaster
	logger     *slog.Logger

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func New(
	cfg *common.Config,
	files repository.FileRepository,
	dispatcher *dispatch.Dispatcher,
	assembler *assemble.Assembler,
	events *broadcast.Broadcaster,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	q := queue.New()
	p := &Pipeline{
		cfg:        cfg,
		files:      files,
		dispatcher: dispatcher,
		assembler:  assembler,
		queue:      q,
		events:     events,
		logger:     logger,
	}
	p.registrar = ingest.NewRegistrar(files, q, events, cfg.Watch.AllowedExts, cfg.OCR.DefaultPriority, logger)
	p.pool = worker.NewPool(q, p, events, logger,
		worker.WithWorkers(cfg.OCR.Workers),
		worker.WithTaskTimeout(cfg.OCR.ProcessTimeout),
	)
	return p
}

// Events exposes the lifecycle broadcaster for subscribers.
func (p *Pipeline) Events() *broadcast.Broadcaster { return p.events }

// Start launches the worker pool, requeues unfinished records, runs the
// initial scan, and begins watching. Returns once the watch loop is running.
func (p *Pipeline) Start(ctx context.Context) error {
	p.pool.Start()

	if err := p.requeueUnfinished(ctx); err != nil {
		return err
	}

	if p.cfg.Watch.InitialScan {
		if _, err := ingest.ScanDirectory(ctx, p.registrar, p.cfg.Watch.Dir, p.logger); err != nil {
			return err
		}
	}

	wctx, cancel := context.WithCancel(ctx)
	evCh, errCh, err := ingest.StartWatcher(wctx, ingest.WatchConfig{
		Dir:         p.cfg.Watch.Dir,
		AllowedExts: p.cfg.Watch.AllowedExts,
		Debounce:    p.cfg.Watch.Debounce,
	}, p.logger)
	if err != nil {
		cancel()
		return err
	}
	p.watchCancel = cancel
	p.watchDone = make(chan struct{})

	go func() {
		defer close(p.watchDone)
		for {
			select {
			case <-wctx.Done():
				return
			case path, ok := <-evCh:
				if !ok {
					return
				}
				// Registration failures are per-file; the loop keeps going.
				if _, _, err := p.registrar.OnFileDetected(wctx, path); err != nil {
					p.logger.Warn("registration failed, will retry on next scan", "path", path, "error", err)
				}
			case err, ok := <-errCh:
				if !ok {
					return
				}
				p.logger.Error("watch error", "error", err)
			}
		}
	}()

	return nil
}

// requeueUnfinished re-enqueues records a previous run registered but never
// completed. Tasks are ephemeral: a PENDING row, or a row stuck in PROCESSING
// after a crash mid-task, only moves again through this pass — the scan's
// dedup gate skips their content because the hash is already registered.
func (p *Pipeline) requeueUnfinished(ctx context.Context) error {
	for _, status := range []constants.ProcessingStatus{constants.StatusPending, constants.StatusProcessing} {
		recs, err := p.files.ListByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := p.queue.Enqueue(queue.Task{FileID: rec.ID, Priority: p.cfg.OCR.DefaultPriority}); err != nil {
				return err
			}
		}
		if len(recs) > 0 {
			p.logger.Info("requeued unfinished files", "status", string(status), "count", len(recs))
		}
	}
	return nil
}

// Stop halts detection, closes the queue, and drains workers within grace.
func (p *Pipeline) Stop(grace time.Duration) {
	if p.watchCancel != nil {
		p.watchCancel()
		<-p.watchDone
	}
	p.pool.Stop(grace)
	p.logger.Info("pipeline stopped")
}

// Reprocess enqueues an existing file directly, bypassing the dedup gate.
// force skips the embedded-text shortcut so the document is always OCRed.
func (p *Pipeline) Reprocess(ctx context.Context, fileID uuid.UUID, priority int, force bool) error {
	if _, err := p.files.GetByID(ctx, fileID); err != nil {
		return err
	}
	if priority <= 0 {
		priority = p.cfg.OCR.DefaultPriority
	}
	if err := p.queue.Enqueue(queue.Task{FileID: fileID, Priority: priority, Force: force}); err != nil {
		return err
	}
	p.logger.Info("queued file for reprocessing", "file_id", fileID, "priority", priority, "force", force)
	return nil
}

// ProcessTask implements worker.TaskProcessor: load the record, dispatch,
// and persist — the whole lifecycle of one dequeued task.
func (p *Pipeline) ProcessTask(ctx context.Context, t queue.Task) (uuid.UUID, error) {
	file, err := p.files.GetByID(ctx, t.FileID)
	if err != nil {
		return uuid.Nil, common.WrapError(err, "load file record")
	}

	if err := p.assembler.MarkProcessing(ctx, file.ID); err != nil {
		return uuid.Nil, err
	}

	out, err := p.dispatcher.Process(ctx, dispatch.Request{
		File:   file,
		Engine: p.cfg.OCR.DefaultEngine,
		Mode:   engine.ModePrinted,
		Force:  t.Force,
	})
	if err != nil {
		p.markFailed(file.ID)
		return uuid.Nil, err
	}

	docID, err := p.assembler.Complete(ctx, file, out)
	if err != nil {
		p.markFailed(file.ID)
		return uuid.Nil, err
	}
	return docID, nil
}

// markFailed records the failure outside the task context so a cancelled
// task still leaves an accurate status behind.
func (p *Pipeline) markFailed(fileID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.assembler.MarkFailed(ctx, fileID); err != nil {
		p.logger.Error("failed to record failure status", "file_id", fileID, "error", err)
	}
}
