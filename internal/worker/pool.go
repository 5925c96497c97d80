// Package worker drains the task queue with a fixed set of concurrent
// consumers.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/ocr-manager/internal/broadcast"
	"github.com/avolkov/ocr-manager/internal/common"
	"github.com/avolkov/ocr-manager/internal/queue"
)

// TaskProcessor runs one task to completion: dispatch, persist, index.
// Returns the persisted document id.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, t queue.Task) (uuid.UUID, error)
}

// Pool is a fixed-size worker pool. Each worker loops dequeue → process →
// record outcome; one task's failure never halts the pool or its siblings.
type Pool struct {
	queue   *queue.Queue
	proc    TaskProcessor
	events  *broadcast.Broadcaster
	logger  *slog.Logger
	workers int
	timeout time.Duration

	wg     sync.WaitGroup
	once   sync.Once
	cancel context.CancelFunc
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPool(q *queue.Queue, proc TaskProcessor, events *broadcast.Broadcaster, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		queue:   q,
		proc:    proc,
		events:  events,
		logger:  logger,
		workers: 2,
		timeout: 3 * time.Minute,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers. Idempotent.
func (p *Pool) Start() {
	p.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.run(ctx, i+1)
		}
		p.logger.Info("worker pool started", "workers", p.workers)
	})
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	p.logger.Info("worker started", "worker_id", workerID)

	for {
		task, err := p.queue.Dequeue()
		if err != nil {
			if !errors.Is(err, common.ErrQueueClosed) {
				p.logger.Error("dequeue failed", "worker_id", workerID, "error", err)
			}
			break
		}
		p.runTask(ctx, workerID, task)
	}

	p.logger.Info("worker stopped", "worker_id", workerID)
}

func (p *Pool) runTask(ctx context.Context, workerID int, task queue.Task) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.events.Broadcast(broadcast.Event{Type: broadcast.EventProcessingStarted, FileID: task.FileID})

	docID, err := p.proc.ProcessTask(tctx, task)
	if err != nil {
		p.logger.Error("processing failed",
			"worker_id", workerID, "file_id", task.FileID, "error", err)
		p.events.Broadcast(broadcast.Event{
			Type:   broadcast.EventProcessingFailed,
			FileID: task.FileID,
			Error:  err.Error(),
		})
		return
	}

	p.logger.Info("processed file",
		"worker_id", workerID, "file_id", task.FileID, "document_id", docID)
	p.events.Broadcast(broadcast.Event{
		Type:       broadcast.EventProcessingCompleted,
		FileID:     task.FileID,
		DocumentID: &docID,
	})
}

// Stop closes the queue so no new task is dequeued, then waits for in-flight
// tasks up to grace. Tasks still running at the deadline are cancelled and
// abandoned; their partial work was never persisted.
func (p *Pool) Stop(grace time.Duration) {
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
		p.logger.Info("worker pool drained")
	case <-time.After(grace):
		// Cancel in-flight task contexts and abandon whatever does not
		// yield promptly. Nothing partial was persisted.
		p.logger.Warn("shutdown grace expired, cancelling in-flight tasks", "grace", grace)
		if p.cancel != nil {
			p.cancel()
		}
		select {
		case <-done:
			p.logger.Info("worker pool stopped after cancellation")
		case <-time.After(time.Second):
			p.logger.Warn("abandoning unresponsive workers")
		}
	}
	if p.cancel != nil {
		p.cancel()
	}
}
