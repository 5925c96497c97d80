// Package queue implements the priority task queue between the watcher and
// the worker pool.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/ocr-manager/internal/common"
)

// Task is an ephemeral unit of pending work. Lower Priority value means
// higher precedence; equal priorities dequeue in enqueue order.
type Task struct {
	FileID     uuid.UUID
	Priority   int
	Force      bool // skip the embedded-text shortcut (reprocess trigger)
	EnqueuedAt time.Time

	seq uint64 // ties equal priorities to enqueue order
}

// Queue is an unbounded priority queue safe for concurrent producers and
// consumers. Enqueue never blocks; Dequeue blocks until a task arrives or
// the queue closes.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  taskHeap
	seq    uint64
	closed bool
}

func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a task. Returns common.ErrQueueClosed after Close.
func (q *Queue) Enqueue(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return common.ErrQueueClosed
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	q.seq++
	t.seq = q.seq
	heap.Push(&q.tasks, t)
	q.cond.Signal()
	return nil
}

// Dequeue removes the highest-precedence task, blocking until one is
// available. Returns common.ErrQueueClosed once the queue is closed; tasks
// still queued at close time are discarded.
func (q *Queue) Dequeue() (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return Task{}, common.ErrQueueClosed
		}
		if q.tasks.Len() > 0 {
			return heap.Pop(&q.tasks).(Task), nil
		}
		q.cond.Wait()
	}
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// Close marks the queue closed and wakes every blocked consumer.
// Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.tasks = nil
	q.cond.Broadcast()
}

type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = Task{}
	*h = old[:n-1]
	return t
}
