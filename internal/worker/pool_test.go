package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/ocr-manager/internal/broadcast"
	"github.com/avolkov/ocr-manager/internal/queue"
)

// scriptedProcessor records processed tasks and fails the file ids listed in
// failFor.
type scriptedProcessor struct {
	mu        sync.Mutex
	processed []uuid.UUID
	failFor   map[uuid.UUID]error
	delay     time.Duration
	block     chan struct{} // when set, ProcessTask waits for ctx or close
}

func (s *scriptedProcessor) ProcessTask(ctx context.Context, t queue.Task) (uuid.UUID, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.processed = append(s.processed, t.FileID)
	s.mu.Unlock()
	if err, ok := s.failFor[t.FileID]; ok {
		return uuid.Nil, err
	}
	return uuid.New(), nil
}

func (s *scriptedProcessor) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func collectEvents(t *testing.T, sub *broadcast.Subscription, n int) []broadcast.Event {
	t.Helper()
	out := make([]broadcast.Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPool_ProcessesAndBroadcastsLifecycle(t *testing.T) {
	q := queue.New()
	events := broadcast.New(nil)
	sub := events.Subscribe()
	proc := &scriptedProcessor{}

	pool := NewPool(q, proc, events, nil, WithWorkers(1))
	pool.Start()
	defer pool.Stop(time.Second)

	fileID := uuid.New()
	require.NoError(t, q.Enqueue(queue.Task{FileID: fileID, Priority: 10}))

	got := collectEvents(t, sub, 2)
	assert.Equal(t, broadcast.EventProcessingStarted, got[0].Type)
	assert.Equal(t, fileID, got[0].FileID)
	assert.Equal(t, broadcast.EventProcessingCompleted, got[1].Type)
	assert.Equal(t, fileID, got[1].FileID)
	require.NotNil(t, got[1].DocumentID)
	assert.NotEqual(t, uuid.Nil, *got[1].DocumentID)
}

func TestPool_FailureIsIsolated(t *testing.T) {
	q := queue.New()
	events := broadcast.New(nil)
	sub := events.Subscribe()

	bad := uuid.New()
	good := uuid.New()
	proc := &scriptedProcessor{failFor: map[uuid.UUID]error{bad: errors.New("engine crashed")}}

	// Single worker so the failing task runs first and ordering is fixed.
	pool := NewPool(q, proc, events, nil, WithWorkers(1))
	pool.Start()
	defer pool.Stop(time.Second)

	require.NoError(t, q.Enqueue(queue.Task{FileID: bad, Priority: 1}))
	require.NoError(t, q.Enqueue(queue.Task{FileID: good, Priority: 2}))

	got := collectEvents(t, sub, 4)
	assert.Equal(t, broadcast.EventProcessingFailed, got[1].Type)
	assert.Equal(t, bad, got[1].FileID)
	assert.Contains(t, got[1].Error, "engine crashed")
	assert.Nil(t, got[1].DocumentID)

	// The pool kept going after the failure.
	assert.Equal(t, broadcast.EventProcessingCompleted, got[3].Type)
	assert.Equal(t, good, got[3].FileID)
}

func TestPool_ConcurrentWorkersDrainQueue(t *testing.T) {
	q := queue.New()
	events := broadcast.New(nil)
	proc := &scriptedProcessor{delay: time.Millisecond}

	pool := NewPool(q, proc, events, nil, WithWorkers(4))
	pool.Start()

	const n = 40
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(queue.Task{FileID: uuid.New(), Priority: i % 5}))
	}

	require.Eventually(t, func() bool { return proc.count() == n },
		5*time.Second, 10*time.Millisecond)
	pool.Stop(time.Second)
}

func TestPool_StopDrainsInFlightWithinGrace(t *testing.T) {
	q := queue.New()
	events := broadcast.New(nil)
	proc := &scriptedProcessor{delay: 50 * time.Millisecond}

	pool := NewPool(q, proc, events, nil, WithWorkers(1))
	pool.Start()

	require.NoError(t, q.Enqueue(queue.Task{FileID: uuid.New(), Priority: 1}))
	time.Sleep(10 * time.Millisecond) // let the worker pick it up

	pool.Stop(2 * time.Second)
	assert.Equal(t, 1, proc.count())

	// Queue is closed after Stop.
	err := q.Enqueue(queue.Task{FileID: uuid.New()})
	require.Error(t, err)
}

func TestPool_StopCancelsStuckTask(t *testing.T) {
	q := queue.New()
	events := broadcast.New(nil)
	proc := &scriptedProcessor{block: make(chan struct{})}

	pool := NewPool(q, proc, events, nil, WithWorkers(1))
	pool.Start()

	require.NoError(t, q.Enqueue(queue.Task{FileID: uuid.New(), Priority: 1}))
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	pool.Stop(50 * time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPool_StartIsIdempotent(t *testing.T) {
	q := queue.New()
	events := broadcast.New(nil)

	proc := &scriptedProcessor{}
	pool := NewPool(q, proc, events, nil, WithWorkers(2))
	pool.Start()
	pool.Start()
	pool.Start()

	require.NoError(t, q.Enqueue(queue.Task{FileID: uuid.New()}))
	require.Eventually(t, func() bool { return proc.count() == 1 },
		2*time.Second, 5*time.Millisecond)
	pool.Stop(time.Second)
}
