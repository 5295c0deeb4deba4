package export

import (
	"context"
	"errors"
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"

	"github.com/twinj/uuid"
)

// ErrQueueClosed is returned by tasks submitted after the queue was closed.
var ErrQueueClosed = errors.New("task queue closed")

// TaskFunc is run on the queue's background goroutine.  It should return promptly
// once ctx is cancelled.
type TaskFunc func(ctx context.Context) error

// Task is a unit of background work.
type Task struct {
	id     string
	fn     TaskFunc
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// ID returns a unique job id.
func (t *Task) ID() string { return t.id }

// Done is closed when the task has finished or was cancelled before starting.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's result after Done is closed.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// Cancel asks the task to stop.  A running task observes it through its context.
func (t *Task) Cancel() { t.cancel() }

// fail resolves a task that never reached the queue.
func (t *Task) fail(err error) *Task {
	t.err = err
	t.cancel()
	close(t.done)
	return t
}

// TaskQueue runs submitted tasks one at a time on a background goroutine, keeping
// long exports off the caller's control path.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   chan *Task
	stop    chan struct{}
	closed  bool
	senders sync.WaitGroup // Submits between the closed check and the send
	wg      sync.WaitGroup
}

// NewTaskQueue starts a queue that buffers up to size pending tasks.
func NewTaskQueue(size int) *TaskQueue {
	q := &TaskQueue{
		tasks: make(chan *Task, size),
		stop:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *TaskQueue) run() {
	defer q.wg.Done()
	for t := range q.tasks {
		if err := t.ctx.Err(); err != nil {
			dvid.Infof("Skipping cancelled task %s\n", t.id)
			t.err = err
		} else {
			t.err = t.fn(t.ctx)
		}
		t.cancel()
		close(t.done)
	}
}

// Submit queues fn and returns its task.  Submit blocks while the queue is full;
// a blocked Submit gives up with ErrQueueClosed if the queue is closed, or with the
// context error if ctx is done.
func (q *TaskQueue) Submit(ctx context.Context, fn TaskFunc) *Task {
	tctx, cancel := context.WithCancel(ctx)
	t := &Task{
		id:     uuid.NewV4().String(),
		fn:     fn,
		ctx:    tctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return t.fail(ErrQueueClosed)
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	select {
	case q.tasks <- t:
		return t
	case <-q.stop:
		return t.fail(ErrQueueClosed)
	case <-ctx.Done():
		return t.fail(ctx.Err())
	}
}

// Close rejects new and blocked submissions, waits for queued tasks to finish and
// stops the background goroutine.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	first := !q.closed
	if first {
		q.closed = true
		close(q.stop)
	}
	q.mu.Unlock()
	if first {
		q.senders.Wait()
		close(q.tasks)
	}
	q.wg.Wait()
}
