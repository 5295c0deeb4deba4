package request

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/twinj/uuid"

	"github.com/janelia-flyem/voxflow/dvid"
)

// State is the lifecycle stage of a request.
type State int32

const (
	Pending State = iota
	Running
	Complete
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state %d", int32(s))
	}
}

// Terminal returns true once a request can no longer change state.
func (s State) Terminal() bool {
	return s >= Complete
}

// ErrCancelled is returned by requests cancelled before they started.
var ErrCancelled = errors.New("request cancelled")

// Func computes the result of a request.  It may return a nil array when the
// computation writes into a caller-provided buffer.
type Func func(ctx context.Context) (*dvid.Array, error)

// Request is one scheduled computation.
type Request struct {
	id    string
	sched *Scheduler
	fn    Func

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	children []*Request
	result   *dvid.Array
	err      error
}

func newRequest(s *Scheduler, fn Func) *Request {
	return &Request{
		id:    uuid.NewV4().String(),
		sched: s,
		fn:    fn,
		done:  make(chan struct{}),
	}
}

func (r *Request) ID() string {
	return r.id
}

func (r *Request) State() State {
	return State(r.state.Load())
}

// Done is closed once the request reaches a terminal state.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

func (r *Request) addChild(c *Request) {
	r.mu.Lock()
	r.children = append(r.children, c)
	r.mu.Unlock()
}

func (r *Request) run(ctx context.Context) {
	acquireCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()
	if r.State() == Cancelled {
		r.finish(nil, ErrCancelled, Cancelled)
		return
	}

	if err := r.sched.sem.Acquire(acquireCtx, 1); err != nil {
		if r.state.CompareAndSwap(int32(Pending), int32(Cancelled)) || r.State() == Cancelled {
			r.finish(nil, ErrCancelled, Cancelled)
		} else {
			r.finish(nil, err, Failed)
		}
		return
	}
	if !r.state.CompareAndSwap(int32(Pending), int32(Running)) {
		r.sched.sem.Release(1)
		r.finish(nil, ErrCancelled, Cancelled)
		return
	}
	requestsStarted.Inc()
	requestsRunning.Inc()

	runCtx := context.WithValue(ctx, requestKey{}, r)
	result, err := r.fn(runCtx)

	// Children must all resolve before the parent does.
	r.mu.Lock()
	children := r.children
	r.children = nil
	r.mu.Unlock()
	if len(children) != 0 {
		Block(runCtx, func() {
			for _, c := range children {
				<-c.done
			}
		})
	}

	requestsRunning.Dec()
	r.sched.sem.Release(1)

	if err != nil {
		requestsFailed.Inc()
		r.finish(nil, err, Failed)
		return
	}
	r.finish(result, nil, Complete)
}

func (r *Request) finish(result *dvid.Array, err error, state State) {
	r.mu.Lock()
	r.result = result
	r.err = err
	r.mu.Unlock()
	r.state.Store(int32(state))
	close(r.done)
}

// Cancel stops a request that has not started yet and reports whether it did.
// Running computations are never preempted.
func (r *Request) Cancel() bool {
	if !r.state.CompareAndSwap(int32(Pending), int32(Cancelled)) {
		return false
	}
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// Wait blocks until the request resolves and returns its result.  When called from
// within another running request, that request's worker is lent out for the duration.
func (r *Request) Wait(ctx context.Context) (*dvid.Array, error) {
	select {
	case <-r.done:
	default:
		var ctxErr error
		Block(ctx, func() {
			select {
			case <-r.done:
			case <-ctx.Done():
				ctxErr = ctx.Err()
			}
		})
		if ctxErr != nil {
			return nil, ctxErr
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Err returns the error of a resolved request.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// WriteInto waits for the request and copies its result into dest at offset.
func (r *Request) WriteInto(ctx context.Context, dest *dvid.Array, offset []int) error {
	result, err := r.Wait(ctx)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("request %s produced no array to copy", r.id)
	}
	return dest.Paste(result, offset)
}

// Clean drops the reference to the result of a resolved request so it can be freed.
func (r *Request) Clean() {
	if !r.State().Terminal() {
		return
	}
	r.mu.Lock()
	r.result = nil
	r.mu.Unlock()
}
