package request

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/janelia-flyem/voxflow/dvid"
)

// Scheduler bounds the number of requests computing at once.
type Scheduler struct {
	workers int
	sem     *semaphore.Weighted
}

// NewScheduler returns a scheduler with the given number of workers, or one per CPU
// if workers <= 0.
func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scheduler{
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

// Workers returns the maximum number of concurrently running requests.
func (s *Scheduler) Workers() int {
	return s.workers
}

type requestKey struct{}

// Current returns the request whose computation is running under ctx, if any.
func Current(ctx context.Context) *Request {
	r, _ := ctx.Value(requestKey{}).(*Request)
	return r
}

// Submit schedules fn and returns immediately.  If called from within a running
// request, the new request becomes its child.
func (s *Scheduler) Submit(ctx context.Context, fn Func) *Request {
	r := newRequest(s, fn)
	if parent := Current(ctx); parent != nil {
		parent.addChild(r)
	}
	go r.run(ctx)
	return r
}

// Block runs wait after the request running under ctx, if any, has lent out its
// worker token, and reacquires the token before returning.  It must be called from
// the goroutine running that request.
func Block(ctx context.Context, wait func()) {
	cur := Current(ctx)
	if cur == nil {
		wait()
		return
	}
	s := cur.sched
	s.sem.Release(1)
	requestsRunning.Dec()
	wait()
	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		dvid.Criticalf("unable to reacquire worker for request %s: %v\n", cur.id, err)
	}
	requestsRunning.Inc()
}
