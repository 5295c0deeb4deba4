package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"
)

// PoolError aggregates the failures of requests in a pool.
type PoolError struct {
	Failures []error
}

func (e *PoolError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d pooled requests failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap allows errors.Is and errors.As to reach each failure.
func (e *PoolError) Unwrap() []error {
	return e.Failures
}

// Pool collects sibling requests so they can be waited on together.
type Pool struct {
	sched *Scheduler

	mu   sync.Mutex
	reqs []*Request
}

// NewPool returns an empty pool submitting to the given scheduler.
func NewPool(s *Scheduler) *Pool {
	return &Pool{sched: s}
}

// Add puts an already submitted request into the pool.
func (p *Pool) Add(r *Request) {
	p.mu.Lock()
	p.reqs = append(p.reqs, r)
	p.mu.Unlock()
}

// Submit schedules fn and adds the resulting request to the pool.
func (p *Pool) Submit(ctx context.Context, fn Func) *Request {
	r := p.sched.Submit(ctx, fn)
	p.Add(r)
	return r
}

// Len returns the number of requests in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reqs)
}

// Wait blocks until every request added so far, including ones added while waiting,
// has reached a terminal state.  Failures are returned together in a *PoolError.
// If ctx is done first, its error is returned and the requests keep running.
// Clean may run concurrently; requests it removes were already resolved.
func (p *Pool) Wait(ctx context.Context) error {
	var waited []*Request
	seen := make(map[*Request]struct{})
	for {
		var pending []*Request
		p.mu.Lock()
		for _, r := range p.reqs {
			if _, found := seen[r]; !found {
				seen[r] = struct{}{}
				pending = append(pending, r)
			}
		}
		p.mu.Unlock()
		if len(pending) == 0 {
			break
		}
		var ctxErr error
		Block(ctx, func() {
			for _, r := range pending {
				select {
				case <-r.done:
				case <-ctx.Done():
					ctxErr = ctx.Err()
					return
				}
			}
		})
		if ctxErr != nil {
			return ctxErr
		}
		waited = append(waited, pending...)
	}

	var failures []error
	for _, r := range waited {
		if err := r.Err(); err != nil {
			failures = append(failures, fmt.Errorf("request %s: %w", r.id, err))
		}
	}
	if len(failures) != 0 {
		dvid.Debugf("%d of %d pooled requests failed\n", len(failures), len(waited))
		return &PoolError{Failures: failures}
	}
	return nil
}

// Clean releases results of resolved requests and removes them from the pool.
func (p *Pool) Clean() {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.reqs[:0]
	for _, r := range p.reqs {
		if r.State().Terminal() {
			r.Clean()
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(p.reqs); i++ {
		p.reqs[i] = nil
	}
	p.reqs = kept
}

// IsCancelled returns true if err came from a request cancelled before it ran.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
