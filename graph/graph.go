package graph

import (
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/request"
)

// Graph holds operators that share a request scheduler.
type Graph struct {
	mu    sync.Mutex
	sched *request.Scheduler

	opsMu sync.Mutex
	ops   []*Base
}

// New returns an empty graph whose requests run on sched.
func New(sched *request.Scheduler) *Graph {
	if sched == nil {
		sched = request.NewScheduler(0)
	}
	return &Graph{sched: sched}
}

// Scheduler returns the scheduler used for sub-requests.
func (g *Graph) Scheduler() *request.Scheduler {
	return g.sched
}

// Mutate runs fn with exclusive access to the graph's topology and parameters.
func (g *Graph) Mutate(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}

func (g *Graph) register(b *Base) {
	g.opsMu.Lock()
	g.ops = append(g.ops, b)
	g.opsMu.Unlock()
}

// Operators returns every operator in order of creation.
func (g *Graph) Operators() []Operator {
	g.opsMu.Lock()
	defer g.opsMu.Unlock()
	ops := make([]Operator, len(g.ops))
	for i, b := range g.ops {
		ops[i] = b.self
	}
	return ops
}

// slot is either side of a connection for graph traversal.
type slot interface {
	successors() []slot
	owner() *Base
}

func (in *InputSlot) owner() *Base { return in.op }
func (out *OutputSlot) owner() *Base { return out.op }

func (in *InputSlot) successors() []slot {
	var next []slot
	for _, f := range in.followers {
		next = append(next, f)
	}
	for _, out := range in.op.outputs {
		if out.forward == nil {
			next = append(next, out)
		}
	}
	return next
}

func (out *OutputSlot) successors() []slot {
	var next []slot
	for _, c := range out.consumers {
		next = append(next, c)
	}
	for _, a := range out.aliases {
		next = append(next, a)
	}
	return next
}

// reaches returns true if target is downstream of from.
func reaches(from, target slot) bool {
	seen := map[slot]bool{}
	stack := []slot{from}
	for len(stack) != 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s == target {
			return true
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		stack = append(stack, s.successors()...)
	}
	return false
}

// TopologicalOrder returns the operators ordered so that each appears after the
// operators it pulls data from.  Composite operators appear before their inner
// operators.
func (g *Graph) TopologicalOrder() ([]Operator, error) {
	g.opsMu.Lock()
	ops := make([]*Base, len(g.ops))
	copy(ops, g.ops)
	g.opsMu.Unlock()

	var slots []slot
	for _, b := range ops {
		for _, in := range b.inputs {
			slots = append(slots, in)
		}
		for _, out := range b.outputs {
			slots = append(slots, out)
		}
	}
	inDegree := make(map[slot]int, len(slots))
	for _, s := range slots {
		for _, next := range s.successors() {
			inDegree[next]++
		}
	}
	var queue []slot
	for _, s := range slots {
		if inDegree[s] == 0 {
			queue = append(queue, s)
		}
	}

	var order []Operator
	added := make(map[*Base]bool)
	var visited int
	for len(queue) != 0 {
		s := queue[0]
		queue = queue[1:]
		visited++
		if b := s.owner(); !added[b] {
			added[b] = true
			order = append(order, b.self)
		}
		for _, next := range s.successors() {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(slots) {
		return nil, dvid.ConfigErrorf("graph has a cycle")
	}
	return order, nil
}
