package graph

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/request"
)

// Operator is a node of the graph.  Concrete operators embed Base and implement the
// three callbacks below.
type Operator interface {
	Name() string

	// SetupOutputs derives output metadata from the metadata and values of the inputs.
	// It is called whenever an input changes and must be idempotent.
	SetupOutputs() error

	// Execute fills result, whose shape is the size of roi, with the content of out
	// within roi.
	Execute(ctx context.Context, out *OutputSlot, roi dvid.Roi, result *dvid.Array) error

	// PropagateDirty marks the outputs affected by a dirty region of an input.  For
	// parameter inputs the region is empty and the whole affected output is dirty.
	PropagateDirty(in *InputSlot, roi dvid.Roi)

	base() *Base
}

// Base holds the slots and graph membership common to all operators.
type Base struct {
	name    string
	graph   *Graph
	self    Operator
	inputs  []*InputSlot
	outputs []*OutputSlot
}

// Init registers the operator with the graph.  self is the concrete operator
// embedding this Base.
func (b *Base) Init(g *Graph, self Operator, name string) {
	b.name = name
	b.graph = g
	b.self = self
	g.register(b)
}

func (b *Base) base() *Base {
	return b
}

func (b *Base) Name() string {
	return b.name
}

// Graph returns the graph the operator belongs to.
func (b *Base) Graph() *Graph {
	return b.graph
}

// Scheduler returns the scheduler for sub-requests.
func (b *Base) Scheduler() *request.Scheduler {
	return b.graph.sched
}

// Inputs returns the input slots in order of creation.
func (b *Base) Inputs() []*InputSlot {
	return b.inputs
}

// Outputs returns the output slots in order of creation.
func (b *Base) Outputs() []*OutputSlot {
	return b.outputs
}

// AddInput adds a required input slot.
func (b *Base) AddInput(name string) *InputSlot {
	in := &InputSlot{name: name, op: b}
	b.inputs = append(b.inputs, in)
	return in
}

// AddOptionalInput adds an input that need not be ready for setup.
func (b *Base) AddOptionalInput(name string) *InputSlot {
	in := b.AddInput(name)
	in.optional = true
	return in
}

// AddValueInput adds a parameter input holding a default value.
func (b *Base) AddValueInput(name string, value interface{}) *InputSlot {
	in := b.AddInput(name)
	in.value = value
	in.hasValue = true
	return in
}

// AddOutput adds an output slot.
func (b *Base) AddOutput(name string) *OutputSlot {
	out := &OutputSlot{name: name, op: b}
	b.outputs = append(b.outputs, out)
	return out
}

// RemoveOutput drops an output slot after disconnecting its consumers.
func (b *Base) RemoveOutput(out *OutputSlot) {
	for _, c := range append([]*InputSlot(nil), out.consumers...) {
		c.Disconnect()
	}
	for i, o := range b.outputs {
		if o == out {
			b.outputs = append(b.outputs[:i], b.outputs[i+1:]...)
			break
		}
	}
}

// Reconfigure sets up the operator again after a change of state the graph cannot
// see, such as new data held by a source.
func (b *Base) Reconfigure() error {
	return b.setup()
}

// ready returns true if every required input is ready.
func (b *Base) ready() bool {
	for _, in := range b.inputs {
		if !in.optional && !in.Ready() {
			return false
		}
	}
	return true
}

// setup calls SetupOutputs if all inputs are ready, or marks the outputs unready
// otherwise, and then sets up downstream operators.
func (b *Base) setup() error {
	if !b.ready() {
		changed := false
		for _, out := range b.outputs {
			if out.forward == nil && out.meta.Ready {
				out.meta.Ready = false
				changed = true
			}
		}
		if changed {
			return b.setupDownstream()
		}
		return nil
	}
	if err := b.self.SetupOutputs(); err != nil {
		dvid.Errorf("Setup of operator %q failed: %v\n", b.name, err)
		for _, out := range b.outputs {
			out.meta.Ready = false
		}
		b.setupDownstream()
		return fmt.Errorf("setup of %q: %w", b.name, err)
	}
	return b.setupDownstream()
}

func (b *Base) setupDownstream() error {
	var firstErr error
	for _, out := range b.outputs {
		if err := out.setupConsumers(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
