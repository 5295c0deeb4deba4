package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/request"
)

// Meta describes the array behind a slot.
type Meta struct {
	Shape []int
	DType dvid.DataType
	Axes  dvid.AxisOrder
	Ready bool
}

// Equal returns true if both describe the same array.
func (m Meta) Equal(o Meta) bool {
	if m.Ready != o.Ready || m.DType != o.DType || m.Axes != o.Axes || len(m.Shape) != len(o.Shape) {
		return false
	}
	for i := range m.Shape {
		if m.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// FullRoi returns the region covering the whole array.
func (m Meta) FullRoi() dvid.Roi {
	return dvid.FullRoi(m.Axes, m.Shape)
}

// Roi returns a region of this array.
func (m Meta) Roi(start, stop []int) (dvid.Roi, error) {
	return dvid.NewRoi(start, stop, m.Axes, m.Shape)
}

// AxisExtent returns the length of the named axis, or 1 if the axis is absent.
func (m Meta) AxisExtent(key byte) int {
	if i, found := m.Axes.Index(key); found {
		return m.Shape[i]
	}
	return 1
}

func (m Meta) String() string {
	if !m.Ready {
		return "not ready"
	}
	return fmt.Sprintf("%s %v %s", m.Axes, m.Shape, m.DType)
}

// InputSlot receives data or a parameter value.
type InputSlot struct {
	name     string
	op       *Base
	optional bool

	upstream  *OutputSlot
	parent    *InputSlot
	followers []*InputSlot

	value    interface{}
	hasValue bool
}

func (in *InputSlot) Name() string {
	return in.name
}

// Operator returns the operator owning the slot.
func (in *InputSlot) Operator() Operator {
	return in.op.self
}

// Upstream returns the connected output or nil.
func (in *InputSlot) Upstream() *OutputSlot {
	return in.upstream
}

// Connected returns true if the slot receives data from an output or a parent input.
func (in *InputSlot) Connected() bool {
	return in.upstream != nil || in.parent != nil
}

// Ready returns true if the slot has a value or a ready upstream.
func (in *InputSlot) Ready() bool {
	switch {
	case in.upstream != nil:
		return in.upstream.Meta().Ready
	case in.parent != nil:
		return in.parent.Ready()
	default:
		return in.hasValue
	}
}

// Meta returns the metadata of the connected array.
func (in *InputSlot) Meta() Meta {
	switch {
	case in.upstream != nil:
		return in.upstream.Meta()
	case in.parent != nil:
		return in.parent.Meta()
	default:
		return Meta{Ready: in.hasValue}
	}
}

// Value returns the parameter value of the slot or of whatever it follows.
func (in *InputSlot) Value() interface{} {
	switch {
	case in.upstream != nil:
		return in.upstream.Value()
	case in.parent != nil:
		return in.parent.Value()
	default:
		return in.value
	}
}

// Connect makes the slot receive data from out, replacing any earlier connection.
func (in *InputSlot) Connect(out *OutputSlot) error {
	if reaches(in, out) {
		return dvid.ConfigErrorf("connecting %s.%s to %s.%s would create a cycle",
			out.op.name, out.name, in.op.name, in.name)
	}
	in.detach()
	in.upstream = out
	out.consumers = append(out.consumers, in)
	return in.changed()
}

// ConnectInput makes the slot of an inner operator follow an input of its enclosing
// operator.
func (in *InputSlot) ConnectInput(parent *InputSlot) error {
	if reaches(in, parent) {
		return dvid.ConfigErrorf("following %s.%s from %s.%s would create a cycle",
			parent.op.name, parent.name, in.op.name, in.name)
	}
	in.detach()
	in.parent = parent
	parent.followers = append(parent.followers, in)
	return in.changed()
}

// SetValue disconnects the slot and sets a parameter value.  The operator is set up
// again and the outputs depending on the parameter are marked dirty.
func (in *InputSlot) SetValue(v interface{}) error {
	in.detach()
	in.value = v
	in.hasValue = true
	return in.changed()
}

// Disconnect removes any connection or value.
func (in *InputSlot) Disconnect() error {
	in.detach()
	in.value = nil
	in.hasValue = false
	return in.op.setup()
}

func (in *InputSlot) detach() {
	if in.upstream != nil {
		in.upstream.consumers = removeInput(in.upstream.consumers, in)
		in.upstream = nil
	}
	if in.parent != nil {
		in.parent.followers = removeInput(in.parent.followers, in)
		in.parent = nil
	}
}

func removeInput(slots []*InputSlot, in *InputSlot) []*InputSlot {
	for i, s := range slots {
		if s == in {
			return append(slots[:i], slots[i+1:]...)
		}
	}
	return slots
}

// changed sets up the owning operator and anything following the slot, then
// propagates a dirty notification for the new content.
func (in *InputSlot) changed() error {
	if err := in.setup(); err != nil {
		return err
	}
	if in.Ready() {
		in.notifyDirty(in.dirtyAll())
	}
	return nil
}

func (in *InputSlot) setup() error {
	if err := in.op.setup(); err != nil {
		return err
	}
	for _, f := range in.followers {
		if err := f.setup(); err != nil {
			return err
		}
	}
	return nil
}

// dirtyAll returns the region to report when all content changed: the full array for
// data slots and an empty region for parameters.
func (in *InputSlot) dirtyAll() dvid.Roi {
	m := in.Meta()
	if m.Shape == nil {
		return dvid.Roi{}
	}
	return m.FullRoi()
}

func (in *InputSlot) notifyDirty(roi dvid.Roi) {
	if in.op.ready() {
		in.op.self.PropagateDirty(in, roi)
	}
	for _, f := range in.followers {
		f.notifyDirty(roi)
	}
}

// Get pulls a region of the connected array.
func (in *InputSlot) Get(ctx context.Context, roi dvid.Roi) (*dvid.Array, error) {
	switch {
	case in.upstream != nil:
		return in.upstream.Get(ctx, roi)
	case in.parent != nil:
		return in.parent.Get(ctx, roi)
	default:
		return nil, dvid.ConfigErrorf("input %s.%s is not connected", in.op.name, in.name)
	}
}

// GetInto pulls a region of the connected array into dest.
func (in *InputSlot) GetInto(ctx context.Context, roi dvid.Roi, dest *dvid.Array) error {
	switch {
	case in.upstream != nil:
		return in.upstream.GetInto(ctx, roi, dest)
	case in.parent != nil:
		return in.parent.GetInto(ctx, roi, dest)
	default:
		return dvid.ConfigErrorf("input %s.%s is not connected", in.op.name, in.name)
	}
}

// Request schedules a pull of a region and returns without waiting.
func (in *InputSlot) Request(ctx context.Context, roi dvid.Roi) *request.Request {
	return in.op.graph.sched.Submit(ctx, func(ctx context.Context) (*dvid.Array, error) {
		return in.Get(ctx, roi)
	})
}

// OutputSlot provides data computed by its operator or by an inner operator it
// forwards to.
type OutputSlot struct {
	name string
	op   *Base

	meta     Meta
	value    interface{}
	hasValue bool

	forward   *OutputSlot
	aliases   []*OutputSlot
	consumers []*InputSlot

	subMu       sync.Mutex
	subscribers map[int]func(dvid.Roi)
	nextSub     int
}

func (out *OutputSlot) Name() string {
	return out.name
}

// Operator returns the operator owning the slot.
func (out *OutputSlot) Operator() Operator {
	return out.op.self
}

// Consumers returns the connected inputs.
func (out *OutputSlot) Consumers() []*InputSlot {
	return out.consumers
}

// Meta returns the metadata of the output.
func (out *OutputSlot) Meta() Meta {
	if out.forward != nil {
		return out.forward.Meta()
	}
	return out.meta
}

// SetMeta sets the output metadata and marks it ready.  Called from SetupOutputs.
func (out *OutputSlot) SetMeta(m Meta) {
	m.Shape = append([]int(nil), m.Shape...)
	m.Ready = true
	out.meta = m
}

// SetUnready marks the output as unusable until the next setup.
func (out *OutputSlot) SetUnready() {
	out.meta.Ready = false
}

// SetValue publishes a parameter value on the output, e.g., a list of names.
func (out *OutputSlot) SetValue(v interface{}) {
	out.value = v
	out.hasValue = true
	if out.meta.Shape == nil {
		out.meta.Ready = true
	}
}

// Value returns the parameter value of the output.
func (out *OutputSlot) Value() interface{} {
	if out.forward != nil {
		return out.forward.Value()
	}
	return out.value
}

// Forward makes this output an alias of an inner operator's output.  Consumers keep
// their connection to this output when the inner wiring changes.  A nil inner output
// removes the alias and leaves the output not ready.
func (out *OutputSlot) Forward(inner *OutputSlot) error {
	if inner == nil {
		if out.forward == nil {
			return nil
		}
		out.forward.aliases = removeOutput(out.forward.aliases, out)
		out.forward = nil
		out.meta.Ready = false
		return out.setupConsumers()
	}
	if out.forward == inner {
		return nil
	}
	if reaches(out, inner) {
		return dvid.ConfigErrorf("forwarding %s.%s to %s.%s would create a cycle",
			out.op.name, out.name, inner.op.name, inner.name)
	}
	if out.forward != nil {
		out.forward.aliases = removeOutput(out.forward.aliases, out)
	}
	out.forward = inner
	inner.aliases = append(inner.aliases, out)
	if err := out.setupConsumers(); err != nil {
		return err
	}
	if m := out.Meta(); m.Ready && m.Shape != nil {
		out.SetDirty(m.FullRoi())
	}
	return nil
}

func removeOutput(slots []*OutputSlot, out *OutputSlot) []*OutputSlot {
	for i, s := range slots {
		if s == out {
			return append(slots[:i], slots[i+1:]...)
		}
	}
	return slots
}

func (out *OutputSlot) setupConsumers() error {
	var firstErr error
	for _, c := range out.consumers {
		if err := c.setup(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, a := range out.aliases {
		if err := a.setupConsumers(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Roi returns a region of the output array.
func (out *OutputSlot) Roi(start, stop []int) (dvid.Roi, error) {
	return out.Meta().Roi(start, stop)
}

// Get computes a region of the output into a new array.
func (out *OutputSlot) Get(ctx context.Context, roi dvid.Roi) (*dvid.Array, error) {
	m := out.Meta()
	if !m.Ready {
		return nil, dvid.ConfigErrorf("output %s.%s is not ready", out.op.name, out.name)
	}
	result := dvid.NewArray(m.DType, roi.Size())
	if err := out.GetInto(ctx, roi, result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetInto computes a region of the output into dest, which must have the size of roi.
func (out *OutputSlot) GetInto(ctx context.Context, roi dvid.Roi, dest *dvid.Array) error {
	if out.forward != nil {
		return out.forward.GetInto(ctx, roi, dest)
	}
	m := out.meta
	if !m.Ready {
		return dvid.ConfigErrorf("output %s.%s is not ready", out.op.name, out.name)
	}
	if roi.NumDims() != len(m.Shape) {
		return dvid.OutOfBoundsf("%d-d roi %s requested from %d-d output %s.%s", roi.NumDims(), roi, len(m.Shape), out.op.name, out.name)
	}
	stop, arrayShape := roi.Stop(), roi.Shape()
	for i := range stop {
		if stop[i] > m.Shape[i] || arrayShape[i] != m.Shape[i] {
			return dvid.OutOfBoundsf("roi %s exceeds output %s.%s of shape %v", roi, out.op.name, out.name, m.Shape)
		}
	}
	size := roi.Size()
	destShape := dest.Shape()
	if dest.DType() != m.DType || len(destShape) != len(size) {
		return fmt.Errorf("destination %s does not fit %s roi %s", dest, m.DType, roi)
	}
	for i := range size {
		if destShape[i] != size[i] {
			return fmt.Errorf("destination %s does not fit roi %s", dest, roi)
		}
	}
	return out.op.self.Execute(ctx, out, roi, dest)
}

// Request schedules computation of a region and returns without waiting.
func (out *OutputSlot) Request(ctx context.Context, roi dvid.Roi) *request.Request {
	return out.op.graph.sched.Submit(ctx, func(ctx context.Context) (*dvid.Array, error) {
		return out.Get(ctx, roi)
	})
}

// SetDirty reports that a region of the output changed.  The region is clipped to
// the output shape and passed to subscribers and consumers.
func (out *OutputSlot) SetDirty(roi dvid.Roi) {
	m := out.Meta()
	if m.Shape != nil && roi.NumDims() == len(m.Shape) {
		roi = dvid.ClippedRoi(roi.Start(), roi.Stop(), m.Axes, m.Shape)
		if roi.Empty() {
			return
		}
	}
	out.subMu.Lock()
	subs := make([]func(dvid.Roi), 0, len(out.subscribers))
	for _, fn := range out.subscribers {
		subs = append(subs, fn)
	}
	out.subMu.Unlock()
	for _, fn := range subs {
		fn(roi)
	}
	for _, c := range out.consumers {
		c.notifyDirty(roi)
	}
	for _, a := range out.aliases {
		a.SetDirty(roi)
	}
}

// SetDirtyAll marks the whole output dirty.
func (out *OutputSlot) SetDirtyAll() {
	m := out.Meta()
	if m.Shape == nil {
		out.SetDirty(dvid.Roi{})
		return
	}
	out.SetDirty(m.FullRoi())
}

// Subscribe registers fn to receive dirty regions of the output and returns a
// function that cancels the subscription.
func (out *OutputSlot) Subscribe(fn func(dvid.Roi)) (unsubscribe func()) {
	out.subMu.Lock()
	defer out.subMu.Unlock()
	if out.subscribers == nil {
		out.subscribers = make(map[int]func(dvid.Roi))
	}
	id := out.nextSub
	out.nextSub++
	out.subscribers[id] = fn
	return func() {
		out.subMu.Lock()
		delete(out.subscribers, id)
		out.subMu.Unlock()
	}
}
