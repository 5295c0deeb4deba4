package operators

import (
	"context"
	"fmt"
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

// OpArrayPiper passes its input through unchanged.
type OpArrayPiper struct {
	graph.Base
	Input  *graph.InputSlot
	Output *graph.OutputSlot
}

func NewOpArrayPiper(g *graph.Graph, name string) *OpArrayPiper {
	op := &OpArrayPiper{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpArrayPiper) SetupOutputs() error {
	op.Output.SetMeta(op.Input.Meta())
	return nil
}

func (op *OpArrayPiper) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	return op.Input.GetInto(ctx, roi, result)
}

func (op *OpArrayPiper) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	op.Output.SetDirty(roi)
}

// OpArraySource provides an array held in memory.  It is the raw data provider at the
// head of a pipeline.
type OpArraySource struct {
	graph.Base
	Output *graph.OutputSlot

	mu   sync.RWMutex
	data *dvid.Array
	axes dvid.AxisOrder
}

func NewOpArraySource(g *graph.Graph, name string) *OpArraySource {
	op := &OpArraySource{}
	op.Init(g, op, name)
	op.Output = op.AddOutput("Output")
	return op
}

// SetData replaces the array.  Consumers are set up again and all content is dirty.
func (op *OpArraySource) SetData(data *dvid.Array, axes dvid.AxisOrder) error {
	if len(axes) != data.NumDims() {
		return dvid.ConfigErrorf("axis order %q does not match %s", axes, data)
	}
	if err := axes.Validate(); err != nil {
		return err
	}
	op.mu.Lock()
	op.data = data
	op.axes = axes
	op.mu.Unlock()

	if err := op.Reconfigure(); err != nil {
		return err
	}
	op.Output.SetDirtyAll()
	return nil
}

// WriteRegion overwrites part of the array starting at start and marks it dirty.
func (op *OpArraySource) WriteRegion(start []int, region *dvid.Array) error {
	op.mu.Lock()
	if op.data == nil {
		op.mu.Unlock()
		return fmt.Errorf("source %q holds no data", op.Name())
	}
	if region.DType() != op.data.DType() {
		region = region.Astype(op.data.DType())
	}
	err := op.data.Paste(region, start)
	axes, shape := op.axes, op.data.Shape()
	op.mu.Unlock()
	if err != nil {
		return err
	}

	stop := make([]int, len(start))
	size := region.Shape()
	for i := range stop {
		stop[i] = start[i] + size[i]
	}
	roi, err := dvid.NewRoi(start, stop, axes, shape)
	if err != nil {
		return err
	}
	op.Output.SetDirty(roi)
	return nil
}

func (op *OpArraySource) SetupOutputs() error {
	op.mu.RLock()
	defer op.mu.RUnlock()
	if op.data == nil {
		op.Output.SetUnready()
		return nil
	}
	op.Output.SetMeta(graph.Meta{Shape: op.data.Shape(), DType: op.data.DType(), Axes: op.axes})
	return nil
}

func (op *OpArraySource) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	op.mu.RLock()
	defer op.mu.RUnlock()
	return dvid.CopyRegion(result, make([]int, roi.NumDims()), op.data, roi.Start(), roi.Size())
}

func (op *OpArraySource) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {}
