package operators

import (
	"context"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

// OpReorderAxes presents its input in another axis order.  Axes missing from the
// input are added with extent 1, and input axes missing from AxisOrder must have
// extent 1.
type OpReorderAxes struct {
	graph.Base
	Input     *graph.InputSlot
	AxisOrder *graph.InputSlot
	Output    *graph.OutputSlot
}

func NewOpReorderAxes(g *graph.Graph, name string) *OpReorderAxes {
	op := &OpReorderAxes{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.AxisOrder = op.AddValueInput("AxisOrder", "txyzc")
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpReorderAxes) SetupOutputs() error {
	m := op.Input.Meta()
	to, err := axisOrderValue(op.AxisOrder)
	if err != nil {
		return err
	}
	for i, key := range m.Axes.Keys() {
		if !to.Has(key) && m.Shape[i] != 1 {
			return dvid.ConfigErrorf("cannot drop axis %q of extent %d reordering %q to %q",
				key, m.Shape[i], m.Axes, to)
		}
	}
	shape := make([]int, len(to))
	for j, key := range to.Keys() {
		shape[j] = m.AxisExtent(key)
	}
	op.Output.SetMeta(graph.Meta{Shape: shape, DType: m.DType, Axes: to})
	return nil
}

func (op *OpReorderAxes) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	m := op.Input.Meta()
	inRoi, err := roi.Reorder(m.Axes, m.Shape)
	if err != nil {
		return err
	}
	if m.Axes == roi.Axes() {
		return op.Input.GetInto(ctx, inRoi, result)
	}
	data, err := op.Input.Get(ctx, inRoi)
	if err != nil {
		return err
	}
	reordered, err := reorderArray(data, m.Axes, roi.Axes())
	if err != nil {
		return err
	}
	return setResult(result, reordered)
}

func (op *OpReorderAxes) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	if in != op.Input {
		op.Output.SetDirtyAll()
		return
	}
	m := op.Output.Meta()
	dirty, err := roi.Reorder(m.Axes, m.Shape)
	if err != nil {
		dvid.Errorf("Cannot translate dirty region %s for %q: %v\n", roi, op.Name(), err)
		op.Output.SetDirtyAll()
		return
	}
	op.Output.SetDirty(dirty)
}

// reorderArray transposes data from one axis order to another.  Axes absent from
// the target must have extent 1 and axes absent from the source get extent 1.
func reorderArray(data *dvid.Array, from, to dvid.AxisOrder) (*dvid.Array, error) {
	shape := data.Shape()
	var common []byte
	var commonShape []int
	for i, key := range from.Keys() {
		if to.Has(key) {
			common = append(common, key)
			commonShape = append(commonShape, shape[i])
		} else if shape[i] != 1 {
			return nil, dvid.ConfigErrorf("cannot drop axis %q of extent %d", key, shape[i])
		}
	}
	squeezed, err := data.Reshape(commonShape)
	if err != nil {
		return nil, err
	}
	var perm []int
	outShape := make([]int, len(to))
	for j, key := range to.Keys() {
		outShape[j] = 1
		if i, found := dvid.AxisOrder(common).Index(key); found {
			perm = append(perm, i)
			outShape[j] = commonShape[i]
		}
	}
	transposed, err := squeezed.Transpose(perm)
	if err != nil {
		return nil, err
	}
	return transposed.Reshape(outShape)
}
