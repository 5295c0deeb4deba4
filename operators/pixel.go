package operators

import (
	"context"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

// OpArgmax labels each voxel with 1 + the index of its largest channel.  The output
// has a single channel of uint32 labels.
type OpArgmax struct {
	graph.Base
	Input     *graph.InputSlot
	Threshold *graph.InputSlot
	Output    *graph.OutputSlot
}

func NewOpArgmax(g *graph.Graph, name string) *OpArgmax {
	op := &OpArgmax{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Threshold = op.AddValueInput("Threshold", 0.0)
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpArgmax) SetupOutputs() error {
	m := op.Input.Meta()
	c, found := m.Axes.Index('c')
	if !found {
		return dvid.ConfigErrorf("argmax input %q has no channel axis", m.Axes)
	}
	m.Shape = append([]int(nil), m.Shape...)
	m.Shape[c] = 1
	m.DType = dvid.T_uint32
	op.Output.SetMeta(m)
	return nil
}

func (op *OpArgmax) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	m := op.Input.Meta()
	c, _ := m.Axes.Index('c')
	start, stop := roi.Start(), roi.Stop()
	start[c], stop[c] = 0, m.Shape[c]
	inRoi, err := m.Roi(start, stop)
	if err != nil {
		return err
	}
	data, err := op.Input.Get(ctx, inRoi)
	if err != nil {
		return err
	}
	strides := data.Strides()
	nc, cstride := m.Shape[c], strides[c]
	labels := result.Uint32s()
	dvid.ForEachCoord(roi.Size(), func(coord []int, flat int) {
		var off int
		for i, x := range coord {
			off += x * strides[i]
		}
		best, bestValue := 0, data.At(off)
		for k := 1; k < nc; k++ {
			if v := data.At(off + k*cstride); v > bestValue {
				best, bestValue = k, v
			}
		}
		labels[flat] = uint32(best + 1)
	})
	return nil
}

func (op *OpArgmax) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	if in != op.Input {
		op.Output.SetDirtyAll()
		return
	}
	c, _ := roi.Axes().Index('c')
	dirty, err := roi.SetAxis(c, 0, 1)
	if err == nil {
		dirty, err = dirty.WithShape(op.Output.Meta().Shape)
	}
	if err != nil {
		op.Output.SetDirtyAll()
		return
	}
	op.Output.SetDirty(dirty)
}

// OpBinarize turns a label image into a foreground mask.  Label i+1 is background
// if ActiveChannels[i] is 0; every other voxel is 1.  A nil ActiveChannels keeps
// every label.
type OpBinarize struct {
	graph.Base
	Input          *graph.InputSlot
	ActiveChannels *graph.InputSlot
	Output         *graph.OutputSlot
}

func NewOpBinarize(g *graph.Graph, name string) *OpBinarize {
	op := &OpBinarize{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.ActiveChannels = op.AddValueInput("ActiveChannels", nil)
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpBinarize) SetupOutputs() error {
	if _, err := op.ActiveChannels.Ints(); err != nil {
		return err
	}
	m := op.Input.Meta()
	m.DType = dvid.T_uint32
	op.Output.SetMeta(m)
	return nil
}

func (op *OpBinarize) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	active, err := op.ActiveChannels.Ints()
	if err != nil {
		return err
	}
	data, err := op.Input.Get(ctx, roi)
	if err != nil {
		return err
	}
	inactive := make(map[uint32]bool)
	for i, a := range active {
		if a == 0 {
			inactive[uint32(i+1)] = true
		}
	}
	mask := result.Uint32s()
	for i := range mask {
		if inactive[uint32(data.At(i))] {
			mask[i] = 0
		} else {
			mask[i] = 1
		}
	}
	return nil
}

func (op *OpBinarize) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	if in != op.Input {
		op.Output.SetDirtyAll()
		return
	}
	op.Output.SetDirty(roi)
}

// OpThreshold marks voxels greater than Threshold with 1.
type OpThreshold struct {
	graph.Base
	Input     *graph.InputSlot
	Threshold *graph.InputSlot
	Output    *graph.OutputSlot
}

func NewOpThreshold(g *graph.Graph, name string) *OpThreshold {
	op := &OpThreshold{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Threshold = op.AddValueInput("Threshold", 0.5)
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpThreshold) SetupOutputs() error {
	if _, err := op.Threshold.Float(); err != nil {
		return err
	}
	m := op.Input.Meta()
	m.DType = dvid.T_uint8
	op.Output.SetMeta(m)
	return nil
}

func (op *OpThreshold) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	threshold, err := op.Threshold.Float()
	if err != nil {
		return err
	}
	data, err := op.Input.Get(ctx, roi)
	if err != nil {
		return err
	}
	mask := result.Uint8s()
	for i := range mask {
		if data.At(i) > threshold {
			mask[i] = 1
		} else {
			mask[i] = 0
		}
	}
	return nil
}

func (op *OpThreshold) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	if in != op.Input {
		op.Output.SetDirtyAll()
		return
	}
	op.Output.SetDirty(roi)
}

// OpRevertBinarize restores the argmax labels of voxels within a connected component
// and zeroes the rest.
type OpRevertBinarize struct {
	graph.Base
	ArgmaxInput *graph.InputSlot
	CCInput     *graph.InputSlot
	Output      *graph.OutputSlot
}

func NewOpRevertBinarize(g *graph.Graph, name string) *OpRevertBinarize {
	op := &OpRevertBinarize{}
	op.Init(g, op, name)
	op.ArgmaxInput = op.AddInput("ArgmaxInput")
	op.CCInput = op.AddInput("CCInput")
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpRevertBinarize) SetupOutputs() error {
	if err := sameShape(op.ArgmaxInput, op.CCInput); err != nil {
		return err
	}
	m := op.ArgmaxInput.Meta()
	m.DType = dvid.T_uint32
	op.Output.SetMeta(m)
	return nil
}

func (op *OpRevertBinarize) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	argmax, err := op.ArgmaxInput.Get(ctx, roi)
	if err != nil {
		return err
	}
	cc, err := op.CCInput.Get(ctx, roi)
	if err != nil {
		return err
	}
	labels := result.Uint32s()
	for i := range labels {
		if cc.At(i) != 0 {
			labels[i] = uint32(argmax.At(i))
		} else {
			labels[i] = 0
		}
	}
	return nil
}

func (op *OpRevertBinarize) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	op.Output.SetDirty(roi)
}
