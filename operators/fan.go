package operators

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

// OpFanOut splits a label image into NumChannels binary images.  Output c is 1
// where the label equals c.
type OpFanOut struct {
	graph.Base
	Input       *graph.InputSlot
	NumChannels *graph.InputSlot
}

func NewOpFanOut(g *graph.Graph, name string) *OpFanOut {
	op := &OpFanOut{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.NumChannels = op.AddValueInput("NumChannels", 20)
	return op
}

// Output returns the binary image of label c or nil if there is no such output.
func (op *OpFanOut) Output(c int) *graph.OutputSlot {
	outputs := op.Outputs()
	if c < 0 || c >= len(outputs) {
		return nil
	}
	return outputs[c]
}

func (op *OpFanOut) SetupOutputs() error {
	n, err := op.NumChannels.Int()
	if err != nil {
		return err
	}
	if n < 1 {
		return dvid.ConfigErrorf("fan out %q needs at least one channel, got %d", op.Name(), n)
	}
	for len(op.Outputs()) < n {
		op.AddOutput(fmt.Sprintf("Output%d", len(op.Outputs())))
	}
	for len(op.Outputs()) > n {
		outputs := op.Outputs()
		op.RemoveOutput(outputs[len(outputs)-1])
	}
	m := op.Input.Meta()
	m.DType = dvid.T_uint8
	for _, out := range op.Outputs() {
		out.SetMeta(m)
	}
	return nil
}

func (op *OpFanOut) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	channel := -1
	for c, o := range op.Outputs() {
		if o == out {
			channel = c
		}
	}
	if channel < 0 {
		return fmt.Errorf("output %s is not part of fan out %q", out.Name(), op.Name())
	}
	data, err := op.Input.Get(ctx, roi)
	if err != nil {
		return err
	}
	mask := result.Uint8s()
	for i := range mask {
		if data.At(i) == float64(channel) {
			mask[i] = 1
		} else {
			mask[i] = 0
		}
	}
	return nil
}

func (op *OpFanOut) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	for _, out := range op.Outputs() {
		if in == op.Input {
			out.SetDirty(roi)
		} else {
			out.SetDirtyAll()
		}
	}
}

// OpFanIn combines binary images into one label image: voxels equal to 1 in input i
// get label i+1, with later inputs taking precedence.  With Binaries set, any nonzero
// voxel counts as 1.
type OpFanIn struct {
	graph.Base
	Inputs   []*graph.InputSlot
	Binaries *graph.InputSlot
	Output   *graph.OutputSlot
}

func NewOpFanIn(g *graph.Graph, name string, numInputs int) *OpFanIn {
	op := &OpFanIn{}
	op.Init(g, op, name)
	for i := 0; i < numInputs; i++ {
		op.Inputs = append(op.Inputs, op.AddInput(fmt.Sprintf("Input%d", i)))
	}
	op.Binaries = op.AddValueInput("Binaries", false)
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpFanIn) SetupOutputs() error {
	if len(op.Inputs) == 0 {
		return dvid.ConfigErrorf("fan in %q has no inputs", op.Name())
	}
	for _, in := range op.Inputs[1:] {
		if err := sameShape(op.Inputs[0], in); err != nil {
			return err
		}
	}
	m := op.Inputs[0].Meta()
	m.DType = dvid.T_uint32
	op.Output.SetMeta(m)
	return nil
}

func (op *OpFanIn) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	binaries, err := op.Binaries.Bool()
	if err != nil {
		return err
	}
	labels := result.Uint32s()
	for i := range labels {
		labels[i] = 0
	}
	for idx, in := range op.Inputs {
		data, err := in.Get(ctx, roi)
		if err != nil {
			return err
		}
		for i := range labels {
			v := data.At(i)
			if binaries && v != 0 {
				v = 1
			}
			if v == 1 {
				labels[i] = uint32(idx + 1)
			}
		}
	}
	return nil
}

func (op *OpFanIn) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	if in == op.Binaries {
		op.Output.SetDirtyAll()
		return
	}
	op.Output.SetDirty(roi)
}
