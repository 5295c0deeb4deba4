package operators

import (
	"context"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

// OpThresholdTwoLevels segments a single-channel probability map by hysteresis.  The
// smoothed map is thresholded at LowThreshold into big components, which are kept if
// their size is within [MinSize, MaxSize] and they contain a voxel above
// HighThreshold.  Output holds the kept components numbered 1..k.
type OpThresholdTwoLevels struct {
	graph.Base
	Input         *graph.InputSlot
	SmootherSigma *graph.InputSlot
	HighThreshold *graph.InputSlot
	LowThreshold  *graph.InputSlot
	MinSize       *graph.InputSlot
	MaxSize       *graph.InputSlot

	Smoothed     *graph.OutputSlot
	Output       *graph.OutputSlot
	CachedOutput *graph.OutputSlot

	smoother   *OpGaussianSmoothing
	high, low  *OpThreshold
	highLabels *OpLabelVolume
	lowLabels  *OpLabelVolume
	filter     *OpFilterLabels
	sel        *OpSelectLabels
	cache      *OpBlockedCache
}

func NewOpThresholdTwoLevels(g *graph.Graph, name string) *OpThresholdTwoLevels {
	op := &OpThresholdTwoLevels{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.SmootherSigma = op.AddValueInput("SmootherSigma", map[string]float64{"x": 1.0, "y": 1.0, "z": 1.0})
	op.HighThreshold = op.AddValueInput("HighThreshold", 0.5)
	op.LowThreshold = op.AddValueInput("LowThreshold", 0.2)
	op.MinSize = op.AddValueInput("MinSize", 10)
	op.MaxSize = op.AddValueInput("MaxSize", 1000000)
	op.Smoothed = op.AddOutput("Smoothed")
	op.Output = op.AddOutput("Output")
	op.CachedOutput = op.AddOutput("CachedOutput")

	op.smoother = NewOpGaussianSmoothing(g, name+".smoother")
	op.smoother.Input.ConnectInput(op.Input)
	op.smoother.Sigmas.ConnectInput(op.SmootherSigma)

	op.high = NewOpThreshold(g, name+".high")
	op.high.Input.Connect(op.smoother.Output)
	op.high.Threshold.ConnectInput(op.HighThreshold)
	op.highLabels = NewOpLabelVolume(g, name+".highLabels")
	op.highLabels.Input.Connect(op.high.Output)

	op.low = NewOpThreshold(g, name+".low")
	op.low.Input.Connect(op.smoother.Output)
	op.low.Threshold.ConnectInput(op.LowThreshold)
	op.lowLabels = NewOpLabelVolume(g, name+".lowLabels")
	op.lowLabels.Input.Connect(op.low.Output)
	op.filter = NewOpFilterLabels(g, name+".filter")
	op.filter.Input.Connect(op.lowLabels.Output)
	op.filter.MinLabelSize.ConnectInput(op.MinSize)
	op.filter.MaxLabelSize.ConnectInput(op.MaxSize)

	op.sel = NewOpSelectLabels(g, name+".select")
	op.sel.SmallLabels.Connect(op.highLabels.Output)
	op.sel.BigLabels.Connect(op.filter.Output)
	op.cache = NewOpBlockedCache(g, name+".cache")
	op.cache.Input.Connect(op.sel.Output)

	op.Smoothed.Forward(op.smoother.Output)
	op.Output.Forward(op.sel.Output)
	op.CachedOutput.Forward(op.cache.Output)
	return op
}

func (op *OpThresholdTwoLevels) SetupOutputs() error {
	m := op.Input.Meta()
	if m.AxisExtent('c') != 1 {
		return dvid.ConfigErrorf("two level threshold of %q needs a single channel, got %s", op.Name(), m)
	}
	// labels are relative to a whole volume, so blocks hold one time point
	block := append([]int(nil), m.Shape...)
	if t, found := m.Axes.Index('t'); found {
		block[t] = 1
	}
	return setValue(op.cache.BlockShape, block)
}

func (op *OpThresholdTwoLevels) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	return dvid.ConfigErrorf("output %s of %q is forwarded", out.Name(), op.Name())
}

func (op *OpThresholdTwoLevels) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {}
