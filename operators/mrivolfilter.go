package operators

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

// OpMriVolFilter turns class probability maps of an MRI volume into a cleaned
// segmentation.  The maps are smoothed, reduced to their argmax, and binarized by
// ActiveChannels.  Connected components smaller than Threshold voxels are removed per
// time point, and the surviving voxels get back their argmax label.
//
// All outputs use the axis order of Input.  Smoothed keeps the channels; the other
// array outputs have a single channel of uint32 labels.  LabelNames and
// ActiveChannelsOut are value outputs.
type OpMriVolFilter struct {
	graph.Base
	Input           *graph.InputSlot
	SmoothingMethod *graph.InputSlot
	Configuration   *graph.InputSlot
	Threshold       *graph.InputSlot
	ActiveChannels  *graph.InputSlot

	Smoothed          *graph.OutputSlot
	ArgmaxOutput      *graph.OutputSlot
	CachedOutput      *graph.OutputSlot
	Output            *graph.OutputSlot
	LabelNames        *graph.OutputSlot
	ActiveChannelsOut *graph.OutputSlot

	opIn      *OpReorderAxes
	smoothing *OpSmoothingChooser
	argmax    *OpArgmax
	binarize  *OpBinarize
	labels    *OpLabelVolume
	filter    *OpFilterLabels5d
	cache     *OpBlockedCache
	revert    *OpRevertBinarize

	smoothedOut *OpReorderAxes
	argmaxOut   *OpReorderAxes
	cachedOut   *OpReorderAxes
	opOut       *OpReorderAxes
}

func NewOpMriVolFilter(g *graph.Graph, name string) *OpMriVolFilter {
	op := &OpMriVolFilter{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.SmoothingMethod = op.AddValueInput("SmoothingMethod", Gaussian)
	op.Configuration = op.AddValueInput("Configuration", map[string]interface{}{"sigma": 1.2})
	op.Threshold = op.AddValueInput("Threshold", 3000)
	op.ActiveChannels = op.AddValueInput("ActiveChannels", nil)
	op.Smoothed = op.AddOutput("Smoothed")
	op.ArgmaxOutput = op.AddOutput("ArgmaxOutput")
	op.CachedOutput = op.AddOutput("CachedOutput")
	op.Output = op.AddOutput("Output")
	op.LabelNames = op.AddOutput("LabelNames")
	op.ActiveChannelsOut = op.AddOutput("ActiveChannelsOut")

	op.opIn = NewOpReorderAxes(g, name+".in")
	op.opIn.Input.ConnectInput(op.Input)

	op.smoothing = NewOpSmoothingChooser(g, name+".smoothing")
	op.smoothing.Method.ConnectInput(op.SmoothingMethod)
	op.smoothing.Configuration.ConnectInput(op.Configuration)
	op.smoothing.Input.Connect(op.opIn.Output)

	op.argmax = NewOpArgmax(g, name+".argmax")
	op.argmax.Input.Connect(op.smoothing.Output)
	op.argmax.Threshold.ConnectInput(op.Threshold)

	op.binarize = NewOpBinarize(g, name+".binarize")
	op.binarize.Input.Connect(op.argmax.Output)
	op.binarize.ActiveChannels.ConnectInput(op.ActiveChannels)

	op.labels = NewOpLabelVolume(g, name+".labels")
	op.labels.Input.Connect(op.binarize.Output)

	op.filter = NewOpFilterLabels5d(g, name+".filter")
	op.filter.Input.Connect(op.labels.Output)
	op.filter.MinLabelSize.ConnectInput(op.Threshold)

	op.cache = NewOpBlockedCache(g, name+".cache")
	op.cache.Input.Connect(op.filter.Output)

	op.revert = NewOpRevertBinarize(g, name+".revert")
	op.revert.ArgmaxInput.Connect(op.argmax.Output)
	op.revert.CCInput.Connect(op.cache.Output)

	op.smoothedOut = op.reorderOut(op.smoothing.Output, op.Smoothed, "smoothed")
	op.argmaxOut = op.reorderOut(op.argmax.Output, op.ArgmaxOutput, "argmax")
	op.cachedOut = op.reorderOut(op.cache.Output, op.CachedOutput, "cached")
	op.opOut = op.reorderOut(op.revert.Output, op.Output, "out")
	return op
}

// reorderOut translates an internal "txyzc" output back to the input axis order.
func (op *OpMriVolFilter) reorderOut(inner, out *graph.OutputSlot, suffix string) *OpReorderAxes {
	r := NewOpReorderAxes(op.Graph(), op.Name()+"."+suffix)
	r.Input.Connect(inner)
	out.Forward(r.Output)
	return r
}

// Cache returns the cache of filtered components.
func (op *OpMriVolFilter) Cache() *OpBlockedCache {
	return op.cache
}

func (op *OpMriVolFilter) SetupOutputs() error {
	m := op.Input.Meta()
	if !m.Axes.Has('c') {
		return dvid.ConfigErrorf("MRI volume filter input %q has no channel axis", m.Axes)
	}
	numChannels := m.AxisExtent('c')

	active, err := op.ActiveChannels.Ints()
	if err != nil {
		return err
	}
	if active == nil {
		active = make([]int, numChannels)
		for i := range active {
			active[i] = 1
		}
	} else if len(active) != numChannels {
		return dvid.ConfigErrorf("%d active channel flags for %d channels", len(active), numChannels)
	}

	names := make([]string, numChannels)
	for i := range names {
		names[i] = fmt.Sprintf("Prediction %d", i+1)
	}
	op.LabelNames.SetValue(names)
	op.ActiveChannelsOut.SetValue(active)

	// cache blocks hold the whole volume of one time point
	block := []int{1, m.AxisExtent('x'), m.AxisExtent('y'), m.AxisExtent('z'), 1}
	if err := setValue(op.cache.BlockShape, block); err != nil {
		return err
	}
	for _, r := range []*OpReorderAxes{op.smoothedOut, op.argmaxOut, op.cachedOut, op.opOut} {
		if err := setValue(r.AxisOrder, string(m.Axes)); err != nil {
			return err
		}
	}
	return nil
}

func (op *OpMriVolFilter) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	return dvid.ConfigErrorf("output %s of %q is forwarded", out.Name(), op.Name())
}

func (op *OpMriVolFilter) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {}
