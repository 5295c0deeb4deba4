package operators

import (
	"context"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

const (
	// costVolumeWindow is the halo of the cost volume filter in units of sigma.
	costVolumeWindow = 3.0

	// costVolumeBlock is the spatial extent of cached cost volume blocks.
	costVolumeBlock = 50
)

// costVolume smooths each channel of a "txyzc" volume of class probabilities and
// normalizes the channels of every voxel to sum to one.
type costVolume struct {
	graph.Base
	Input  *graph.InputSlot
	Sigma  *graph.InputSlot
	Output *graph.OutputSlot
}

func newCostVolume(g *graph.Graph, name string) *costVolume {
	op := &costVolume{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Sigma = op.AddValueInput("Sigma", 1.0)
	op.Output = op.AddOutput("Output")
	return op
}

func (op *costVolume) SetupOutputs() error {
	m := op.Input.Meta()
	if m.Axes != "txyzc" {
		return dvid.ConfigErrorf("cost volume needs txyzc input, got %q", m.Axes)
	}
	m.DType = dvid.T_float32
	op.Output.SetMeta(m)
	return nil
}

func (op *costVolume) radius(m graph.Meta) (float64, []int, error) {
	sigma, err := op.Sigma.Float()
	if err != nil {
		return 0, nil, err
	}
	r := haloRadius(sigma, costVolumeWindow)
	return sigma, dvid.SpatialRadius(m.Axes, m.Shape, map[byte]int{'x': r, 'y': r, 'z': r}), nil
}

func (op *costVolume) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	m := op.Input.Meta()
	sigma, radius, err := op.radius(m)
	if err != nil {
		return err
	}
	// every channel is needed for normalization
	c := len(m.Shape) - 1
	allChannels, err := roi.SetAxis(c, 0, m.Shape[c])
	if err != nil {
		return err
	}
	enlarged, _, err := dvid.ExpandRoi(allChannels, radius, m.Shape)
	if err != nil {
		return err
	}
	data, err := op.Input.Get(ctx, enlarged)
	if err != nil {
		return err
	}
	work := data.Astype(dvid.T_float64)
	sigmas := make([]float64, len(radius))
	for i := range sigmas {
		sigmas[i] = sigma
	}
	smooth(work, sigmas, radius)
	normalizeChannels(work)

	start, stop := make([]int, len(radius)), make([]int, len(radius))
	for i := range start {
		start[i] = roi.StartAt(i) - enlarged.StartAt(i)
		stop[i] = start[i] + roi.StopAt(i) - roi.StartAt(i)
	}
	cropped, err := work.Region(start, stop)
	if err != nil {
		return err
	}
	return setResult(result, cropped)
}

// normalizeChannels divides the values along the last axis by their sum.  Voxels
// whose channels sum to zero are left at zero.
func normalizeChannels(a *dvid.Array) {
	data, shape := a.Float64s(), a.Shape()
	nc := shape[len(shape)-1]
	for base := 0; base < len(data); base += nc {
		var sum float64
		for _, v := range data[base : base+nc] {
			sum += v
		}
		if sum == 0 {
			continue
		}
		for k := base; k < base+nc; k++ {
			data[k] /= sum
		}
	}
}

func (op *costVolume) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	if in != op.Input {
		op.Output.SetDirtyAll()
		return
	}
	m := op.Input.Meta()
	_, radius, err := op.radius(m)
	if err != nil {
		op.Output.SetDirtyAll()
		return
	}
	c := len(m.Shape) - 1
	allChannels, err := roi.SetAxis(c, 0, m.Shape[c])
	if err == nil {
		roi, _, err = dvid.ExpandRoi(allChannels, radius, m.Shape)
	}
	if err != nil {
		dvid.Errorf("Cannot expand dirty region %s for %q: %v\n", roi, op.Name(), err)
		op.Output.SetDirtyAll()
		return
	}
	op.Output.SetDirty(roi)
}

// OpCostVolumeFilter smooths class probability maps channel by channel with a
// gaussian of the given Sigma and renormalizes them so the channels of each voxel sum
// to one.  Results are cached in blocks spanning all time points and channels.
type OpCostVolumeFilter struct {
	graph.Base
	Input  *graph.InputSlot
	Sigma  *graph.InputSlot
	Output *graph.OutputSlot

	opIn   *OpReorderAxes
	filter *costVolume
	cache  *OpBlockedCache
	opOut  *OpReorderAxes
}

func NewOpCostVolumeFilter(g *graph.Graph, name string) *OpCostVolumeFilter {
	op := &OpCostVolumeFilter{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Sigma = op.AddValueInput("Sigma", 1.0)
	op.Output = op.AddOutput("Output")

	op.opIn = NewOpReorderAxes(g, name+".in")
	op.opIn.Input.ConnectInput(op.Input)
	op.filter = newCostVolume(g, name+".filter")
	op.filter.Input.Connect(op.opIn.Output)
	op.filter.Sigma.ConnectInput(op.Sigma)
	op.cache = NewOpBlockedCache(g, name+".cache")
	op.cache.Input.Connect(op.filter.Output)
	op.opOut = NewOpReorderAxes(g, name+".out")
	op.opOut.Input.Connect(op.cache.Output)
	op.Output.Forward(op.opOut.Output)
	return op
}

func (op *OpCostVolumeFilter) SetupOutputs() error {
	m := op.Input.Meta()
	if !m.Axes.Has('c') {
		return dvid.ConfigErrorf("cost volume filter input %q has no channel axis", m.Axes)
	}
	block := []int{m.AxisExtent('t'), costVolumeBlock, costVolumeBlock, costVolumeBlock, m.AxisExtent('c')}
	if err := setValue(op.cache.BlockShape, block); err != nil {
		return err
	}
	return setValue(op.opOut.AxisOrder, string(m.Axes))
}

func (op *OpCostVolumeFilter) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	return dvid.ConfigErrorf("output %s of %q is forwarded", out.Name(), op.Name())
}

func (op *OpCostVolumeFilter) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {}

// Cache returns the cache of filtered blocks.
func (op *OpCostVolumeFilter) Cache() *OpBlockedCache {
	return op.cache
}
