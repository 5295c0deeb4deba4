package operators

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

const (
	// gaussianWindow is the kernel radius of OpGaussianSmoothing in units of sigma.
	gaussianWindow = 2.0

	// minSigma is the smallest sigma that is applied.  Smaller sigmas pass the input
	// through unchanged.
	minSigma = 0.1
)

// gaussianKernel returns normalized weights of a sampled gaussian over [-radius, radius].
func gaussianKernel(sigma float64, radius int) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: sigma}
	weights := make([]float64, 2*radius+1)
	for i := range weights {
		weights[i] = dist.Prob(float64(i - radius))
	}
	floats.Scale(1/floats.Sum(weights), weights)
	return weights
}

// reflectIndex maps i into [0, n) by reflecting at the borders without repeating
// the border element.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	if i < 0 {
		i = -i
	}
	i %= period
	if i >= n {
		i = period - i
	}
	return i
}

// convolveAxis convolves every line of data along one axis with a symmetric kernel.
func convolveAxis(data []float64, shape []int, axis int, kernel []float64) {
	n := shape[axis]
	if n < 2 || len(kernel) < 2 {
		return
	}
	inner := 1
	for _, s := range shape[axis+1:] {
		inner *= s
	}
	outer := 1
	for _, s := range shape[:axis] {
		outer *= s
	}
	radius := len(kernel) / 2
	line := make([]float64, n)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			for k := 0; k < n; k++ {
				line[k] = data[base+k*inner]
			}
			for k := 0; k < n; k++ {
				var sum float64
				for j, w := range kernel {
					sum += w * line[reflectIndex(k+j-radius, n)]
				}
				data[base+k*inner] = sum
			}
		}
	}
}

// smooth applies a separable gaussian along every axis with a nonzero radius.
func smooth(a *dvid.Array, sigmas []float64, radius []int) {
	data, shape := a.Float64s(), a.Shape()
	for i := range radius {
		if radius[i] == 0 || sigmas[i] <= 0 {
			continue
		}
		convolveAxis(data, shape, i, gaussianKernel(sigmas[i], radius[i]))
	}
}

// OpGaussianSmoothing smooths each time point and channel with an anisotropic
// gaussian over the spatial axes.  Sigmas maps the axis keys x, y and z to sigma.
// Axes of extent 1 are not smoothed.
type OpGaussianSmoothing struct {
	graph.Base
	Input  *graph.InputSlot
	Sigmas *graph.InputSlot
	Output *graph.OutputSlot
}

func NewOpGaussianSmoothing(g *graph.Graph, name string) *OpGaussianSmoothing {
	op := &OpGaussianSmoothing{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Sigmas = op.AddValueInput("Sigmas", map[string]float64{"x": 1.0, "y": 1.0, "z": 1.0})
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpGaussianSmoothing) SetupOutputs() error {
	if _, err := sigmasValue(op.Sigmas); err != nil {
		return err
	}
	m := op.Input.Meta()
	m.DType = dvid.T_float32
	op.Output.SetMeta(m)
	return nil
}

// kernel returns per-axis sigmas and radii, and false if the sigma of any smoothed
// axis is too small to be applied.  Only spatial axes of extent > 1 are smoothed, so
// the sigma of an absent or singleton axis is ignored.
func (op *OpGaussianSmoothing) kernel(m graph.Meta) (sigmas []float64, radius []int, apply bool, err error) {
	byKey, err := sigmasValue(op.Sigmas)
	if err != nil {
		return nil, nil, false, err
	}
	radii := make(map[byte]int, 3)
	for _, key := range []byte("xyz") {
		s, found := byKey[key]
		if !found {
			s = 1.0
		}
		byKey[key] = s
		if s >= minSigma {
			radii[key] = haloRadius(s, gaussianWindow)
		}
	}
	for i, key := range m.Axes.Keys() {
		if key != 'x' && key != 'y' && key != 'z' {
			continue
		}
		if m.Shape[i] > 1 && byKey[key] < minSigma {
			return nil, nil, false, nil
		}
	}
	radius = dvid.SpatialRadius(m.Axes, m.Shape, radii)
	sigmas = make([]float64, len(radius))
	for i, key := range m.Axes.Keys() {
		if radius[i] != 0 {
			sigmas[i] = byKey[key]
		}
	}
	return sigmas, radius, true, nil
}

func (op *OpGaussianSmoothing) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	m := op.Input.Meta()
	sigmas, radius, apply, err := op.kernel(m)
	if err != nil {
		return err
	}
	if !apply {
		data, err := op.Input.Get(ctx, roi)
		if err != nil {
			return err
		}
		return setResult(result, data)
	}
	enlarged, cropOffset, err := dvid.ExpandRoi(roi, radius, m.Shape)
	if err != nil {
		return err
	}
	data, err := op.Input.Get(ctx, enlarged)
	if err != nil {
		return err
	}
	work := data.Astype(dvid.T_float64)
	smooth(work, sigmas, radius)

	stop := make([]int, len(cropOffset))
	size := roi.Size()
	for i := range stop {
		stop[i] = cropOffset[i] + size[i]
	}
	cropped, err := work.Region(cropOffset, stop)
	if err != nil {
		return err
	}
	return setResult(result, cropped)
}

func (op *OpGaussianSmoothing) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	if in != op.Input {
		op.Output.SetDirtyAll()
		return
	}
	m := op.Input.Meta()
	_, radius, apply, err := op.kernel(m)
	if err != nil || !apply {
		op.Output.SetDirty(roi)
		return
	}
	enlarged, _, err := dvid.ExpandRoi(roi, radius, m.Shape)
	if err != nil {
		dvid.Errorf("Cannot expand dirty region %s for %q: %v\n", roi, op.Name(), err)
		op.Output.SetDirtyAll()
		return
	}
	op.Output.SetDirty(enlarged)
}
