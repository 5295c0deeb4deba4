package operators

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
	"github.com/janelia-flyem/voxflow/request"
)

func newTestGraph() *graph.Graph {
	return graph.New(request.NewScheduler(4))
}

func newTestSource(t *testing.T, g *graph.Graph, name string, data *dvid.Array, axes dvid.AxisOrder) *OpArraySource {
	src := NewOpArraySource(g, name)
	if err := src.SetData(data, axes); err != nil {
		t.Fatalf("could not set data of %s: %v\n", name, err)
	}
	return src
}

func getRegion(t *testing.T, out *graph.OutputSlot, start, stop []int) *dvid.Array {
	roi, err := out.Roi(start, stop)
	if err != nil {
		t.Fatalf("bad roi %v-%v for %s: %v\n", start, stop, out.Name(), err)
	}
	data, err := out.Get(context.Background(), roi)
	if err != nil {
		t.Fatalf("could not get %s of %s: %v\n", roi, out.Name(), err)
	}
	return data
}

func getAll(t *testing.T, out *graph.OutputSlot) *dvid.Array {
	m := out.Meta()
	return getRegion(t, out, make([]int, len(m.Shape)), m.Shape)
}

func TestSelectLabelsOverlap(t *testing.T) {
	g := newTestGraph()
	small := newTestSource(t, g, "small", dvid.ArrayFromUint32s([]int{2, 2}, []uint32{0, 1, 0, 0}), "xy")
	big := newTestSource(t, g, "big", dvid.ArrayFromUint32s([]int{2, 2}, []uint32{0, 5, 7, 7}), "xy")

	sel := NewOpSelectLabels(g, "select")
	sel.SmallLabels.Connect(small.Output)
	sel.BigLabels.Connect(big.Output)

	got := getAll(t, sel.Output).Uint32s()
	if diff := cmp.Diff([]uint32{0, 1, 0, 0}, got); diff != "" {
		t.Errorf("select by overlap mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectOverlappingDenseRelabel(t *testing.T) {
	nonzero := []bool{true, false, true, true, false}
	big := []uint32{9, 9, 4, 0, 6}
	relabel := selectOverlapping(nonzero, big)
	if relabel[4] != 1 || relabel[9] != 2 || relabel[6] != 0 || relabel[0] != 0 {
		t.Errorf("expected 4->1, 9->2 and 6->0, got %v\n", relabel)
	}
}

func TestLabelVolumeScanOrder(t *testing.T) {
	g := newTestGraph()
	src := newTestSource(t, g, "mask", dvid.ArrayFromUint8s([]int{4, 4}, []uint8{
		1, 1, 0, 0,
		0, 0, 0, 1,
		1, 0, 0, 1,
		1, 0, 0, 0,
	}), "xy")
	labels := NewOpLabelVolume(g, "labels")
	labels.Input.Connect(src.Output)

	expected := []uint32{
		1, 1, 0, 0,
		0, 0, 0, 2,
		3, 0, 0, 2,
		3, 0, 0, 0,
	}
	if diff := cmp.Diff(expected, getAll(t, labels.Output).Uint32s()); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	part := getRegion(t, labels.Output, []int{2, 0}, []int{4, 4}).Uint32s()
	if diff := cmp.Diff(expected[8:], part); diff != "" {
		t.Errorf("partial labels differ from whole slice labels (-want +got):\n%s", diff)
	}
}

// filterTestVolume returns a txyzc label volume of shape [2,4,4,1,2].  Slice (t=0,c=0)
// holds a one voxel component and a four voxel component, slice (t=0,c=1) a three
// voxel component, and the t=1 slices one component each.
func filterTestVolume() *dvid.Array {
	shape := []int{2, 4, 4, 1, 2}
	a := dvid.NewArray(dvid.T_uint32, shape)
	v := a.Uint32s()
	at := func(t, x, y, c int) int {
		return (((t*4+x)*4+y)*1)*2 + c
	}
	v[at(0, 0, 0, 0)] = 1
	for _, xy := range [][2]int{{2, 2}, {2, 3}, {3, 2}, {3, 3}} {
		v[at(0, xy[0], xy[1], 0)] = 2
	}
	for x := 0; x < 3; x++ {
		v[at(0, x, 0, 1)] = 1
	}
	v[at(1, 1, 1, 0)] = 1
	v[at(1, 3, 0, 1)] = 1
	v[at(1, 3, 1, 1)] = 1
	return a
}

func TestFilterLabelsPerSlice(t *testing.T) {
	g := newTestGraph()
	volume := filterTestVolume()
	src := newTestSource(t, g, "labels", volume, "txyzc")
	filter := NewOpFilterLabels5d(g, "filter")
	filter.Input.Connect(src.Output)
	if err := filter.MinLabelSize.SetValue(2); err != nil {
		t.Fatalf("could not set min size: %v\n", err)
	}

	result := getAll(t, filter.Output)
	v := result.Uint32s()
	if v[0] != 0 {
		t.Errorf("one voxel component in slice (0,0) should be removed, got %d\n", v[0])
	}
	if v[1] != 1 {
		t.Errorf("three voxel component in slice (0,1) should be kept, got %d\n", v[1])
	}

	// every slice must equal an independent filter of that slice alone
	full := dvid.FullRoi("txyzc", volume.Shape())
	for _, slice := range sliceRois(full) {
		sliceData, err := volume.Region(slice.Start(), slice.Stop())
		if err != nil {
			t.Fatalf("bad slice %s: %v\n", slice, err)
		}
		single := newTestGraph()
		ssrc := newTestSource(t, single, "slice", sliceData, "txyzc")
		sfilter := NewOpFilterLabels(single, "filter")
		sfilter.Input.Connect(ssrc.Output)
		sfilter.MinLabelSize.SetValue(2)
		expected := getAll(t, sfilter.Output)

		got, err := result.Region(slice.Start(), slice.Stop())
		if err != nil {
			t.Fatalf("bad result slice %s: %v\n", slice, err)
		}
		if diff := cmp.Diff(expected.Uint32s(), got.Uint32s()); diff != "" {
			t.Errorf("slice %s differs from independent computation (-want +got):\n%s", slice, diff)
		}
	}
}

func TestFilterLabelsMaxAndBinary(t *testing.T) {
	labels := dvid.ArrayFromUint32s([]int{6}, []uint32{1, 1, 1, 2, 3, 3})
	got := filterLabels(labels, filterParams{min: 1, max: 2, binary: true}).Uint32s()
	if diff := cmp.Diff([]uint32{0, 0, 0, 1, 1, 1}, got); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestArgmax(t *testing.T) {
	g := newTestGraph()
	src := newTestSource(t, g, "probs", dvid.ArrayFromFloat32s([]int{3, 3}, []float32{
		0.1, 0.7, 0.2,
		0.5, 0.2, 0.3,
		0.1, 0.1, 0.8,
	}), "xc")
	argmax := NewOpArgmax(g, "argmax")
	argmax.Input.Connect(src.Output)

	m := argmax.Output.Meta()
	if diff := cmp.Diff([]int{3, 1}, m.Shape); diff != "" || m.DType != dvid.T_uint32 {
		t.Fatalf("bad argmax meta %s\n", m)
	}
	if diff := cmp.Diff([]uint32{2, 1, 3}, getAll(t, argmax.Output).Uint32s()); diff != "" {
		t.Errorf("argmax mismatch (-want +got):\n%s", diff)
	}
}

func TestReorderAxes(t *testing.T) {
	g := newTestGraph()
	values := make([]uint8, 12)
	for i := range values {
		values[i] = uint8(i)
	}
	src := newTestSource(t, g, "src", dvid.ArrayFromUint8s([]int{2, 3, 2}, values), "xyc")

	in := NewOpReorderAxes(g, "in")
	in.Input.Connect(src.Output)
	if diff := cmp.Diff([]int{1, 2, 3, 1, 2}, in.Output.Meta().Shape); diff != "" {
		t.Fatalf("bad txyzc shape (-want +got):\n%s", diff)
	}
	out := NewOpReorderAxes(g, "out")
	out.Input.Connect(in.Output)
	out.AxisOrder.SetValue("xyc")
	if diff := cmp.Diff(values, getAll(t, out.Output).Uint8s()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	cyx := NewOpReorderAxes(g, "cyx")
	cyx.Input.Connect(src.Output)
	cyx.AxisOrder.SetValue("cyx")
	got := getAll(t, cyx.Output)
	// element (c=1, y=2, x=0) is input element (x=0, y=2, c=1)
	if v := got.Uint8s()[1*6+2*2+0]; v != values[0*6+2*2+1] {
		t.Errorf("transposed element is %d, expected %d\n", v, values[0*6+2*2+1])
	}

	var dirty []dvid.Roi
	unsubscribe := in.Output.Subscribe(func(roi dvid.Roi) { dirty = append(dirty, roi) })
	defer unsubscribe()
	if err := src.WriteRegion([]int{1, 0, 0}, dvid.NewArray(dvid.T_uint8, []int{1, 3, 2})); err != nil {
		t.Fatalf("write failed: %v\n", err)
	}
	if len(dirty) != 1 {
		t.Fatalf("expected one dirty region, got %v\n", dirty)
	}
	if diff := cmp.Diff([]int{0, 1, 0, 0, 0}, dirty[0].Start()); diff != "" {
		t.Errorf("bad dirty start (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 1, 2}, dirty[0].Stop()); diff != "" {
		t.Errorf("bad dirty stop (-want +got):\n%s", diff)
	}

	bad := NewOpReorderAxes(g, "bad")
	bad.AxisOrder.SetValue("xy")
	if err := bad.Input.Connect(src.Output); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("dropping a channel axis of extent 2 should fail, got %v\n", err)
	}
}

func rampFloats(shape []int) *dvid.Array {
	a := dvid.NewArray(dvid.T_float32, shape)
	v := a.Float32s()
	for i := range v {
		v[i] = float32((i*7)%13) + 0.5
	}
	return a
}

func TestGaussianHaloMatchesFull(t *testing.T) {
	g := newTestGraph()
	src := newTestSource(t, g, "raw", rampFloats([]int{12, 10}), "xy")
	smoother := NewOpGaussianSmoothing(g, "smooth")
	smoother.Input.Connect(src.Output)
	smoother.Sigmas.SetValue(map[string]float64{"x": 1.0, "y": 1.5, "z": 1.0})

	full := getAll(t, smoother.Output)
	for _, r := range [][2][]int{
		{{3, 0}, {7, 4}},
		{{0, 5}, {2, 10}},
		{{5, 3}, {12, 8}},
	} {
		part := getRegion(t, smoother.Output, r[0], r[1])
		expected, err := full.Region(r[0], r[1])
		if err != nil {
			t.Fatalf("bad region: %v\n", err)
		}
		if diff := cmp.Diff(expected.Float32s(), part.Float32s()); diff != "" {
			t.Errorf("region %v-%v differs from full computation (-want +got):\n%s", r[0], r[1], diff)
		}
	}
}

func TestGaussianSingletonZ(t *testing.T) {
	g := newTestGraph()
	flat := rampFloats([]int{6, 6})
	volume, _ := flat.Clone().Reshape([]int{6, 6, 1})
	src2d := newTestSource(t, g, "2d", flat, "xy")
	src3d := newTestSource(t, g, "3d", volume, "xyz")

	s2d := NewOpGaussianSmoothing(g, "s2d")
	s2d.Input.Connect(src2d.Output)
	s3d := NewOpGaussianSmoothing(g, "s3d")
	s3d.Input.Connect(src3d.Output)

	if diff := cmp.Diff(getAll(t, s2d.Output).Float32s(), getAll(t, s3d.Output).Float32s()); diff != "" {
		t.Errorf("singleton z changed the result (-2d +3d):\n%s", diff)
	}

	var dirty []dvid.Roi
	s3d.Output.Subscribe(func(roi dvid.Roi) { dirty = append(dirty, roi) })
	src3d.WriteRegion([]int{2, 2, 0}, dvid.NewArray(dvid.T_float32, []int{1, 1, 1}))
	if len(dirty) != 1 {
		t.Fatalf("expected one dirty region, got %v\n", dirty)
	}
	if diff := cmp.Diff([]int{0, 0, 0}, dirty[0].Start()); diff != "" {
		t.Errorf("bad dirty start (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{5, 5, 1}, dirty[0].Stop()); diff != "" {
		t.Errorf("bad dirty stop (-want +got):\n%s", diff)
	}
}

func TestGaussianSmallSigmaCopies(t *testing.T) {
	g := newTestGraph()
	raw := rampFloats([]int{5, 4})
	src := newTestSource(t, g, "raw", raw, "xy")
	smoother := NewOpGaussianSmoothing(g, "smooth")
	smoother.Input.Connect(src.Output)
	smoother.Sigmas.SetValue(map[string]float64{"x": 0.05, "y": 2, "z": 2})
	if diff := cmp.Diff(raw.Float32s(), getAll(t, smoother.Output).Float32s()); diff != "" {
		t.Errorf("small sigma should copy input (-want +got):\n%s", diff)
	}
}

func TestGaussianZeroSigmaOnFlatZ(t *testing.T) {
	g := newTestGraph()
	impulse := dvid.NewArray(dvid.T_float32, []int{9, 9, 1})
	impulse.Float32s()[4*9+4] = 1
	src := newTestSource(t, g, "impulse", impulse, "xyz")
	smoother := NewOpGaussianSmoothing(g, "smooth")
	smoother.Input.Connect(src.Output)
	smoother.Sigmas.SetValue(map[string]float64{"x": 1, "y": 1, "z": 0})

	v := getAll(t, smoother.Output).Float32s()
	if center := v[4*9+4]; center >= 0.5 {
		t.Errorf("z sigma of a flat volume should not disable x/y smoothing, center is %g\n", center)
	}
	if v[3*9+4] <= 0 || v[4*9+3] <= 0 {
		t.Errorf("impulse was not spread to its x and y neighbors: %g %g\n", v[3*9+4], v[4*9+3])
	}
	var sum float64
	for _, f := range v {
		sum += float64(f)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("smoothing should preserve the impulse mass, got %g\n", sum)
	}
}

func TestCostVolumeNormalizes(t *testing.T) {
	g := newTestGraph()
	raw := rampFloats([]int{1, 10, 9, 1, 3})
	src := newTestSource(t, g, "probs", raw, "txyzc")
	filter := newCostVolume(g, "cost")
	filter.Input.Connect(src.Output)

	full := getAll(t, filter.Output)
	v := full.Float32s()
	for i := 0; i < len(v); i += 3 {
		if sum := float64(v[i] + v[i+1] + v[i+2]); math.Abs(sum-1) > 1e-5 {
			t.Fatalf("channels of voxel %d sum to %f\n", i/3, sum)
		}
	}
	start, stop := []int{0, 2, 1, 0, 1}, []int{1, 6, 7, 1, 2}
	expected, _ := full.Region(start, stop)
	part := getRegion(t, filter.Output, start, stop)
	if diff := cmp.Diff(expected.Float32s(), part.Float32s()); diff != "" {
		t.Errorf("partial cost volume differs (-want +got):\n%s", diff)
	}
}

func TestSmoothingChooser(t *testing.T) {
	g := newTestGraph()
	src := newTestSource(t, g, "probs", rampFloats([]int{4, 4, 2}), "xyc")
	chooser := NewOpSmoothingChooser(g, "chooser")
	chooser.Input.Connect(src.Output)
	if !chooser.Output.Meta().Ready {
		t.Fatalf("gaussian smoothing should be ready\n")
	}
	impl := chooser.Impl()
	if impl == nil {
		t.Fatalf("no implementation selected\n")
	}

	for _, method := range []interface{}{Guided, "opengm"} {
		if err := chooser.Method.SetValue(method); !errors.Is(err, dvid.ErrConfiguration) {
			t.Errorf("method %v should be a configuration error, got %v\n", method, err)
		}
		if chooser.Output.Meta().Ready {
			t.Errorf("output should not be ready with method %v\n", method)
		}
		roi := dvid.FullRoi("xyc", []int{4, 4, 2})
		if _, err := chooser.Output.Get(context.Background(), roi); !errors.Is(err, dvid.ErrConfiguration) {
			t.Errorf("request with method %v should fail with configuration error, got %v\n", method, err)
		}
	}

	if err := chooser.Method.SetValue("gaussian"); err != nil {
		t.Fatalf("could not select gaussian: %v\n", err)
	}
	if chooser.Impl() != impl {
		t.Errorf("gaussian implementation should be reused\n")
	}
	if err := chooser.Configuration.SetValue(map[string]interface{}{"alpha": 1}); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("configuration without sigma should fail, got %v\n", err)
	}
	if err := chooser.Configuration.SetValue(map[string]interface{}{"sigma": -1.0}); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("negative sigma should fail, got %v\n", err)
	}
	if err := chooser.Configuration.SetValue(map[string]float64{"sigma": 0.5}); err != nil {
		t.Fatalf("valid configuration failed: %v\n", err)
	}
	if got := getAll(t, chooser.Output); got.DType() != dvid.T_float32 {
		t.Errorf("smoothed output is %s\n", got)
	}
}

func TestParseSmoothingMethod(t *testing.T) {
	tests := []struct {
		name      string
		method    SmoothingMethod
		supported bool
	}{
		{"gaussian", Gaussian, true},
		{"Guided", Guided, false},
		{"opengm", OpenGM, false},
	}
	for _, tc := range tests {
		m, err := ParseSmoothingMethod(tc.name)
		if err != nil {
			t.Fatalf("could not parse %q: %v\n", tc.name, err)
		}
		if m != tc.method || m.Supported() != tc.supported {
			t.Errorf("%q parsed to %s (supported %t)\n", tc.name, m, m.Supported())
		}
	}
	if _, err := ParseSmoothingMethod("median"); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("unknown method should be a configuration error, got %v\n", err)
	}
}

func TestFanOutFanIn(t *testing.T) {
	g := newTestGraph()
	src := newTestSource(t, g, "labels", dvid.ArrayFromUint32s([]int{2, 3}, []uint32{0, 1, 2, 2, 1, 0}), "xy")
	fanOut := NewOpFanOut(g, "fanout")
	fanOut.Input.Connect(src.Output)
	if err := fanOut.NumChannels.SetValue(3); err != nil {
		t.Fatalf("could not set channels: %v\n", err)
	}
	if n := len(fanOut.Outputs()); n != 3 {
		t.Fatalf("expected 3 outputs, got %d\n", n)
	}
	if diff := cmp.Diff([]uint8{0, 0, 1, 1, 0, 0}, getAll(t, fanOut.Output(2)).Uint8s()); diff != "" {
		t.Errorf("channel 2 mismatch (-want +got):\n%s", diff)
	}

	fanIn := NewOpFanIn(g, "fanin", 3)
	for c := 0; c < 3; c++ {
		if err := fanIn.Inputs[c].Connect(fanOut.Output(c)); err != nil {
			t.Fatalf("could not connect channel %d: %v\n", c, err)
		}
	}
	if diff := cmp.Diff([]uint32{1, 2, 3, 3, 2, 1}, getAll(t, fanIn.Output).Uint32s()); diff != "" {
		t.Errorf("fan in mismatch (-want +got):\n%s", diff)
	}

	other := newTestSource(t, g, "other", dvid.NewArray(dvid.T_uint8, []int{3, 3}), "xy")
	if err := fanIn.Inputs[1].Connect(other.Output); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("mismatched fan in shapes should be a configuration error, got %v\n", err)
	}
}

func TestBlockedCacheFixed(t *testing.T) {
	g := newTestGraph()
	src := newTestSource(t, g, "raw", dvid.ArrayFromUint32s([]int{4, 4}, make([]uint32, 16)), "xy")
	c := NewOpBlockedCache(g, "cache")
	c.Input.Connect(src.Output)
	c.BlockShape.SetValue([]int{2, 2})

	getAll(t, c.Output)
	getAll(t, c.Output)
	if n := c.Store().Computes(); n != 4 {
		t.Errorf("expected 4 block computes, got %d\n", n)
	}

	var dirty []dvid.Roi
	c.Output.Subscribe(func(roi dvid.Roi) { dirty = append(dirty, roi) })
	c.Fixed.SetValue(true)
	src.WriteRegion([]int{0, 0}, dvid.ArrayFromUint32s([]int{1, 1}, []uint32{9}))
	if v := getRegion(t, c.Output, []int{0, 0}, []int{1, 1}).Uint32s()[0]; v != 0 {
		t.Errorf("fixed cache should serve stale 0, got %d\n", v)
	}
	if len(dirty) != 0 {
		t.Errorf("fixed cache should hold dirty notifications, got %v\n", dirty)
	}

	c.Fixed.SetValue(false)
	if len(dirty) != 1 {
		t.Fatalf("unfixing should release one dirty region, got %v\n", dirty)
	}
	if v := getRegion(t, c.Output, []int{0, 0}, []int{1, 1}).Uint32s()[0]; v != 9 {
		t.Errorf("unfixed cache should recompute to 9, got %d\n", v)
	}
	if n := c.Store().Computes(); n != 5 {
		t.Errorf("expected 5 block computes after one recompute, got %d\n", n)
	}
}

func TestThresholdTwoLevels(t *testing.T) {
	g := newTestGraph()
	raw := dvid.NewArray(dvid.T_float32, []int{8, 8})
	v := raw.Float32s()
	set := func(x, y int, p float32) { v[x*8+y] = p }
	set(0, 0, 0.3)
	set(0, 1, 0.9)
	set(1, 0, 0.3)
	set(1, 1, 0.3)
	set(4, 4, 0.3)
	set(4, 5, 0.3)
	set(5, 4, 0.3)
	set(7, 7, 0.9)
	src := newTestSource(t, g, "probs", raw, "xy")

	op := NewOpThresholdTwoLevels(g, "twolevels")
	op.SmootherSigma.SetValue(map[string]float64{"x": 0, "y": 0, "z": 0})
	op.MinSize.SetValue(2)
	if err := op.Input.Connect(src.Output); err != nil {
		t.Fatalf("could not connect: %v\n", err)
	}

	expected := make([]uint32, 64)
	for _, i := range []int{0, 1, 8, 9} {
		expected[i] = 1
	}
	if diff := cmp.Diff(expected, getAll(t, op.Output).Uint32s()); diff != "" {
		t.Errorf("two level threshold mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(expected, getAll(t, op.CachedOutput).Uint32s()); diff != "" {
		t.Errorf("cached two level threshold mismatch (-want +got):\n%s", diff)
	}
}

// mriTestVolume returns xyzc probabilities of shape [6,6,1,3] where channel 0 wins
// everywhere except a 3x3 square won by channel 1 and voxel (5,5) won by channel 2.
func mriTestVolume() *dvid.Array {
	a := dvid.NewArray(dvid.T_float32, []int{6, 6, 1, 3})
	v := a.Float32s()
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			winner := 0
			if x < 3 && y < 3 {
				winner = 1
			} else if x == 5 && y == 5 {
				winner = 2
			}
			for c := 0; c < 3; c++ {
				p := float32(0.1)
				if c == winner {
					p = 0.8
				}
				v[(x*6+y)*3+c] = p
			}
		}
	}
	return a
}

func TestMriVolFilter(t *testing.T) {
	g := newTestGraph()
	src := newTestSource(t, g, "probs", mriTestVolume(), "xyzc")

	op := NewOpMriVolFilter(g, "mri")
	op.Configuration.SetValue(map[string]interface{}{"sigma": 0.0})
	op.Threshold.SetValue(2)
	op.ActiveChannels.SetValue([]int{0, 1, 1})
	if err := op.Input.Connect(src.Output); err != nil {
		t.Fatalf("could not connect MRI filter: %v\n", err)
	}

	if diff := cmp.Diff([]string{"Prediction 1", "Prediction 2", "Prediction 3"}, op.LabelNames.Value()); diff != "" {
		t.Errorf("label names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 1}, op.ActiveChannelsOut.Value()); diff != "" {
		t.Errorf("active channels mismatch (-want +got):\n%s", diff)
	}
	m := op.Output.Meta()
	if diff := cmp.Diff([]int{6, 6, 1, 1}, m.Shape); diff != "" || m.Axes != "xyzc" || m.DType != dvid.T_uint32 {
		t.Fatalf("bad output meta %s\n", m)
	}

	argmax := make([]uint32, 36)
	square := make([]uint32, 36)
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			argmax[x*6+y] = 1
			if x < 3 && y < 3 {
				argmax[x*6+y] = 2
				square[x*6+y] = 2
			}
		}
	}
	argmax[35] = 3
	if diff := cmp.Diff(argmax, getAll(t, op.ArgmaxOutput).Uint32s()); diff != "" {
		t.Errorf("argmax mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(square, getAll(t, op.Output).Uint32s()); diff != "" {
		t.Errorf("filtered output mismatch (-want +got):\n%s", diff)
	}
	smoothed := getAll(t, op.Smoothed)
	if diff := cmp.Diff([]int{6, 6, 1, 3}, smoothed.Shape()); diff != "" {
		t.Errorf("smoothed shape mismatch (-want +got):\n%s", diff)
	}

	// lowering the size threshold keeps the single voxel component
	if err := op.Threshold.SetValue(1); err != nil {
		t.Fatalf("could not lower threshold: %v\n", err)
	}
	square[35] = 3
	if diff := cmp.Diff(square, getAll(t, op.Output).Uint32s()); diff != "" {
		t.Errorf("output after threshold change mismatch (-want +got):\n%s", diff)
	}

	// deactivating label 2 removes the square
	if err := op.ActiveChannels.SetValue([]int{0, 0, 1}); err != nil {
		t.Fatalf("could not change active channels: %v\n", err)
	}
	expected := make([]uint32, 36)
	expected[35] = 3
	if diff := cmp.Diff(expected, getAll(t, op.Output).Uint32s()); diff != "" {
		t.Errorf("output after deactivation mismatch (-want +got):\n%s", diff)
	}

	if err := op.ActiveChannels.SetValue([]int{1, 1}); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("wrong number of active channels should fail, got %v\n", err)
	}
}
