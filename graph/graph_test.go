package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/request"
)

type testSource struct {
	Base
	Output *OutputSlot
	data   *dvid.Array
}

func newTestSource(g *Graph) *testSource {
	op := &testSource{}
	op.Init(g, op, "source")
	op.Output = op.AddOutput("Output")
	return op
}

func (op *testSource) setData(a *dvid.Array) {
	op.data = a
	op.setup()
	op.Output.SetDirtyAll()
}

func (op *testSource) SetupOutputs() error {
	if op.data == nil {
		op.Output.SetUnready()
		return nil
	}
	op.Output.SetMeta(Meta{Shape: op.data.Shape(), DType: op.data.DType(), Axes: "x"})
	return nil
}

func (op *testSource) Execute(ctx context.Context, out *OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	return dvid.CopyRegion(result, make([]int, roi.NumDims()), op.data, roi.Start(), roi.Size())
}

func (op *testSource) PropagateDirty(in *InputSlot, roi dvid.Roi) {}

// testBoxSum sums a neighborhood of radius Radius and adds Offset.
type testBoxSum struct {
	Base
	Input  *InputSlot
	Radius *InputSlot
	Offset *InputSlot
	Output *OutputSlot
}

func newTestBoxSum(g *Graph, name string) *testBoxSum {
	op := &testBoxSum{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Radius = op.AddValueInput("Radius", 0)
	op.Offset = op.AddValueInput("Offset", 0.0)
	op.Output = op.AddOutput("Output")
	return op
}

func (op *testBoxSum) SetupOutputs() error {
	m := op.Input.Meta()
	m.DType = dvid.T_float64
	op.Output.SetMeta(m)
	return nil
}

func (op *testBoxSum) Execute(ctx context.Context, out *OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	r, _ := op.Radius.Int()
	offset, _ := op.Offset.Float()
	enlarged, crop, err := dvid.ExpandRoi(roi, []int{r}, nil)
	if err != nil {
		return err
	}
	in, err := op.Input.Get(ctx, enlarged)
	if err != nil {
		return err
	}
	n := in.NumElements()
	for i := 0; i < roi.NumVoxels(); i++ {
		center := crop[0] + i
		sum := offset
		for j := center - r; j <= center+r; j++ {
			if j >= 0 && j < n {
				sum += in.At(j)
			}
		}
		result.Set(i, sum)
	}
	return nil
}

func (op *testBoxSum) PropagateDirty(in *InputSlot, roi dvid.Roi) {
	if in != op.Input {
		op.Output.SetDirtyAll()
		return
	}
	r, _ := op.Radius.Int()
	enlarged, _, err := dvid.ExpandRoi(roi, []int{r}, nil)
	if err != nil {
		return
	}
	op.Output.SetDirty(enlarged)
}

// testComposite wraps a box sum and forwards its output.
type testComposite struct {
	Base
	Input  *InputSlot
	Radius *InputSlot
	Output *OutputSlot
	inner  *testBoxSum
}

func newTestComposite(g *Graph) *testComposite {
	op := &testComposite{}
	op.Init(g, op, "composite")
	op.Input = op.AddInput("Input")
	op.Radius = op.AddValueInput("Radius", 1)
	op.Output = op.AddOutput("Output")
	op.inner = newTestBoxSum(g, "inner")
	op.inner.Input.ConnectInput(op.Input)
	op.inner.Radius.ConnectInput(op.Radius)
	op.Output.Forward(op.inner.Output)
	return op
}

func (op *testComposite) SetupOutputs() error { return nil }

func (op *testComposite) Execute(ctx context.Context, out *OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	return errors.New("composite outputs are forwarded")
}

func (op *testComposite) PropagateDirty(in *InputSlot, roi dvid.Roi) {}

func ramp(n int) *dvid.Array {
	a := dvid.NewArray(dvid.T_float64, []int{n})
	for i := 0; i < n; i++ {
		a.Set(i, float64(i))
	}
	return a
}

func collectDirty(out *OutputSlot) *[]dvid.Roi {
	var rois []dvid.Roi
	out.Subscribe(func(roi dvid.Roi) {
		rois = append(rois, roi)
	})
	return &rois
}

func TestSetupPropagation(t *testing.T) {
	g := New(request.NewScheduler(2))
	src := newTestSource(g)
	box := newTestBoxSum(g, "box")
	if err := box.Input.Connect(src.Output); err != nil {
		t.Fatalf("Connect failed: %v\n", err)
	}
	if box.Output.Meta().Ready {
		t.Errorf("Output should not be ready before the source has data\n")
	}
	if _, err := box.Output.Get(context.Background(), dvid.Roi{}); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("Expected configuration error pulling unready output, got %v\n", err)
	}

	src.setData(ramp(100))
	m := box.Output.Meta()
	if !m.Ready || m.Shape[0] != 100 || m.DType != dvid.T_float64 {
		t.Errorf("Bad output meta after setup: %s\n", m)
	}

	box.Input.Disconnect()
	if box.Output.Meta().Ready {
		t.Errorf("Output should not be ready after disconnect\n")
	}
}

func TestHaloDirtyPropagation(t *testing.T) {
	g := New(request.NewScheduler(2))
	src := newTestSource(g)
	src.setData(ramp(100))
	box := newTestBoxSum(g, "box")
	box.Radius.SetValue(3)
	box.Input.Connect(src.Output)
	dirty := collectDirty(box.Output)

	roi, _ := dvid.NewRoi([]int{10}, []int{20}, "x", []int{100})
	src.Output.SetDirty(roi)
	if len(*dirty) != 1 {
		t.Fatalf("Expected one dirty notification, got %d\n", len(*dirty))
	}
	got := (*dirty)[0]
	if got.StartAt(0) != 7 || got.StopAt(0) != 23 {
		t.Errorf("Bad dirty roi.  Expected [7,23) got %s\n", got)
	}

	edge, _ := dvid.NewRoi([]int{0}, []int{5}, "x", []int{100})
	src.Output.SetDirty(edge)
	if got := (*dirty)[1]; got.StartAt(0) != 0 || got.StopAt(0) != 8 {
		t.Errorf("Bad clipped dirty roi.  Expected [0,8) got %s\n", got)
	}

	box.Offset.SetValue(1.0)
	if got := (*dirty)[len(*dirty)-1]; !got.IsFull() {
		t.Errorf("Parameter change should dirty the whole output, got %s\n", got)
	}
}

func TestExecuteWithHalo(t *testing.T) {
	g := New(request.NewScheduler(2))
	src := newTestSource(g)
	src.setData(ramp(100))
	box := newTestBoxSum(g, "box")
	box.Radius.SetValue(3)
	box.Input.Connect(src.Output)

	full, err := box.Output.Get(context.Background(), box.Output.Meta().FullRoi())
	if err != nil {
		t.Fatalf("Get failed: %v\n", err)
	}
	for _, bounds := range [][2]int{{10, 20}, {0, 5}, {97, 100}} {
		roi, _ := box.Output.Roi([]int{bounds[0]}, []int{bounds[1]})
		part, err := box.Output.Get(context.Background(), roi)
		if err != nil {
			t.Fatalf("Get %s failed: %v\n", roi, err)
		}
		for i := bounds[0]; i < bounds[1]; i++ {
			if part.At(i-bounds[0]) != full.At(i) {
				t.Errorf("Bad value at %d in %s: %f vs %f\n", i, roi, part.At(i-bounds[0]), full.At(i))
			}
		}
	}

	other, _ := dvid.NewRoi([]int{0}, []int{5}, "x", []int{200})
	if _, err := box.Output.Get(context.Background(), other); !errors.Is(err, dvid.ErrOutOfBoundsRoi) {
		t.Errorf("Expected out of bounds error, got %v\n", err)
	}
}

func TestCycleRejected(t *testing.T) {
	g := New(request.NewScheduler(2))
	a := newTestBoxSum(g, "a")
	b := newTestBoxSum(g, "b")
	if err := b.Input.Connect(a.Output); err != nil {
		t.Fatalf("Connect failed: %v\n", err)
	}
	if err := a.Input.Connect(b.Output); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("Expected cycle to be rejected, got %v\n", err)
	}
	if err := a.Input.Connect(a.Output); !errors.Is(err, dvid.ErrConfiguration) {
		t.Errorf("Expected self loop to be rejected, got %v\n", err)
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder failed: %v\n", err)
	}
	if len(order) != 2 || order[0].Name() != "a" {
		t.Errorf("Bad topological order: %v\n", order)
	}
}

func TestCompositeForwarding(t *testing.T) {
	g := New(request.NewScheduler(2))
	src := newTestSource(g)
	comp := newTestComposite(g)
	consumer := newTestBoxSum(g, "consumer")
	consumer.Input.Connect(comp.Output)
	comp.Input.Connect(src.Output)
	src.setData(ramp(10))

	if !consumer.Output.Meta().Ready {
		t.Fatalf("Consumer of forwarded output not set up\n")
	}
	roi, _ := comp.Output.Roi([]int{0}, []int{3})
	out, err := consumer.Output.Get(context.Background(), roi)
	if err != nil {
		t.Fatalf("Get failed: %v\n", err)
	}
	// radius 1 sums of 0..9 at 0,1,2
	expected := []float64{1, 3, 6}
	for i, v := range expected {
		if out.At(i) != v {
			t.Errorf("Bad value %d.  Expected %f got %f\n", i, v, out.At(i))
		}
	}

	dirty := collectDirty(consumer.Output)
	comp.Radius.SetValue(2)
	if len(*dirty) == 0 || !(*dirty)[0].IsFull() {
		t.Errorf("Composite parameter change should dirty downstream entirely: %v\n", *dirty)
	}
	point, _ := dvid.NewRoi([]int{5}, []int{6}, "x", []int{10})
	*dirty = nil
	src.Output.SetDirty(point)
	if len(*dirty) != 1 || (*dirty)[0].StartAt(0) != 3 || (*dirty)[0].StopAt(0) != 8 {
		t.Errorf("Bad dirty region through composite: %v\n", *dirty)
	}
}
