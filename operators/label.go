package operators

import (
	"context"
	"sort"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
	"github.com/janelia-flyem/voxflow/request"
)

// labelComponents returns the connected components of the nonzero voxels of data.
// Face neighbors of equal value are connected.  Components are numbered from 1 in
// the order of their first voxel.
func labelComponents(data *dvid.Array) *dvid.Array {
	shape := data.Shape()
	strides := data.Strides()
	n := data.NumElements()

	parent := make([]int32, n)
	find := func(i int32) int32 {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int32) {
		ra, rb := find(a), find(b)
		if ra < rb {
			parent[rb] = ra
		} else if rb < ra {
			parent[ra] = rb
		}
	}

	dvid.ForEachCoord(shape, func(coord []int, flat int) {
		parent[flat] = int32(flat)
		v := data.At(flat)
		if v == 0 {
			return
		}
		for d, x := range coord {
			if x == 0 {
				continue
			}
			neighbor := flat - strides[d]
			if data.At(neighbor) == v {
				union(int32(flat), int32(neighbor))
			}
		}
	})

	out := dvid.NewArray(dvid.T_uint32, shape)
	labels := out.Uint32s()
	roots := make(map[int32]uint32)
	for i := 0; i < n; i++ {
		if data.At(i) == 0 {
			continue
		}
		root := find(int32(i))
		label, found := roots[root]
		if !found {
			label = uint32(len(roots) + 1)
			roots[root] = label
		}
		labels[i] = label
	}
	return out
}

// OpLabelVolume labels connected components of each time point and channel
// separately.  Background voxels are 0.
type OpLabelVolume struct {
	graph.Base
	Input  *graph.InputSlot
	Output *graph.OutputSlot
}

func NewOpLabelVolume(g *graph.Graph, name string) *OpLabelVolume {
	op := &OpLabelVolume{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpLabelVolume) SetupOutputs() error {
	m := op.Input.Meta()
	m.DType = dvid.T_uint32
	op.Output.SetMeta(m)
	return nil
}

func (op *OpLabelVolume) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	for _, slice := range sliceRois(roi) {
		data, err := op.Input.Get(ctx, slice)
		if err != nil {
			return err
		}
		if err := copyPart(result, roi, labelComponents(data), slice); err != nil {
			return err
		}
	}
	return nil
}

// Labels depend on the whole slice, so any change dirties whole slices.
func (op *OpLabelVolume) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	op.Output.SetDirty(wholeSlices(roi))
}

// filterParams are the size limits of label filtering.
type filterParams struct {
	min, max int
	binary   bool
}

// filterLabels zeroes components smaller than min or, if max is positive, larger
// than max voxels.  Kept components become 1 in binary mode.
func filterLabels(data *dvid.Array, p filterParams) *dvid.Array {
	labels := data
	if data.DType() != dvid.T_uint32 {
		labels = data.Astype(dvid.T_uint32)
	}
	sizes := make(map[uint32]int)
	for _, l := range labels.Uint32s() {
		if l != 0 {
			sizes[l]++
		}
	}
	out := dvid.NewArray(dvid.T_uint32, labels.Shape())
	filtered := out.Uint32s()
	for i, l := range labels.Uint32s() {
		if l == 0 {
			continue
		}
		size := sizes[l]
		if size < p.min || (p.max > 0 && size > p.max) {
			continue
		}
		if p.binary {
			filtered[i] = 1
		} else {
			filtered[i] = l
		}
	}
	return out
}

// OpFilterLabels removes components outside [MinLabelSize, MaxLabelSize] from a label
// image, counting sizes within each time point and channel.  A MaxLabelSize of 0
// means no upper limit.  With BinaryOut, kept components become 1.
type OpFilterLabels struct {
	graph.Base
	Input        *graph.InputSlot
	MinLabelSize *graph.InputSlot
	MaxLabelSize *graph.InputSlot
	BinaryOut    *graph.InputSlot
	Output       *graph.OutputSlot
}

func NewOpFilterLabels(g *graph.Graph, name string) *OpFilterLabels {
	op := &OpFilterLabels{}
	op.init(g, op, name)
	return op
}

func (op *OpFilterLabels) init(g *graph.Graph, self graph.Operator, name string) {
	op.Init(g, self, name)
	op.Input = op.AddInput("Input")
	op.MinLabelSize = op.AddValueInput("MinLabelSize", 0)
	op.MaxLabelSize = op.AddValueInput("MaxLabelSize", 0)
	op.BinaryOut = op.AddValueInput("BinaryOut", false)
	op.Output = op.AddOutput("Output")
}

func (op *OpFilterLabels) params() (p filterParams, err error) {
	if p.min, err = op.MinLabelSize.Int(); err != nil {
		return
	}
	if p.max, err = op.MaxLabelSize.Int(); err != nil {
		return
	}
	p.binary, err = op.BinaryOut.Bool()
	return
}

func (op *OpFilterLabels) SetupOutputs() error {
	if _, err := op.params(); err != nil {
		return err
	}
	m := op.Input.Meta()
	m.DType = dvid.T_uint32
	op.Output.SetMeta(m)
	return nil
}

func (op *OpFilterLabels) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	p, err := op.params()
	if err != nil {
		return err
	}
	for _, slice := range sliceRois(roi) {
		data, err := op.Input.Get(ctx, slice)
		if err != nil {
			return err
		}
		if err := copyPart(result, roi, filterLabels(data, p), slice); err != nil {
			return err
		}
	}
	return nil
}

func (op *OpFilterLabels) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	if in != op.Input {
		op.Output.SetDirtyAll()
		return
	}
	op.Output.SetDirty(wholeSlices(roi))
}

// OpFilterLabels5d filters labels like OpFilterLabels but runs one request per time
// point and channel.  Each request computes a whole slice and writes its part of the
// result, which no other request touches.
type OpFilterLabels5d struct {
	OpFilterLabels
}

func NewOpFilterLabels5d(g *graph.Graph, name string) *OpFilterLabels5d {
	op := &OpFilterLabels5d{}
	op.init(g, op, name)
	return op
}

func (op *OpFilterLabels5d) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	p, err := op.params()
	if err != nil {
		return err
	}
	pool := request.NewPool(op.Scheduler())
	defer pool.Clean()
	for _, slice := range sliceRois(roi) {
		slice := slice
		pool.Submit(ctx, func(ctx context.Context) (*dvid.Array, error) {
			data, err := op.Input.Get(ctx, slice)
			if err != nil {
				return nil, err
			}
			return nil, copyPart(result, roi, filterLabels(data, p), slice)
		})
	}
	return pool.Wait(ctx)
}

// OpSelectLabels keeps the components of BigLabels that overlap a nonzero voxel of
// SmallLabels and renumbers them 1..k in increasing order of their big label.
type OpSelectLabels struct {
	graph.Base
	SmallLabels *graph.InputSlot
	BigLabels   *graph.InputSlot
	Output      *graph.OutputSlot
}

func NewOpSelectLabels(g *graph.Graph, name string) *OpSelectLabels {
	op := &OpSelectLabels{}
	op.Init(g, op, name)
	op.SmallLabels = op.AddInput("SmallLabels")
	op.BigLabels = op.AddInput("BigLabels")
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpSelectLabels) SetupOutputs() error {
	if err := sameShape(op.SmallLabels, op.BigLabels); err != nil {
		return err
	}
	m := op.BigLabels.Meta()
	m.DType = dvid.T_uint32
	op.Output.SetMeta(m)
	return nil
}

func (op *OpSelectLabels) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	nonzero, err := op.smallMask(ctx, roi)
	if err != nil {
		return err
	}
	big, err := op.BigLabels.Get(ctx, roi)
	if err != nil {
		return err
	}
	if big.DType() != dvid.T_uint32 {
		big = big.Astype(dvid.T_uint32)
	}
	bigLabels := big.Uint32s()

	relabel := selectOverlapping(nonzero, bigLabels)
	labels := result.Uint32s()
	for i, l := range bigLabels {
		labels[i] = relabel[l]
	}
	return nil
}

// smallMask returns which voxels of SmallLabels are nonzero.  The label buffer is
// dropped on return.
func (op *OpSelectLabels) smallMask(ctx context.Context, roi dvid.Roi) ([]bool, error) {
	small, err := op.SmallLabels.Get(ctx, roi)
	if err != nil {
		return nil, err
	}
	nonzero := make([]bool, small.NumElements())
	for i := range nonzero {
		nonzero[i] = small.At(i) != 0
	}
	return nonzero, nil
}

// selectOverlapping returns a mapping from big labels to new labels.  Labels appearing
// in the product of the mask and the big labels map to 1..k in sorted order and all
// others to 0.
func selectOverlapping(nonzero []bool, big []uint32) []uint32 {
	var maxLabel uint32
	passedSet := make(map[uint32]struct{})
	for i, l := range big {
		if l > maxLabel {
			maxLabel = l
		}
		if nonzero[i] && l != 0 {
			passedSet[l] = struct{}{}
		}
	}
	passed := make([]uint32, 0, len(passedSet))
	for l := range passedSet {
		passed = append(passed, l)
	}
	sort.Slice(passed, func(i, j int) bool { return passed[i] < passed[j] })

	relabel := make([]uint32, maxLabel+1)
	for i, l := range passed {
		relabel[l] = uint32(i + 1)
	}
	return relabel
}

func (op *OpSelectLabels) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	op.Output.SetDirtyAll()
}
