package operators

import (
	"context"
	"reflect"
	"sync"

	"github.com/janelia-flyem/voxflow/cache"
	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

// OpBlockedCache caches its input in blocks of BlockShape.  A nil BlockShape or an
// extent of 0 caches the whole axis in one block.  While Fixed is true, dirty
// blocks keep serving their last content and dirty notifications are held back until
// the cache is unfixed.
type OpBlockedCache struct {
	graph.Base
	Input      *graph.InputSlot
	BlockShape *graph.InputSlot
	Fixed      *graph.InputSlot
	Output     *graph.OutputSlot

	store *cache.Store

	mu         sync.Mutex
	blockShape []int
	held       dvid.Roi
}

func NewOpBlockedCache(g *graph.Graph, name string) *OpBlockedCache {
	op := &OpBlockedCache{}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.BlockShape = op.AddValueInput("BlockShape", nil)
	op.Fixed = op.AddValueInput("Fixed", false)
	op.Output = op.AddOutput("Output")
	op.store = cache.NewStore(name, func(ctx context.Context, roi dvid.Roi) (*dvid.Array, error) {
		return op.Input.Get(ctx, roi)
	}, CacheConfig())
	return op
}

// Store returns the block store, e.g., for persistence.
func (op *OpBlockedCache) Store() *cache.Store {
	return op.store
}

func (op *OpBlockedCache) SetupOutputs() error {
	m := op.Input.Meta()
	blockShape, err := op.BlockShape.Ints()
	if err != nil {
		return err
	}
	if blockShape == nil {
		blockShape = make([]int, len(m.Shape))
	}
	if len(blockShape) != len(m.Shape) {
		return dvid.ConfigErrorf("block shape %v of %q does not match %d-d input", blockShape, op.Name(), len(m.Shape))
	}
	fixed, err := op.Fixed.Bool()
	if err != nil {
		return err
	}

	op.mu.Lock()
	if op.blockShape != nil && !reflect.DeepEqual(op.blockShape, blockShape) {
		dvid.Infof("Block shape of %q changed from %v to %v, discarding cached blocks.\n",
			op.Name(), op.blockShape, blockShape)
		op.store.Clear()
	}
	op.blockShape = append([]int(nil), blockShape...)
	op.mu.Unlock()

	if err := op.store.Configure(blockShape, m.Shape, m.Axes, m.DType); err != nil {
		return err
	}
	op.store.MarkFixed(fixed)
	op.Output.SetMeta(m)
	return nil
}

func (op *OpBlockedCache) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	return op.store.RequestInto(ctx, roi, result)
}

func (op *OpBlockedCache) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {
	switch in {
	case op.Input:
		op.store.SetDirty(roi)
		if op.store.IsFixed() {
			op.mu.Lock()
			op.held = op.held.Union(roi)
			op.mu.Unlock()
			return
		}
		op.Output.SetDirty(roi)
	case op.Fixed:
		if op.store.IsFixed() {
			return
		}
		op.mu.Lock()
		held := op.held
		op.held = dvid.Roi{}
		op.mu.Unlock()
		if held.NumDims() != 0 {
			op.Output.SetDirty(held)
		}
	}
}
