package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coocood/freecache"
	"golang.org/x/sync/singleflight"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/request"
)

// BlockState is the validity of a block's content.
type BlockState uint8

const (
	// Dirty blocks must be computed before their content is used.
	Dirty BlockState = iota

	// Clean blocks hold current content.
	Clean

	// Fixed blocks were invalidated while the store was fixed and hold stale content
	// that is served until the store is unfixed.
	Fixed
)

func (s BlockState) String() string {
	switch s {
	case Dirty:
		return "dirty"
	case Clean:
		return "clean"
	case Fixed:
		return "fixed"
	default:
		return fmt.Sprintf("block state %d", uint8(s))
	}
}

// ComputeFunc computes the full content of a block region.
type ComputeFunc func(ctx context.Context, roi dvid.Roi) (*dvid.Array, error)

// Config sets memory limits of a Store.
type Config struct {
	// BudgetBytes bounds resident uncompressed block data.  0 means unbounded.
	BudgetBytes int64

	// CompressedBytes is the size of the compressed tier for evicted blocks.
	// 0 disables the tier.
	CompressedBytes int

	// Compression used for the compressed tier.
	Compression dvid.Compression
}

type block struct {
	idx   dvid.BlockIndex
	key   string
	roi   dvid.Roi
	data  *dvid.Array
	state BlockState

	gen       uint64 // bumped by every invalidation
	computing bool
	readers   int
	elem      *list.Element
}

// Store is a blocked cache of one array.
type Store struct {
	name    string
	compute ComputeFunc
	cfg     Config

	mu        sync.Mutex
	grid      *dvid.BlockGrid
	dtype     dvid.DataType
	blocks    map[string]*block
	lru       *list.List // front is most recently used; only blocks holding data
	resident  int64
	fixed     bool
	processed map[string]dvid.BlockIndex

	flight singleflight.Group
	tier   *freecache.Cache

	computes  atomic.Int64
	hits      atomic.Int64
	evictions atomic.Int64
}

var errRetry = errors.New("block computation finished before join")

// NewStore returns an unconfigured store that computes blocks with fn.
func NewStore(name string, fn ComputeFunc, cfg Config) *Store {
	s := &Store{
		name:      name,
		compute:   fn,
		cfg:       cfg,
		blocks:    make(map[string]*block),
		lru:       list.New(),
		processed: make(map[string]dvid.BlockIndex),
	}
	if cfg.CompressedBytes > 0 {
		s.tier = freecache.NewCache(cfg.CompressedBytes)
		dvid.Infof("Created compressed tier of %d bytes for cache %q.\n", cfg.CompressedBytes, name)
	}
	return s
}

// Name returns the name used in logs and metrics.
func (s *Store) Name() string {
	return s.name
}

// Configure sets the shape of the cached array and of its blocks.  Changing the block
// shape while blocks exist is a configuration error.  Changing the array shape, axes
// or data type discards every block.
func (s *Store) Configure(blockShape []int, shape []int, axes dvid.AxisOrder, dtype dvid.DataType) error {
	grid, err := dvid.NewBlockGrid(blockShape, shape, axes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grid != nil {
		sameGrid := equalInts(s.grid.BlockShape, grid.BlockShape)
		sameArray := equalInts(s.grid.Shape, grid.Shape) && s.grid.Axes == axes && s.dtype == dtype
		if sameGrid && sameArray {
			return nil
		}
		if !sameGrid && len(s.blocks) != 0 {
			return dvid.ConfigErrorf("cache %q already holds blocks of shape %v, cannot reconfigure to %v",
				s.name, s.grid.BlockShape, grid.BlockShape)
		}
		if !sameArray {
			s.clearLocked()
		}
	}
	s.grid = &grid
	s.dtype = dtype
	dvid.Debugf("Configured cache %q: array %v %s, blocks %v\n", s.name, shape, dtype, grid.BlockShape)
	return nil
}

// Grid returns the block grid or nil if the store is not configured.
func (s *Store) Grid() *dvid.BlockGrid {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		return nil
	}
	g := *s.grid
	return &g
}

// DType returns the element type of the cached array.
func (s *Store) DType() dvid.DataType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dtype
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Store) checkRoiLocked(roi dvid.Roi) error {
	if s.grid == nil {
		return dvid.ConfigErrorf("cache %q has not been configured", s.name)
	}
	if !equalInts(roi.Shape(), s.grid.Shape) {
		return dvid.OutOfBoundsf("roi %s in array %v requested from cache %q of shape %v",
			roi, roi.Shape(), s.name, s.grid.Shape)
	}
	return nil
}

// Request returns a new array holding the region.
func (s *Store) Request(ctx context.Context, roi dvid.Roi) (*dvid.Array, error) {
	dest := dvid.NewArray(s.DType(), roi.Size())
	if err := s.RequestInto(ctx, roi, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

// RequestInto fills dest, which must have the size of roi, from the overlapping blocks,
// computing any block that is not clean.
func (s *Store) RequestInto(ctx context.Context, roi dvid.Roi, dest *dvid.Array) error {
	s.mu.Lock()
	if err := s.checkRoiLocked(roi); err != nil {
		s.mu.Unlock()
		return err
	}
	grid := *s.grid
	s.mu.Unlock()

	if !equalInts(dest.Shape(), roi.Size()) {
		return dvid.OutOfBoundsf("destination %v does not match roi %s", dest.Shape(), roi)
	}
	for _, idx := range grid.BlocksInRoi(roi) {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, data, err := s.acquire(ctx, idx)
		if err != nil {
			return err
		}
		overlap, _ := b.roi.Intersect(roi)
		srcStart := make([]int, roi.NumDims())
		dstStart := make([]int, roi.NumDims())
		for i := range srcStart {
			srcStart[i] = overlap.StartAt(i) - b.roi.StartAt(i)
			dstStart[i] = overlap.StartAt(i) - roi.StartAt(i)
		}
		err = dvid.CopyRegion(dest, dstStart, data, srcStart, overlap.Size())
		s.release(b)
		if err != nil {
			return err
		}
	}
	return nil
}

// blockLocked returns the block, creating a dirty one if needed.
func (s *Store) blockLocked(idx dvid.BlockIndex) (*block, error) {
	key := idx.String()
	if b, found := s.blocks[key]; found {
		return b, nil
	}
	roi, err := s.grid.BlockRoi(idx)
	if err != nil {
		return nil, err
	}
	b := &block{idx: idx, key: key, roi: roi, state: Dirty}
	s.blocks[key] = b
	return b, nil
}

// servableLocked returns block content that may be used without computing.
func (s *Store) servableLocked(b *block) *dvid.Array {
	switch {
	case b.state == Clean && b.data == nil:
		if data := s.restoreLocked(b); data != nil {
			return data
		}
		b.state = Dirty
		return nil
	case b.state == Clean:
		return b.data
	case s.fixed && b.data != nil:
		return b.data
	}
	return nil
}

// acquire returns the content of a block with a reader registered on it.
func (s *Store) acquire(ctx context.Context, idx dvid.BlockIndex) (*block, *dvid.Array, error) {
	for {
		s.mu.Lock()
		b, err := s.blockLocked(idx)
		if err != nil {
			s.mu.Unlock()
			return nil, nil, err
		}
		if data := s.servableLocked(b); data != nil {
			b.readers++
			s.touchLocked(b)
			s.mu.Unlock()
			s.hits.Add(1)
			blockHits.WithLabelValues(s.name).Inc()
			return b, data, nil
		}

		if b.computing {
			// Join the computation in flight.  Our worker is lent out while we wait.
			s.mu.Unlock()
			var v interface{}
			request.Block(ctx, func() {
				v, err, _ = s.flight.Do(b.key, func() (interface{}, error) {
					return nil, errRetry
				})
			})
			if err == errRetry {
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			s.mu.Lock()
			b.readers++
			s.mu.Unlock()
			return b, v.(*dvid.Array), nil
		}

		b.computing = true
		gen := b.gen
		s.mu.Unlock()

		v, err, _ := s.flight.Do(b.key, func() (interface{}, error) {
			return s.computeBlock(ctx, b, gen)
		})
		if err == errRetry {
			s.mu.Lock()
			b.computing = false
			s.mu.Unlock()
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		s.mu.Lock()
		b.readers++
		s.mu.Unlock()
		return b, v.(*dvid.Array), nil
	}
}

func (s *Store) release(b *block) {
	s.mu.Lock()
	b.readers--
	s.evictLocked()
	s.mu.Unlock()
}

// computeBlock runs the upstream computation for a block.  The block's state only
// becomes clean if it was not invalidated while computing.
func (s *Store) computeBlock(ctx context.Context, b *block, gen uint64) (*dvid.Array, error) {
	timedLog := dvid.NewTimeLog()
	data, err := s.compute(ctx, b.roi)
	s.computes.Add(1)
	blockComputeSeconds.WithLabelValues(s.name).Observe(timedLog.Elapsed().Seconds())
	if err == nil && !equalInts(data.Shape(), b.roi.Size()) {
		err = fmt.Errorf("computed array %v does not match block region %s", data.Shape(), b.roi)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b.computing = false
	if err != nil {
		if b.state == Clean {
			b.state = Dirty
		}
		blockComputes.WithLabelValues(s.name, "failed").Inc()
		dvid.Errorf("Cache %q failed to compute block %s: %v\n", s.name, b.key, err)
		return nil, &dvid.ComputeFailure{Block: b.key, Err: err}
	}
	if data.DType() != s.dtype {
		data = data.Astype(s.dtype)
	}
	s.installLocked(b, data)
	if b.gen == gen {
		b.state = Clean
	} else {
		b.state = Dirty
	}
	s.processed[b.key] = b.idx
	blockComputes.WithLabelValues(s.name, "ok").Inc()
	timedLog.Debugf("Cache %q computed block %s", s.name, b.key)
	return data, nil
}

// installLocked replaces a block's content and accounts for it.
func (s *Store) installLocked(b *block, data *dvid.Array) {
	if b.data != nil {
		s.resident -= int64(b.data.NumBytes())
	}
	b.data = data
	s.resident += int64(data.NumBytes())
	if b.elem == nil {
		b.elem = s.lru.PushFront(b)
	} else {
		s.lru.MoveToFront(b.elem)
	}
	if s.tier != nil {
		s.tier.Del(s.tierKey(b))
	}
	residentBytes.WithLabelValues(s.name).Set(float64(s.resident))
}

func (s *Store) touchLocked(b *block) {
	if b.elem != nil {
		s.lru.MoveToFront(b.elem)
	}
}

// dropLocked discards a block's content.
func (s *Store) dropLocked(b *block) {
	if b.data != nil {
		s.resident -= int64(b.data.NumBytes())
		b.data = nil
	}
	if b.elem != nil {
		s.lru.Remove(b.elem)
		b.elem = nil
	}
	residentBytes.WithLabelValues(s.name).Set(float64(s.resident))
}

// evictLocked drops least recently used blocks until resident bytes fit the budget.
// Blocks being computed, read, or held stale in fixed mode are skipped.
func (s *Store) evictLocked() {
	if s.cfg.BudgetBytes <= 0 {
		return
	}
	elem := s.lru.Back()
	for s.resident > s.cfg.BudgetBytes && elem != nil {
		prev := elem.Prev()
		b := elem.Value.(*block)
		if !b.computing && b.readers == 0 && b.state != Fixed {
			if b.state == Clean {
				s.spillLocked(b)
			}
			s.dropLocked(b)
			s.evictions.Add(1)
			blockEvictions.WithLabelValues(s.name).Inc()
		}
		elem = prev
	}
}

// SetDirty invalidates every block overlapping roi.  Nothing is recomputed until
// the blocks are next requested.
func (s *Store) SetDirty(roi dvid.Roi) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		return
	}
	if !equalInts(roi.Shape(), s.grid.Shape) {
		dvid.Errorf("Ignoring dirty roi %s with shape %v for cache %q of shape %v\n",
			roi, roi.Shape(), s.name, s.grid.Shape)
		return
	}
	var n int
	for _, idx := range s.grid.BlocksInRoi(roi.Clip()) {
		b, found := s.blocks[idx.String()]
		if !found {
			continue
		}
		b.gen++
		if s.fixed && b.data != nil {
			b.state = Fixed
		} else {
			b.state = Dirty
		}
		if s.tier != nil {
			s.tier.Del(s.tierKey(b))
		}
		delete(s.processed, b.key)
		n++
	}
	dvid.Debugf("Cache %q: %d blocks dirtied by %s\n", s.name, n, roi)
}

// SetAllDirty invalidates every block.
func (s *Store) SetAllDirty() {
	s.mu.Lock()
	if s.grid == nil {
		s.mu.Unlock()
		return
	}
	full := dvid.FullRoi(s.grid.Axes, s.grid.Shape)
	s.mu.Unlock()
	s.SetDirty(full)
}

// MarkFixed freezes or unfreezes the store.  While fixed, requests for invalidated
// blocks return their last content.  Unfixing makes such blocks dirty again.
func (s *Store) MarkFixed(fixed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed = fixed
	if fixed {
		return
	}
	for _, b := range s.blocks {
		if b.state == Fixed {
			b.state = Dirty
		}
	}
	s.evictLocked()
}

// IsFixed returns true while the store serves stale content.
func (s *Store) IsFixed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fixed
}

// State returns the state of a block.  Blocks never touched are dirty.
func (s *Store) State(idx dvid.BlockIndex) BlockState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, found := s.blocks[idx.String()]; found {
		return b.state
	}
	return Dirty
}

// Get returns the content of a clean block without computing it.  The returned
// array must not be modified.
func (s *Store) Get(idx dvid.BlockIndex) (*dvid.Array, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, found := s.blocks[idx.String()]
	if !found || b.state != Clean {
		return nil, false
	}
	data := b.data
	if data == nil {
		data = s.restoreLocked(b)
	}
	return data, data != nil
}

// Put stores externally provided content for a block and marks it clean and processed.
func (s *Store) Put(idx dvid.BlockIndex, data *dvid.Array) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		return dvid.ConfigErrorf("cache %q has not been configured", s.name)
	}
	b, err := s.blockLocked(idx)
	if err != nil {
		return err
	}
	if !equalInts(data.Shape(), b.roi.Size()) || data.DType() != s.dtype {
		return fmt.Errorf("cannot put %s into block %s of size %v and type %s", data, b.key, b.roi.Size(), s.dtype)
	}
	if b.computing {
		return fmt.Errorf("block %s of cache %q is being computed", b.key, s.name)
	}
	b.gen++
	s.installLocked(b, data)
	b.state = Clean
	s.processed[b.key] = b.idx
	s.evictLocked()
	return nil
}

// Evict discards the content of a block so it is computed on the next request.
func (s *Store) Evict(idx dvid.BlockIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, found := s.blocks[idx.String()]
	if !found {
		return nil
	}
	if b.computing || b.readers != 0 {
		return fmt.Errorf("block %s of cache %q is in use", b.key, s.name)
	}
	if s.tier != nil {
		s.tier.Del(s.tierKey(b))
	}
	s.dropLocked(b)
	delete(s.blocks, b.key)
	delete(s.processed, b.key)
	return nil
}

// ProcessedIndices returns the indices of blocks computed or put since they were last
// invalidated, sorted in grid order.
func (s *Store) ProcessedIndices() []dvid.BlockIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	indices := make([]dvid.BlockIndex, 0, len(s.processed))
	for _, idx := range s.processed {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool {
		return string(indices[i].Bytes()) < string(indices[j].Bytes())
	})
	return indices
}

// ResetProcessed replaces the processed index set and turns off fixed mode.
func (s *Store) ResetProcessed(indices []dvid.BlockIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = make(map[string]dvid.BlockIndex, len(indices))
	for _, idx := range indices {
		s.processed[idx.String()] = idx
	}
	s.fixed = false
	for _, b := range s.blocks {
		if b.state == Fixed {
			b.state = Dirty
		}
	}
}

// Clear discards every block.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	for _, b := range s.blocks {
		s.dropLocked(b)
	}
	s.blocks = make(map[string]*block)
	s.processed = make(map[string]dvid.BlockIndex)
	if s.tier != nil {
		s.tier.Clear()
	}
}

// Computes returns the number of block computations run so far.
func (s *Store) Computes() int64 {
	return s.computes.Load()
}
