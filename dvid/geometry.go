package dvid

import "fmt"

// BlockGrid partitions an array of the given shape into aligned blocks.  Blocks on
// the upper border may be smaller than BlockShape.
type BlockGrid struct {
	BlockShape []int
	Shape      []int
	Axes       AxisOrder
}

// NewBlockGrid checks the block shape against the array shape.  A block extent of 0
// or larger than the array means one block spans the whole axis.
func NewBlockGrid(blockShape, shape []int, axes AxisOrder) (BlockGrid, error) {
	if len(blockShape) != len(shape) {
		return BlockGrid{}, ConfigErrorf("block shape %v does not match %d-d array", blockShape, len(shape))
	}
	bs := make([]int, len(shape))
	for i := range shape {
		switch {
		case blockShape[i] < 0:
			return BlockGrid{}, ConfigErrorf("negative block extent in %v", blockShape)
		case blockShape[i] == 0 || blockShape[i] > shape[i]:
			bs[i] = maxInt(shape[i], 1)
		default:
			bs[i] = blockShape[i]
		}
	}
	return BlockGrid{BlockShape: bs, Shape: copyInts(shape), Axes: axes}, nil
}

// NumBlocks returns the number of blocks along each axis.
func (g BlockGrid) NumBlocks() []int {
	n := make([]int, len(g.Shape))
	for i := range n {
		n[i] = (g.Shape[i] + g.BlockShape[i] - 1) / g.BlockShape[i]
	}
	return n
}

// BlockRoi returns the array region covered by a block.
func (g BlockGrid) BlockRoi(idx BlockIndex) (Roi, error) {
	if len(idx) != len(g.Shape) {
		return Roi{}, fmt.Errorf("block index %s does not match %d-d grid", idx, len(g.Shape))
	}
	start := make([]int, len(idx))
	stop := make([]int, len(idx))
	for i := range idx {
		start[i] = idx[i] * g.BlockShape[i]
		stop[i] = minInt(start[i]+g.BlockShape[i], g.Shape[i])
	}
	return NewRoi(start, stop, g.Axes, g.Shape)
}

// BlocksInRoi returns the indices of every block overlapping the region in C order.
func (g BlockGrid) BlocksInRoi(roi Roi) []BlockIndex {
	if roi.Empty() {
		return nil
	}
	lo := make([]int, len(g.Shape))
	span := make([]int, len(g.Shape))
	for i := range lo {
		lo[i] = roi.start[i] / g.BlockShape[i]
		hi := (roi.stop[i] - 1) / g.BlockShape[i]
		span[i] = hi - lo[i] + 1
	}
	var blocks []BlockIndex
	ForEachCoord(span, func(coord []int, _ int) {
		idx := make(BlockIndex, len(coord))
		for i := range coord {
			idx[i] = lo[i] + coord[i]
		}
		blocks = append(blocks, idx)
	})
	return blocks
}
