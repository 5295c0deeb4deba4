/*
	This file defines regions of interest: half-open hyper-rectangles within an n-d array.
*/

package dvid

import (
	"fmt"
	"strings"
)

// AxisOrder names the axes of an array, one byte per axis, e.g., "txyzc".
type AxisOrder string

// Index returns the position of the axis with the given key and whether the
// axis is present at all.  A present axis may well be at position 0.
func (a AxisOrder) Index(key byte) (int, bool) {
	i := strings.IndexByte(string(a), key)
	return i, i >= 0
}

// Has returns true if the axis is present.
func (a AxisOrder) Has(key byte) bool {
	return strings.IndexByte(string(a), key) >= 0
}

// Keys returns the axis keys in order.
func (a AxisOrder) Keys() []byte {
	return []byte(a)
}

// Validate checks that no axis key is repeated.
func (a AxisOrder) Validate() error {
	for i := 0; i < len(a); i++ {
		if strings.IndexByte(string(a[i+1:]), a[i]) >= 0 {
			return ConfigErrorf("axis %q repeated in axis order %q", a[i], a)
		}
	}
	return nil
}

// Roi is an immutable region of interest: start and stop per axis (stop exclusive)
// within an array of the given shape.
type Roi struct {
	start []int
	stop  []int
	shape []int
	axes  AxisOrder
}

// NewRoi returns a region of interest after checking 0 <= start <= stop <= shape on
// every axis.  The axis order may be empty for anonymous arrays.
func NewRoi(start, stop []int, axes AxisOrder, shape []int) (Roi, error) {
	if len(start) != len(stop) || len(start) != len(shape) {
		return Roi{}, OutOfBoundsf("dimension mismatch: start %v, stop %v, shape %v", start, stop, shape)
	}
	if axes != "" && len(axes) != len(shape) {
		return Roi{}, ConfigErrorf("axis order %q does not match %d-d shape", axes, len(shape))
	}
	for i := range start {
		if start[i] < 0 || start[i] > stop[i] || stop[i] > shape[i] {
			return Roi{}, OutOfBoundsf("axis %d: [%d,%d) not within [0,%d)", i, start[i], stop[i], shape[i])
		}
	}
	return Roi{
		start: copyInts(start),
		stop:  copyInts(stop),
		shape: copyInts(shape),
		axes:  axes,
	}, nil
}

// FullRoi returns the region covering the whole array.
func FullRoi(axes AxisOrder, shape []int) Roi {
	return Roi{
		start: make([]int, len(shape)),
		stop:  copyInts(shape),
		shape: copyInts(shape),
		axes:  axes,
	}
}

func copyInts(a []int) []int {
	if a == nil {
		return nil
	}
	b := make([]int, len(a))
	copy(b, a)
	return b
}

func (r Roi) NumDims() int { return len(r.shape) }
func (r Roi) Axes() AxisOrder { return r.axes }
func (r Roi) Start() []int { return copyInts(r.start) }
func (r Roi) Stop() []int { return copyInts(r.stop) }
func (r Roi) Shape() []int { return copyInts(r.shape) }
func (r Roi) StartAt(dim int) int { return r.start[dim] }
func (r Roi) StopAt(dim int) int { return r.stop[dim] }

// Size returns the extent of the region along each axis.
func (r Roi) Size() []int {
	size := make([]int, len(r.start))
	for i := range size {
		size[i] = r.stop[i] - r.start[i]
	}
	return size
}

// NumVoxels returns the number of elements within the region.
func (r Roi) NumVoxels() int {
	n := 1
	for i := range r.start {
		n *= r.stop[i] - r.start[i]
	}
	return n
}

// Empty returns true if the region has no elements.
func (r Roi) Empty() bool {
	for i := range r.start {
		if r.stop[i] <= r.start[i] {
			return true
		}
	}
	return false
}

// IsFull returns true if the region spans its whole array.
func (r Roi) IsFull() bool {
	for i := range r.start {
		if r.start[i] != 0 || r.stop[i] != r.shape[i] {
			return false
		}
	}
	return true
}

// Equal returns true if both regions have identical bounds and shape.
func (r Roi) Equal(o Roi) bool {
	if len(r.start) != len(o.start) || r.axes != o.axes {
		return false
	}
	for i := range r.start {
		if r.start[i] != o.start[i] || r.stop[i] != o.stop[i] || r.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

// Contains returns true if o lies within r.
func (r Roi) Contains(o Roi) bool {
	if len(r.start) != len(o.start) {
		return false
	}
	for i := range r.start {
		if o.start[i] < r.start[i] || o.stop[i] > r.stop[i] {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of two regions in the same array and false if
// they do not overlap.
func (r Roi) Intersect(o Roi) (Roi, bool) {
	if len(r.start) != len(o.start) {
		return Roi{}, false
	}
	out := Roi{
		start: make([]int, len(r.start)),
		stop:  make([]int, len(r.start)),
		shape: copyInts(r.shape),
		axes:  r.axes,
	}
	for i := range r.start {
		out.start[i] = maxInt(r.start[i], o.start[i])
		out.stop[i] = minInt(r.stop[i], o.stop[i])
		if out.stop[i] <= out.start[i] {
			return Roi{}, false
		}
	}
	return out, true
}

// Union returns the bounding box of both regions.
func (r Roi) Union(o Roi) Roi {
	if len(r.start) == 0 {
		return o
	}
	out := Roi{
		start: make([]int, len(r.start)),
		stop:  make([]int, len(r.start)),
		shape: copyInts(r.shape),
		axes:  r.axes,
	}
	for i := range r.start {
		out.start[i] = minInt(r.start[i], o.start[i])
		out.stop[i] = maxInt(r.stop[i], o.stop[i])
	}
	return out
}

// Expand returns the bounds grown by radius on each axis without any clipping, so
// the returned start may be negative and stop may exceed the shape.
func (r Roi) Expand(radius []int) (start, stop []int) {
	start = make([]int, len(r.start))
	stop = make([]int, len(r.start))
	for i := range r.start {
		start[i] = r.start[i] - radius[i]
		stop[i] = r.stop[i] + radius[i]
	}
	return
}

// Clip returns the region restricted to [0, shape) on every axis.
func (r Roi) Clip() Roi {
	out := Roi{
		start: make([]int, len(r.start)),
		stop:  make([]int, len(r.start)),
		shape: copyInts(r.shape),
		axes:  r.axes,
	}
	for i := range r.start {
		out.start[i] = clamp(r.start[i], 0, r.shape[i])
		out.stop[i] = clamp(r.stop[i], out.start[i], r.shape[i])
	}
	return out
}

// ClippedRoi builds a region from possibly out-of-range bounds by clipping to shape.
func ClippedRoi(start, stop []int, axes AxisOrder, shape []int) Roi {
	r := Roi{start: copyInts(start), stop: copyInts(stop), shape: copyInts(shape), axes: axes}
	return r.Clip()
}

// SetAxis returns a copy of the region with new bounds on one axis.
func (r Roi) SetAxis(dim, start, stop int) (Roi, error) {
	s, e := r.Start(), r.Stop()
	s[dim], e[dim] = start, stop
	return NewRoi(s, e, r.axes, r.shape)
}

// WithShape returns the same bounds interpreted within a different array shape.
func (r Roi) WithShape(shape []int) (Roi, error) {
	return NewRoi(r.start, r.stop, r.axes, shape)
}

// RelativeTo returns the region translated so that outer's start is the origin.
// The returned region indexes an array of outer's size.
func (r Roi) RelativeTo(outer Roi) (Roi, error) {
	s := make([]int, len(r.start))
	e := make([]int, len(r.start))
	for i := range r.start {
		s[i] = r.start[i] - outer.start[i]
		e[i] = r.stop[i] - outer.start[i]
	}
	return NewRoi(s, e, r.axes, outer.Size())
}

// Reorder translates the region into another axis space.  Axes missing from this
// region get the full extent of toShape (which for a new axis is normally 1) and
// axes missing from the target must be singleton here.
func (r Roi) Reorder(to AxisOrder, toShape []int) (Roi, error) {
	if len(to) != len(toShape) {
		return Roi{}, ConfigErrorf("axis order %q does not match %d-d shape", to, len(toShape))
	}
	for i, key := range r.axes.Keys() {
		if !to.Has(key) && r.stop[i]-r.start[i] > 1 {
			return Roi{}, ConfigErrorf("cannot drop non-singleton axis %q translating %q to %q", key, r.axes, to)
		}
	}
	start := make([]int, len(to))
	stop := make([]int, len(to))
	for j, key := range to.Keys() {
		if i, found := r.axes.Index(key); found {
			start[j], stop[j] = r.start[i], r.stop[i]
		} else {
			start[j], stop[j] = 0, toShape[j]
		}
	}
	return NewRoi(start, stop, to, toShape)
}

// Squeeze drops axes whose array extent is 1 and returns the dimension indices kept.
func (r Roi) Squeeze() (Roi, []int) {
	var kept []int
	var axes []byte
	out := Roi{}
	for i := range r.shape {
		if r.shape[i] == 1 {
			continue
		}
		kept = append(kept, i)
		out.start = append(out.start, r.start[i])
		out.stop = append(out.stop, r.stop[i])
		out.shape = append(out.shape, r.shape[i])
		if r.axes != "" {
			axes = append(axes, r.axes[i])
		}
	}
	out.axes = AxisOrder(axes)
	return out, kept
}

// Unsqueeze restores axes dropped by Squeeze using bounds from the template region.
func (r Roi) Unsqueeze(kept []int, template Roi) Roi {
	out := Roi{
		start: template.Start(),
		stop:  template.Stop(),
		shape: template.Shape(),
		axes:  template.axes,
	}
	for j, i := range kept {
		out.start[i] = r.start[j]
		out.stop[i] = r.stop[j]
	}
	return out
}

func (r Roi) String() string {
	var b strings.Builder
	if r.axes != "" {
		b.WriteString(string(r.axes))
	}
	b.WriteByte('[')
	for i := range r.start {
		if i != 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d:%d", r.start[i], r.stop[i])
	}
	b.WriteByte(']')
	return b.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
