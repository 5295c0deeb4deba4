/*
	This file defines a dense n-d array held in C order within a single byte slice.
	Typed views alias the underlying bytes in native byte order.
*/

package dvid

import (
	"bytes"
	"fmt"
	"unsafe"
)

// Array is a dense n-d buffer of elements of a single data type.
type Array struct {
	shape []int
	dtype DataType
	data  []byte
}

func numElements(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// NewArray allocates a zeroed array.
func NewArray(dtype DataType, shape []int) *Array {
	return &Array{
		shape: copyInts(shape),
		dtype: dtype,
		data:  make([]byte, numElements(shape)*DataTypeBytes(dtype)),
	}
}

// ArrayFromBytes wraps data without copying.
func ArrayFromBytes(dtype DataType, shape []int, data []byte) (*Array, error) {
	expected := numElements(shape) * DataTypeBytes(dtype)
	if len(data) != expected {
		return nil, fmt.Errorf("expected %d bytes for %s array of shape %v, got %d", expected, dtype, shape, len(data))
	}
	return &Array{shape: copyInts(shape), dtype: dtype, data: data}, nil
}

// ArrayFromUint32s copies values into a new uint32 array.
func ArrayFromUint32s(shape []int, values []uint32) *Array {
	a := NewArray(T_uint32, shape)
	copy(a.Uint32s(), values)
	return a
}

// ArrayFromFloat32s copies values into a new float32 array.
func ArrayFromFloat32s(shape []int, values []float32) *Array {
	a := NewArray(T_float32, shape)
	copy(a.Float32s(), values)
	return a
}

// ArrayFromUint8s copies values into a new uint8 array.
func ArrayFromUint8s(shape []int, values []uint8) *Array {
	a := NewArray(T_uint8, shape)
	copy(a.Uint8s(), values)
	return a
}

func (a *Array) Shape() []int { return copyInts(a.shape) }
func (a *Array) NumDims() int { return len(a.shape) }
func (a *Array) DType() DataType { return a.dtype }
func (a *Array) Bytes() []byte { return a.data }
func (a *Array) NumBytes() int { return len(a.data) }
func (a *Array) NumElements() int { return numElements(a.shape) }

func view[T any](data []byte) []T {
	if len(data) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/int(unsafe.Sizeof(zero)))
}

func (a *Array) mustBe(t DataType) {
	if a.dtype != t && !(t == T_uint8 && a.dtype == T_bool) {
		panic(fmt.Sprintf("array of %s accessed as %s", a.dtype, t))
	}
}

func (a *Array) Uint8s() []uint8 {
	a.mustBe(T_uint8)
	return view[uint8](a.data)
}

func (a *Array) Uint16s() []uint16 {
	a.mustBe(T_uint16)
	return view[uint16](a.data)
}

func (a *Array) Uint32s() []uint32 {
	a.mustBe(T_uint32)
	return view[uint32](a.data)
}

func (a *Array) Uint64s() []uint64 {
	a.mustBe(T_uint64)
	return view[uint64](a.data)
}

func (a *Array) Int32s() []int32 {
	a.mustBe(T_int32)
	return view[int32](a.data)
}

func (a *Array) Float32s() []float32 {
	a.mustBe(T_float32)
	return view[float32](a.data)
}

func (a *Array) Float64s() []float64 {
	a.mustBe(T_float64)
	return view[float64](a.data)
}

// Strides returns the element stride of each axis.
func (a *Array) Strides() []int {
	return stridesOf(a.shape)
}

func stridesOf(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// At returns element i converted to float64.
func (a *Array) At(i int) float64 {
	p := unsafe.Pointer(&a.data[i*DataTypeBytes(a.dtype)])
	switch a.dtype {
	case T_uint8, T_bool:
		return float64(*(*uint8)(p))
	case T_int8:
		return float64(*(*int8)(p))
	case T_uint16:
		return float64(*(*uint16)(p))
	case T_int16:
		return float64(*(*int16)(p))
	case T_uint32:
		return float64(*(*uint32)(p))
	case T_int32:
		return float64(*(*int32)(p))
	case T_uint64:
		return float64(*(*uint64)(p))
	case T_int64:
		return float64(*(*int64)(p))
	case T_float32:
		return float64(*(*float32)(p))
	case T_float64:
		return *(*float64)(p)
	}
	panic(fmt.Sprintf("bad data type %d", a.dtype))
}

// Set stores v, converted to the array's data type, as element i.
func (a *Array) Set(i int, v float64) {
	p := unsafe.Pointer(&a.data[i*DataTypeBytes(a.dtype)])
	switch a.dtype {
	case T_uint8, T_bool:
		*(*uint8)(p) = uint8(v)
	case T_int8:
		*(*int8)(p) = int8(v)
	case T_uint16:
		*(*uint16)(p) = uint16(v)
	case T_int16:
		*(*int16)(p) = int16(v)
	case T_uint32:
		*(*uint32)(p) = uint32(v)
	case T_int32:
		*(*int32)(p) = int32(v)
	case T_uint64:
		*(*uint64)(p) = uint64(v)
	case T_int64:
		*(*int64)(p) = int64(v)
	case T_float32:
		*(*float32)(p) = float32(v)
	case T_float64:
		*(*float64)(p) = v
	default:
		panic(fmt.Sprintf("bad data type %d", a.dtype))
	}
}

// Fill sets every element to v.
func (a *Array) Fill(v float64) {
	n := a.NumElements()
	for i := 0; i < n; i++ {
		a.Set(i, v)
	}
}

// Astype returns a converted copy of the array.
func (a *Array) Astype(t DataType) *Array {
	if t == a.dtype {
		return a.Clone()
	}
	out := NewArray(t, a.shape)
	n := a.NumElements()
	for i := 0; i < n; i++ {
		out.Set(i, a.At(i))
	}
	return out
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	data := make([]byte, len(a.data))
	copy(data, a.data)
	return &Array{shape: copyInts(a.shape), dtype: a.dtype, data: data}
}

// Equal returns true if both arrays have the same type, shape and contents.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return bytes.Equal(a.data, b.data)
}

// Reshape returns an array sharing the same data with a new shape of equal size.
func (a *Array) Reshape(shape []int) (*Array, error) {
	if numElements(shape) != a.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v to %v", a.shape, shape)
	}
	return &Array{shape: copyInts(shape), dtype: a.dtype, data: a.data}, nil
}

// CopyRegion copies a box of the given size from src at srcStart into dst at dstStart.
func CopyRegion(dst *Array, dstStart []int, src *Array, srcStart []int, size []int) error {
	if dst.dtype != src.dtype {
		return fmt.Errorf("cannot copy %s region into %s array", src.dtype, dst.dtype)
	}
	nd := len(size)
	if len(dst.shape) != nd || len(src.shape) != nd || len(dstStart) != nd || len(srcStart) != nd {
		return fmt.Errorf("dimension mismatch copying region of size %v from %v to %v", size, src.shape, dst.shape)
	}
	for i := 0; i < nd; i++ {
		if size[i] == 0 {
			return nil
		}
		if dstStart[i] < 0 || dstStart[i]+size[i] > dst.shape[i] {
			return OutOfBoundsf("destination axis %d: [%d,%d) not within [0,%d)", i, dstStart[i], dstStart[i]+size[i], dst.shape[i])
		}
		if srcStart[i] < 0 || srcStart[i]+size[i] > src.shape[i] {
			return OutOfBoundsf("source axis %d: [%d,%d) not within [0,%d)", i, srcStart[i], srcStart[i]+size[i], src.shape[i])
		}
	}
	esize := DataTypeBytes(dst.dtype)
	if nd == 0 {
		copy(dst.data[:esize], src.data[:esize])
		return nil
	}
	rowBytes := size[nd-1] * esize
	dstStrides, srcStrides := dst.Strides(), src.Strides()
	coord := make([]int, nd)
	for {
		var doff, soff int
		for i := 0; i < nd; i++ {
			doff += (dstStart[i] + coord[i]) * dstStrides[i]
			soff += (srcStart[i] + coord[i]) * srcStrides[i]
		}
		copy(dst.data[doff*esize:doff*esize+rowBytes], src.data[soff*esize:soff*esize+rowBytes])

		i := nd - 2
		for ; i >= 0; i-- {
			coord[i]++
			if coord[i] < size[i] {
				break
			}
			coord[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

// Region returns a copy of the box [start, stop).
func (a *Array) Region(start, stop []int) (*Array, error) {
	size := make([]int, len(start))
	for i := range size {
		size[i] = stop[i] - start[i]
	}
	out := NewArray(a.dtype, size)
	if err := CopyRegion(out, make([]int, len(size)), a, start, size); err != nil {
		return nil, err
	}
	return out, nil
}

// Paste copies all of src into the array at the given offset.
func (a *Array) Paste(src *Array, at []int) error {
	return CopyRegion(a, at, src, make([]int, len(src.shape)), src.shape)
}

// Transpose returns a copy whose axis j is axis perm[j] of the array.
func (a *Array) Transpose(perm []int) (*Array, error) {
	nd := len(a.shape)
	if len(perm) != nd {
		return nil, fmt.Errorf("permutation %v does not match %d-d array", perm, nd)
	}
	shape := make([]int, nd)
	for j, p := range perm {
		shape[j] = a.shape[p]
	}
	out := NewArray(a.dtype, shape)
	inStrides := a.Strides()
	esize := DataTypeBytes(a.dtype)
	ForEachCoord(shape, func(coord []int, flat int) {
		var off int
		for j, p := range perm {
			off += coord[j] * inStrides[p]
		}
		copy(out.data[flat*esize:(flat+1)*esize], a.data[off*esize:(off+1)*esize])
	})
	return out, nil
}

// ForEachCoord calls fn for every coordinate within shape in C order along with the
// flat element index.  The coord slice is reused between calls.
func ForEachCoord(shape []int, fn func(coord []int, flat int)) {
	n := numElements(shape)
	if n == 0 {
		return
	}
	coord := make([]int, len(shape))
	for flat := 0; flat < n; flat++ {
		fn(coord, flat)
		for i := len(shape) - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < shape[i] {
				break
			}
			coord[i] = 0
		}
	}
}

func (a *Array) String() string {
	return fmt.Sprintf("%s array %v", a.dtype, a.shape)
}
