package dvid

// ExpandRoi grows roi by radius on each axis and clips the result to clipShape, which
// defaults to the roi's own array shape when nil.  Axes of extent 1 in clipShape are
// squeezed out before the expansion and restored with their original bounds, so a
// radius on a singleton axis has no effect.
//
// cropOffset gives the position of the requested region within the enlarged one: after
// computing over the enlarged region, [cropOffset, cropOffset+roi.Size()) is exactly
// the requested region.  Operators must use this both when reading input for Execute
// and when growing dirty regions in PropagateDirty.
func ExpandRoi(roi Roi, radius []int, clipShape []int) (enlarged Roi, cropOffset []int, err error) {
	if len(radius) != roi.NumDims() {
		return Roi{}, nil, ConfigErrorf("radius %v does not match %d-d roi", radius, roi.NumDims())
	}
	if clipShape == nil {
		clipShape = roi.shape
	}
	bounded, err := NewRoi(roi.start, roi.stop, roi.axes, clipShape)
	if err != nil {
		return Roi{}, nil, err
	}

	squeezed, kept := bounded.Squeeze()
	r := make([]int, len(kept))
	for j, i := range kept {
		if radius[i] < 0 {
			return Roi{}, nil, ConfigErrorf("negative radius %d on axis %d", radius[i], i)
		}
		r[j] = radius[i]
	}
	start, stop := squeezed.Expand(r)
	grown := ClippedRoi(start, stop, squeezed.axes, squeezed.shape)
	enlarged = grown.Unsqueeze(kept, bounded)

	cropOffset = make([]int, roi.NumDims())
	for i := range cropOffset {
		cropOffset[i] = roi.start[i] - enlarged.start[i]
	}
	return enlarged, cropOffset, nil
}

// CropRoi returns the requested region in the coordinates of the enlarged array
// produced by ExpandRoi.
func CropRoi(enlarged Roi, cropOffset []int, requested Roi) Roi {
	start := make([]int, len(cropOffset))
	stop := make([]int, len(cropOffset))
	for i := range cropOffset {
		start[i] = cropOffset[i]
		stop[i] = cropOffset[i] + requested.stop[i] - requested.start[i]
	}
	return Roi{start: start, stop: stop, shape: enlarged.Size(), axes: requested.axes}
}

// SpatialRadius builds a per-axis radius from radii keyed by axis name.  Axes absent
// from radii and axes of extent 1 get radius 0.
func SpatialRadius(axes AxisOrder, shape []int, radii map[byte]int) []int {
	radius := make([]int, len(axes))
	for i, key := range axes.Keys() {
		if shape[i] <= 1 {
			continue
		}
		radius[i] = radii[key]
	}
	return radius
}
