/*
	Package operators implements the array operators of a voxflow pipeline: raw sources,
	axis reordering, smoothing, thresholding, connected component labeling and label
	filtering, blocked caching, and the composite threshold and MRI volume filters built
	from them.

	Operators that work per time point and channel expect the axes to be named with the
	keys t, x, y, z and c.  Composite operators translate their input to "txyzc" order
	internally and translate results back to the axis order of their input.
*/
package operators
