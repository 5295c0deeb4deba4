package server

import "github.com/janelia-flyem/voxflow/dvid"

// SyntheticVolume returns "txyzc" class probabilities with one large slab per
// foreground class and a 2x2x2 speck of class 1 in the corner.  The winning class of a
// voxel has probability 0.8, the remainder is shared by the other classes.
func SyntheticVolume(shape []int) *dvid.Array {
	nt, nx, ny, nz, nc := shape[0], shape[1], shape[2], shape[3], shape[4]
	data := dvid.NewArray(dvid.T_float32, shape)
	vals := data.Float32s()
	other := float32(0.2)
	if nc > 1 {
		other = 0.2 / float32(nc-1)
	}
	stripe := nx
	if nc > 1 {
		stripe = (nx + nc - 2) / (nc - 1)
	}
	dvid.ForEachCoord([]int{nt, nx, ny, nz}, func(coord []int, flat int) {
		x, y, z := coord[1], coord[2], coord[3]
		class := 0
		switch {
		case x < 2 && y < 2 && z < 2:
			class = 1
		case nc > 1 && y >= ny/4 && y < 3*ny/4 && z >= nz/4:
			class = 1 + x/stripe
		}
		if class >= nc {
			class = nc - 1
		}
		for c := 0; c < nc; c++ {
			if c == class {
				vals[flat*nc+c] = 0.8
			} else {
				vals[flat*nc+c] = other
			}
		}
	})
	return data
}
