package grid

// Interp builds the trilinear interpolation matrix D for a batch of
// query points: an M x N sparse matrix with exactly 8 nonzero entries per
// row, one per corner of the enclosing cell, weighted by
// (1-|dx|/h)(1-|dy|/h)(1-|dz|/h). Points outside the grid cause
// PointOutsideGrid failure.
func (g *Grid) Interp(pts [][3]float64) (*SparseD, error) {
	d := newSparseD(len(pts), g.N, 8*len(pts))
	for row, p := range pts {
		i, j, k, dx, dy, dz, err := g.Cell(p)
		if err != nil {
			return nil, err
		}
		for _, corner := range corners {
			ci, cj, ck := i+corner[0], j+corner[1], k+corner[2]
			wx := trilinearWeight(dx, corner[0], g.H)
			wy := trilinearWeight(dy, corner[1], g.H)
			wz := trilinearWeight(dz, corner[2], g.H)
			w := wx * wy * wz
			d.put(row, g.Ind(ci, cj, ck), w)
		}
	}
	d.finalize()
	return d, nil
}

// corners enumerates the 8 corners of a cell as (di,dj,dk) offsets from
// the lower corner.
var corners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
	{1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

// trilinearWeight returns the 1-D weight contributed by one axis: for
// the corner at offset 0 (lower plane) it is 1-offset/h, for offset 1
// (upper plane) it is offset/h.
func trilinearWeight(offset float64, cornerOffset int, h float64) float64 {
	t := offset / h
	if cornerOffset == 0 {
		return 1 - t
	}
	return t
}
