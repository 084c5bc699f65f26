package grid

// axis identifies which of the three grid axes a smoothing operator acts
// along.
type axis int

const (
	axisX axis = iota
	axisY
	axisZ
)

// Smoothers builds the three second-derivative smoothing matrices Kx, Ky,
// Kz. Each is N x N sparse with exactly 3 nonzero entries per row: a
// forward [1,-2,1] stencil at axis index 0, a backward [1,-2,1] stencil
// at axis index n-1, and a centered [1,-2,1] stencil at interior indices,
// all divided by h². Kx strides by Ny*Nz, Ky by Nz, Kz by 1, matching the
// ind(i,j,k) linearization.
func (g *Grid) Smoothers() (Kx, Ky, Kz *SparseD) {
	assertSquareStencil(g.Nx, "x")
	assertSquareStencil(g.Ny, "y")
	assertSquareStencil(g.Nz, "z")
	Kx = g.secondDeriv(axisX)
	Ky = g.secondDeriv(axisY)
	Kz = g.secondDeriv(axisZ)
	return Kx, Ky, Kz
}

// secondDeriv builds one of Kx, Ky, Kz.
func (g *Grid) secondDeriv(ax axis) *SparseD {
	h2 := g.H * g.H
	d := newSparseD(g.N, g.N, 3*g.N)
	for i := 0; i < g.Nx; i++ {
		for j := 0; j < g.Ny; j++ {
			for k := 0; k < g.Nz; k++ {
				row := g.Ind(i, j, k)
				idx, n := axisIndex(ax, i, j, k, g.Nx, g.Ny, g.Nz)
				a, b, c := stencilIndices(idx, n)
				coefs := [3]float64{1 / h2, -2 / h2, 1 / h2}
				nodes := [3]int{a, b, c}
				for s := 0; s < 3; s++ {
					col := shiftedInd(g, ax, i, j, k, idx, nodes[s])
					d.put(row, col, coefs[s])
				}
			}
		}
	}
	d.finalize()
	return d
}

// axisIndex returns the coordinate index along ax and that axis's length.
func axisIndex(ax axis, i, j, k, nx, ny, nz int) (idx, n int) {
	switch ax {
	case axisX:
		return i, nx
	case axisY:
		return j, ny
	default:
		return k, nz
	}
}

// stencilIndices returns the three axis indices the stencil touches: a
// forward stencil {0,1,2} at the low boundary, a backward stencil
// {n-3,n-2,n-1} at the high boundary, and a centered stencil
// {idx-1,idx,idx+1} in the interior.
func stencilIndices(idx, n int) (a, b, c int) {
	switch {
	case idx == 0:
		return 0, 1, 2
	case idx == n-1:
		return n - 3, n - 2, n - 1
	default:
		return idx - 1, idx, idx + 1
	}
}

// shiftedInd returns the linear node index obtained by replacing the
// coordinate along ax with newIdx, leaving the other two coordinates
// unchanged.
func shiftedInd(g *Grid, ax axis, i, j, k, oldIdx, newIdx int) int {
	switch ax {
	case axisX:
		return g.Ind(newIdx, j, k)
	case axisY:
		return g.Ind(i, newIdx, k)
	default:
		return g.Ind(i, j, newIdx)
	}
}
