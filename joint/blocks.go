package joint

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// rowBlock is one projected event or calibration row-block: Mev
// horizontally concatenated with its receiver row-selector, plus the
// matching residual segment (spec.md §4.5 steps 4-6).
type rowBlock struct {
	M *mat.Dense // (nrows x ncols)
	r []float64  // length nrows
}

// stackBlocks vertically stacks every block's M into one (sum(nrows) x
// ncols) matrix, and concatenates the residual segments in the same
// order.
func stackBlocks(blocks []rowBlock, ncols int) (*mat.Dense, []float64) {
	total := 0
	for _, b := range blocks {
		total += len(b.r)
	}
	M := mat.NewDense(total, ncols, nil)
	r := make([]float64, 0, total)
	row := 0
	for _, b := range blocks {
		nr, nc := b.M.Dims()
		for i := 0; i < nr; i++ {
			for j := 0; j < nc; j++ {
				M.Set(row+i, j, b.M.At(i, j))
			}
			_ = nc
		}
		row += nr
		r = append(r, b.r...)
	}
	return M, r
}

// padCols returns a new matrix equal to m horizontally padded with extra
// zero columns (the static-correction columns a smoothing/tie-point
// operator does not touch).
func padCols(m *mat.Dense, extra int) *mat.Dense {
	nr, nc := m.Dims()
	out := mat.NewDense(nr, nc+extra, nil)
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			out.Set(i, j, m.At(i, j))
		}
	}
	return out
}

// gram returns mᵀm.
func gram(m *mat.Dense) *mat.Dense {
	_, nc := m.Dims()
	out := mat.NewDense(nc, nc, nil)
	out.Mul(m.T(), m)
	return out
}

// frobenius is the matrix norm used to rescale the regularization
// weights (spec.md §4.5 step 8): sqrt(sum of squared entries).
func frobenius(m *mat.Dense) float64 {
	nr, nc := m.Dims()
	sum := 0.0
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			v := m.At(i, j)
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}
