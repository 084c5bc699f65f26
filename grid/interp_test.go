package grid

import (
	"testing"

	"github.com/cpmech/gosl/chk"
)

func TestInterpWeightsSumToOne(tst *testing.T) {
	chk.PrintTitle("grid.Interp: trilinear weights sum to 1")

	g, err := New([]float64{0, 1, 2, 3}, []float64{0, 1, 2, 3}, []float64{0, 1, 2, 3}, 1)
	if err != nil {
		tst.Fatal(err)
	}
	pts := [][3]float64{
		{1.2, 1.7, 0.3},
		{0.01, 2.99, 1.5},
		{2.0, 2.0, 2.0}, // exactly on a node
	}
	D, err := g.Interp(pts)
	if err != nil {
		tst.Fatal(err)
	}
	chk.IntAssert(D.Rows, len(pts))
	chk.IntAssert(D.Cols, g.N)

	for row := 0; row < len(pts); row++ {
		sum := 0.0
		nnz := 0
		for k := 0; k < D.NNZ(); k++ {
			r, _, v := D.Entry(k)
			if r == row {
				sum += v
				nnz++
			}
		}
		chk.IntAssert(nnz, 8)
		chk.Scalar(tst, "row weight sum", 1e-12, sum, 1)
	}
}

func TestInterpRejectsOutsidePoint(tst *testing.T) {
	chk.PrintTitle("grid.Interp: point outside grid rejected")

	g, err := New([]float64{0, 1, 2}, []float64{0, 1, 2}, []float64{0, 1, 2}, 1)
	if err != nil {
		tst.Fatal(err)
	}
	_, err = g.Interp([][3]float64{{5, 5, 5}})
	if err == nil {
		tst.Fatal("expected PointOutsideGrid error")
	}
}

func TestInterpReproducesLinearField(tst *testing.T) {
	chk.PrintTitle("grid.Interp: reproduces a linear field exactly")

	g, err := New([]float64{0, 1, 2, 3}, []float64{0, 1, 2, 3}, []float64{0, 1, 2, 3}, 1)
	if err != nil {
		tst.Fatal(err)
	}
	// V(x,y,z) = 2x + 3y - z, sampled at nodes
	V := make([]float64, g.N)
	for i := 0; i < g.Nx; i++ {
		for j := 0; j < g.Ny; j++ {
			for k := 0; k < g.Nz; k++ {
				V[g.Ind(i, j, k)] = 2*g.X[i] + 3*g.Y[j] - g.Z[k]
			}
		}
	}
	D, err := g.Interp([][3]float64{{1.4, 2.1, 0.6}})
	if err != nil {
		tst.Fatal(err)
	}
	got := D.MulVec(V)[0]
	want := 2*1.4 + 3*2.1 - 0.6
	chk.Scalar(tst, "trilinear of linear field", 1e-10, got, want)
}
