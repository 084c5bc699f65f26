package gn

import (
	"testing"

	"github.com/cpmech/gosl/chk"
)

func TestSolveWellPosed(tst *testing.T) {
	chk.PrintTitle("gn.Solve: well-posed 2x2 system")

	// H delta = r with H square and invertible; HtH delta = Ht r then has
	// the exact same solution as H delta = r for a square, invertible H.
	H := [][]float64{
		{1, 0},
		{0, 1},
	}
	r := []float64{2, 3}

	delta, ok := Solve(H, r)
	if !ok {
		tst.Fatal("Solve failed on a well-posed system")
	}
	chk.Vector(tst, "delta", 1e-12, delta, []float64{2, 3})
}

func TestSolveSingularFallsBackToSVD(tst *testing.T) {
	chk.PrintTitle("gn.Solve: singular system falls back to SVD pseudo-inverse")

	// two identical rows => HtH singular
	H := [][]float64{
		{1, 1},
		{1, 1},
	}
	r := []float64{2, 2}

	delta, ok := Solve(H, r)
	if !ok {
		tst.Fatal("Solve should recover via SVD pseudo-inverse fallback")
	}
	for _, v := range delta {
		if v != v { // NaN check
			tst.Fatal("delta contains NaN")
		}
	}
}
