package lsqr

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"gonum.org/v1/gonum/mat"
)

func TestSolveWellPosedSquareSystem(tst *testing.T) {
	chk.PrintTitle("lsqr.Solve: recovers the exact solution of a square system")

	A := mat.NewDense(3, 3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	xTrue := []float64{1, -2, 3}
	bv := mat.NewVecDense(3, nil)
	bv.MulVec(A, mat.NewVecDense(3, xTrue))
	b := []float64{bv.AtVec(0), bv.AtVec(1), bv.AtVec(2)}

	x, stats := Solve(DenseOp{A: A}, b, Params{MaxIter: 50, Tol: 1e-12})
	if !stats.Converged {
		tst.Fatalf("expected convergence, got stats=%+v", stats)
	}
	chk.Vector(tst, "x", 1e-6, x, xTrue)
}

func TestSolveOverdeterminedLeastSquares(tst *testing.T) {
	chk.PrintTitle("lsqr.Solve: least-squares fit of an overdetermined system")

	// fit y = a + b*t through noiseless samples at t=0,1,2,3
	A := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 1,
		1, 2,
		1, 3,
	})
	b := []float64{2, 5, 8, 11} // a=2, b=3 exactly

	x, stats := Solve(DenseOp{A: A}, b, Params{MaxIter: 50, Tol: 1e-12})
	if !stats.Converged {
		tst.Fatalf("expected convergence, got stats=%+v", stats)
	}
	if math.Abs(x[0]-2) > 1e-6 || math.Abs(x[1]-3) > 1e-6 {
		tst.Fatalf("got a=%v b=%v, want a=2 b=3", x[0], x[1])
	}
}

func TestSolveDampingShrinksNorm(tst *testing.T) {
	chk.PrintTitle("lsqr.Solve: damping shrinks the solution norm on a rank-deficient system")

	A := mat.NewDense(2, 2, []float64{
		1, 1,
		1, 1,
	})
	b := []float64{2, 2}

	_, undamped := Solve(DenseOp{A: A}, b, Params{MaxIter: 50, Tol: 1e-10})
	xDamped, damped := Solve(DenseOp{A: A}, b, Params{MaxIter: 50, Tol: 1e-10, Damp: 10})
	_ = undamped
	if norm2(xDamped) >= 1.0 {
		tst.Fatalf("expected heavy damping to shrink ||x||, got %v (stats=%+v)", norm2(xDamped), damped)
	}

	// ResNorm must account for the damping term, not just ||b-Ax||.
	op := DenseOp{A: A}
	r := op.MulVec(xDamped)
	for i := range r {
		r[i] = b[i] - r[i]
	}
	want := math.Sqrt(norm2(r)*norm2(r) + 10*10*norm2(xDamped)*norm2(xDamped))
	if math.Abs(damped.ResNorm-want) > 1e-6*math.Max(1, want) {
		tst.Fatalf("damped ResNorm should include the damping term: got %v, want %v", damped.ResNorm, want)
	}
}

func norm2(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
