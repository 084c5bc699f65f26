// package gn implements the small dense Gauss-Newton normal-equation
// solve shared by the constant-velocity locator (hypoloc) and the
// per-event relocator (reloc): build HᵀH and Hᵀr, invert with a
// tolerant Gaussian elimination, and fall back to a Tikhonov-regularized
// SVD pseudo-inverse when the normal equations are singular or
// non-finite.
package gn

import (
	"math"

	"github.com/cpmech/gosl/la"
	"gonum.org/v1/gonum/mat"
)

// Ridge is the Tikhonov regularization added to HᵀH before the SVD
// pseudo-inverse fallback, per the specification's "1e-9·I" ridge.
const Ridge = 1e-9

// Tol is the singularity tolerance passed to the primary la.MatInvG solve.
const Tol = 1e-10

// Solve solves (HᵀH) delta = Hᵀr for delta, where H is nobs x ncol and r
// is length nobs. It first attempts a direct inverse of HᵀH via
// la.MatInvG; if that fails or yields a non-finite result it falls back
// to an SVD pseudo-inverse of HᵀH + Ridge·I. ok is false when both paths
// fail, signalling the caller should skip this event/iteration.
func Solve(H [][]float64, r []float64) (delta []float64, ok bool) {
	nobs := len(H)
	if nobs == 0 {
		return nil, false
	}
	ncol := len(H[0])

	HtH := la.MatAlloc(ncol, ncol)
	Htr := make([]float64, ncol)
	for i := 0; i < nobs; i++ {
		row := H[i]
		for a := 0; a < ncol; a++ {
			Htr[a] += row[a] * r[i]
			for b := 0; b < ncol; b++ {
				HtH[a][b] += row[a] * row[b]
			}
		}
	}

	inv := la.MatAlloc(ncol, ncol)
	if err := la.MatInvG(inv, HtH, Tol); err == nil {
		delta = make([]float64, ncol)
		la.MatVecMul(delta, 1, inv, Htr)
		if allFinite(delta) {
			return delta, true
		}
	}

	return svdFallback(HtH, Htr, ncol)
}

// svdFallback builds the SVD pseudo-inverse of HtH + Ridge*I and applies
// it to Htr, per the specification's degenerate-system recovery path.
func svdFallback(HtH [][]float64, Htr []float64, ncol int) (delta []float64, ok bool) {
	A := mat.NewDense(ncol, ncol, nil)
	for i := 0; i < ncol; i++ {
		for j := 0; j < ncol; j++ {
			v := HtH[i][j]
			if i == j {
				v += Ridge
			}
			A.Set(i, j, v)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDFull) {
		return nil, false
	}

	var pinv mat.Dense
	if err := pinv.Inverse(&svd); err != nil {
		// fall back to manual pseudo-inverse via singular values/vectors
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		s := svd.Values(nil)
		p := mat.NewDense(ncol, ncol, nil)
		for k := 0; k < ncol; k++ {
			if s[k] <= 1e-14 {
				continue
			}
			inv := 1 / s[k]
			for i := 0; i < ncol; i++ {
				for j := 0; j < ncol; j++ {
					p.Set(i, j, p.At(i, j)+v.At(i, k)*inv*u.At(j, k))
				}
			}
		}
		pinv = *p
	}

	b := mat.NewVecDense(ncol, Htr)
	var x mat.VecDense
	x.MulVec(&pinv, b)

	delta = make([]float64, ncol)
	for i := 0; i < ncol; i++ {
		delta[i] = x.AtVec(i)
	}
	if !allFinite(delta) {
		return nil, false
	}
	return delta, true
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
