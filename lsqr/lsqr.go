// package lsqr implements the Paige & Saunders LSQR iterative
// least-squares solver used by the joint inverter to solve the damped,
// regularized normal system without ever forming AᵀA explicitly. It
// operates through the Op interface so the caller may back it with a
// dense or sparse assembly.
package lsqr

import (
	"math"

	"github.com/cpmech/gosl/la"
)

// Op is the abstract linear operator LSQR needs: forward and transpose
// matrix-vector products, plus shape.
type Op interface {
	Rows() int
	Cols() int
	MulVec(x []float64) []float64  // y = A x,  len(y)=Rows()
	MulTVec(y []float64) []float64 // x = Aᵀ y, len(x)=Cols()
}

// Params controls the LSQR iteration.
type Params struct {
	Damp    float64 // Tikhonov damping factor; 0 disables it
	MaxIter int
	Tol     float64 // stop when ResNorm/||b|| falls below Tol
}

// DefaultParams mirrors the conservative defaults used throughout the
// joint inverter.
func DefaultParams() Params {
	return Params{Damp: 0, MaxIter: 200, Tol: 1e-8}
}

// Stats reports how the solve terminated.
type Stats struct {
	Iterations int
	ResNorm    float64 // sqrt(||b - A x||^2 + damp^2 ||x||^2); ||b - A x|| when undamped
	Converged  bool
}

// Solve finds x minimizing ||Ax - b||^2 + damp^2 ||x||^2 by LSQR, per
// Paige & Saunders (1982). It never forms AᵀA.
func Solve(op Op, b []float64, p Params) (x []float64, stats Stats) {
	m, n := op.Rows(), op.Cols()
	x = make([]float64, n)

	u := make([]float64, m)
	la.VecCopy(u, 1, b)
	beta := la.VecNorm(u)
	if beta > 0 {
		la.VecScale(u, 0, 1/beta, u)
	}

	v := op.MulTVec(u)
	alpha := la.VecNorm(v)
	if alpha > 0 {
		la.VecScale(v, 0, 1/alpha, v)
	}

	w := make([]float64, n)
	la.VecCopy(w, 1, v)

	phibar := beta
	rhobar := alpha
	bnorm := beta

	if beta == 0 || alpha == 0 {
		// b is already zero, or Aᵀb is zero: x=0 solves it.
		return x, Stats{Iterations: 0, ResNorm: beta, Converged: true}
	}

	damp := p.Damp
	maxIter := p.MaxIter
	if maxIter <= 0 {
		maxIter = 200
	}

	// res2 accumulates the damping term's contribution to the residual
	// norm across iterations (Paige & Saunders 1982 eq. for the damped
	// case); phibar alone only estimates ||b-Ax|| when damp==0.
	res2 := 0.0
	rnorm := phibar

	it := 0
	for ; it < maxIter; it++ {
		// bidiagonalization step: u, beta
		Av := op.MulVec(v)
		uNext := make([]float64, m)
		la.VecAdd2(uNext, 1, Av, -alpha, u)
		beta = la.VecNorm(uNext)
		if beta > 0 {
			la.VecScale(uNext, 0, 1/beta, uNext)
		}
		u = uNext

		// bidiagonalization step: v, alpha
		Atu := op.MulTVec(u)
		vNext := make([]float64, n)
		la.VecAdd2(vNext, 1, Atu, -beta, v)
		alpha = la.VecNorm(vNext)
		if alpha > 0 {
			la.VecScale(vNext, 0, 1/alpha, vNext)
		}
		v = vNext

		// damped orthogonal transformation
		rhobar1 := rhobar
		if damp != 0 {
			rhobar1 = math.Hypot(rhobar, damp)
		}
		c1 := rhobar / rhobar1
		s1 := 0.0
		if damp != 0 {
			s1 = damp / rhobar1
		}
		psi := s1 * phibar
		phibar = c1 * phibar

		rho := math.Hypot(rhobar1, beta)
		c := rhobar1 / rho
		s := beta / rho
		theta := s * alpha
		rhobar = -c * alpha
		phi := c * phibar
		phibar = s * phibar

		la.VecAdd2(x, 1, x, phi/rho, w)
		la.VecAdd2(w, 1, v, -theta/rho, w)

		res2 += psi * psi
		rnorm = math.Sqrt(phibar*phibar + res2)
		if rnorm <= p.Tol*bnorm || alpha == 0 {
			it++
			break
		}
	}

	return x, Stats{Iterations: it, ResNorm: rnorm, Converged: rnorm <= p.Tol*bnorm}
}
