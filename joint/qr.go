package joint

import (
	"math"

	"github.com/iggcaswy/hypopy/model"
	"github.com/iggcaswy/hypopy/raytrace"
	"gonum.org/v1/gonum/mat"
)

// householderQR computes the complete (full) QR factorization of the
// nst x ncol matrix H by Householder reflections, returning the
// orthogonal nst x nst matrix Q such that Q R = H for some upper
// triangular R (per spec.md §9, "QR null-space projection": Q is built
// in full/complete mode, not the thin/economy form).
func householderQR(H *mat.Dense) *mat.Dense {
	nst, ncol := H.Dims()
	R := mat.DenseCopyOf(H)
	Q := identity(nst)

	for k := 0; k < ncol; k++ {
		m := nst - k
		x := make([]float64, m)
		for i := 0; i < m; i++ {
			x[i] = R.At(k+i, k)
		}
		nrm := vnorm(x)
		if nrm == 0 {
			continue
		}
		sign := 1.0
		if x[0] < 0 {
			sign = -1.0
		}
		alpha := -sign * nrm
		v := make([]float64, m)
		copy(v, x)
		v[0] -= alpha
		vn := vnorm(v)
		if vn == 0 {
			continue
		}
		for i := range v {
			v[i] /= vn
		}

		// R[k:,k:] -= 2 v (v^T R[k:,k:])
		for j := k; j < ncol; j++ {
			dot := 0.0
			for i := 0; i < m; i++ {
				dot += v[i] * R.At(k+i, j)
			}
			for i := 0; i < m; i++ {
				R.Set(k+i, j, R.At(k+i, j)-2*v[i]*dot)
			}
		}
		// Q[:,k:] -= 2 (Q[:,k:] v) v^T
		for i := 0; i < nst; i++ {
			dot := 0.0
			for jj := 0; jj < m; jj++ {
				dot += Q.At(i, k+jj) * v[jj]
			}
			for jj := 0; jj < m; jj++ {
				Q.Set(i, k+jj, Q.At(i, k+jj)-2*dot*v[jj])
			}
		}
	}
	return Q
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func vnorm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// nullSpaceT returns T = Q[:, 4:]ᵀ, the (nst-4) x nst dense projector
// spanning the left null space of the 4-column hypocenter Jacobian H.
func nullSpaceT(H *mat.Dense) *mat.Dense {
	nst, ncol := H.Dims()
	Q := householderQR(H)
	T := mat.NewDense(nst-ncol, nst, nil)
	for i := 0; i < nst-ncol; i++ {
		for j := 0; j < nst; j++ {
			T.Set(i, j, Q.At(j, ncol+i))
		}
	}
	return T
}

// hypoJacobian builds the nst x 4 hypocenter-derivative matrix for one
// event's observations, using each observation's own ray-based
// take-off direction and initial-segment velocity V0 (spec.md §4.5
// step 4 / §4.3).
func hypoJacobian(src [3]float64, rays [][][3]float64, v0 []float64) *mat.Dense {
	nst := len(rays)
	H := mat.NewDense(nst, 4, nil)
	for i := range rays {
		u := takeoffDir(src, rays[i])
		v := v0[i]
		if v <= 0 {
			v = 1
		}
		H.Set(i, 0, 1)
		H.Set(i, 1, -u[0]/v)
		H.Set(i, 2, -u[1]/v)
		H.Set(i, 3, -u[2]/v)
	}
	return H
}

func takeoffDir(src [3]float64, ray [][3]float64) [3]float64 {
	var target [3]float64
	if len(ray) > 1 {
		target = ray[1]
	} else {
		target = src
	}
	dx, dy, dz := target[0]-src[0], target[1]-src[1], target[2]-src[2]
	d := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if d == 0 {
		return [3]float64{0, 0, 0}
	}
	return [3]float64{dx / d, dy / d, dz / d}
}

// receiverSelector returns the nst x nstaEff one-hot row selector picking
// out the receiver used by each observation, or a zero-column matrix if
// static corrections are disabled.
func receiverSelector(rows []model.Observation, nstaEff int) *mat.Dense {
	S := mat.NewDense(len(rows), nstaEff, nil)
	if nstaEff == 0 {
		return S
	}
	for i, o := range rows {
		if o.Rcv < nstaEff {
			S.Set(i, o.Rcv, 1)
		}
	}
	return S
}

// projectEventRows builds the projected row-block for one event (spec.md
// §4.5 step 4). ok is always true: events with nst < 5 are excluded by the
// caller before this is invoked.
func projectEventRows(rows []model.Observation, src [3]float64, mev *raytrace.EventBlock, v0 []float64, rays [][][3]float64, rEvent []float64, nstaEff, ncols int) (rowBlock, bool) {
	nst := len(rows)
	H := hypoJacobian(src, rays, v0)
	T := nullSpaceT(H)

	MevDense := mev.Dense()
	S := receiverSelector(rows, nstaEff)

	var TM mat.Dense
	TM.Mul(T, MevDense)
	var TS mat.Dense
	TS.Mul(T, S)

	rows_, _ := TM.Dims()
	block := mat.NewDense(rows_, ncols, nil)
	_, nN := MevDense.Dims()
	for i := 0; i < rows_; i++ {
		for j := 0; j < nN; j++ {
			block.Set(i, j, TM.At(i, j))
		}
		for j := 0; j < nstaEff; j++ {
			block.Set(i, nN+j, TS.At(i, j))
		}
	}

	rvec := mat.NewVecDense(nst, nil)
	for i, v := range rEvent {
		rvec.SetVec(i, v)
	}
	var Tr mat.VecDense
	Tr.MulVec(T, rvec)
	rOut := make([]float64, rows_)
	for i := range rOut {
		rOut[i] = Tr.AtVec(i)
	}

	return rowBlock{M: block, r: rOut}, true
}

// calibRowBlock builds the (unprojected) calibration row-block: Mcal
// horizontally concatenated with its receiver selector (spec.md §4.5
// step 5).
func calibRowBlock(rows []model.CalibShot, mev *raytrace.EventBlock, rCal []float64, nstaEff, ncols int) rowBlock {
	return calibRowBlockInto(rows, mev, rCal, nstaEff, ncols, 0, 0)
}

// projectEventRowsInto is the two-phase generalisation of
// projectEventRows: the velocity sub-block lands at column offset
// velOffset and the static-correction sub-block at column offset
// scOffsetBase within the wider ncols-column system (spec.md §4.5 step
// 7: smoothing/static-correction terms are duplicated block-diagonally
// across P and S).
func projectEventRowsInto(rows []model.Observation, src [3]float64, mev *raytrace.EventBlock, v0 []float64, rays [][][3]float64, rEvent []float64, nstaEff, ncols, velOffset, scOffsetBase int) (rowBlock, bool) {
	nst := len(rows)
	H := hypoJacobian(src, rays, v0)
	T := nullSpaceT(H)

	MevDense := mev.Dense()
	S := receiverSelector(rows, nstaEff)

	var TM mat.Dense
	TM.Mul(T, MevDense)
	var TS mat.Dense
	TS.Mul(T, S)

	rows_, _ := TM.Dims()
	block := mat.NewDense(rows_, ncols, nil)
	_, nN := MevDense.Dims()
	for i := 0; i < rows_; i++ {
		for j := 0; j < nN; j++ {
			block.Set(i, velOffset+j, TM.At(i, j))
		}
		for j := 0; j < nstaEff; j++ {
			block.Set(i, scOffsetBase+j, TS.At(i, j))
		}
	}

	rvec := mat.NewVecDense(nst, nil)
	for i, v := range rEvent {
		rvec.SetVec(i, v)
	}
	var Tr mat.VecDense
	Tr.MulVec(T, rvec)
	rOut := make([]float64, rows_)
	for i := range rOut {
		rOut[i] = Tr.AtVec(i)
	}

	return rowBlock{M: block, r: rOut}, true
}

// calibRowBlockInto is the two-phase generalisation of calibRowBlock.
func calibRowBlockInto(rows []model.CalibShot, mev *raytrace.EventBlock, rCal []float64, nstaEff, ncols, velOffset, scOffsetBase int) rowBlock {
	nst := len(rows)
	MevDense := mev.Dense()
	_, nN := MevDense.Dims()

	obsAsSelector := make([]model.Observation, nst)
	for i, c := range rows {
		obsAsSelector[i] = model.Observation{Rcv: c.Rcv}
	}
	S := receiverSelector(obsAsSelector, nstaEff)

	block := mat.NewDense(nst, ncols, nil)
	for i := 0; i < nst; i++ {
		for j := 0; j < nN; j++ {
			block.Set(i, velOffset+j, MevDense.At(i, j))
		}
		for j := 0; j < nstaEff; j++ {
			block.Set(i, scOffsetBase+j, S.At(i, j))
		}
	}
	return rowBlock{M: block, r: rCal}
}
