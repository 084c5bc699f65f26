package joint

import (
	"github.com/iggcaswy/hypopy/grid"
	"gonum.org/v1/gonum/mat"
)

// diagPadded builds an N x (N+extra) matrix whose left N x N block is
// diag(d) and whose remaining extra columns are zero — the padding
// spec.md §4.5 step 9 applies to dP before forming dP1ᵀdP1/dP1ᵀP.
func diagPadded(d []float64, extra int) *mat.Dense {
	n := len(d)
	m := mat.NewDense(n, n+extra, nil)
	for i, v := range d {
		m.Set(i, i, v)
	}
	return m
}

// matVec computes m*v as a plain slice.
func matVec(m *mat.Dense, v []float64) []float64 {
	nr, nc := m.Dims()
	vv := mat.NewVecDense(nc, v)
	out := mat.NewVecDense(nr, nil)
	out.MulVec(m, vv)
	res := make([]float64, nr)
	for i := range res {
		res[i] = out.AtVec(i)
	}
	return res
}

// matTVec computes mᵀ*v as a plain slice.
func matTVec(m *mat.Dense, v []float64) []float64 {
	nr, _ := m.Dims()
	vv := mat.NewVecDense(nr, v)
	_, nc := m.Dims()
	out := mat.NewVecDense(nc, nil)
	out.MulVec(m.T(), vv)
	res := make([]float64, nc)
	for i := range res {
		res[i] = out.AtVec(i)
	}
	return res
}

func addInPlace(dst *mat.Dense, scale float64, src *mat.Dense) {
	var scaled mat.Dense
	scaled.Scale(scale, src)
	dst.Add(dst, &scaled)
}

func addVec(dst []float64, scale float64, src []float64) {
	for i := range dst {
		dst[i] += scale * src[i]
	}
}

// addU1U1T adds the rank-1 zero-sum-of-P-static-corrections term
// u1·u1ᵀ to A in place: u1 is 1 on the nstaEff columns starting at
// scPOffset, 0 elsewhere (spec.md §4.5 step 9).
func addU1U1T(A *mat.Dense, scPOffset, nstaEff int) {
	for i := 0; i < nstaEff; i++ {
		for j := 0; j < nstaEff; j++ {
			r, c := scPOffset+i, scPOffset+j
			A.Set(r, c, A.At(r, c)+1)
		}
	}
}

// subU1Sum subtracts u1·(sum of sc_p) from b in place.
func subU1Sum(b []float64, scPOffset, nstaEff int, sc []float64) {
	sum := 0.0
	for _, v := range sc {
		sum += v
	}
	for i := 0; i < nstaEff; i++ {
		b[scPOffset+i] -= sum
	}
}

// smoothingTerm returns Kx1ᵀ(Kx·V) for one smoothing axis, where Kx1 is
// Kx padded with zero static-correction columns.
func smoothingTerm(Kx *grid.SparseD, Kx1 *mat.Dense, V []float64) []float64 {
	KxV := Kx.MulVec(V)
	return matTVec(Kx1, KxV)
}

// tieTerm returns D1ᵀ(vpts - D·V), the velocity tie-point contribution
// to b.
func tieTerm(D *grid.SparseD, D1 *mat.Dense, V, vpts []float64) []float64 {
	DV := D.MulVec(V)
	diff := make([]float64, len(vpts))
	for i := range diff {
		diff[i] = vpts[i] - DV[i]
	}
	return matTVec(D1, diff)
}

// block2DiagPadded duplicates a single-phase N x N smoothing operator
// block-diagonally across a P sub-block and an S sub-block, each padded
// with its own nstaEff zero static-correction columns, to match the
// two-phase column layout [Vp(N) | Vs_or_ratio(N) | sc_p(nstaEff) |
// sc_s(nstaEff)] (spec.md §4.5 step 7).
func block2DiagPadded(m *mat.Dense, n, nstaEff int) *mat.Dense {
	ncols := 2*n + 2*nstaEff
	out := mat.NewDense(2*n, ncols, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, m.At(i, j))
			out.Set(n+i, n+j, m.At(i, j))
		}
	}
	return out
}

// diag2Padded builds the two-phase analogue of diagPadded: dP/dPs occupy
// the diagonal of the Vp/Vs sub-blocks, the static-correction columns
// stay zero.
func diag2Padded(dPp, dPs []float64, nstaEff int) *mat.Dense {
	n := len(dPp)
	ncols := 2*n + 2*nstaEff
	m := mat.NewDense(2*n, ncols, nil)
	for i, v := range dPp {
		m.Set(i, i, v)
	}
	for i, v := range dPs {
		m.Set(n+i, n+i, v)
	}
	return m
}

// tieBlock2Padded stacks the P and S tie-point interpolation operators
// (each may be nil if that phase has no tie points) into one
// block-diagonal two-phase D1 operator: P rows over the Vp columns, then
// S rows over the Vs columns.
func tieBlock2Padded(tieDP, tieDS *grid.SparseD, n, nstaEff int) *mat.Dense {
	ncols := 2*n + 2*nstaEff
	mp, ms := 0, 0
	if tieDP != nil {
		mp = tieDP.Rows
	}
	if tieDS != nil {
		ms = tieDS.Rows
	}
	out := mat.NewDense(mp+ms, ncols, nil)
	if tieDP != nil {
		dp := tieDP.Dense()
		for i := 0; i < mp; i++ {
			for j := 0; j < n; j++ {
				out.Set(i, j, dp.At(i, j))
			}
		}
	}
	if tieDS != nil {
		ds := tieDS.Dense()
		for i := 0; i < ms; i++ {
			for j := 0; j < n; j++ {
				out.Set(mp+i, n+j, ds.At(i, j))
			}
		}
	}
	return out
}

// smoothingTerm2 returns K1ᵀ(K·V) for the two-phase block-diagonal
// operator, where K operates on the concatenated [Vp | Vs] vector VV.
func smoothingTerm2(K1 *mat.Dense, K *grid.SparseD, n int, VV []float64) []float64 {
	Vp := VV[:n]
	Vs := VV[n:]
	KVp := K.MulVec(Vp)
	KVs := K.MulVec(Vs)
	KV := append(append([]float64{}, KVp...), KVs...)
	return matTVec(K1, KV)
}

// tieTerm2 returns D1ᵀ(vpts - D·V) for the two-phase block-diagonal tie
// operator, vpts being the P tie values followed by the S tie values.
func tieTerm2(tieDP, tieDS *grid.SparseD, D1 *mat.Dense, Vp, Vs, tieValsP, tieValsS []float64) []float64 {
	var diff []float64
	if tieDP != nil {
		DV := tieDP.MulVec(Vp)
		for i := range tieValsP {
			diff = append(diff, tieValsP[i]-DV[i])
		}
	}
	if tieDS != nil {
		DV := tieDS.MulVec(Vs)
		for i := range tieValsS {
			diff = append(diff, tieValsS[i]-DV[i])
		}
	}
	return matTVec(D1, diff)
}
