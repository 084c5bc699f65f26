package lsqr

import "gonum.org/v1/gonum/mat"

// DenseOp adapts a *mat.Dense design matrix to the Op interface, for
// callers (the joint inverter) that assemble their system densely rather
// than through gosl/la sparse types.
type DenseOp struct {
	A *mat.Dense
}

func (d DenseOp) Rows() int { r, _ := d.A.Dims(); return r }
func (d DenseOp) Cols() int { _, c := d.A.Dims(); return c }

func (d DenseOp) MulVec(x []float64) []float64 {
	_, c := d.A.Dims()
	xv := mat.NewVecDense(c, x)
	r, _ := d.A.Dims()
	y := mat.NewVecDense(r, nil)
	y.MulVec(d.A, xv)
	out := make([]float64, r)
	for i := range out {
		out[i] = y.AtVec(i)
	}
	return out
}

func (d DenseOp) MulTVec(y []float64) []float64 {
	r, _ := d.A.Dims()
	yv := mat.NewVecDense(r, y)
	_, c := d.A.Dims()
	x := mat.NewVecDense(c, nil)
	x.MulVec(d.A.T(), yv)
	out := make([]float64, c)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out
}
