package grid

import (
	"github.com/cpmech/gosl/la"
	"gonum.org/v1/gonum/mat"
)

// SparseD wraps a sparse operator built by this package (the trilinear
// interpolation matrix D or one of the smoothing operators Kx,Ky,Kz).
// Entries are kept in COO form (own row/col/val slices, mirrored into a
// gosl la.Triplet) and converted once to compressed-column form, per the
// teacher's la.Triplet -> la.Triplet.ToMatrix(nil) assembly idiom
// (fem/essenbcs.go).
type SparseD struct {
	Rows, Cols int
	rows, cols []int
	vals       []float64
	trip       *la.Triplet
	CC         *la.CCMatrix
}

// newSparseD allocates a SparseD sized to (rows, cols) with nnzMax
// entries reserved in the underlying la.Triplet.
func newSparseD(rows, cols, nnzMax int) *SparseD {
	t := new(la.Triplet)
	t.Init(rows, cols, nnzMax)
	return &SparseD{
		Rows: rows, Cols: cols,
		rows: make([]int, 0, nnzMax),
		cols: make([]int, 0, nnzMax),
		vals: make([]float64, 0, nnzMax),
		trip: t,
	}
}

// put records one nonzero entry.
func (s *SparseD) put(i, j int, x float64) {
	s.rows = append(s.rows, i)
	s.cols = append(s.cols, j)
	s.vals = append(s.vals, x)
	s.trip.Put(i, j, x)
}

// finalize converts the accumulated triplets to compressed-column form.
func (s *SparseD) finalize() {
	s.CC = s.trip.ToMatrix(nil)
}

// NNZ returns the number of recorded nonzero entries.
func (s *SparseD) NNZ() int { return len(s.vals) }

// Entry returns the k-th recorded (row, col, value) triple, for tests
// that check per-row structure (e.g. "exactly 8 nonzeros per row").
func (s *SparseD) Entry(k int) (row, col int, val float64) {
	return s.rows[k], s.cols[k], s.vals[k]
}

// MulVec computes y = D*x using the compressed-column form, per the
// teacher's la.SpMatVecMulAdd(y, alpha, Am, x) convention
// (fem/essenbcs.go).
func (s *SparseD) MulVec(x []float64) []float64 {
	y := make([]float64, s.Rows)
	la.SpMatVecMulAdd(y, 1, s.CC, x)
	return y
}

// TrMulVec computes y = Dᵀ*x.
func (s *SparseD) TrMulVec(x []float64) []float64 {
	y := make([]float64, s.Cols)
	la.SpMatTrVecMulAdd(y, 1, s.CC, x)
	return y
}

// Dense converts to a gonum dense matrix. Used by the joint inverter to
// assemble the (modest-sized, for this core's intended scale) normal-
// equation Gram matrices with gonum/mat, since gosl/la has no
// sparse-sparse product in the retrieved surface (see DESIGN.md).
func (s *SparseD) Dense() *mat.Dense {
	d := mat.NewDense(s.Rows, s.Cols, nil)
	for k := range s.vals {
		i, j, x := s.rows[k], s.cols[k], s.vals[k]
		d.Set(i, j, d.At(i, j)+x)
	}
	return d
}
