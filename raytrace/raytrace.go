// package raytrace defines the uniform interface onto the external
// eikonal raytracing engine (out of scope for this core, per the
// specification) and the sparse per-event sensitivity block it must
// return.
package raytrace

import (
	"github.com/cpmech/gosl/la"
	"gonum.org/v1/gonum/mat"
)

// Mode selects how much of the raytracer's output a caller needs, since
// rays/v0/Mev are comparatively expensive to produce.
type Mode int

const (
	// ModeTimesOnly requests travel times only.
	ModeTimesOnly Mode = iota
	// ModeWithRays additionally requests rays and initial-segment
	// velocities.
	ModeWithRays
	// ModeFull additionally requests the per-event sensitivity blocks.
	ModeFull
)

// EventBlock is the sparse partial-derivative block
// dt_calc/ds for one distinct event or calibration shot (sources sharing
// identical coordinates are grouped), shape (nst_event, N). Entries are
// mirrored into plain row/col/val slices alongside the gosl la.Triplet,
// the same pattern grid.SparseD uses, so the joint inverter can convert a
// block to a dense gonum matrix for its Gram-matrix assembly without
// relying on la.CCMatrix's internal layout.
type EventBlock struct {
	NSt  int // number of observations/receivers for this event
	N    int // number of grid nodes (columns)
	Trip *la.Triplet
	rows, cols []int
	vals       []float64
}

// NewEventBlock allocates a block for nst observations over an N-node
// grid, reserving nnzMax entries.
func NewEventBlock(nst, n, nnzMax int) EventBlock {
	t := new(la.Triplet)
	t.Init(nst, n, nnzMax)
	return EventBlock{NSt: nst, N: n, Trip: t}
}

// Put records one nonzero entry dt_calc[row]/ds[col].
func (b *EventBlock) Put(row, col int, val float64) {
	b.rows = append(b.rows, row)
	b.cols = append(b.cols, col)
	b.vals = append(b.vals, val)
	b.Trip.Put(row, col, val)
}

// CC converts the block to compressed-column form for use with
// la.SpMatVecMulAdd / la.SpMatTrVecMulAdd.
func (b *EventBlock) CC() *la.CCMatrix {
	return b.Trip.ToMatrix(nil)
}

// Dense converts the block to a dense gonum matrix for the joint
// inverter's Gram-matrix assembly (see grid.SparseD.Dense).
func (b *EventBlock) Dense() *mat.Dense {
	d := mat.NewDense(b.NSt, b.N, nil)
	for k := range b.vals {
		i, j, x := b.rows[k], b.cols[k], b.vals[k]
		d.Set(i, j, d.At(i, j)+x)
	}
	return d
}

// Result is the output of one raytrace call.
type Result struct {
	TT    []float64      // predicted travel time, including t0
	Rays  [][][3]float64 // one polyline per source/receiver pair; Rays[i][1] is the first interior point
	V0    []float64      // scalar velocity along the initial ray segment at the source
	Mev   []EventBlock   // one entry per distinct event/shot, in the order sources first appear
}

// Raytracer is the uniform interface onto the external eikonal engine:
// given a slowness field, sources, receivers and origin times, it
// returns predicted travel times and (depending on mode) rays,
// initial-segment velocities and per-event sensitivity blocks. Callers
// always supply identical source coordinates for all observations of the
// same event; that is the grouping key for Mev.
type Raytracer interface {
	Raytrace(slowness []float64, sources, receivers [][3]float64, t0 []float64, mode Mode) (Result, error)
}
