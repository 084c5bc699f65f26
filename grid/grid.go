// package grid implements the regular 3-D cubic-cell lattice operators
// of the joint hypocenter-velocity inversion core: node indexing, the
// point-in-bounds test, the trilinear interpolation matrix D, and the
// three second-derivative smoothing operators Kx, Ky, Kz.
package grid

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/iggcaswy/hypopy/jherr"
)

// stepTol is the tolerance used to compare cell steps across axes and
// within one axis when checking the cubic-cell invariant.
const stepTol = 1e-9

// Grid is a regular lattice defined by three sorted 1-D coordinate
// vectors with a uniform step h shared by all three axes.
type Grid struct {
	X, Y, Z  []float64 // sorted 1-D coordinate vectors
	Nx, Ny, Nz int     // |x|, |y|, |z|
	H        float64   // common cell size
	N        int       // total node count Nx*Ny*Nz
	Nthreads int        // passed opaquely to the raytracer adapter
}

// New builds a Grid from three sorted coordinate vectors, checking the
// cubic-cell invariant h = x[1]-x[0] = y[1]-y[0] = z[1]-z[0], uniform
// within each axis. Returns a *jherr.Error of kind GridGeometry on any
// violation.
func New(x, y, z []float64, nthreads int) (*Grid, error) {
	if len(x) < 2 || len(y) < 2 || len(z) < 2 {
		return nil, jherr.New(jherr.GridGeometry, "each axis must have at least 2 points, got %d,%d,%d", len(x), len(y), len(z))
	}
	hx := x[1] - x[0]
	hy := y[1] - y[0]
	hz := z[1] - z[0]
	if hx <= 0 || hy <= 0 || hz <= 0 {
		return nil, jherr.New(jherr.GridGeometry, "axis coordinates must be strictly increasing")
	}
	if err := checkUniform(x, hx); err != nil {
		return nil, err
	}
	if err := checkUniform(y, hy); err != nil {
		return nil, err
	}
	if err := checkUniform(z, hz); err != nil {
		return nil, err
	}
	if math.Abs(hx-hy) > stepTol || math.Abs(hy-hz) > stepTol {
		return nil, jherr.New(jherr.GridGeometry, "non-cubic cell: hx=%v hy=%v hz=%v", hx, hy, hz)
	}
	g := &Grid{
		X: x, Y: y, Z: z,
		Nx: len(x), Ny: len(y), Nz: len(z),
		H:        hx,
		Nthreads: nthreads,
	}
	g.N = g.Nx * g.Ny * g.Nz
	return g, nil
}

func checkUniform(v []float64, h float64) error {
	for i := 1; i < len(v); i++ {
		if math.Abs((v[i]-v[i-1])-h) > stepTol {
			return jherr.New(jherr.GridGeometry, "non-uniform step along axis at index %d: got %v want %v", i, v[i]-v[i-1], h)
		}
	}
	return nil
}

// Ind returns the linear node index ind(i,j,k) = (i*Ny+j)*Nz+k.
func (g *Grid) Ind(i, j, k int) int {
	return (i*g.Ny+j)*g.Nz + k
}

// InBounds reports whether p lies within [x0,xN]x[y0,yN]x[z0,zN].
func (g *Grid) InBounds(p [3]float64) bool {
	return inRange(p[0], g.X) && inRange(p[1], g.Y) && inRange(p[2], g.Z)
}

func inRange(v float64, axis []float64) bool {
	return v >= axis[0]-stepTol && v <= axis[len(axis)-1]+stepTol
}

// Cell locates the lower-corner grid indices (i,j,k) of the cell
// enclosing p, along with the fractional offsets (dx,dy,dz) in [0,h]
// from that corner. Returns a PointOutsideGrid error if p is outside the
// grid.
func (g *Grid) Cell(p [3]float64) (i, j, k int, dx, dy, dz float64, err error) {
	if !g.InBounds(p) {
		return 0, 0, 0, 0, 0, 0, jherr.New(jherr.PointOutsideGrid, "point %v outside grid bounds", p)
	}
	i, dx = cellIndex(p[0], g.X, g.H)
	j, dy = cellIndex(p[1], g.Y, g.H)
	k, dz = cellIndex(p[2], g.Z, g.H)
	return
}

func cellIndex(v float64, axis []float64, h float64) (idx int, offset float64) {
	idx = int(math.Floor((v - axis[0]) / h))
	if idx < 0 {
		idx = 0
	}
	if idx > len(axis)-2 {
		idx = len(axis) - 2
	}
	offset = v - axis[idx]
	return
}

// assertSquareStencil panics (chk.Panic, matching the teacher's style for
// internal programming-error checks that should never trigger from valid
// input) if an axis has fewer than 3 points, since the second-derivative
// stencils need a boundary plane plus two neighbors.
func assertSquareStencil(n int, axis string) {
	if n < 3 {
		chk.Panic("grid: axis %s needs at least 3 points for the second-derivative stencil, got %d", axis, n)
	}
}
