package raytrace

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/iggcaswy/hypopy/grid"
)

func TestStraightRayConstantVelocity(tst *testing.T) {
	chk.PrintTitle("raytrace.StraightRay: constant-velocity travel time")

	g, err := New3x3x3Grid()
	if err != nil {
		tst.Fatal(err)
	}
	slowness := make([]float64, g.N)
	for i := range slowness {
		slowness[i] = 1.0 / 2.0 // V=2 everywhere
	}
	rt := &StraightRay{Grid: g}

	src := [3]float64{0.5, 0.5, 0.5}
	rcv := [3]float64{1.5, 0.5, 0.5}
	res, err := rt.Raytrace(slowness, [][3]float64{src}, [][3]float64{rcv}, []float64{0}, ModeFull)
	if err != nil {
		tst.Fatal(err)
	}
	want := distance(src, rcv) / 2.0
	chk.Scalar(tst, "tt", 1e-10, res.TT[0], want)
	chk.IntAssert(len(res.Mev), 1)
	chk.Scalar(tst, "v0", 1e-10, res.V0[0], 2.0)
}

// New3x3x3Grid is a small helper grid shared by raytrace tests.
func New3x3x3Grid() (*grid.Grid, error) {
	axis := []float64{0, 1, 2}
	return grid.New(axis, axis, axis, 1)
}

func TestDistance(tst *testing.T) {
	d := distance([3]float64{0, 0, 0}, [3]float64{3, 4, 0})
	if math.Abs(d-5) > 1e-12 {
		tst.Fatalf("got %v want 5", d)
	}
}
