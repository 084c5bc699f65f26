package joint

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/iggcaswy/hypopy/grid"
	"github.com/iggcaswy/hypopy/jherr"
	"github.com/iggcaswy/hypopy/model"
	"github.com/iggcaswy/hypopy/raytrace"
	"gonum.org/v1/gonum/mat"
)

func TestPenaltyZeroInsideBounds(tst *testing.T) {
	lim := model.VLim{Min: 3, Max: 7, PA: 100}
	P, dP := penalty([]float64{3, 5, 7}, lim)
	for i := range P {
		if P[i] != 0 || dP[i] != 0 {
			tst.Fatalf("expected zero penalty in-bounds at %d, got P=%v dP=%v", i, P[i], dP[i])
		}
	}
}

func TestPenaltyPositiveOutsideBounds(tst *testing.T) {
	lim := model.VLim{Min: 3, Max: 7, PA: 100}
	P, dP := penalty([]float64{2, 8}, lim)
	if P[0] <= 0 || dP[0] >= 0 {
		tst.Fatalf("expected positive penalty, negative slope below Min, got P=%v dP=%v", P[0], dP[0])
	}
	if P[1] <= 0 || dP[1] <= 0 {
		tst.Fatalf("expected positive penalty, positive slope above Max, got P=%v dP=%v", P[1], dP[1])
	}
}

func TestNullSpaceTOrthogonalToHypoJacobian(tst *testing.T) {
	chk.PrintTitle("joint.nullSpaceT: T spans the left null space of H and has orthonormal rows")

	H := mat.NewDense(6, 4, []float64{
		1, -0.2, -0.5, -0.3,
		1, -0.8, -0.1, -0.2,
		1, 0.3, -0.6, -0.1,
		1, -0.4, 0.4, -0.5,
		1, 0.1, 0.2, -0.9,
		1, -0.6, 0.3, 0.4,
	})
	T := nullSpaceT(H)
	nr, nc := T.Dims()
	if nr != 2 || nc != 6 {
		tst.Fatalf("expected T to be 2x6, got %dx%d", nr, nc)
	}

	var TH mat.Dense
	TH.Mul(T, H)
	thr, thc := TH.Dims()
	for i := 0; i < thr; i++ {
		for j := 0; j < thc; j++ {
			if math.Abs(TH.At(i, j)) > 1e-9 {
				tst.Fatalf("T*H not zero at (%d,%d): %v", i, j, TH.At(i, j))
			}
		}
	}

	var TTt mat.Dense
	TTt.Mul(T, T.T())
	for i := 0; i < nr; i++ {
		for j := 0; j < nr; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(TTt.At(i, j)-want) > 1e-9 {
				tst.Fatalf("T rows not orthonormal at (%d,%d): %v", i, j, TTt.At(i, j))
			}
		}
	}
}

func TestOrderByEventGroupsContiguously(tst *testing.T) {
	obs := []model.Observation{
		{EventID: 5, Rcv: 0}, {EventID: 2, Rcv: 1}, {EventID: 5, Rcv: 2},
		{EventID: 2, Rcv: 0}, {EventID: 9, Rcv: 1},
	}
	ordered, order := orderByEvent(obs)
	if len(order) != 3 || order[0] != 2 || order[1] != 5 || order[2] != 9 {
		tst.Fatalf("expected sorted unique order [2 5 9], got %v", order)
	}
	groups := eventGroups(ordered, order)
	if len(groups[0]) != 2 || len(groups[1]) != 2 || len(groups[2]) != 1 {
		tst.Fatalf("unexpected group sizes: %v %v %v", len(groups[0]), len(groups[1]), len(groups[2]))
	}
	for _, o := range groups[0] {
		if o.EventID != 2 {
			tst.Fatalf("group 0 must contain only event 2, got %d", o.EventID)
		}
	}
}

func smallGrid(tst *testing.T) *grid.Grid {
	axis := []float64{0, 2.5, 5, 7.5, 10}
	g, err := grid.New(axis, axis, axis, 1)
	if err != nil {
		tst.Fatal(err)
	}
	return g
}

func ringReceiversJ() []model.Receiver {
	return []model.Receiver{
		{X: 0, Y: 5, Z: 5}, {X: 10, Y: 5, Z: 5},
		{X: 5, Y: 0, Z: 5}, {X: 5, Y: 10, Z: 5},
		{X: 5, Y: 5, Z: 0}, {X: 5, Y: 5, Z: 10},
		{X: 1, Y: 1, Z: 9},
	}
}

func defaultInvParams(n int) model.InvParams {
	p := model.DefaultInvParams()
	p.MaxIt = 3
	p.MaxItHypo = 20
	p.ConvHypo = 1e-6
	p.InvertVel = true
	p.VpLim = model.VLim{Min: 1, Max: 10, PA: 1000}
	p.VsLim = model.VLim{Min: 0.5, Max: 6, PA: 1000}
	p.Lagr = model.Lagrangians{Lmbda: 0.1, Gamma: 1, Alpha: 1, WzK: 1}
	p.Dmax = model.DMax{DVp: 0.5, DVs: 0.3, Dx: 2, Dt: 0.1}
	p.Hypo2Step = false
	p.ClampReloc = true
	return p
}

func TestInvertReducesResidualNorm(tst *testing.T) {
	chk.PrintTitle("joint.Invert: overall residual norm decreases across outer iterations")

	g := smallGrid(tst)
	rt := &raytrace.StraightRay{Grid: g}
	rcv := ringReceiversJ()

	trueV := 5.0
	events := []model.Event{
		{ID: 1, T0: 0.1, X: 4, Y: 5, Z: 5},
		{ID: 2, T0: 0.0, X: 6, Y: 4, Z: 6},
		{ID: 3, T0: 0.2, X: 5, Y: 6, Z: 4},
	}

	var obs []model.Observation
	for _, ev := range events {
		for i, s := range rcv {
			dx, dy, dz := s.X-ev.X, s.Y-ev.Y, s.Z-ev.Z
			d := math.Sqrt(dx*dx + dy*dy + dz*dz)
			obs = append(obs, model.Observation{EventID: ev.ID, Tobs: ev.T0 + d/trueV, Rcv: i})
		}
	}

	vinit := make([]float64, g.N)
	for i := range vinit {
		vinit[i] = 4.3 // off from the true 5.0 km/s
	}
	hinit := []model.Event{
		{ID: 1, T0: 0, X: 4.5, Y: 5.3, Z: 4.8},
		{ID: 2, T0: 0, X: 5.8, Y: 4.2, Z: 6.1},
		{ID: 3, T0: 0, X: 5.1, Y: 5.7, Z: 4.2},
	}

	params := defaultInvParams(g.N)
	result, err := Invert(params, g, rt, obs, rcv, vinit, hinit, nil, nil)
	if err != nil {
		tst.Fatal(err)
	}
	if len(result.ResV) != params.MaxIt+1 {
		tst.Fatalf("expected %d residual-norm samples, got %d", params.MaxIt+1, len(result.ResV))
	}
	if result.ResV[len(result.ResV)-1] >= result.ResV[0] {
		tst.Fatalf("expected residual norm to decrease: first=%v last=%v", result.ResV[0], result.ResV[len(result.ResV)-1])
	}
}

func TestInvertPSRatioModeInvalidTiePoint(tst *testing.T) {
	chk.PrintTitle("joint.InvertPS: uncollocated S tie point in ratio mode is rejected")

	g := smallGrid(tst)
	rt := &raytrace.StraightRay{Grid: g}
	rcv := ringReceiversJ()

	params := defaultInvParams(g.N)
	params.InvertVsVp = true
	params.MaxIt = 1

	tie := []model.TiePoint{
		{V: 5.0, X: 5, Y: 5, Z: 5, Phase: model.P},
		{V: 2.8, X: 7.5, Y: 5, Z: 5, Phase: model.S}, // not collocated with any P tie point
	}

	vinit := make([]float64, g.N)
	for i := range vinit {
		vinit[i] = 5.0
	}
	vsinit := make([]float64, g.N)
	for i := range vsinit {
		vsinit[i] = 2.8
	}
	events := []model.Event{{ID: 1, T0: 0, X: 5, Y: 5, Z: 5}}

	_, err := InvertPS(params, g, rt, nil, rcv, vinit, vsinit, events, nil, tie)
	if err == nil {
		tst.Fatal("expected InvalidTiePoint error")
	}
	if !jherr.As(err, jherr.InvalidTiePoint) {
		tst.Fatalf("expected jherr.InvalidTiePoint, got %v", err)
	}
}

func TestInvertPSRatioModeAcceptsCollocatedTiePoints(tst *testing.T) {
	chk.PrintTitle("joint.InvertPS: ratio mode runs end-to-end with collocated P/S tie points")

	g := smallGrid(tst)
	rt := &raytrace.StraightRay{Grid: g}
	rcv := ringReceiversJ()

	trueVp, trueVs := 5.0, 2.8
	ev := model.Event{ID: 1, T0: 0.05, X: 5, Y: 5, Z: 5}
	var obs []model.Observation
	for i, s := range rcv {
		dx, dy, dz := s.X-ev.X, s.Y-ev.Y, s.Z-ev.Z
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		obs = append(obs, model.Observation{EventID: ev.ID, Tobs: ev.T0 + d/trueVp, Rcv: i, Phase: model.P})
		obs = append(obs, model.Observation{EventID: ev.ID, Tobs: ev.T0 + d/trueVs, Rcv: i, Phase: model.S})
	}

	tie := []model.TiePoint{
		{V: 5.0, X: 5, Y: 5, Z: 5, Phase: model.P},
		{V: 2.8, X: 5, Y: 5, Z: 5, Phase: model.S},
	}

	vpinit := make([]float64, g.N)
	vsinit := make([]float64, g.N)
	for i := range vpinit {
		vpinit[i] = 4.6
		vsinit[i] = 2.5
	}
	hinit := []model.Event{{ID: 1, T0: 0, X: 5.3, Y: 4.8, Z: 5.1}}

	params := defaultInvParams(g.N)
	params.InvertVsVp = true
	params.MaxIt = 2

	result, err := InvertPS(params, g, rt, obs, rcv, vpinit, vsinit, hinit, nil, tie)
	if err != nil {
		tst.Fatal(err)
	}
	if len(result.Vp) != g.N || len(result.Vs) != g.N {
		tst.Fatalf("expected velocity fields of length %d", g.N)
	}
	if result.ResV[len(result.ResV)-1] >= result.ResV[0] {
		tst.Fatalf("expected residual norm to decrease: first=%v last=%v", result.ResV[0], result.ResV[len(result.ResV)-1])
	}
}
