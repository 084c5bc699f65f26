package reloc

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/iggcaswy/hypopy/grid"
	"github.com/iggcaswy/hypopy/model"
	"github.com/iggcaswy/hypopy/raytrace"
)

func uniformGrid(tst *testing.T, n int, h float64) *grid.Grid {
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = float64(i) * h
	}
	g, err := grid.New(axis, axis, axis, 1)
	if err != nil {
		tst.Fatal(err)
	}
	return g
}

func constSlowness(g *grid.Grid, v float64) []float64 {
	s := make([]float64, g.N)
	for i := range s {
		s[i] = 1 / v
	}
	return s
}

func ring() []model.Receiver {
	return []model.Receiver{
		{X: 1, Y: 5, Z: 5}, {X: 9, Y: 5, Z: 5},
		{X: 5, Y: 1, Z: 5}, {X: 5, Y: 9, Z: 5},
		{X: 5, Y: 5, Z: 1}, {X: 5, Y: 5, Z: 9},
		{X: 2, Y: 2, Z: 8},
	}
}

func defaultParams() model.InvParams {
	p := model.DefaultInvParams()
	p.MaxItHypo = 25
	p.ConvHypo = 1e-7
	return p
}

func TestRelocateConvergesWithConstantVelocity(tst *testing.T) {
	chk.PrintTitle("reloc.Relocate: recovers a known hypocenter via StraightRay")

	g := uniformGrid(tst, 11, 1.0)
	slow := constSlowness(g, 4.0)
	rt := &raytrace.StraightRay{Grid: g}
	rcv := ring()

	truth := model.Event{ID: 1, T0: 0.2, X: 5, Y: 5, Z: 5}
	var obs []model.Observation
	for i, s := range rcv {
		dx, dy, dz := s.X-truth.X, s.Y-truth.Y, s.Z-truth.Z
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		obs = append(obs, model.Observation{EventID: truth.ID, Tobs: truth.T0 + d/4.0, Rcv: i})
	}

	guess := []model.Event{{ID: 1, T0: 0, X: 6, Y: 4, Z: 6}}
	out, outcomes, err := Relocate(rt, g, slow, nil, obs, rcv, guess, defaultParams())
	if err != nil {
		tst.Fatal(err)
	}
	chk.Scalar(tst, "x", 1e-3, out[0].X, truth.X)
	chk.Scalar(tst, "y", 1e-3, out[0].Y, truth.Y)
	chk.Scalar(tst, "z", 1e-3, out[0].Z, truth.Z)
	chk.Scalar(tst, "t0", 1e-3, out[0].T0, truth.T0)
	if outcomes[0].Degraded {
		tst.Fatal("did not expect a degraded relocation")
	}
}

func TestRelocateClampLimitsStep(tst *testing.T) {
	chk.PrintTitle("reloc.Relocate: Dmax.Dx clamps a single iteration's step")

	g := uniformGrid(tst, 11, 1.0)
	slow := constSlowness(g, 4.0)
	rt := &raytrace.StraightRay{Grid: g}
	rcv := ring()

	truth := model.Event{ID: 1, T0: 0, X: 5, Y: 5, Z: 5}
	var obs []model.Observation
	for i, s := range rcv {
		dx, dy, dz := s.X-truth.X, s.Y-truth.Y, s.Z-truth.Z
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		obs = append(obs, model.Observation{EventID: truth.ID, Tobs: d / 4.0, Rcv: i})
	}

	params := defaultParams()
	params.MaxItHypo = 1
	params.Dmax.Dx = 1e-6
	guess := []model.Event{{ID: 1, T0: 0, X: 9, Y: 9, Z: 9}}
	out, _, err := Relocate(rt, g, slow, nil, obs, rcv, guess, params)
	if err != nil {
		tst.Fatal(err)
	}
	step := math.Abs(out[0].X - guess[0].X)
	if step > 1e-6+1e-12 {
		tst.Fatalf("expected clamped step <= 1e-6, got %v", step)
	}
}

func TestRelocatePSTwoPhase(tst *testing.T) {
	chk.PrintTitle("reloc.RelocatePS: recovers hypocenter from P+S constant-velocity data")

	g := uniformGrid(tst, 11, 1.0)
	slowP := constSlowness(g, 5.0)
	slowS := constSlowness(g, 2.8)
	rt := &raytrace.StraightRay{Grid: g}
	rcv := ring()

	truth := model.Event{ID: 3, T0: 0.05, X: 4, Y: 6, Z: 5}
	var obs []model.Observation
	for i, s := range rcv {
		dx, dy, dz := s.X-truth.X, s.Y-truth.Y, s.Z-truth.Z
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		obs = append(obs, model.Observation{EventID: truth.ID, Tobs: truth.T0 + d/5.0, Rcv: i, Phase: model.P})
		obs = append(obs, model.Observation{EventID: truth.ID, Tobs: truth.T0 + d/2.8, Rcv: i, Phase: model.S})
	}

	guess := []model.Event{{ID: 3, T0: 0, X: 5, Y: 5, Z: 5}}
	out, _, err := RelocatePS(rt, g, slowP, slowS, nil, nil, obs, rcv, guess, defaultParams())
	if err != nil {
		tst.Fatal(err)
	}
	chk.Scalar(tst, "x", 1e-3, out[0].X, truth.X)
	chk.Scalar(tst, "y", 1e-3, out[0].Y, truth.Y)
	chk.Scalar(tst, "z", 1e-3, out[0].Z, truth.Z)
}

func TestRelocateHypo2StepConvergesXYFirst(tst *testing.T) {
	chk.PrintTitle("reloc.Relocate: Hypo2Step pre-refines (x,y) to its own convergence before the 4-parameter loop")

	g := uniformGrid(tst, 11, 1.0)
	slow := constSlowness(g, 4.0)
	rt := &raytrace.StraightRay{Grid: g}
	rcv := ring()

	truth := model.Event{ID: 1, T0: 0.2, X: 5, Y: 5, Z: 5}
	var obs []model.Observation
	for i, s := range rcv {
		dx, dy, dz := s.X-truth.X, s.Y-truth.Y, s.Z-truth.Z
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		obs = append(obs, model.Observation{EventID: truth.ID, Tobs: truth.T0 + d/4.0, Rcv: i})
	}

	params := defaultParams()
	params.Hypo2Step = true
	guess := []model.Event{{ID: 1, T0: 0, X: 6, Y: 4, Z: 6}}
	out, outcomes, err := Relocate(rt, g, slow, nil, obs, rcv, guess, params)
	if err != nil {
		tst.Fatal(err)
	}
	chk.Scalar(tst, "x", 1e-3, out[0].X, truth.X)
	chk.Scalar(tst, "y", 1e-3, out[0].Y, truth.Y)
	chk.Scalar(tst, "z", 1e-3, out[0].Z, truth.Z)
	chk.Scalar(tst, "t0", 1e-3, out[0].T0, truth.T0)
	if outcomes[0].Degraded {
		tst.Fatal("did not expect a degraded relocation")
	}
}

func TestRelocateRejectsOutOfBoundsTrial(tst *testing.T) {
	chk.PrintTitle("reloc.Relocate: trial position outside the grid is rejected")

	g := uniformGrid(tst, 3, 1.0) // tiny grid, [0,2]^3
	slow := constSlowness(g, 4.0)
	rt := &raytrace.StraightRay{Grid: g}
	rcv := []model.Receiver{{X: 0, Y: 1, Z: 1}, {X: 2, Y: 1, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 2, Z: 1}}

	obs := []model.Observation{
		{EventID: 9, Tobs: 100, Rcv: 0},
		{EventID: 9, Tobs: 100, Rcv: 1},
		{EventID: 9, Tobs: 100, Rcv: 2},
		{EventID: 9, Tobs: 100, Rcv: 3},
	}
	guess := []model.Event{{ID: 9, T0: 0, X: 1, Y: 1, Z: 1}}
	params := defaultParams()
	params.MaxItHypo = 3
	out, outcomes, err := Relocate(rt, g, slow, nil, obs, rcv, guess, params)
	if err != nil {
		tst.Fatal(err)
	}
	if !outcomes[0].Degraded {
		tst.Fatal("expected the wildly inconsistent travel times to push a trial position outside the grid")
	}
	if !g.InBounds(out[0].XYZ()) {
		tst.Fatal("relocator must never leave the hypocenter outside the grid")
	}
}
