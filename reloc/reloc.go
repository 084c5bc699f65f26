// package reloc implements the per-event hypocenter relocator: given a
// current velocity model and, optionally, per-receiver static
// corrections, it re-estimates each event's origin time and position
// independently by Gauss-Newton on the raytracer's predicted travel
// times, with optional clamping and a two-step (x,y)-then-(x,y,z) mode.
package reloc

import (
	"math"
	"sync"

	"github.com/cpmech/gosl/io"
	"github.com/iggcaswy/hypopy/grid"
	"github.com/iggcaswy/hypopy/internal/gn"
	"github.com/iggcaswy/hypopy/model"
	"github.com/iggcaswy/hypopy/raytrace"
)

// Outcome reports per-event relocation diagnostics: final residual norm
// and whether the Gauss-Newton solve ever had to skip an iteration.
type Outcome struct {
	EventID  int
	ResNorm  float64
	Degraded bool
}

// Relocate re-estimates every event in events independently, holding the
// velocity field (and static corrections, if provided) fixed. obs must
// all share the phase P; use RelocatePS for two-phase data.
func Relocate(rt raytrace.Raytracer, g *grid.Grid, slowness []float64, sc []float64, obs []model.Observation, rcv []model.Receiver, events []model.Event, params model.InvParams) ([]model.Event, []Outcome, error) {
	return relocate(rt, g, []slownessField{{s: slowness, phase: model.P}}, []scField{{sc: sc, phase: model.P}}, obs, rcv, events, params)
}

// RelocatePS is the two-phase counterpart: slownessP and slownessS are
// independent fields, observations carry phase. scP and scS are each
// indexed by receiver index directly (unlike the original source's
// _relocPS, which folds S rows into the P static-correction offset —
// see DESIGN.md).
func RelocatePS(rt raytrace.Raytracer, g *grid.Grid, slownessP, slownessS []float64, scP, scS []float64, obs []model.Observation, rcv []model.Receiver, events []model.Event, params model.InvParams) ([]model.Event, []Outcome, error) {
	fields := []slownessField{{s: slownessP, phase: model.P}}
	scFields := []scField{{sc: scP, phase: model.P}}
	if slownessS != nil {
		fields = append(fields, slownessField{s: slownessS, phase: model.S})
		scFields = append(scFields, scField{sc: scS, phase: model.S})
	}
	return relocate(rt, g, fields, scFields, obs, rcv, events, params)
}

type slownessField struct {
	s     []float64
	phase model.Phase
}

func fieldFor(fields []slownessField, ph model.Phase) []float64 {
	for _, f := range fields {
		if f.phase == ph {
			return f.s
		}
	}
	return fields[0].s
}

type scField struct {
	sc    []float64
	phase model.Phase
}

func scFor(fields []scField, ph model.Phase) []float64 {
	for _, f := range fields {
		if f.phase == ph {
			return f.sc
		}
	}
	return nil
}

// relocate runs every event's relocation independently (spec §5: the
// relocation pass is embarrassingly parallel, each worker exclusively
// owning its event's hypocenter row), fork-joining across a pool capped
// at params.Nthreads before returning.
func relocate(rt raytrace.Raytracer, g *grid.Grid, fields []slownessField, sc []scField, obs []model.Observation, rcv []model.Receiver, events []model.Event, params model.InvParams) ([]model.Event, []Outcome, error) {
	out := make([]model.Event, len(events))
	copy(out, events)
	outcomes := make([]Outcome, len(events))

	byEvent := make(map[int][]model.Observation)
	for _, o := range obs {
		byEvent[o.EventID] = append(byEvent[o.EventID], o)
	}

	nw := params.Nthreads
	if nw <= 0 {
		nw = 1
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(nw)
	for w := 0; w < nw; w++ {
		go func() {
			defer wg.Done()
			for ei := range jobs {
				ev := out[ei]
				rows := byEvent[ev.ID]
				if len(rows) == 0 {
					outcomes[ei] = Outcome{EventID: ev.ID}
					continue
				}
				updated, resNorm, degraded := relocateOne(rt, g, fields, sc, rows, rcv, ev, params)
				out[ei] = updated
				outcomes[ei] = Outcome{EventID: ev.ID, ResNorm: resNorm, Degraded: degraded}
			}
		}()
	}
	for ei := range out {
		jobs <- ei
	}
	close(jobs)
	wg.Wait()

	return out, outcomes, nil
}

// relocateOne runs the Gauss-Newton relocation loop for a single event,
// optionally preceded by a 2-column (x,y) pre-step (InvParams.Hypo2Step)
// that iterates to its own convergence before the 4-parameter loop below
// ever runs, matching the original two-phase relocation structure (first
// refine (x,y) alone to convergence, then refine all four parameters).
func relocateOne(rt raytrace.Raytracer, g *grid.Grid, fields []slownessField, sc []scField, rows []model.Observation, rcv []model.Receiver, ev model.Event, params model.InvParams) (model.Event, float64, bool) {
	cur := ev
	degraded := false

	if params.Hypo2Step {
		for it := 0; it < params.MaxItHypo; it++ {
			next, deg, _, delta, ok := stepOnce(rt, g, fields, sc, rows, rcv, cur, params, []int{1, 2})
			if !ok {
				degraded = true
				io.Pfred("reloc: event %d degraded during (x,y) pre-step at iteration %d, keeping last good hypocenter\n", ev.ID, it)
				break
			}
			cur = next
			if deg {
				degraded = true
			}
			if math.Abs(delta[1]) < params.ConvHypo && math.Abs(delta[2]) < params.ConvHypo {
				break
			}
		}
	}

	var resNorm float64
	for it := 0; it < params.MaxItHypo; it++ {
		next, deg, rn, delta, ok := stepOnce(rt, g, fields, sc, rows, rcv, cur, params, []int{0, 1, 2, 3})
		resNorm = rn
		if !ok {
			degraded = true
			io.Pfred("reloc: event %d degraded at iteration %d, keeping last good hypocenter\n", ev.ID, it)
			break
		}
		cur = next
		if deg {
			degraded = true
		}
		if math.Abs(delta[1]) < params.ConvHypo && math.Abs(delta[2]) < params.ConvHypo && math.Abs(delta[3]) < params.ConvHypo {
			break
		}
	}
	return cur, resNorm, degraded
}

// stepOnce builds the Jacobian/residual for the requested column subset,
// solves, clamps, and applies the update, rejecting any trial position
// that falls outside the grid.
func stepOnce(rt raytrace.Raytracer, g *grid.Grid, fields []slownessField, sc []scField, rows []model.Observation, rcv []model.Receiver, cur model.Event, params model.InvParams, cols []int) (next model.Event, degraded bool, resNorm float64, delta []float64, ok bool) {
	n := len(rows)
	sources := make([][3]float64, n)
	receivers := make([][3]float64, n)
	t0s := make([]float64, n)
	for i, o := range rows {
		sources[i] = cur.XYZ()
		receivers[i] = rcv[o.Rcv].XYZ()
		t0s[i] = cur.T0
	}

	byPhase := map[model.Phase][]int{}
	for i, o := range rows {
		byPhase[o.Phase] = append(byPhase[o.Phase], i)
	}

	r := make([]float64, n)
	H4 := make([][]float64, n)
	for ph, idxs := range byPhase {
		sub := make([][3]float64, len(idxs))
		subRcv := make([][3]float64, len(idxs))
		subT0 := make([]float64, len(idxs))
		for k, i := range idxs {
			sub[k] = sources[i]
			subRcv[k] = receivers[i]
			subT0[k] = t0s[i]
		}
		res, err := rt.Raytrace(fieldFor(fields, ph), sub, subRcv, subT0, raytrace.ModeWithRays)
		if err != nil {
			return cur, true, 0, nil, false
		}
		scPhase := scFor(sc, ph)
		for k, i := range idxs {
			corr := 0.0
			if params.UseSC && scPhase != nil && rows[i].Rcv < len(scPhase) {
				corr = scPhase[rows[i].Rcv]
			}
			r[i] = rows[i].Tobs - (res.TT[k] + corr)
			u := takeoff(sources[i], res.Rays[k])
			v0 := res.V0[k]
			if v0 <= 0 {
				v0 = 1
			}
			H4[i] = []float64{1, -u[0] / v0, -u[1] / v0, -u[2] / v0}
		}
	}

	H := make([][]float64, n)
	for i := range H {
		row := make([]float64, len(cols))
		for c, col := range cols {
			row[c] = H4[i][col]
		}
		H[i] = row
	}

	sol, solved := gn.Solve(H, r)
	resNorm = normVec(r)
	if !solved {
		return cur, true, resNorm, nil, false
	}

	full := make([]float64, 4)
	for c, col := range cols {
		full[col] = sol[c]
	}
	if params.ClampReloc {
		clamp(&full, params.Dmax)
	}

	trial := model.Event{ID: cur.ID, T0: cur.T0 + full[0], X: cur.X + full[1], Y: cur.Y + full[2], Z: cur.Z + full[3]}
	if !g.InBounds(trial.XYZ()) {
		return cur, true, resNorm, full, false // trial left the grid: caller must stop, not retry the identical rejected step
	}
	return trial, false, resNorm, full, true
}

// clamp applies the per-iteration step limits dt_max/dx_max in place.
func clamp(delta *[]float64, dmax model.DMax) {
	d := *delta
	if dmax.Dt > 0 {
		d[0] = clampAbs(d[0], dmax.Dt)
	}
	if dmax.Dx > 0 {
		d[1] = clampAbs(d[1], dmax.Dx)
		d[2] = clampAbs(d[2], dmax.Dx)
		d[3] = clampAbs(d[3], dmax.Dx)
	}
}

func clampAbs(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

// takeoff returns the unit vector from src to the first interior point of
// the ray (the take-off direction), falling back to the straight-line
// direction to the last point if the ray has only two points.
func takeoff(src [3]float64, ray [][3]float64) [3]float64 {
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

func normVec(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
