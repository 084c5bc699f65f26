// package hypoloc implements the standalone constant-velocity hypocenter
// locator used to seed the joint solver (spec.md §4.2): single-phase
// Locate and two-phase LocatePS, sharing one Gauss-Newton core.
package hypoloc

import (
	"math"
	"sort"

	"github.com/cpmech/gosl/io"
	"github.com/iggcaswy/hypopy/internal/gn"
	"github.com/iggcaswy/hypopy/model"
)

// Locate runs Gauss-Newton hypocenter location at a single, constant
// velocity V. obs and hinit may span many events; events are processed
// independently, grouped by EventID in sorted order. res[e][it] is the
// residual norm at the start of iteration it for the e-th event in that
// sorted order.
func Locate(obs []model.Observation, rcv []model.Receiver, v float64, hinit []model.Event, maxit int, convh float64) (hypo []model.Event, res [][]float64, err error) {
	return locate(obs, rcv, hinit, maxit, convh, func(model.Phase) float64 { return v })
}

// LocatePS is the two-phase counterpart: velocity is selected per
// observation by phase.
func LocatePS(obs []model.Observation, rcv []model.Receiver, vp, vs float64, hinit []model.Event, maxit int, convh float64) (hypo []model.Event, res [][]float64, err error) {
	return locate(obs, rcv, hinit, maxit, convh, func(ph model.Phase) float64 {
		if ph == model.S {
			return vs
		}
		return vp
	})
}

// locate is the shared Gauss-Newton driver for Locate/LocatePS: per-
// observation velocity is supplied by velOf, keeping the single- and
// two-phase entry points from drifting apart.
func locate(obs []model.Observation, rcv []model.Receiver, hinit []model.Event, maxit int, convh float64, velOf func(model.Phase) float64) (hypo []model.Event, res [][]float64, err error) {
	byEvent := groupByEvent(obs)
	ids := sortedEventIDs(byEvent)

	hypo = cloneEvents(hinit)
	idx := indexEvents(hypo)

	res = make([][]float64, len(ids))
	for e := range res {
		res[e] = make([]float64, maxit)
	}

	for e, eid := range ids {
		hi, ok := idx[eid]
		if !ok {
			continue // no initial hypocenter supplied for this event; skip with no diagnostic needed beyond this
		}
		rows := byEvent[eid]

		for it := 0; it < maxit; it++ {
			cur := hypo[hi]
			H := make([][]float64, len(rows))
			r := make([]float64, len(rows))
			for i, o := range rows {
				s := rcv[o.Rcv]
				V := velOf(o.Phase)
				dx := s.X - cur.X
				dy := s.Y - cur.Y
				dz := s.Z - cur.Z
				ds := math.Sqrt(dx*dx + dy*dy + dz*dz)
				tcalc := cur.T0 + ds/V
				H[i] = []float64{1, -dx / (V * ds), -dy / (V * ds), -dz / (V * ds)}
				r[i] = o.Tobs - tcalc
			}
			res[e][it] = norm(r)

			delta, solved := gn.Solve(H, r)
			if !solved {
				io.Pfred("hypoloc: event %d could not be relocated (iteration %d), skipping\n", eid, it)
				break
			}

			hypo[hi].T0 += delta[0]
			hypo[hi].X += delta[1]
			hypo[hi].Y += delta[2]
			hypo[hi].Z += delta[3]

			if math.Abs(delta[1]) < convh && math.Abs(delta[2]) < convh && math.Abs(delta[3]) < convh {
				break
			}
		}
	}
	return hypo, res, nil
}

func groupByEvent(obs []model.Observation) map[int][]model.Observation {
	m := make(map[int][]model.Observation)
	for _, o := range obs {
		m[o.EventID] = append(m[o.EventID], o)
	}
	return m
}

func sortedEventIDs(byEvent map[int][]model.Observation) []int {
	ids := make([]int, 0, len(byEvent))
	for id := range byEvent {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func cloneEvents(in []model.Event) []model.Event {
	out := make([]model.Event, len(in))
	copy(out, in)
	return out
}

func indexEvents(evs []model.Event) map[int]int {
	idx := make(map[int]int, len(evs))
	for i, e := range evs {
		idx[e.ID] = i
	}
	return idx
}

func norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
