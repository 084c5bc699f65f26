package joint

import (
	"github.com/cpmech/gosl/utl"
	"github.com/iggcaswy/hypopy/model"
)

// orderByEvent returns obs reordered so that all rows of an event are
// contiguous, per-event in sorted-unique event-ID order (spec.md §5:
// "Per-event block order in M1 follows the sorted unique event-ID
// order"), and the event IDs in that same order. Within an event,
// relative input order is preserved.
func orderByEvent(obs []model.Observation) ([]model.Observation, []int) {
	ids := make([]int, len(obs))
	for i, o := range obs {
		ids[i] = o.EventID
	}
	order := utl.IntUnique(ids)

	byID := make(map[int][]model.Observation, len(order))
	for _, o := range obs {
		byID[o.EventID] = append(byID[o.EventID], o)
	}
	out := make([]model.Observation, 0, len(obs))
	for _, id := range order {
		out = append(out, byID[id]...)
	}
	return out, order
}

// eventGroups splits ordered observations (as returned by orderByEvent)
// back into per-event row slices, in the same event order.
func eventGroups(ordered []model.Observation, order []int) [][]model.Observation {
	byID := make(map[int][]model.Observation, len(order))
	for _, o := range ordered {
		byID[o.EventID] = append(byID[o.EventID], o)
	}
	out := make([][]model.Observation, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	return out
}

// sourcesFor builds the raytracer sources/receivers/t0 arrays for a
// (possibly grouped) observation slice, looking up each event's current
// hypocenter.
func sourcesFor(obs []model.Observation, hypoByID map[int]model.Event, rcv []model.Receiver) (sources, receivers [][3]float64, t0 []float64) {
	n := len(obs)
	sources = make([][3]float64, n)
	receivers = make([][3]float64, n)
	t0 = make([]float64, n)
	for i, o := range obs {
		ev := hypoByID[o.EventID]
		sources[i] = ev.XYZ()
		receivers[i] = rcv[o.Rcv].XYZ()
		t0[i] = ev.T0
	}
	return
}

func indexByID(hypo []model.Event) map[int]model.Event {
	m := make(map[int]model.Event, len(hypo))
	for _, e := range hypo {
		m[e.ID] = e
	}
	return m
}

// orderByShot is the calibration-shot analogue of orderByEvent.
func orderByShot(cal []model.CalibShot) ([]model.CalibShot, []int) {
	ids := make([]int, len(cal))
	for i, c := range cal {
		ids[i] = c.ID
	}
	order := utl.IntUnique(ids)

	byID := make(map[int][]model.CalibShot, len(order))
	for _, c := range cal {
		byID[c.ID] = append(byID[c.ID], c)
	}
	out := make([]model.CalibShot, 0, len(cal))
	for _, id := range order {
		out = append(out, byID[id]...)
	}
	return out, order
}

func shotGroups(ordered []model.CalibShot, order []int) [][]model.CalibShot {
	byID := make(map[int][]model.CalibShot, len(order))
	for _, c := range ordered {
		byID[c.ID] = append(byID[c.ID], c)
	}
	out := make([][]model.CalibShot, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	return out
}

func calibSources(cal []model.CalibShot, rcv []model.Receiver) (sources, receivers [][3]float64, t0 []float64) {
	n := len(cal)
	sources = make([][3]float64, n)
	receivers = make([][3]float64, n)
	t0 = make([]float64, n)
	for i, c := range cal {
		sources[i] = c.XYZ()
		receivers[i] = rcv[c.Rcv].XYZ()
		t0[i] = 0
	}
	return
}
