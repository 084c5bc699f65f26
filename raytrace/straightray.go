package raytrace

import (
	"math"

	"github.com/iggcaswy/hypopy/grid"
)

// StraightRay is a constant-local-velocity, straight-line raytracer: a
// test double standing in for the (out-of-scope) eikonal engine. It
// evaluates slowness at the source via the grid's trilinear
// interpolation and assumes it constant along the ray, so travel time is
// simply distance times that slowness. It is intended for the test suite
// and the cmd/hypoinv demo only, not as a production raytracer.
type StraightRay struct {
	Grid *grid.Grid
}

// Raytrace implements Raytracer.
func (s *StraightRay) Raytrace(slowness []float64, sources, receivers [][3]float64, t0 []float64, mode Mode) (Result, error) {
	n := len(sources)
	res := Result{TT: make([]float64, n)}
	if mode >= ModeWithRays {
		res.Rays = make([][][3]float64, n)
		res.V0 = make([]float64, n)
	}

	// group rows by event (identical source coordinates), in first-seen order
	var groupOf []int
	var groupKeys [][3]float64
	nstPerGroup := map[int]int{}
	if mode >= ModeFull {
		groupOf = make([]int, n)
		for i := 0; i < n; i++ {
			g := -1
			for gi, k := range groupKeys {
				if k == sources[i] {
					g = gi
					break
				}
			}
			if g < 0 {
				g = len(groupKeys)
				groupKeys = append(groupKeys, sources[i])
			}
			groupOf[i] = g
			nstPerGroup[g]++
		}
		res.Mev = make([]EventBlock, len(groupKeys))
		for g := range res.Mev {
			res.Mev[g] = NewEventBlock(nstPerGroup[g], s.Grid.N, 8*nstPerGroup[g])
		}
	}

	rowInGroup := map[int]int{}
	for i := 0; i < n; i++ {
		d, err := s.Grid.Interp([][3]float64{sources[i]})
		if err != nil {
			return Result{}, err
		}
		sSrc := d.MulVec(slowness)[0]
		dist := distance(sources[i], receivers[i])
		tt := t0[i] + dist*sSrc
		res.TT[i] = tt

		if mode >= ModeWithRays {
			res.Rays[i] = [][3]float64{sources[i], receivers[i]}
			if sSrc <= 0 {
				res.V0[i] = 0
			} else {
				res.V0[i] = 1 / sSrc
			}
		}

		if mode >= ModeFull {
			g := groupOf[i]
			row := rowInGroup[g]
			for k := 0; k < d.NNZ(); k++ {
				_, col, w := d.Entry(k)
				res.Mev[g].Put(row, col, dist*w)
			}
			rowInGroup[g] = row + 1
		}
	}
	return res, nil
}

func distance(a, b [3]float64) float64 {
	dx, dy, dz := b[0]-a[0], b[1]-a[1], b[2]-a[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
