package joint

import "github.com/iggcaswy/hypopy/model"

// penalty computes, per node, the bound-violation penalty P and its
// derivative sign dP (spec.md §4.5 step 1): P is positive exactly at
// violations of lim, zero otherwise.
func penalty(v []float64, lim model.VLim) (P, dP []float64) {
	P = make([]float64, len(v))
	dP = make([]float64, len(v))
	for i, x := range v {
		switch {
		case x < lim.Min:
			P[i] = lim.PA * (lim.Min - x)
			dP[i] = -lim.PA
		case x > lim.Max:
			P[i] = lim.PA * (x - lim.Max)
			dP[i] = lim.PA
		}
	}
	return
}
