// package joint implements the outer joint hypocenter-velocity inversion
// loop (spec.md §4.5): penalty update, raytrace, per-event QR null-space
// projection, sparse-to-dense assembly of the global normal equations,
// adaptive regularization weighting, LSQR solve, clamped update, and the
// parallel per-event relocation pass (delegated to package reloc). Invert
// is the single-phase entry point; InvertPS is the two-phase variant.
package joint

import (
	"math"

	"github.com/cpmech/gosl/io"
	"github.com/iggcaswy/hypopy/grid"
	"github.com/iggcaswy/hypopy/lsqr"
	"github.com/iggcaswy/hypopy/model"
	"github.com/iggcaswy/hypopy/raytrace"
	"github.com/iggcaswy/hypopy/reloc"
	"gonum.org/v1/gonum/mat"
)

// Result is the output of a single-phase joint inversion.
type Result struct {
	Hypo    []model.Event
	Vp      []float64
	ScP     []float64
	ResV    []float64
	ResLSQR []lsqr.Stats
}

// Invert runs the single-phase joint hypocenter-velocity inversion for
// params.MaxIt outer iterations. vinit seeds V_p (one value per grid
// node); hinit seeds the hypocenter table. cal and tie are optional.
func Invert(params model.InvParams, g *grid.Grid, rt raytrace.Raytracer, obs []model.Observation, rcv []model.Receiver, vinit []float64, hinit []model.Event, cal []model.CalibShot, tie []model.TiePoint) (Result, error) {
	Vp := append([]float64{}, vinit...)
	nstaEff := 0
	if params.UseSC {
		nstaEff = len(rcv)
	}
	scP := make([]float64, nstaEff)
	hypo := append([]model.Event{}, hinit...)
	ncols := g.N + nstaEff

	Kx, Ky, Kz := g.Smoothers()

	var tieD *grid.SparseD
	var tieVals []float64
	if len(tie) > 0 {
		pts := make([][3]float64, len(tie))
		tieVals = make([]float64, len(tie))
		for i, t := range tie {
			pts[i] = t.XYZ()
			tieVals[i] = t.V
		}
		var err error
		tieD, err = g.Interp(pts)
		if err != nil {
			return Result{}, err
		}
	}

	obsOrdered, eventOrder := orderByEvent(obs)
	eventRows := eventGroups(obsOrdered, eventOrder)

	calOrdered, calOrder := orderByShot(cal)
	shotRows := shotGroups(calOrdered, calOrder)

	result := Result{ResV: make([]float64, 0, params.MaxIt+1)}

	for it := 0; it < params.MaxIt; it++ {
		P, dP := penalty(Vp, params.VpLim)
		slowness := invertField(Vp)

		hypoMap := indexByID(hypo)
		sources, receivers, t0 := sourcesFor(obsOrdered, hypoMap, rcv)
		rtRes, err := rt.Raytrace(slowness, sources, receivers, t0, raytrace.ModeFull)
		if err != nil {
			return Result{}, err
		}

		var calRes raytrace.Result
		if len(calOrdered) > 0 {
			csrc, crcv, ct0 := calibSources(calOrdered, rcv)
			calRes, err = rt.Raytrace(slowness, csrc, crcv, ct0, raytrace.ModeFull)
			if err != nil {
				return Result{}, err
			}
		}

		rEvent := make([]float64, len(obsOrdered))
		for i, o := range obsOrdered {
			corr := 0.0
			if params.UseSC {
				corr = scP[o.Rcv]
			}
			rEvent[i] = o.Tobs - (rtRes.TT[i] + corr)
		}
		rCal := make([]float64, len(calOrdered))
		for i, c := range calOrdered {
			corr := 0.0
			if params.UseSC {
				corr = scP[c.Rcv]
			}
			rCal[i] = c.Tobs - (calRes.TT[i] + corr)
		}
		resNorm := l2norm(rEvent, rCal)
		result.ResV = append(result.ResV, resNorm)
		reportProgress(params, it, resNorm)

		blocks := make([]rowBlock, 0, len(eventOrder)+len(calOrder))
		offset := 0
		for i, eid := range eventOrder {
			rows := eventRows[i]
			nst := len(rows)
			if nst < 5 {
				io.Pfred("joint.Invert: event %d has only %d observations (need >=5), excluded from assembly\n", eid, nst)
				offset += nst
				continue
			}
			src := hypoMap[eid].XYZ()
			v0 := rtRes.V0[offset : offset+nst]
			rays := rtRes.Rays[offset : offset+nst]
			rSlice := rEvent[offset : offset+nst]
			mev := &rtRes.Mev[i]
			blk, ok := projectEventRows(rows, src, mev, v0, rays, rSlice, nstaEff, ncols)
			if ok {
				blocks = append(blocks, blk)
			}
			offset += nst
		}
		coffset := 0
		for i := range calOrder {
			rows := shotRows[i]
			nst := len(rows)
			mev := &calRes.Mev[i]
			rSlice := rCal[coffset : coffset+nst]
			blocks = append(blocks, calibRowBlock(rows, mev, rSlice, nstaEff, ncols))
			coffset += nst
		}

		if params.InvertVel {
			M1, r1 := stackBlocks(blocks, ncols)

			Kx1 := padCols(Kx.Dense(), nstaEff)
			Ky1 := padCols(Ky.Dense(), nstaEff)
			Kz1 := padCols(Kz.Dense(), nstaEff)
			KtKx := gram(Kx1)
			KtKy := gram(Ky1)
			KtKz := gram(Kz1)
			nK := frobenius(KtKx)

			dP1 := diagPadded(dP, nstaEff)
			nM := frobenius(gram(M1))
			nP := frobenius(gram(dP1))

			lambda := params.Lagr.Lmbda * safeRatio(nM, nK)
			gamma := params.Lagr.Gamma
			if nP > 0 {
				gamma = params.Lagr.Gamma * safeRatio(nM, nP)
			}

			var D1 *mat.Dense
			var alpha float64
			if tieD != nil {
				d1 := padCols(tieD.Dense(), nstaEff)
				nD := frobenius(gram(d1))
				if nD > 0 {
					alpha = params.Lagr.Alpha * safeRatio(nM, nD)
				}
				D1 = d1
			}

			A := gram(M1)
			addInPlace(A, lambda, KtKx)
			addInPlace(A, lambda, KtKy)
			addInPlace(A, lambda*params.Lagr.WzK, KtKz)
			addInPlace(A, gamma, gram(dP1))
			if D1 != nil {
				addInPlace(A, alpha, gram(D1))
			}
			addU1U1T(A, g.N, nstaEff)

			b := matTVec(M1, r1)
			addVec(b, -lambda, smoothingTerm(Kx, Kx1, Vp))
			addVec(b, -lambda, smoothingTerm(Ky, Ky1, Vp))
			addVec(b, -lambda*params.Lagr.WzK, smoothingTerm(Kz, Kz1, Vp))
			addVec(b, -gamma, matTVec(dP1, P))
			subU1Sum(b, g.N, nstaEff, scP)
			if D1 != nil {
				addVec(b, alpha, tieTerm(tieD, D1, Vp, tieVals))
			}

			x, stats := lsqr.Solve(lsqr.DenseOp{A: A}, b, lsqr.DefaultParams())
			result.ResLSQR = append(result.ResLSQR, stats)

			for n := 0; n < g.N; n++ {
				Vp[n] += clampAbs(x[n], params.Dmax.DVp)
			}
			if params.UseSC {
				for s := 0; s < nstaEff; s++ {
					scP[s] += x[g.N+s]
				}
			}
		}

		slowness = invertField(Vp)
		var relErr error
		hypo, _, relErr = reloc.Relocate(rt, g, slowness, scP, obs, rcv, hypo, params)
		if relErr != nil {
			return Result{}, relErr
		}
	}

	hypoMap := indexByID(hypo)
	sources, receivers, t0 := sourcesFor(obsOrdered, hypoMap, rcv)
	finalRes, err := rt.Raytrace(invertField(Vp), sources, receivers, t0, raytrace.ModeTimesOnly)
	if err != nil {
		return Result{}, err
	}
	rEvent := make([]float64, len(obsOrdered))
	for i, o := range obsOrdered {
		corr := 0.0
		if params.UseSC {
			corr = scP[o.Rcv]
		}
		rEvent[i] = o.Tobs - (finalRes.TT[i] + corr)
	}
	result.ResV = append(result.ResV, l2norm(rEvent))

	result.Hypo = hypo
	result.Vp = Vp
	result.ScP = scP
	return result, nil
}

func invertField(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = 1 / x
	}
	return out
}

func l2norm(vs ...[]float64) float64 {
	sum := 0.0
	for _, v := range vs {
		for _, x := range v {
			sum += x * x
		}
	}
	return math.Sqrt(sum)
}

func safeRatio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// reportProgress prints the per-iteration residual norm when
// params.Verbose (in the manner of fem/solver.go's progress reporting)
// and invokes params.Progress, if set, with the iteration index and
// residual norm.
func reportProgress(params model.InvParams, it int, resNorm float64) {
	if params.Verbose {
		io.Pf("joint: iteration %d, residual norm %v\n", it, resNorm)
	}
	if params.Progress != nil {
		params.Progress.F(float64(it), []float64{resNorm})
	}
}

func clampAbs(v, max float64) float64 {
	if max <= 0 {
		return v
	}
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}
