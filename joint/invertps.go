package joint

import (
	"math"

	"github.com/cpmech/gosl/io"
	"github.com/iggcaswy/hypopy/grid"
	"github.com/iggcaswy/hypopy/jherr"
	"github.com/iggcaswy/hypopy/lsqr"
	"github.com/iggcaswy/hypopy/model"
	"github.com/iggcaswy/hypopy/raytrace"
	"github.com/iggcaswy/hypopy/reloc"
	"gonum.org/v1/gonum/mat"
)

// ResultPS is the output of a two-phase joint inversion.
type ResultPS struct {
	Hypo         []model.Event
	Vp, Vs       []float64 // Vs is the S velocity, derived as ratio*Vp when params.InvertVsVp
	ScP, ScS     []float64
	ResV         []float64
	ResLSQR      []lsqr.Stats
}

// InvertPS runs the two-phase joint hypocenter-velocity inversion.
// Observations are reordered once so that all P rows precede all S rows
// (spec.md §5), then processed per-phase, each phase's events in sorted
// event-ID order.
// If params.InvertVsVp, the velocity sub-problem solves for the ratio
// Vs/Vp instead of Vs directly, and every S tie point must be collocated
// (distance < 1e-5) with a P tie point or InvalidTiePoint is returned.
func InvertPS(params model.InvParams, g *grid.Grid, rt raytrace.Raytracer, obs []model.Observation, rcv []model.Receiver, vpInit, vsInit []float64, hinit []model.Event, cal []model.CalibShot, tie []model.TiePoint) (ResultPS, error) {
	if params.InvertVsVp {
		if err := checkTieCollocation(tie); err != nil {
			return ResultPS{}, err
		}
	}

	obs = reorderPhasesPFirst(obs)
	cal = reorderCalibPFirst(cal)

	Vp := append([]float64{}, vpInit...)
	Vratio := append([]float64{}, vsInit...) // either Vs directly, or ratio=Vs/Vp when InvertVsVp
	if params.InvertVsVp {
		for n := range Vratio {
			Vratio[n] = vsInit[n] / vpInit[n]
		}
	}

	nstaEff := 0
	if params.UseSC {
		nstaEff = len(rcv)
	}
	scP := make([]float64, nstaEff)
	scS := make([]float64, nstaEff)
	hypo := append([]model.Event{}, hinit...)

	N := g.N
	ncols := 2*N + 2*nstaEff

	Kx, Ky, Kz := g.Smoothers()

	tieP, tieS, tieValsP, tieValsS := splitTiePoints(tie)
	var tieDP, tieDS *grid.SparseD
	if len(tieP) > 0 {
		var err error
		tieDP, err = g.Interp(tieP)
		if err != nil {
			return ResultPS{}, err
		}
	}
	if len(tieS) > 0 {
		var err error
		tieDS, err = g.Interp(tieS)
		if err != nil {
			return ResultPS{}, err
		}
	}

	obsP, obsS := splitByPhase(obs)
	obsPOrdered, eventOrderP := orderByEvent(obsP)
	obsSOrdered, eventOrderS := orderByEvent(obsS)
	eventRowsP := eventGroups(obsPOrdered, eventOrderP)
	eventRowsS := eventGroups(obsSOrdered, eventOrderS)

	calP, calS := splitCalibByPhase(cal)
	calPOrdered, calOrderP := orderByShot(calP)
	calSOrdered, calOrderS := orderByShot(calS)
	shotRowsP := shotGroups(calPOrdered, calOrderP)
	shotRowsS := shotGroups(calSOrdered, calOrderS)

	result := ResultPS{ResV: make([]float64, 0, params.MaxIt+1)}

	for it := 0; it < params.MaxIt; it++ {
		Pp, dPp := penalty(Vp, params.VpLim)
		Vs := deriveVs(Vp, Vratio, params.InvertVsVp)
		Ps, dPs := penalty(Vs, params.VsLim)

		hypoMap := indexByID(hypo)
		slownessP := invertField(Vp)
		slownessS := invertField(Vs)

		srcP, rcvP, t0P := sourcesFor(obsPOrdered, hypoMap, rcv)
		rtResP, err := rt.Raytrace(slownessP, srcP, rcvP, t0P, raytrace.ModeFull)
		if err != nil {
			return ResultPS{}, err
		}
		srcS, rcvS, t0S := sourcesFor(obsSOrdered, hypoMap, rcv)
		rtResS, err := rt.Raytrace(slownessS, srcS, rcvS, t0S, raytrace.ModeFull)
		if err != nil {
			return ResultPS{}, err
		}

		var calResP, calResS raytrace.Result
		if len(calPOrdered) > 0 {
			csrc, crcv, ct0 := calibSources(calPOrdered, rcv)
			calResP, err = rt.Raytrace(slownessP, csrc, crcv, ct0, raytrace.ModeFull)
			if err != nil {
				return ResultPS{}, err
			}
		}
		if len(calSOrdered) > 0 {
			csrc, crcv, ct0 := calibSources(calSOrdered, rcv)
			calResS, err = rt.Raytrace(slownessS, csrc, crcv, ct0, raytrace.ModeFull)
			if err != nil {
				return ResultPS{}, err
			}
		}

		rEventP := residuals(obsPOrdered, rtResP.TT, scP, params.UseSC)
		rEventS := residuals(obsSOrdered, rtResS.TT, scS, params.UseSC)
		rCalP := calibResiduals(calPOrdered, calResP.TT, scP, params.UseSC)
		rCalS := calibResiduals(calSOrdered, calResS.TT, scS, params.UseSC)
		resNorm := l2norm(rEventP, rEventS, rCalP, rCalS)
		result.ResV = append(result.ResV, resNorm)
		reportProgress(params, it, resNorm)

		if params.InvertVel {
			blocksP := buildEventBlocks("P", eventOrderP, eventRowsP, hypoMap, rtResP, rEventP, nstaEff, ncols, 0, 2*N)
			blocksP = append(blocksP, buildCalibBlocks(calOrderP, shotRowsP, calResP, rCalP, nstaEff, ncols, 0, 2*N)...)
			blocksS := buildEventBlocks("S", eventOrderS, eventRowsS, hypoMap, rtResS, rEventS, nstaEff, ncols, N, 2*N+nstaEff)
			blocksS = append(blocksS, buildCalibBlocks(calOrderS, shotRowsS, calResS, rCalS, nstaEff, ncols, N, 2*N+nstaEff)...)

			blocks := append(blocksP, blocksS...)
			M1, r1 := stackBlocks(blocks, ncols)

			Kx1 := block2DiagPadded(Kx.Dense(), N, nstaEff)
			Ky1 := block2DiagPadded(Ky.Dense(), N, nstaEff)
			Kz1 := block2DiagPadded(Kz.Dense(), N, nstaEff)
			KtKx, KtKy, KtKz := gram(Kx1), gram(Ky1), gram(Kz1)
			nK := frobenius(KtKx)

			dP1 := diag2Padded(dPp, dPs, nstaEff)
			nM := frobenius(gram(M1))
			nP := frobenius(gram(dP1))

			lambda := params.Lagr.Lmbda * safeRatio(nM, nK)
			gamma := params.Lagr.Gamma
			if nP > 0 {
				gamma = params.Lagr.Gamma * safeRatio(nM, nP)
			}

			var D1 *mat.Dense
			var alpha float64
			if tieDP != nil || tieDS != nil {
				d1 := tieBlock2Padded(tieDP, tieDS, N, nstaEff)
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
			addU1U1T(A, 2*N, nstaEff) // u1 selects sc_p only, per spec.md §9/§4.5 step 9

			b := matTVec(M1, r1)
			VV := concat2(Vp, Vs)
			addVec(b, -lambda, smoothingTerm2(Kx1, Kx, N, VV))
			addVec(b, -lambda, smoothingTerm2(Ky1, Ky, N, VV))
			addVec(b, -lambda*params.Lagr.WzK, smoothingTerm2(Kz1, Kz, N, VV))
			addVec(b, -gamma, matTVec(dP1, concat2(Pp, Ps)))
			subU1Sum(b, 2*N, nstaEff, scP)
			if D1 != nil {
				addVec(b, alpha, tieTerm2(tieDP, tieDS, D1, Vp, Vs, tieValsP, tieValsS))
			}

			x, stats := lsqr.Solve(lsqr.DenseOp{A: A}, b, lsqr.DefaultParams())
			result.ResLSQR = append(result.ResLSQR, stats)

			for n := 0; n < N; n++ {
				Vp[n] += clampAbs(x[n], params.Dmax.DVp)
			}
			dvsMax := params.Dmax.DVs
			for n := 0; n < N; n++ {
				Vratio[n] += clampAbs(x[N+n], dvsMax)
			}
			if params.UseSC {
				for s := 0; s < nstaEff; s++ {
					scP[s] += x[2*N+s]
					scS[s] += x[2*N+nstaEff+s]
				}
			}
		}

		Vs = deriveVs(Vp, Vratio, params.InvertVsVp)
		slownessP = invertField(Vp)
		slownessS = invertField(Vs)
		var relErr error
		hypo, _, relErr = reloc.RelocatePS(rt, g, slownessP, slownessS, scP, scS, obs, rcv, hypo, params)
		if relErr != nil {
			return ResultPS{}, relErr
		}
	}

	Vs := deriveVs(Vp, Vratio, params.InvertVsVp)
	hypoMap := indexByID(hypo)
	srcP, rcvP, t0P := sourcesFor(obsPOrdered, hypoMap, rcv)
	finalP, err := rt.Raytrace(invertField(Vp), srcP, rcvP, t0P, raytrace.ModeTimesOnly)
	if err != nil {
		return ResultPS{}, err
	}
	srcS, rcvS2, t0S := sourcesFor(obsSOrdered, hypoMap, rcv)
	finalS, err := rt.Raytrace(invertField(Vs), srcS, rcvS2, t0S, raytrace.ModeTimesOnly)
	if err != nil {
		return ResultPS{}, err
	}
	rEventP := residuals(obsPOrdered, finalP.TT, scP, params.UseSC)
	rEventS := residuals(obsSOrdered, finalS.TT, scS, params.UseSC)
	result.ResV = append(result.ResV, l2norm(rEventP, rEventS))

	result.Hypo = hypo
	result.Vp = Vp
	result.Vs = Vs
	result.ScP = scP
	result.ScS = scS
	return result, nil
}

func deriveVs(Vp, Vratio []float64, ratioMode bool) []float64 {
	if !ratioMode {
		return Vratio
	}
	out := make([]float64, len(Vp))
	for n := range out {
		out[n] = Vratio[n] * Vp[n]
	}
	return out
}

func residuals(obs []model.Observation, tt []float64, sc []float64, useSC bool) []float64 {
	r := make([]float64, len(obs))
	for i, o := range obs {
		corr := 0.0
		if useSC {
			corr = sc[o.Rcv]
		}
		r[i] = o.Tobs - (tt[i] + corr)
	}
	return r
}

func calibResiduals(cal []model.CalibShot, tt []float64, sc []float64, useSC bool) []float64 {
	r := make([]float64, len(cal))
	for i, c := range cal {
		corr := 0.0
		if useSC {
			corr = sc[c.Rcv]
		}
		r[i] = c.Tobs - (tt[i] + corr)
	}
	return r
}

func splitByPhase(obs []model.Observation) (p, s []model.Observation) {
	for _, o := range obs {
		if o.Phase == model.S {
			s = append(s, o)
		} else {
			p = append(p, o)
		}
	}
	return
}

func splitCalibByPhase(cal []model.CalibShot) (p, s []model.CalibShot) {
	for _, c := range cal {
		if c.Phase == model.S {
			s = append(s, c)
		} else {
			p = append(p, c)
		}
	}
	return
}

func splitTiePoints(tie []model.TiePoint) (pPts [][3]float64, sPts [][3]float64, pVals, sVals []float64) {
	for _, t := range tie {
		if t.Phase == model.S {
			sPts = append(sPts, t.XYZ())
			sVals = append(sVals, t.V)
		} else {
			pPts = append(pPts, t.XYZ())
			pVals = append(pVals, t.V)
		}
	}
	return
}

// checkTieCollocation enforces that every S tie point has a P tie point
// within 1e-5 (spec.md §3/§8 scenario 6), required only in Vs/Vp ratio
// mode.
func checkTieCollocation(tie []model.TiePoint) error {
	const eps = 1e-5
	var pPts [][3]float64
	for _, t := range tie {
		if t.Phase != model.S {
			pPts = append(pPts, t.XYZ())
		}
	}
	for _, t := range tie {
		if t.Phase != model.S {
			continue
		}
		found := false
		sp := t.XYZ()
		for _, pp := range pPts {
			if dist3(sp, pp) < eps {
				found = true
				break
			}
		}
		if !found {
			return jherr.New(jherr.InvalidTiePoint, "S tie point at %v has no collocated P tie point", sp)
		}
	}
	return nil
}

func dist3(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// reorderPhasesPFirst reorders observations so all P rows precede all S
// rows (spec.md §5 ordering guarantee), stable within each phase.
func reorderPhasesPFirst(obs []model.Observation) []model.Observation {
	out := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if o.Phase != model.S {
			out = append(out, o)
		}
	}
	for _, o := range obs {
		if o.Phase == model.S {
			out = append(out, o)
		}
	}
	return out
}

func reorderCalibPFirst(cal []model.CalibShot) []model.CalibShot {
	out := make([]model.CalibShot, 0, len(cal))
	for _, c := range cal {
		if c.Phase != model.S {
			out = append(out, c)
		}
	}
	for _, c := range cal {
		if c.Phase == model.S {
			out = append(out, c)
		}
	}
	return out
}

func concat2(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// buildEventBlocks builds the per-event projected row blocks for one
// phase, placing the velocity columns at [velOffset, velOffset+N) within
// the ncols-wide system and the static-correction columns at their
// phase-specific slot (scOffsetBase selects sc_p vs sc_s).
func buildEventBlocks(phaseName string, order []int, rowsByEvent [][]model.Observation, hypoMap map[int]model.Event, rtRes raytrace.Result, rEvent []float64, nstaEff, ncols, velOffset, scOffsetBase int) []rowBlock {
	blocks := make([]rowBlock, 0, len(order))
	offset := 0
	for i, eid := range order {
		rows := rowsByEvent[i]
		nst := len(rows)
		if nst < 5 {
			io.Pfred("joint.InvertPS: %s event %d has only %d observations (need >=5), excluded from assembly\n", phaseName, eid, nst)
			offset += nst
			continue
		}
		src := hypoMap[eid].XYZ()
		v0 := rtRes.V0[offset : offset+nst]
		rays := rtRes.Rays[offset : offset+nst]
		rSlice := rEvent[offset : offset+nst]
		mev := &rtRes.Mev[i]
		blk, ok := projectEventRowsInto(rows, src, mev, v0, rays, rSlice, nstaEff, ncols, velOffset, scOffsetBase)
		if ok {
			blocks = append(blocks, blk)
		}
		offset += nst
	}
	return blocks
}

func buildCalibBlocks(order []int, rowsByShot [][]model.CalibShot, calRes raytrace.Result, rCal []float64, nstaEff, ncols, velOffset, scOffsetBase int) []rowBlock {
	blocks := make([]rowBlock, 0, len(order))
	offset := 0
	for i := range order {
		rows := rowsByShot[i]
		nst := len(rows)
		mev := &calRes.Mev[i]
		rSlice := rCal[offset : offset+nst]
		blocks = append(blocks, calibRowBlockInto(rows, mev, rSlice, nstaEff, ncols, velOffset, scOffsetBase))
		offset += nst
	}
	return blocks
}
