// Command hypoinv runs a synthetic end-to-end demonstration of the joint
// hypocenter-velocity inversion core: it builds a small cubic grid, a
// depth-linear true Vp field, a ring of receivers, a scatter of events,
// a handful of calibration shots and velocity tie points, adds Gaussian
// noise to every synthetic arrival time, seeds hypocenters with a
// homogeneous-velocity locator, then runs the joint inverter and reports
// the RMS residual before and after.
package main

import (
	"encoding/json"
	"flag"
	"math"
	"math/rand"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/iggcaswy/hypopy/config"
	"github.com/iggcaswy/hypopy/grid"
	"github.com/iggcaswy/hypopy/hypoloc"
	"github.com/iggcaswy/hypopy/joint"
	"github.com/iggcaswy/hypopy/model"
	"github.com/iggcaswy/hypopy/raytrace"
)

func main() {
	nevents := flag.Int("nevents", 15, "number of synthetic events")
	maxit := flag.Int("maxit", 6, "outer joint-inversion iterations")
	nthreads := flag.Int("nthreads", 4, "relocation worker-pool size")
	seed := flag.Int64("seed", 1, "random seed")
	noise := flag.Float64("noise", 0.003, "arrival-time Gaussian noise sigma, seconds")
	verbose := flag.Bool("verbose", true, "print per-iteration residual norm")
	configPath := flag.String("config", "", "path to a JSON scene configuration file (config.Scene); when set, replaces the synthetic demo with a run against the files it names")
	flag.Parse()

	defer func() {
		if err := recover(); err != nil {
			chk.Verbose = true
			io.Pfred("ERROR: %v\n", err)
		}
	}()

	if *configPath != "" {
		runFromConfig(*configPath)
		return
	}

	rng := rand.New(rand.NewSource(*seed))

	// grid: 13 nodes per axis, 10 km spacing, x=y=z=90..210
	axis := make([]float64, 13)
	for i := range axis {
		axis[i] = 90 + float64(i)*10
	}
	g, err := grid.New(axis, axis, axis, *nthreads)
	if err != nil {
		chk.Panic("grid: %v", err)
	}

	// true Vp field: linear with depth, v0=4.5 km/s at z=90, gradient 0.02/km
	const v0, grad = 4.5, 0.02
	vtrue := make([]float64, g.N)
	for i := 0; i < g.Nx; i++ {
		for j := 0; j < g.Ny; j++ {
			for k := 0; k < g.Nz; k++ {
				vtrue[g.Ind(i, j, k)] = v0 + grad*(g.Z[k]-axis[0])
			}
		}
	}

	rcv := make([]model.Receiver, 13)
	for i := range rcv {
		ang := 2 * math.Pi * float64(i) / float64(len(rcv))
		rcv[i] = model.Receiver{
			X: 150 + 55*math.Cos(ang),
			Y: 150 + 55*math.Sin(ang),
			Z: 95 + 10*rng.Float64(),
		}
	}

	events := make([]model.Event, *nevents)
	for i := range events {
		events[i] = model.Event{
			ID: i + 1,
			T0: rng.Float64() * 0.3,
			X:  110 + 80*rng.Float64(),
			Y:  110 + 80*rng.Float64(),
			Z:  110 + 80*rng.Float64(),
		}
	}

	truth := &raytrace.StraightRay{Grid: g}

	var obs []model.Observation
	for _, ev := range events {
		sources := make([][3]float64, len(rcv))
		receivers := make([][3]float64, len(rcv))
		t0s := make([]float64, len(rcv))
		for i, s := range rcv {
			sources[i] = ev.XYZ()
			receivers[i] = s.XYZ()
			t0s[i] = ev.T0
		}
		res, err := truth.Raytrace(invertSlowness(vtrue), sources, receivers, t0s, raytrace.ModeTimesOnly)
		if err != nil {
			chk.Panic("synthetic raytrace: %v", err)
		}
		for i := range rcv {
			obs = append(obs, model.Observation{EventID: ev.ID, Tobs: res.TT[i] + rng.NormFloat64()*(*noise), Rcv: i})
		}
	}

	var cal []model.CalibShot
	for s := 0; s < 5; s++ {
		shot := model.CalibShot{
			ID: s + 1,
			X:  130 + 40*rng.Float64(),
			Y:  130 + 40*rng.Float64(),
			Z:  95 + 10*rng.Float64(),
		}
		sources := make([][3]float64, len(rcv))
		receivers := make([][3]float64, len(rcv))
		t0s := make([]float64, len(rcv))
		for i, r := range rcv {
			sources[i] = shot.XYZ()
			receivers[i] = r.XYZ()
		}
		res, err := truth.Raytrace(invertSlowness(vtrue), sources, receivers, t0s, raytrace.ModeTimesOnly)
		if err != nil {
			chk.Panic("synthetic calibration raytrace: %v", err)
		}
		for i := range rcv {
			shot.Rcv = i
			shot.Tobs = res.TT[i] + rng.NormFloat64()*(*noise)
			cal = append(cal, shot)
		}
	}

	var tie []model.TiePoint
	for t := 0; t < 8; t++ {
		x, y, z := 100+100*rng.Float64(), 100+100*rng.Float64(), 100+100*rng.Float64()
		tie = append(tie, model.TiePoint{V: v0 + grad*(z-axis[0]), X: x, Y: y, Z: z})
	}

	homogV := meanOf(vtrue)
	hinit, _, err := hypoloc.Locate(obs, rcv, homogV, seedHypocenters(events), 30, 1e-5)
	if err != nil {
		chk.Panic("seed location: %v", err)
	}

	vinit := make([]float64, g.N)
	for i := range vinit {
		vinit[i] = homogV
	}

	params := model.DefaultInvParams()
	params.MaxIt = *maxit
	params.Nthreads = *nthreads
	params.Verbose = *verbose
	params.InvertVel = true
	params.UseSC = true
	params.VpLim = model.VLim{Min: 2, Max: 8, PA: 5000}
	params.Lagr = model.Lagrangians{Lmbda: 0.2, Gamma: 1, Alpha: 1, WzK: 1}
	params.Dmax = model.DMax{DVp: 0.3, Dx: 5, Dt: 0.05}

	result, err := joint.Invert(params, g, truth, obs, rcv, vinit, hinit, cal, tie)
	if err != nil {
		chk.Panic("joint inversion: %v", err)
	}

	io.Pf("synthetic demo: %d events, %d receivers, %d observations\n", len(events), len(rcv), len(obs))
	io.Pf("residual RMS before: %v\n", rms(result.ResV[0], len(obs)))
	io.Pf("residual RMS after:  %v\n", rms(result.ResV[len(result.ResV)-1], len(obs)))
}

func invertSlowness(v []float64) []float64 {
	s := make([]float64, len(v))
	for i, x := range v {
		s[i] = 1 / x
	}
	return s
}

func meanOf(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func seedHypocenters(truth []model.Event) []model.Event {
	out := make([]model.Event, len(truth))
	for i, ev := range truth {
		out[i] = model.Event{ID: ev.ID, T0: 0, X: 150, Y: 150, Z: 150}
	}
	return out
}

func rms(l2norm float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return l2norm / math.Sqrt(float64(n))
}

// runFromConfig loads a config.Scene and its referenced data files, then
// runs the single- or two-phase joint inverter depending on whether a
// non-zero VsInit is given (config.Load's sibling to the synthetic demo
// above, for feeding the solver from real data sets rather than a
// generated one).
func runFromConfig(path string) {
	scene, err := config.Load(path)
	if err != nil {
		chk.Panic("config: %v", err)
	}

	axis := scene.Grid.Axis()
	if axis == nil {
		chk.Panic("config: grid.step must be positive")
	}
	g, err := grid.New(axis, axis, axis, scene.Grid.Nthreads)
	if err != nil {
		chk.Panic("grid: %v", err)
	}

	var obs []model.Observation
	readJSONFile(scene.ObsFile, &obs)
	var rcv []model.Receiver
	readJSONFile(scene.RcvFile, &rcv)
	var hinit []model.Event
	readJSONFile(scene.EventFile, &hinit)
	var cal []model.CalibShot
	if scene.CalFile != "" {
		readJSONFile(scene.CalFile, &cal)
	}
	var tie []model.TiePoint
	if scene.TieFile != "" {
		readJSONFile(scene.TieFile, &tie)
	}

	params := paramsFromSpec(scene.Params)
	params.Nthreads = scene.Grid.Nthreads

	vpinit := make([]float64, g.N)
	for i := range vpinit {
		vpinit[i] = scene.VpInit
	}

	truth := &raytrace.StraightRay{Grid: g}

	if scene.VsInit <= 0 {
		result, err := joint.Invert(params, g, truth, obs, rcv, vpinit, hinit, cal, tie)
		if err != nil {
			chk.Panic("joint inversion: %v", err)
		}
		io.Pf("config demo (single-phase): %d events, %d receivers, %d observations\n", len(hinit), len(rcv), len(obs))
		io.Pf("residual RMS before: %v\n", rms(result.ResV[0], len(obs)))
		io.Pf("residual RMS after:  %v\n", rms(result.ResV[len(result.ResV)-1], len(obs)))
		return
	}

	vsinit := make([]float64, g.N)
	for i := range vsinit {
		vsinit[i] = scene.VsInit
	}
	result, err := joint.InvertPS(params, g, truth, obs, rcv, vpinit, vsinit, hinit, cal, tie)
	if err != nil {
		chk.Panic("joint inversion: %v", err)
	}
	io.Pf("config demo (two-phase): %d events, %d receivers, %d observations\n", len(hinit), len(rcv), len(obs))
	io.Pf("residual RMS before: %v\n", rms(result.ResV[0], len(obs)))
	io.Pf("residual RMS after:  %v\n", rms(result.ResV[len(result.ResV)-1], len(obs)))
}

func readJSONFile(path string, v interface{}) {
	b, err := io.ReadFile(path)
	if err != nil {
		chk.Panic("config: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		chk.Panic("config: %s: %v", path, err)
	}
}

func paramsFromSpec(p config.ParamsSpec) model.InvParams {
	params := model.DefaultInvParams()
	if p.MaxIt > 0 {
		params.MaxIt = p.MaxIt
	}
	if p.MaxItHypo > 0 {
		params.MaxItHypo = p.MaxItHypo
	}
	if p.ConvHypo > 0 {
		params.ConvHypo = p.ConvHypo
	}
	params.InvertVel = p.InvertVel
	params.InvertVsVp = p.InvertVsVp
	params.Hypo2Step = p.Hypo2Step
	params.UseSC = p.UseSC
	params.ClampReloc = p.ClampReloc
	params.Verbose = p.Verbose
	if (p.VpLim != config.VLimSpec{}) {
		params.VpLim = model.VLim{Min: p.VpLim.Min, Max: p.VpLim.Max, PA: p.VpLim.PA}
	}
	if (p.VsLim != config.VLimSpec{}) {
		params.VsLim = model.VLim{Min: p.VsLim.Min, Max: p.VsLim.Max, PA: p.VsLim.PA}
	}
	if (p.Dmax != config.DMaxSpec{}) {
		params.Dmax = model.DMax{DVp: p.Dmax.DVp, DVs: p.Dmax.DVs, Dx: p.Dmax.Dx, Dt: p.Dmax.Dt}
	}
	if (p.Lagr != config.LagrSpec{}) {
		params.Lagr = model.Lagrangians{Lmbda: p.Lagr.Lmbda, Gamma: p.Lagr.Gamma, Alpha: p.Lagr.Alpha, WzK: p.Lagr.WzK}
	}
	return params
}
