// package model holds the data types shared by every package of the
// joint hypocenter-velocity inversion core: events, observations,
// receivers, calibration shots, velocity tie points and the model state
// mutated across outer iterations.
package model

import "github.com/cpmech/gosl/fun"

// Phase identifies the wave type of an observation or tie point.
type Phase int

// recognised phases
const (
	P Phase = iota
	S
)

func (ph Phase) String() string {
	if ph == S {
		return "S"
	}
	return "P"
}

// Event holds the identifier, origin time and location of a seismic event.
// Two events must never share identical initial coordinates; the
// null-space QR step of the joint inverter depends on it.
type Event struct {
	ID int
	T0 float64
	X  float64
	Y  float64
	Z  float64
}

// XYZ returns the spatial part of the event as a plain triplet.
func (e Event) XYZ() [3]float64 { return [3]float64{e.X, e.Y, e.Z} }

// Observation is an arrival-time reading at a receiver for one event.
// Phase is only meaningful in the two-phase solver; single-phase callers
// leave it at its zero value (P).
type Observation struct {
	EventID int
	Tobs    float64
	Rcv     int
	Phase   Phase
}

// Receiver is a fixed station location.
type Receiver struct {
	X, Y, Z float64
}

func (r Receiver) XYZ() [3]float64 { return [3]float64{r.X, r.Y, r.Z} }

// CalibShot is a calibration source of known position and zero origin
// time, used to anchor the velocity solve. Calibration data must be
// sorted by ID then by receiver index.
type CalibShot struct {
	ID    int
	Tobs  float64
	Rcv   int
	X, Y, Z float64
	Phase Phase
}

func (c CalibShot) XYZ() [3]float64 { return [3]float64{c.X, c.Y, c.Z} }

// TiePoint is a known velocity value at a known location, used as a soft
// constraint on the velocity solve. In two-phase ratio mode, every S tie
// point must be collocated with a P tie point within 1e-5.
type TiePoint struct {
	V     float64
	X, Y, Z float64
	Phase Phase
}

func (t TiePoint) XYZ() [3]float64 { return [3]float64{t.X, t.Y, t.Z} }

// VLim bounds one velocity field's valid range and the bound-penalty
// slope applied outside it.
type VLim struct {
	Min, Max, PA float64
}

// DMax collects the per-iteration clamps applied to a model update.
type DMax struct {
	DVp  float64
	Dx   float64
	Dt   float64
	DVs  float64
}

// Lagrangians collects the (pre-normalisation) regularization weights of
// the joint inverter: smoothing, bound-penalty, tie-point, and the
// vertical-vs-horizontal smoothing weight wzK.
type Lagrangians struct {
	Lmbda float64
	Gamma float64
	Alpha float64
	WzK   float64
}

// InvParams collects every option recognised by the joint inverter and
// the per-event relocator.
type InvParams struct {
	MaxIt     int     // outer iterations
	MaxItHypo int     // inner relocation iteration cap
	ConvHypo  float64 // position convergence threshold

	VpLim VLim // Vp bound-penalty region and slope
	VsLim VLim // Vs bound-penalty region and slope (two-phase only)

	Dmax DMax // per-iteration clamps

	Lagr Lagrangians // smoothing / penalty / tie-point weights

	InvertVel  bool // if false, skip velocity solve, only relocate
	InvertVsVp bool // two-phase only: solve for Vs/Vp ratio instead of Vs
	Hypo2Step  bool // relocation does a 2-column (x,y) pre-step first
	UseSC      bool // enable static corrections
	ClampReloc bool // apply dx_max/dt_max clamp in the relocator (resolves spec open question, default true)

	Nthreads int      // relocation worker-pool size (1 when unset)
	Verbose  bool
	ShowPlots bool

	// Progress, if non-nil, is invoked once per outer iteration with the
	// iteration index and the current residual norm, serving
	// Verbose/ShowPlots without this module depending on a plotting
	// package itself.
	Progress fun.Func
}

// DefaultInvParams returns InvParams with MaxIt 10, MaxItHypo 20,
// ConvHypo 1e-4 and the clamp-on default for the relocator (see
// DESIGN.md, open question 1); all other fields are zero-valued and the
// caller is expected to fill them in.
func DefaultInvParams() InvParams {
	return InvParams{
		MaxIt:     10,
		MaxItHypo: 20,
		ConvHypo:  1e-4,
		ClampReloc: true,
	}
}
