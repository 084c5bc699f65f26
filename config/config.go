// package config implements the JSON configuration file read by
// cmd/hypoinv: grid geometry, inversion parameters and the file paths of
// the observation/receiver/calibration/tie-point data sets, in the
// teacher's read-file-then-json.Unmarshal idiom (inp/mat.go's ReadMat).
package config

import (
	"encoding/json"

	"github.com/cpmech/gosl/io"
)

// Scene is the top-level JSON document describing one inversion run.
type Scene struct {
	Grid GridSpec `json:"grid"`

	ObsFile   string `json:"obsFile"`   // path to a JSON-encoded []model.Observation
	RcvFile   string `json:"rcvFile"`   // path to a JSON-encoded []model.Receiver
	CalFile   string `json:"calFile"`   // optional, path to a JSON-encoded []model.CalibShot
	TieFile   string `json:"tieFile"`   // optional, path to a JSON-encoded []model.TiePoint
	EventFile string `json:"eventFile"` // path to a JSON-encoded []model.Event (initial guesses)

	VpInit float64 `json:"vpInit"` // homogeneous initial Vp, km/s
	VsInit float64 `json:"vsInit"` // homogeneous initial Vs, km/s; 0 disables two-phase

	Params ParamsSpec `json:"params"`
}

// GridSpec describes a regular cubic grid by its axis extent and step,
// rather than by three explicit coordinate vectors (spec.md §4.1's Grid
// constructor still takes the vectors; Axis expands to them).
type GridSpec struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Step     float64 `json:"step"`
	Nthreads int     `json:"nthreads"`
}

// Axis expands the grid spec into a sorted coordinate vector shared by
// all three axes (spec.md §4.1's cubic-cell invariant requires it).
func (g GridSpec) Axis() []float64 {
	if g.Step <= 0 {
		return nil
	}
	n := int((g.Max-g.Min)/g.Step + 1.5)
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = g.Min + float64(i)*g.Step
	}
	return axis
}

// ParamsSpec mirrors the subset of model.InvParams a config file may
// override; zero numeric fields and all-zero limit/clamp/weight groups
// fall back to model.DefaultInvParams(). The boolean switches are copied
// as given, so an omitted clampReloc turns the relocation clamp off.
type ParamsSpec struct {
	MaxIt      int     `json:"maxIt"`
	MaxItHypo  int     `json:"maxItHypo"`
	ConvHypo   float64 `json:"convHypo"`
	InvertVel  bool    `json:"invertVel"`
	InvertVsVp bool    `json:"invertVsVp"`
	Hypo2Step  bool    `json:"hypo2Step"`
	UseSC      bool    `json:"useSC"`
	ClampReloc bool    `json:"clampReloc"`
	Verbose    bool    `json:"verbose"`

	VpLim VLimSpec `json:"vpLim"`
	VsLim VLimSpec `json:"vsLim"`
	Dmax  DMaxSpec `json:"dmax"`
	Lagr  LagrSpec `json:"lagr"`
}

// VLimSpec mirrors model.VLim.
type VLimSpec struct {
	Min, Max, PA float64
}

// DMaxSpec mirrors model.DMax.
type DMaxSpec struct {
	DVp, Dx, Dt, DVs float64
}

// LagrSpec mirrors model.Lagrangians.
type LagrSpec struct {
	Lmbda, Gamma, Alpha, WzK float64
}

// Load reads and decodes a scene configuration file.
func Load(path string) (*Scene, error) {
	b, err := io.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scene
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
