// Package calibration checks CT intensities against internal anatomical
// anchors and applies a linear Hounsfield-unit correction when they drift.
//
// Two anchors are used: ambient air sampled from a shell along the six
// volume faces, and dense cortical bone sampled from an inferior-central
// box around the hard palate. When both anchors are found and at least one
// deviates from its expected value by more than the correction threshold,
// a two-point line maps the measured anchors onto the expected ones.
package calibration

import (
	"encoding/json"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"sinusct/internal/mathutil"
	"sinusct/internal/models"
	"sinusct/pkg/regions"
)

// Status values reported on a Correction.
const (
	StatusNotAssessed     = "not_assessed"
	StatusWithinTolerance = "within_tolerance"
	StatusApplied         = "applied"
)

// Params holds the anchor and correction settings.
type Params struct {
	// AirExpectedHU is the nominal value of air
	AirExpectedHU float64 `yaml:"airExpectedHU"`

	// AirToleranceHU is the allowed deviation before the air anchor fails
	AirToleranceHU float64 `yaml:"airToleranceHU"`

	// AirCandidateMaxHU selects air candidates (voxels strictly below it)
	AirCandidateMaxHU float64 `yaml:"airCandidateMaxHU"`

	// MarginVoxels is the thickness of the face shell sampled for air
	MarginVoxels int `yaml:"marginVoxels"`

	// BoneExpectedHU is the nominal value of cortical bone
	BoneExpectedHU float64 `yaml:"boneExpectedHU"`

	// BoneToleranceHU is the allowed deviation before the bone anchor fails
	BoneToleranceHU float64 `yaml:"boneToleranceHU"`

	// BoneCandidateMinHU selects bone candidates (voxels strictly above it)
	BoneCandidateMinHU float64 `yaml:"boneCandidateMinHU"`

	// CorrectionThresholdHU is the largest anchor deviation left uncorrected
	CorrectionThresholdHU float64 `yaml:"correctionThresholdHU"`
}

// DefaultParams returns the standard anchor settings.
func DefaultParams() Params {
	return Params{
		AirExpectedHU:         -1000,
		AirToleranceHU:        50,
		AirCandidateMaxHU:     -800,
		MarginVoxels:          10,
		BoneExpectedHU:        1200,
		BoneToleranceHU:       200,
		BoneCandidateMinHU:    900,
		CorrectionThresholdHU: 50,
	}
}

// Anchor is the outcome of sampling one reference material.
// Measured and Delta are NaN when no candidate voxels were found.
type Anchor struct {
	Measured    float64
	Expected    float64
	Delta       float64
	Pass        bool
	SampleCount int
}

// MarshalJSON writes NaN measurements as null so a failed anchor still
// serialises.
func (a Anchor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Measured    *float64 `json:"measured_hu"`
		Expected    float64  `json:"expected_hu"`
		Delta       *float64 `json:"delta_hu"`
		Pass        bool     `json:"pass"`
		SampleCount int      `json:"sample_count"`
	}{
		Measured:    finite(a.Measured),
		Expected:    a.Expected,
		Delta:       finite(a.Delta),
		Pass:        a.Pass,
		SampleCount: a.SampleCount,
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Correction maps raw values to corrected ones: corrected = Slope*raw + Intercept.
type Correction struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Applied   bool    `json:"applied"`
	MaxDelta  float64 `json:"max_delta_hu"`
	Status    string  `json:"status"`
}

// Identity returns the no-op correction with the given status.
func Identity(status string) Correction {
	return Correction{Slope: 1, Intercept: 0, Status: status}
}

// Record is the full calibration outcome for one volume.
type Record struct {
	Air        Anchor     `json:"air_anchor"`
	Bone       Anchor     `json:"bone_anchor"`
	Correction Correction `json:"correction"`
}

// Calibrator detects anchors and corrects volumes.
type Calibrator struct {
	params   Params
	provider regions.Provider
	log      zerolog.Logger
}

// NewCalibrator creates a calibrator. The bone anchor box is looked up
// as the "palate_anchor" structure in provider; a nil provider uses the
// built-in atlas.
func NewCalibrator(params Params, provider regions.Provider) *Calibrator {
	if provider == nil {
		provider = regions.NewAtlas()
	}
	return &Calibrator{params: params, provider: provider, log: zerolog.Nop()}
}

// SetLogger replaces the calibrator's logger.
func (c *Calibrator) SetLogger(l zerolog.Logger) {
	c.log = l
}

// DetectAirAnchor samples a MarginVoxels-thick shell on all six faces of
// the volume and takes the median of voxels below AirCandidateMaxHU.
func (c *Calibrator) DetectAirAnchor(v *models.Volume) Anchor {
	m := c.params.MarginVoxels
	if m < 1 {
		m = 1
	}
	var candidates []float64
	for z := 0; z < v.Depth; z++ {
		zEdge := z < m || z >= v.Depth-m
		for y := 0; y < v.Height; y++ {
			yEdge := y < m || y >= v.Height-m
			for x := 0; x < v.Width; x++ {
				if !zEdge && !yEdge && x >= m && x < v.Width-m {
					continue
				}
				if value := v.At(z, y, x); value < c.params.AirCandidateMaxHU {
					candidates = append(candidates, value)
				}
			}
		}
	}
	return newAnchor(candidates, c.params.AirExpectedHU, c.params.AirToleranceHU)
}

// DetectBoneAnchor samples the inferior-central palate box and takes the
// median of voxels above BoneCandidateMinHU.
func (c *Calibrator) DetectBoneAnchor(v *models.Volume) Anchor {
	var candidates []float64
	if box, ok := c.provider.RegionBounds(v, regions.PalateAnchor); ok {
		for _, value := range v.Values(box) {
			if value > c.params.BoneCandidateMinHU {
				candidates = append(candidates, value)
			}
		}
	}
	return newAnchor(candidates, c.params.BoneExpectedHU, c.params.BoneToleranceHU)
}

func newAnchor(candidates []float64, expected, tolerance float64) Anchor {
	if len(candidates) == 0 {
		return Anchor{
			Measured: math.NaN(),
			Expected: expected,
			Delta:    math.NaN(),
		}
	}
	measured := mathutil.Median(candidates)
	delta := measured - expected
	return Anchor{
		Measured:    measured,
		Expected:    expected,
		Delta:       delta,
		Pass:        math.Abs(delta) <= tolerance,
		SampleCount: len(candidates),
	}
}

// ComputeCorrection decides whether the anchors call for a correction.
// Unless both anchors pass, nothing is assessed. Deviations below the
// correction threshold give the identity; otherwise the two-point line
// through (measured, expected) for air and bone is returned.
func (c *Calibrator) ComputeCorrection(air, bone Anchor) Correction {
	if !air.Pass || !bone.Pass {
		return Identity(StatusNotAssessed)
	}

	maxDelta := math.Max(math.Abs(air.Delta), math.Abs(bone.Delta))
	if maxDelta < c.params.CorrectionThresholdHU || air.Measured == bone.Measured {
		corr := Identity(StatusWithinTolerance)
		corr.MaxDelta = maxDelta
		return corr
	}

	intercept, slope := stat.LinearRegression(
		[]float64{air.Measured, bone.Measured},
		[]float64{air.Expected, bone.Expected},
		nil, false,
	)
	return Correction{
		Slope:     slope,
		Intercept: intercept,
		Applied:   true,
		MaxDelta:  maxDelta,
		Status:    StatusApplied,
	}
}

// ApplyCorrection returns slope*v + intercept when the correction is
// applied, and v itself otherwise. The input is never modified.
func ApplyCorrection(v *models.Volume, corr Correction) *models.Volume {
	if !corr.Applied {
		return v
	}
	return v.Map(func(value float64) float64 {
		return corr.Slope*value + corr.Intercept
	})
}

// Calibrate runs anchor detection, computes the correction and applies it.
func (c *Calibrator) Calibrate(v *models.Volume) (*models.Volume, Record) {
	rec := Record{
		Air:  c.DetectAirAnchor(v),
		Bone: c.DetectBoneAnchor(v),
	}
	rec.Correction = c.ComputeCorrection(rec.Air, rec.Bone)

	c.log.Info().
		Float64("air_hu", rec.Air.Measured).
		Bool("air_pass", rec.Air.Pass).
		Float64("bone_hu", rec.Bone.Measured).
		Bool("bone_pass", rec.Bone.Pass).
		Str("status", rec.Correction.Status).
		Msg("calibration anchors")
	if rec.Correction.Applied {
		c.log.Info().
			Float64("slope", rec.Correction.Slope).
			Float64("intercept", rec.Correction.Intercept).
			Msg("applying HU correction")
	}

	return ApplyCorrection(v, rec.Correction), rec
}
