package analysis

import (
	"fmt"
	"time"

	"sinusct/internal/mathutil"
	"sinusct/internal/models"
	"sinusct/pkg/calibration"
	"sinusct/pkg/deepsinus"
	"sinusct/pkg/omc"
	"sinusct/pkg/pathology"
	"sinusct/pkg/regions"
	"sinusct/pkg/scoring"
	"sinusct/pkg/thresholds"
)

// Soft tissue window used for whole-volume volumetrics.
const (
	TissueMinHU = -100.0
	TissueMaxHU = 100.0
)

// Volumetrics are whole-volume air and soft tissue totals.
type Volumetrics struct {
	AirVoxels    int     `json:"air_voxels" yaml:"air_voxels"`
	TissueVoxels int     `json:"tissue_voxels" yaml:"tissue_voxels"`
	AirML        float64 `json:"air_ml" yaml:"air_ml"`
	TissueML     float64 `json:"tissue_ml" yaml:"tissue_ml"`
	AirFraction  float64 `json:"air_fraction" yaml:"air_fraction"`
}

// MeasureVolumes counts voxels below airThreshold as air and voxels in the
// closed tissue window as soft tissue.
func MeasureVolumes(v *models.Volume, airThreshold float64) Volumetrics {
	var out Volumetrics
	for _, value := range v.Data {
		switch {
		case value < airThreshold:
			out.AirVoxels++
		case value >= TissueMinHU && value <= TissueMaxHU:
			out.TissueVoxels++
		}
	}
	voxelML := v.VoxelVolumeMM3() / 1000
	out.AirML = float64(out.AirVoxels) * voxelML
	out.TissueML = float64(out.TissueVoxels) * voxelML
	out.AirFraction = mathutil.Ratio(float64(out.AirVoxels), float64(out.AirVoxels+out.TissueVoxels))
	return out
}

// LundMackay holds the score under both criteria sets.
type LundMackay struct {
	Standard     scoring.Result `json:"standard" yaml:"standard"`
	Conservative scoring.Result `json:"conservative" yaml:"conservative"`
}

// Report is the complete outcome for one volume.
type Report struct {
	ID          string                    `json:"id" yaml:"id"`
	Label       string                    `json:"label" yaml:"label"`
	CreatedAt   time.Time                 `json:"created_at" yaml:"created_at"`
	Duration    time.Duration             `json:"duration_ns" yaml:"duration"`
	Shape       models.Shape              `json:"shape" yaml:"shape"`
	Spacing     models.Spacing            `json:"spacing" yaml:"spacing"`
	Provider    string                    `json:"provider" yaml:"provider"`
	Calibration calibration.Record        `json:"calibration" yaml:"calibration"`
	Thresholds  thresholds.Set            `json:"thresholds" yaml:"thresholds"`
	Volumetrics Volumetrics               `json:"volumetrics" yaml:"volumetrics"`
	OMC         omc.Result                `json:"omc" yaml:"omc"`
	Sclerosis   pathology.SclerosisResult `json:"sclerosis" yaml:"sclerosis"`
	Cysts       pathology.CystResult      `json:"cysts" yaml:"cysts"`
	LundMackay  LundMackay                `json:"lund_mackay" yaml:"lund_mackay"`
	DeepSinus   deepsinus.Result          `json:"deep_sinus" yaml:"deep_sinus"`
	Findings    []Finding                 `json:"findings" yaml:"findings"`
}

// Finding codes.
const (
	FindingOMC                   = "omc_obstruction"
	FindingSclerosis             = "sclerosis"
	FindingCysts                 = "retention_cysts"
	FindingSphenoidOpacification = "sphenoid_opacification"
	FindingSphenoidFluid         = "sphenoid_fluid"
)

// Finding is one notable result in plain words.
type Finding struct {
	Code    string       `json:"code" yaml:"code"`
	Side    regions.Side `json:"side,omitempty" yaml:"side,omitempty"`
	Message string       `json:"message" yaml:"message"`
}

// FindingParams sets when a measurement becomes a finding.
type FindingParams struct {
	SclerosisPct  float64 `yaml:"sclerosisPct"`
	CystCount     int     `yaml:"cystCount"`
	SphenoidGrade int     `yaml:"sphenoidGrade"`
}

// DefaultFindingParams returns the standard finding cut points.
func DefaultFindingParams() FindingParams {
	return FindingParams{
		SclerosisPct:  5,
		CystCount:     2,
		SphenoidGrade: 2,
	}
}

// Summarize lists the findings of r. An OMC side is reported when its air
// fraction does not exceed the patent cut point; cysts when the count
// exceeds CystCount.
func (p FindingParams) Summarize(r *Report, omcParams omc.Params) []Finding {
	findings := []Finding{}
	for _, side := range regions.Sides {
		res := r.OMC.Side(side)
		if res.AirFraction > omcParams.PatentAbove {
			continue
		}
		findings = append(findings, Finding{
			Code:    FindingOMC,
			Side:    side,
			Message: fmt.Sprintf("%s OMC %s (%.1f%% air)", sideTitle(side), res.Classification, res.AirFractionPct),
		})
	}
	if r.Sclerosis.FractionPct >= p.SclerosisPct {
		findings = append(findings, Finding{
			Code:    FindingSclerosis,
			Message: fmt.Sprintf("Sclerotic bone changes (%.1f%% of sinus wall, %s)", r.Sclerosis.FractionPct, r.Sclerosis.Interpretation),
		})
	}
	if r.Cysts.Count > p.CystCount {
		findings = append(findings, Finding{
			Code:    FindingCysts,
			Message: fmt.Sprintf("Elevated retention cyst count (%d)", r.Cysts.Count),
		})
	}
	opac := r.DeepSinus.SphenoidOpacification
	if opac.LeftGrade >= p.SphenoidGrade || opac.RightGrade >= p.SphenoidGrade {
		findings = append(findings, Finding{
			Code:    FindingSphenoidOpacification,
			Message: fmt.Sprintf("Sphenoid sinus opacification detected (left grade %d, right grade %d)", opac.LeftGrade, opac.RightGrade),
		})
	}
	if opac.FluidDetected {
		findings = append(findings, Finding{
			Code:    FindingSphenoidFluid,
			Message: "Sphenoid fluid level present",
		})
	}
	return findings
}

func sideTitle(s regions.Side) string {
	if s == regions.Right {
		return "Right"
	}
	return "Left"
}
