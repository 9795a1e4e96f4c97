package pathology

import (
	"fmt"

	"github.com/rs/zerolog"

	"sinusct/internal/mathutil"
	"sinusct/internal/models"
	"sinusct/pkg/morphology"
	"sinusct/pkg/regions"
)

// Sclerosis interpretation bands.
const (
	SclerosisNormal   = "Normal"
	SclerosisMild     = "Mild chronic changes"
	SclerosisModerate = "Moderate chronic osteitis"
	SclerosisSevere   = "Severe chronic osteitis"
)

// SclerosisParams configures the wall-bone z-score test.
type SclerosisParams struct {
	ShellThickness int     `yaml:"shellThickness"`
	ZThreshold     float64 `yaml:"zThreshold"`
	MinClusterSize int     `yaml:"minClusterSize"`

	ReferenceMinHU      float64 `yaml:"referenceMinHU"`
	ReferenceMaxHU      float64 `yaml:"referenceMaxHU"`
	MinReferenceSamples int     `yaml:"minReferenceSamples"`
	FallbackMeanHU      float64 `yaml:"fallbackMeanHU"`
	FallbackStdHU       float64 `yaml:"fallbackStdHU"`

	// Interpretation cut points on the filtered sclerotic percentage
	MildPct     float64 `yaml:"mildPct"`
	ModeratePct float64 `yaml:"moderatePct"`
	SeverePct   float64 `yaml:"severePct"`
}

// DefaultSclerosisParams returns the standard settings.
func DefaultSclerosisParams() SclerosisParams {
	return SclerosisParams{
		ShellThickness:      2,
		ZThreshold:          2.0,
		MinClusterSize:      30,
		ReferenceMinHU:      800,
		ReferenceMaxHU:      1400,
		MinReferenceSamples: 100,
		FallbackMeanHU:      1100,
		FallbackStdHU:       150,
		MildPct:             5,
		ModeratePct:         15,
		SeverePct:           30,
	}
}

// Interpret maps a sclerotic percentage to its band.
func (p SclerosisParams) Interpret(pct float64) string {
	switch {
	case pct < p.MildPct:
		return SclerosisNormal
	case pct < p.ModeratePct:
		return SclerosisMild
	case pct < p.SeverePct:
		return SclerosisModerate
	default:
		return SclerosisSevere
	}
}

// SclerosisResult summarises the wall-bone analysis.
type SclerosisResult struct {
	// Fraction counts only voxels in clusters of at least MinClusterSize
	Fraction    float64 `json:"fraction"`
	FractionPct float64 `json:"fraction_pct"`

	// RawFraction counts every shell voxel above the threshold
	RawFraction float64 `json:"raw_fraction"`

	ClusterCount     int     `json:"cluster_count"`
	SclerosticVoxels int     `json:"sclerotic_voxels"`
	ShellVoxels      int     `json:"shell_voxels"`
	ShellVolumeML    float64 `json:"shell_volume_ml"`
	WallMeanHU       float64 `json:"wall_mean_hu"`

	ThresholdHU    float64       `json:"threshold_hu"`
	ZThreshold     float64       `json:"z_threshold"`
	Reference      ReferenceBone `json:"reference_bone"`
	Interpretation string        `json:"interpretation"`
}

// SclerosisDetector finds abnormally dense bone in the sinus wall.
type SclerosisDetector struct {
	params   SclerosisParams
	provider regions.Provider
	log      zerolog.Logger
}

// NewSclerosisDetector creates a detector. The reference bone box is the
// "hard_palate" structure of provider; a nil provider uses the atlas.
func NewSclerosisDetector(params SclerosisParams, provider regions.Provider) *SclerosisDetector {
	if provider == nil {
		provider = regions.NewAtlas()
	}
	return &SclerosisDetector{params: params, provider: provider, log: zerolog.Nop()}
}

// SetLogger replaces the detector's logger.
func (d *SclerosisDetector) SetLogger(l zerolog.Logger) {
	d.log = l
}

// Reference estimates reference cortical bone for v.
func (d *SclerosisDetector) Reference(v *models.Volume) ReferenceBone {
	box, ok := d.provider.RegionBounds(v, regions.HardPalate)
	if !ok {
		return ReferenceBoneStats(v, models.Box{}, d.params)
	}
	return ReferenceBoneStats(v, box, d.params)
}

// DetectAtThreshold uses the voxels below airThreshold as the cavity.
func (d *SclerosisDetector) DetectAtThreshold(v *models.Volume, airThreshold float64) (SclerosisResult, error) {
	return d.Detect(v, v.Below(airThreshold))
}

// Detect measures sclerosis in the wall shell around cavity. The cavity
// must match the volume's shape.
func (d *SclerosisDetector) Detect(v *models.Volume, cavity *models.Mask) (SclerosisResult, error) {
	if err := cavity.CheckShape(v.Shape()); err != nil {
		return SclerosisResult{}, fmt.Errorf("sclerosis cavity: %w", err)
	}
	p := d.params
	ref := d.Reference(v)
	if ref.Fallback {
		d.log.Warn().
			Int("samples", ref.SampleCount).
			Float64("mean_hu", ref.MeanHU).
			Float64("std_hu", ref.StdHU).
			Msg("reference bone sample too small, using fallback")
	}
	threshold := ref.MeanHU + p.ZThreshold*ref.StdHU

	shell := BuildWallShell(cavity, p.ShellThickness)
	shellValues := v.Select(shell)

	candidates := models.NewMask(v.Shape())
	raw := 0
	for i, inShell := range shell.Data {
		if inShell && v.Data[i] > threshold {
			candidates.Data[i] = true
			raw++
		}
	}
	filtered, clusters := morphology.RemoveSmall(candidates, p.MinClusterSize)
	kept := filtered.Count()

	res := SclerosisResult{
		Fraction:         mathutil.Ratio(float64(kept), float64(len(shellValues))),
		RawFraction:      mathutil.Ratio(float64(raw), float64(len(shellValues))),
		ClusterCount:     len(clusters),
		SclerosticVoxels: kept,
		ShellVoxels:      len(shellValues),
		ShellVolumeML:    float64(len(shellValues)) * v.VoxelVolumeMM3() / 1000,
		WallMeanHU:       mathutil.Mean(shellValues),
		ThresholdHU:      threshold,
		ZThreshold:       p.ZThreshold,
		Reference:        ref,
	}
	res.FractionPct = res.Fraction * 100
	res.Interpretation = p.Interpret(res.FractionPct)

	d.log.Info().
		Float64("threshold_hu", threshold).
		Float64("fraction_pct", res.FractionPct).
		Int("clusters", res.ClusterCount).
		Msg("wall sclerosis")
	return res, nil
}
