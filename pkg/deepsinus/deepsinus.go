// Package deepsinus measures the posterior sinus structures: sphenoid
// volume and opacification, posterior ethmoid air cells and skull base
// thickness.
package deepsinus

import (
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"sinusct/internal/mathutil"
	"sinusct/internal/models"
	"sinusct/pkg/morphology"
	"sinusct/pkg/regions"
)

// Params configures the deep sinus measurements.
type Params struct {
	SphenoidOpeningSize int `yaml:"sphenoidOpeningSize"`

	// PneumatizationML are the volume limits of grades 0, 1 and 2
	PneumatizationML [3]float64 `yaml:"pneumatizationML,flow"`

	// ClearAbove and PartialAbove are the air fractions for opacification grades 0 and 1
	ClearAbove   float64 `yaml:"clearAbove"`
	PartialAbove float64 `yaml:"partialAbove"`

	FluidSlices      int     `yaml:"fluidSlices"`
	FluidTissueMaxHU float64 `yaml:"fluidTissueMaxHU"`
	FluidMinSamples  int     `yaml:"fluidMinSamples"`
	FluidDeltaHU     float64 `yaml:"fluidDeltaHU"`

	EthmoidOpeningSize int `yaml:"ethmoidOpeningSize"`

	SkullBaseBoneHU        float64 `yaml:"skullBaseBoneHU"`
	SkullBaseMinRun        int     `yaml:"skullBaseMinRun"`
	SkullBaseMinBoneVoxels int     `yaml:"skullBaseMinBoneVoxels"`
}

// DefaultParams returns the standard settings.
func DefaultParams() Params {
	return Params{
		SphenoidOpeningSize:    3,
		PneumatizationML:       [3]float64{0.5, 2, 6},
		ClearAbove:             0.5,
		PartialAbove:           0.1,
		FluidSlices:            5,
		FluidTissueMaxHU:       100,
		FluidMinSamples:        10,
		FluidDeltaHU:           20,
		EthmoidOpeningSize:     2,
		SkullBaseBoneHU:        200,
		SkullBaseMinRun:        2,
		SkullBaseMinBoneVoxels: 10,
	}
}

// SphenoidVolume is the pneumatised sphenoid volume.
type SphenoidVolume struct {
	VolumeML            float64 `json:"volume_ml"`
	LeftML              float64 `json:"left_ml"`
	RightML             float64 `json:"right_ml"`
	PneumatizationGrade int     `json:"pneumatization_grade"`
	AirFraction         float64 `json:"air_fraction"`
}

// SphenoidOpacification grades each half of the sphenoid and looks for a
// dependent fluid level.
type SphenoidOpacification struct {
	LeftGrade        int     `json:"left_grade"`
	RightGrade       int     `json:"right_grade"`
	LeftAirFraction  float64 `json:"left_air_fraction"`
	RightAirFraction float64 `json:"right_air_fraction"`
	FluidDetected    bool    `json:"fluid_detected"`
	InferiorTissueHU float64 `json:"inferior_tissue_hu"`
	SuperiorTissueHU float64 `json:"superior_tissue_hu"`
}

// PosteriorEthmoid summarises the posterior ethmoid air cells.
type PosteriorEthmoid struct {
	VolumeML    float64 `json:"volume_ml"`
	LeftML      float64 `json:"left_ml"`
	RightML     float64 `json:"right_ml"`
	CellCount   int     `json:"cell_count"`
	AirFraction float64 `json:"air_fraction"`
}

// SkullBase summarises bone thickness above the sphenoid.
type SkullBase struct {
	MeanThicknessMM float64 `json:"mean_thickness_mm"`
	MinThicknessMM  float64 `json:"min_thickness_mm"`
	BoneVolumeML    float64 `json:"bone_volume_ml"`
	BoneMeanHU      float64 `json:"bone_mean_hu"`
	Columns         int     `json:"columns"`
}

// Result holds every deep sinus measurement.
type Result struct {
	Sphenoid              SphenoidVolume        `json:"sphenoid"`
	SphenoidOpacification SphenoidOpacification `json:"sphenoid_opacification"`
	PosteriorEthmoid      PosteriorEthmoid      `json:"posterior_ethmoid"`
	SkullBase             SkullBase             `json:"skull_base"`
}

// Analyzer runs the deep sinus measurements.
type Analyzer struct {
	params   Params
	provider regions.Provider
	log      zerolog.Logger
}

// NewAnalyzer creates an analyzer; a nil provider uses the atlas.
func NewAnalyzer(params Params, provider regions.Provider) *Analyzer {
	if provider == nil {
		provider = regions.NewAtlas()
	}
	return &Analyzer{params: params, provider: provider, log: zerolog.Nop()}
}

// SetLogger replaces the analyzer's logger.
func (a *Analyzer) SetLogger(l zerolog.Logger) {
	a.log = l
}

// Analyze runs every measurement at airThreshold.
func (a *Analyzer) Analyze(v *models.Volume, airThreshold float64) Result {
	res := Result{
		Sphenoid:              a.SphenoidVolume(v, airThreshold),
		SphenoidOpacification: a.SphenoidOpacification(v, airThreshold),
		PosteriorEthmoid:      a.PosteriorEthmoid(v, airThreshold),
		SkullBase:             a.SkullBase(v),
	}
	a.log.Info().
		Float64("sphenoid_ml", res.Sphenoid.VolumeML).
		Int("pneumatization", res.Sphenoid.PneumatizationGrade).
		Bool("fluid", res.SphenoidOpacification.FluidDetected).
		Int("ethmoid_cells", res.PosteriorEthmoid.CellCount).
		Float64("skull_base_mm", res.SkullBase.MeanThicknessMM).
		Msg("deep sinus")
	return res
}

func (a *Analyzer) roi(v *models.Volume, name string) (*models.Volume, bool) {
	box, ok := a.provider.RegionBounds(v, name)
	if !ok {
		return nil, false
	}
	return v.Crop(box), true
}

// halves splits a mask at its x midline; left is the lower-x half.
func halves(m *models.Mask) (left, right int) {
	mid := m.Width / 2
	for i, set := range m.Data {
		if !set {
			continue
		}
		if i%m.Width < mid {
			left++
		} else {
			right++
		}
	}
	return left, right
}

// SphenoidVolume measures sphenoid air after a 3×3×3 opening.
func (a *Analyzer) SphenoidVolume(v *models.Volume, airThreshold float64) SphenoidVolume {
	roi, ok := a.roi(v, regions.Sphenoid)
	if !ok {
		return SphenoidVolume{}
	}
	air := morphology.Open(roi.Below(airThreshold), morphology.Cube(a.params.SphenoidOpeningSize))
	toML := v.VoxelVolumeMM3() / 1000
	left, right := halves(air)
	total := left + right

	res := SphenoidVolume{
		VolumeML:    float64(total) * toML,
		LeftML:      float64(left) * toML,
		RightML:     float64(right) * toML,
		AirFraction: mathutil.Ratio(float64(total), float64(len(roi.Data))),
	}
	res.PneumatizationGrade = len(a.params.PneumatizationML)
	for grade, limit := range a.params.PneumatizationML {
		if res.VolumeML < limit {
			res.PneumatizationGrade = grade
			break
		}
	}
	return res
}

func (a *Analyzer) opacificationGrade(airFraction float64) int {
	switch {
	case airFraction > a.params.ClearAbove:
		return 0
	case airFraction > a.params.PartialAbove:
		return 1
	default:
		return 2
	}
}

// SphenoidOpacification grades each half of the sphenoid by air fraction
// and reports a fluid level when the tissue in the inferior slices is
// denser than in the superior slices by more than FluidDeltaHU.
func (a *Analyzer) SphenoidOpacification(v *models.Volume, airThreshold float64) SphenoidOpacification {
	roi, ok := a.roi(v, regions.Sphenoid)
	if !ok {
		return SphenoidOpacification{LeftGrade: 2, RightGrade: 2}
	}
	p := a.params

	air := roi.Below(airThreshold)
	leftAir, rightAir := halves(air)
	area := roi.Height * roi.Depth
	mid := roi.Width / 2

	res := SphenoidOpacification{
		LeftAirFraction:  mathutil.Ratio(float64(leftAir), float64(area*mid)),
		RightAirFraction: mathutil.Ratio(float64(rightAir), float64(area*(roi.Width-mid))),
	}
	res.LeftGrade = a.opacificationGrade(res.LeftAirFraction)
	res.RightGrade = a.opacificationGrade(res.RightAirFraction)

	n := p.FluidSlices
	if n > roi.Depth {
		n = roi.Depth
	}
	tissue := func(z0, z1 int) []float64 {
		box := models.Box{
			Z: models.Range{Start: z0, End: z1},
			Y: models.Range{Start: 0, End: roi.Height},
			X: models.Range{Start: 0, End: roi.Width},
		}
		var out []float64
		for _, value := range roi.Values(box) {
			if value > airThreshold && value < p.FluidTissueMaxHU {
				out = append(out, value)
			}
		}
		return out
	}
	inferior := tissue(roi.Depth-n, roi.Depth)
	superior := tissue(0, n)
	if len(inferior) > p.FluidMinSamples && len(superior) > p.FluidMinSamples {
		res.InferiorTissueHU = mathutil.Mean(inferior)
		res.SuperiorTissueHU = mathutil.Mean(superior)
		res.FluidDetected = res.InferiorTissueHU > res.SuperiorTissueHU+p.FluidDeltaHU
	}
	return res
}

// PosteriorEthmoid measures the air cells in the two lateral ethmoid bands.
func (a *Analyzer) PosteriorEthmoid(v *models.Volume, airThreshold float64) PosteriorEthmoid {
	toML := v.VoxelVolumeMM3() / 1000
	structure := morphology.Cube(a.params.EthmoidOpeningSize)

	var res PosteriorEthmoid
	total, size := 0, 0
	for _, side := range regions.Sides {
		name := regions.PosteriorEthmoidLeft
		if side == regions.Right {
			name = regions.PosteriorEthmoidRight
		}
		roi, ok := a.roi(v, name)
		if !ok {
			continue
		}
		air := morphology.Open(roi.Below(airThreshold), structure)
		count := air.Count()
		res.CellCount += len(morphology.Components(air))
		if side == regions.Left {
			res.LeftML = float64(count) * toML
		} else {
			res.RightML = float64(count) * toML
		}
		total += count
		size += len(roi.Data)
	}
	res.VolumeML = res.LeftML + res.RightML
	res.AirFraction = mathutil.Ratio(float64(total), float64(size))
	return res
}

// SkullBase measures, per (y, x) column, the longest vertical run of bone
// and reports the mean and minimum run length in millimetres.
func (a *Analyzer) SkullBase(v *models.Volume) SkullBase {
	roi, ok := a.roi(v, regions.SkullBase)
	if !ok {
		return SkullBase{}
	}
	p := a.params
	bone := roi.Above(p.SkullBaseBoneHU)
	boneCount := bone.Count()
	if boneCount < p.SkullBaseMinBoneVoxels {
		return SkullBase{}
	}

	var thicknesses []float64
	for y := 0; y < roi.Height; y++ {
		for x := 0; x < roi.Width; x++ {
			longest, run := 0, 0
			for z := 0; z < roi.Depth; z++ {
				if bone.At(z, y, x) {
					run++
					if run > longest {
						longest = run
					}
				} else {
					run = 0
				}
			}
			if longest >= p.SkullBaseMinRun {
				thicknesses = append(thicknesses, float64(longest)*v.Spacing.Z)
			}
		}
	}
	if len(thicknesses) == 0 {
		return SkullBase{}
	}

	return SkullBase{
		MeanThicknessMM: mathutil.Mean(thicknesses),
		MinThicknessMM:  floats.Min(thicknesses),
		BoneVolumeML:    float64(boneCount) * v.VoxelVolumeMM3() / 1000,
		BoneMeanHU:      mathutil.Mean(roi.Select(bone)),
		Columns:         len(thicknesses),
	}
}
