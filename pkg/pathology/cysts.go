package pathology

import (
	"fmt"

	"github.com/rs/zerolog"

	"sinusct/internal/mathutil"
	"sinusct/internal/models"
	"sinusct/pkg/morphology"
	"sinusct/pkg/regions"
)

// CystParams configures retention cyst detection.
type CystParams struct {
	// MinHU and MaxHU bound the fluid window (exclusive)
	MinHU float64 `yaml:"minHU"`
	MaxHU float64 `yaml:"maxHU"`

	// OstiumExclusionFraction of the depth axis, from the top, is ignored
	OstiumExclusionFraction float64 `yaml:"ostiumExclusionFraction"`

	// WallProximityVoxels is the erosion depth defining the near-wall zone
	WallProximityVoxels int `yaml:"wallProximityVoxels"`

	MinVolumeMM3 float64 `yaml:"minVolumeMM3"`
	MaxVolumeMM3 float64 `yaml:"maxVolumeMM3"`
	MinSolidity  float64 `yaml:"minSolidity"`

	// CavityClosingRadius fills soft tissue pockets when the cavity has to
	// be derived from the air mask
	CavityClosingRadius int `yaml:"cavityClosingRadius"`
}

// DefaultCystParams returns the standard settings.
func DefaultCystParams() CystParams {
	return CystParams{
		MinHU:                   -50,
		MaxHU:                   50,
		OstiumExclusionFraction: 0.2,
		WallProximityVoxels:     3,
		MinVolumeMM3:            15,
		MaxVolumeMM3:            500,
		MinSolidity:             0.5,
		CavityClosingRadius:     3,
	}
}

// Cyst is one accepted retention cyst.
type Cyst struct {
	VoxelCount int        `json:"voxel_count"`
	VolumeMM3  float64    `json:"volume_mm3"`
	MeanHU     float64    `json:"mean_hu"`
	Centroid   [3]float64 `json:"centroid"`
	Solidity   float64    `json:"solidity"`
	Box        models.Box `json:"box"`
}

// CystResult lists accepted cysts and how many components were examined.
type CystResult struct {
	Count      int    `json:"count"`
	Cysts      []Cyst `json:"cysts"`
	Components int    `json:"components_examined"`
}

// CystDetector finds wall-adherent fluid pockets inside the cavity.
type CystDetector struct {
	params CystParams
	log    zerolog.Logger
}

// NewCystDetector creates a detector.
func NewCystDetector(params CystParams) *CystDetector {
	return &CystDetector{params: params, log: zerolog.Nop()}
}

// SetLogger replaces the detector's logger.
func (d *CystDetector) SetLogger(l zerolog.Logger) {
	d.log = l
}

// Cavity returns the sinus cavity for cyst search: the provider's
// "sinus_cavity" mask when available. Otherwise the air mask is closed by
// CavityClosingRadius and every fluid-window component touching the closed
// air is added whole, so wall-adherent pockets are not clipped.
func (d *CystDetector) Cavity(v *models.Volume, provider regions.Provider, airThreshold float64) *models.Mask {
	if provider != nil {
		if m := provider.RegionMask(v, regions.SinusCavity); m != nil {
			return m
		}
	}
	cavity := morphology.Close(v.Below(airThreshold), morphology.Cross(), d.params.CavityClosingRadius)
	reach := morphology.Dilate(cavity, morphology.Cross(), 1)
	added := 0
	for _, c := range morphology.Components(v.Between(d.params.MinHU, d.params.MaxHU)) {
		if !touches(c, reach) {
			continue
		}
		for _, idx := range c.Indices {
			cavity.Data[idx] = true
		}
		added++
	}
	d.log.Debug().Int("fluid_components", added).Msg("cyst cavity")
	return cavity
}

func touches(c morphology.Component, m *models.Mask) bool {
	for _, idx := range c.Indices {
		if m.Data[idx] {
			return true
		}
	}
	return false
}

// Detect finds cysts inside cavity. The cavity must match the volume's
// shape.
func (d *CystDetector) Detect(v *models.Volume, cavity *models.Mask) (CystResult, error) {
	if err := cavity.CheckShape(v.Shape()); err != nil {
		return CystResult{Cysts: []Cyst{}}, fmt.Errorf("cyst cavity: %w", err)
	}
	p := d.params
	shape := v.Shape()

	candidates := cavity.And(v.Between(p.MinHU, p.MaxHU))
	zCutoff := int(float64(v.Depth) * p.OstiumExclusionFraction)
	for i := 0; i < zCutoff*v.Height*v.Width && i < len(candidates.Data); i++ {
		candidates.Data[i] = false
	}

	eroded := morphology.Erode(cavity, morphology.Cross(), p.WallProximityVoxels)
	candidates = candidates.And(cavity.AndNot(eroded))

	voxelMM3 := v.VoxelVolumeMM3()
	components := morphology.Components(candidates)
	res := CystResult{Cysts: []Cyst{}, Components: len(components)}
	for _, c := range components {
		volume := float64(c.Size()) * voxelMM3
		if volume < p.MinVolumeMM3 || volume > p.MaxVolumeMM3 {
			d.log.Debug().Int("label", c.Label).Float64("volume_mm3", volume).Msg("cyst rejected: size")
			continue
		}
		solidity := c.Solidity()
		if solidity < p.MinSolidity {
			d.log.Debug().Int("label", c.Label).Float64("solidity", solidity).Msg("cyst rejected: shape")
			continue
		}

		values := make([]float64, len(c.Indices))
		for i, idx := range c.Indices {
			values[i] = v.Data[idx]
		}
		res.Cysts = append(res.Cysts, Cyst{
			VoxelCount: c.Size(),
			VolumeMM3:  volume,
			MeanHU:     mathutil.Mean(values),
			Centroid:   c.Centroid(shape),
			Solidity:   solidity,
			Box:        c.Box,
		})
	}
	res.Count = len(res.Cysts)

	d.log.Info().Int("cysts", res.Count).Int("components", res.Components).Msg("retention cysts")
	return res, nil
}
