package pathology

import (
	"sinusct/internal/mathutil"
	"sinusct/internal/models"
	"sinusct/pkg/morphology"
)

// BuildWallShell dilates the cavity by thickness voxels with the
// 6-connected cross and removes the cavity itself.
func BuildWallShell(cavity *models.Mask, thickness int) *models.Mask {
	return morphology.Dilate(cavity, morphology.Cross(), thickness).AndNot(cavity)
}

// ReferenceBone holds cortical bone statistics used to judge sclerosis.
type ReferenceBone struct {
	MeanHU      float64 `json:"mean_hu"`
	StdHU       float64 `json:"std_hu"`
	SampleCount int     `json:"sample_count"`
	Fallback    bool    `json:"fallback"`
}

// ReferenceBoneStats samples voxels strictly inside (ReferenceMinHU,
// ReferenceMaxHU) within box. With fewer than MinReferenceSamples
// qualifying voxels the fallback constants are returned instead.
func ReferenceBoneStats(v *models.Volume, box models.Box, p SclerosisParams) ReferenceBone {
	var samples []float64
	for _, value := range v.Values(box) {
		if value > p.ReferenceMinHU && value < p.ReferenceMaxHU {
			samples = append(samples, value)
		}
	}
	if len(samples) < p.MinReferenceSamples {
		return ReferenceBone{
			MeanHU:      p.FallbackMeanHU,
			StdHU:       p.FallbackStdHU,
			SampleCount: len(samples),
			Fallback:    true,
		}
	}
	mean, std := mathutil.PopMeanStd(samples)
	return ReferenceBone{MeanHU: mean, StdHU: std, SampleCount: len(samples)}
}
