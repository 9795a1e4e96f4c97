package analysis

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinusct/internal/models"
	"sinusct/pkg/calibration"
	"sinusct/pkg/deepsinus"
	"sinusct/pkg/omc"
	"sinusct/pkg/regions"
	"sinusct/pkg/thresholds"
)

func box(z0, z1, y0, y1, x0, x1 int) models.Box {
	return models.Box{
		Z: models.Range{Start: z0, End: z1},
		Y: models.Range{Start: y0, End: y1},
		X: models.Range{Start: x0, End: x1},
	}
}

// airPhantom is an n³ bone block at 1200 HU with an air cavity one
// margin in from every face.
func airPhantom(n, margin int) *models.Volume {
	v := models.NewVolume(n, n, n, models.Spacing{Z: 1, Y: 1, X: 1})
	v.Fill(v.Shape().Box(), 1200)
	v.Fill(box(margin, n-margin, margin, n-margin, margin, n-margin), -1000)
	return v
}

func TestAnalyzeHealthyPhantom(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full pipeline in short mode")
	}

	a := NewAnalyzer(DefaultParams(), nil)
	report, err := a.Analyze(airPhantom(64, 2), "healthy")
	require.NoError(t, err)

	t.Run("Metadata", func(t *testing.T) {
		assert.NotEmpty(t, report.ID)
		assert.Equal(t, "healthy", report.Label)
		assert.Equal(t, "atlas", report.Provider)
		assert.Equal(t, models.Shape{Depth: 64, Height: 64, Width: 64}, report.Shape)
	})

	t.Run("Calibration", func(t *testing.T) {
		assert.Equal(t, calibration.StatusNotAssessed, report.Calibration.Correction.Status)
		assert.False(t, report.Calibration.Correction.Applied)
	})

	t.Run("Thresholds", func(t *testing.T) {
		assert.Equal(t, thresholds.SourceCentralSubvolume, report.Thresholds.Source)
		assert.Equal(t, -400.0, report.Thresholds.AirThreshold)
	})

	t.Run("Volumetrics", func(t *testing.T) {
		assert.Equal(t, 60*60*60, report.Volumetrics.AirVoxels)
		assert.Equal(t, 0, report.Volumetrics.TissueVoxels)
		assert.InDelta(t, 216.0, report.Volumetrics.AirML, 1e-9)
		assert.Equal(t, 1.0, report.Volumetrics.AirFraction)
	})

	t.Run("OMC", func(t *testing.T) {
		assert.Equal(t, omc.Patent, report.OMC.Left.Classification)
		assert.Equal(t, omc.Patent, report.OMC.Right.Classification)
	})

	t.Run("Pathology", func(t *testing.T) {
		assert.True(t, report.Sclerosis.Reference.Fallback)
		assert.Equal(t, 0.0, report.Sclerosis.FractionPct)
		assert.Equal(t, 0, report.Cysts.Count)
	})

	t.Run("LundMackay", func(t *testing.T) {
		assert.Equal(t, 0, report.LundMackay.Standard.Totals.LM20)
		assert.Equal(t, 0, report.LundMackay.Standard.Totals.LM24)
		assert.Equal(t, 0, report.LundMackay.Conservative.Totals.LM24)
	})

	t.Run("Findings", func(t *testing.T) {
		assert.Empty(t, report.Findings)
		assert.NotNil(t, report.Findings)
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := json.Marshal(report)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"findings":[]`)
	})
}

func TestAnalyzeBlockedLeftOMC(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full pipeline in short mode")
	}

	v := airPhantom(64, 2)
	// covers every left OMC candidate corridor
	v.Fill(box(16, 38, 22, 45, 0, 28), 40)

	report, err := NewAnalyzer(DefaultParams(), nil).Analyze(v, "blocked")
	require.NoError(t, err)

	assert.Equal(t, omc.Obstructed, report.OMC.Left.Classification)
	assert.Equal(t, omc.Patent, report.OMC.Right.Classification)

	var omcFindings []Finding
	for _, f := range report.Findings {
		if f.Code == FindingOMC {
			omcFindings = append(omcFindings, f)
		}
	}
	require.Len(t, omcFindings, 1)
	assert.Equal(t, regions.Left, omcFindings[0].Side)
	assert.Contains(t, omcFindings[0].Message, "Left OMC Obstructed")
}

func TestAnalyzeFindsWallAdherentCyst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full pipeline in short mode")
	}

	// 136-voxel ball scaled to 100 mm³, filling the width of a thin air
	// slab so it rests on both walls
	side := math.Cbrt(100.0 / 136)
	v := models.NewVolume(64, 64, 64, models.Spacing{Z: side, Y: side, X: side})
	v.Fill(v.Shape().Box(), 1200)
	v.Fill(box(14, 50, 20, 44, 20, 26), -1000)
	ball := 0
	for z := 0; z < 6; z++ {
		for y := 0; y < 6; y++ {
			for x := 0; x < 6; x++ {
				dz, dy, dx := float64(z)-2.5, float64(y)-2.5, float64(x)-2.5
				if dz*dz+dy*dy+dx*dx <= 9 {
					v.Set(30+z, 24+y, 20+x, 20)
					ball++
				}
			}
		}
	}
	require.Equal(t, 136, ball)

	report, err := NewAnalyzer(DefaultParams(), nil).Analyze(v, "cyst")
	require.NoError(t, err)

	require.Equal(t, 1, report.Cysts.Count)
	c := report.Cysts.Cysts[0]
	assert.Equal(t, 136, c.VoxelCount)
	assert.InDelta(t, 100, c.VolumeMM3, 1e-9)
	assert.Equal(t, models.Range{Start: 20, End: 26}, c.Box.X)
	assert.Equal(t, 20.0, c.MeanHU)
}

func TestAnalyzeInvalidVolume(t *testing.T) {
	a := NewAnalyzer(DefaultParams(), nil)

	_, err := a.Analyze(&models.Volume{}, "empty")
	assert.ErrorIs(t, err, models.ErrEmptyVolume)

	v := models.NewVolume(4, 4, 4, models.Spacing{Z: 0, Y: 1, X: 1})
	_, err = a.Analyze(v, "flat")
	assert.ErrorIs(t, err, models.ErrInvalidSpacing)
}

// staleCavity serves a sinus cavity mask sized for a different scan.
type staleCavity struct{}

func (staleCavity) Name() string         { return "stale" }
func (staleCavity) Structures() []string { return []string{regions.SinusCavity} }

func (staleCavity) RegionMask(v *models.Volume, name string) *models.Mask {
	if name != regions.SinusCavity {
		return nil
	}
	return models.NewMask(models.Shape{Depth: 4, Height: 4, Width: 4})
}

func (staleCavity) RegionBounds(v *models.Volume, name string) (models.Box, bool) {
	return models.Box{}, false
}

func TestAnalyzeRejectsMismatchedCavityMask(t *testing.T) {
	_, err := NewAnalyzer(DefaultParams(), staleCavity{}).Analyze(airPhantom(16, 2), "stale")
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}

func TestSkipCalibration(t *testing.T) {
	p := DefaultParams()
	p.SkipCalibration = true
	report, err := NewAnalyzer(p, nil).Analyze(airPhantom(16, 2), "raw")
	require.NoError(t, err)

	assert.Equal(t, calibration.StatusNotAssessed, report.Calibration.Correction.Status)
	assert.Equal(t, 0, report.Calibration.Air.SampleCount)
}

func TestMeasureVolumes(t *testing.T) {
	v := models.NewVolume(1, 1, 6, models.Spacing{Z: 2, Y: 1, X: 1})
	copy(v.Data, []float64{-1000, -500, -100, 0, 100, 101})

	got := MeasureVolumes(v, -400)
	assert.Equal(t, 2, got.AirVoxels)
	assert.Equal(t, 3, got.TissueVoxels)
	assert.InDelta(t, 0.004, got.AirML, 1e-12)
	assert.InDelta(t, 0.006, got.TissueML, 1e-12)
	assert.InDelta(t, 0.4, got.AirFraction, 1e-12)

	empty := MeasureVolumes(models.NewVolume(1, 1, 2, models.Spacing{Z: 1, Y: 1, X: 1}), -400)
	assert.Equal(t, 0.0, empty.AirFraction)
}

func TestFindingParamsSummarize(t *testing.T) {
	p := DefaultFindingParams()
	omcParams := omc.DefaultParams()

	r := &Report{}
	r.OMC.Left = omc.SideResult{AirFraction: 0.5, AirFractionPct: 50, Classification: omc.Patent}
	r.OMC.Right = omc.SideResult{AirFraction: 0.12, AirFractionPct: 12, Classification: omc.Indeterminate}
	r.Sclerosis.FractionPct = 5
	r.Sclerosis.Interpretation = "mild"
	r.Cysts.Count = 3
	r.DeepSinus.SphenoidOpacification.RightGrade = 2
	r.DeepSinus.SphenoidOpacification.FluidDetected = true

	got := p.Summarize(r, omcParams)
	codes := make([]string, len(got))
	for i, f := range got {
		codes[i] = f.Code
	}
	assert.Equal(t, []string{
		FindingOMC,
		FindingSclerosis,
		FindingCysts,
		FindingSphenoidOpacification,
		FindingSphenoidFluid,
	}, codes)
	assert.Equal(t, regions.Right, got[0].Side)
	assert.Equal(t, "Right OMC Indeterminate (12.0% air)", got[0].Message)
	assert.Equal(t, "Elevated retention cyst count (3)", got[2].Message)

	r.Cysts.Count = 2
	r.Sclerosis.FractionPct = 4.9
	r.OMC.Right.AirFraction = 0.13
	r.DeepSinus.SphenoidOpacification = deepsinus.SphenoidOpacification{}
	assert.Empty(t, p.Summarize(r, omcParams))
}
