package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinusct/internal/models"
)

func TestAnalyzeBatch(t *testing.T) {
	p := DefaultParams()
	p.NumWorkers = 2
	a := NewAnalyzer(p, nil)

	inputs := []Input{
		{Label: "first", Volume: airPhantom(16, 2)},
		{Label: "broken", Volume: models.NewVolume(4, 4, 4, models.Spacing{})},
		{Label: "third", Volume: airPhantom(16, 3)},
	}
	results := a.AnalyzeBatch(inputs)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, inputs[i].Label, res.Label)
	}

	require.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Report)
	assert.Equal(t, "first", results[0].Report.Label)

	assert.ErrorIs(t, results[1].Err, models.ErrInvalidSpacing)
	assert.Nil(t, results[1].Report)
	assert.NotEmpty(t, results[1].Error)

	require.NoError(t, results[2].Err)
	assert.Equal(t, 10*10*10, results[2].Report.Volumetrics.AirVoxels)
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	results := NewAnalyzer(DefaultParams(), nil).AnalyzeBatch(nil)
	assert.Empty(t, results)
}

func reportWith(lm24 int, sclerosisPct, leftPct float64, cysts int) *Report {
	r := &Report{}
	r.LundMackay.Standard.Totals.LM24 = lm24
	r.Sclerosis.FractionPct = sclerosisPct
	r.OMC.Left.AirFractionPct = leftPct
	r.OMC.Right.AirFractionPct = 50
	r.Cysts.Count = cysts
	return r
}

func TestSummarize(t *testing.T) {
	results := []BatchResult{
		{Label: "a", Report: reportWith(2, 1, 10, 0)},
		{Label: "b", Err: models.ErrEmptyVolume},
		{Label: "c", Report: reportWith(6, 3, 30, 4)},
	}
	results[2].Report.Calibration.Correction.Applied = true

	sum := Summarize(results)
	assert.Equal(t, 3, sum.Volumes)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.CalibratedCount)

	assert.Equal(t, 2, sum.LM24.N)
	assert.InDelta(t, 4.0, sum.LM24.Mean, 1e-12)
	// sample standard deviation of {2, 6}
	assert.InDelta(t, 2.8284271247461903, sum.LM24.StdDev, 1e-12)
	assert.Equal(t, 2.0, sum.LM24.Min)
	assert.Equal(t, 6.0, sum.LM24.Max)

	assert.InDelta(t, 20.0, sum.OMCLeftAirPct.Mean, 1e-12)
	assert.InDelta(t, 0.0, sum.OMCRightAirPct.StdDev, 1e-12)
	assert.InDelta(t, 2.0, sum.CystCount.Mean, 1e-12)
}

func TestSummarizeSingleAndNone(t *testing.T) {
	one := Summarize([]BatchResult{{Report: reportWith(5, 0, 0, 0)}})
	assert.Equal(t, Stat{N: 1, Mean: 5, Min: 5, Max: 5}, one.LM24)

	none := Summarize([]BatchResult{{Err: models.ErrEmptyVolume}})
	assert.Equal(t, Stat{}, none.LM24)
	assert.Equal(t, 1, none.Failed)
}
