package analysis

import (
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sinusct/internal/models"
)

// Input is one labelled volume for AnalyzeBatch.
type Input struct {
	Label  string
	Volume *models.Volume
}

// BatchResult is the outcome for one input. Err is set instead of Report
// when that volume failed.
type BatchResult struct {
	Label  string  `json:"label" yaml:"label"`
	Report *Report `json:"report,omitempty" yaml:"report,omitempty"`
	Err    error   `json:"-" yaml:"-"`
	Error  string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// AnalyzeBatch analyses inputs with at most NumWorkers volumes in flight.
// Results are returned in input order; a failure affects only its own
// entry.
func (a *Analyzer) AnalyzeBatch(inputs []Input) []BatchResult {
	results := make([]BatchResult, len(inputs))
	workers := a.params.NumWorkers
	if workers < 1 {
		workers = 1
	}

	type processingResult struct {
		idx    int
		report *Report
		err    error
	}
	resultChan := make(chan processingResult)
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(idx int, in Input) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			report, err := a.Analyze(in.Volume, in.Label)
			resultChan <- processingResult{idx: idx, report: report, err: err}
		}(i, in)
	}
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	for res := range resultChan {
		completed++
		out := BatchResult{Label: inputs[res.idx].Label, Report: res.report, Err: res.err}
		if res.err != nil {
			out.Error = res.err.Error()
			a.log.Error().Err(res.err).Str("volume", out.Label).Msg("analysis failed")
		}
		results[res.idx] = out
		a.log.Debug().Int("completed", completed).Int("total", len(inputs)).Msg("batch progress")
	}
	return results
}

// Stat summarises one measurement across a batch.
type Stat struct {
	N      int     `json:"n" yaml:"n"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

func newStat(values []float64) Stat {
	if len(values) == 0 {
		return Stat{}
	}
	s := Stat{N: len(values), Min: floats.Min(values), Max: floats.Max(values)}
	if len(values) == 1 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	return s
}

// Summary aggregates the successful reports of a batch.
type Summary struct {
	Volumes         int  `json:"volumes" yaml:"volumes"`
	Failed          int  `json:"failed" yaml:"failed"`
	LM24            Stat `json:"lm24" yaml:"lm24"`
	SclerosisPct    Stat `json:"sclerosis_pct" yaml:"sclerosis_pct"`
	OMCLeftAirPct   Stat `json:"omc_left_air_pct" yaml:"omc_left_air_pct"`
	OMCRightAirPct  Stat `json:"omc_right_air_pct" yaml:"omc_right_air_pct"`
	CystCount       Stat `json:"cyst_count" yaml:"cyst_count"`
	CalibratedCount int  `json:"calibrated_count" yaml:"calibrated_count"`
}

// Summarize computes batch statistics over the successful results.
func Summarize(results []BatchResult) Summary {
	sum := Summary{Volumes: len(results)}
	var lm24, scl, left, right, cysts []float64
	for _, res := range results {
		if res.Err != nil || res.Report == nil {
			sum.Failed++
			continue
		}
		r := res.Report
		lm24 = append(lm24, float64(r.LundMackay.Standard.Totals.LM24))
		scl = append(scl, r.Sclerosis.FractionPct)
		left = append(left, r.OMC.Left.AirFractionPct)
		right = append(right, r.OMC.Right.AirFractionPct)
		cysts = append(cysts, float64(r.Cysts.Count))
		if r.Calibration.Correction.Applied {
			sum.CalibratedCount++
		}
	}
	sum.LM24 = newStat(lm24)
	sum.SclerosisPct = newStat(scl)
	sum.OMCLeftAirPct = newStat(left)
	sum.OMCRightAirPct = newStat(right)
	sum.CystCount = newStat(cysts)
	return sum
}
