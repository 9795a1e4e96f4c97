// Package analysis runs the full sinus measurement pipeline on a volume
// and assembles the findings report.
package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sinusct/internal/logger"
	"sinusct/internal/models"
	"sinusct/pkg/calibration"
	"sinusct/pkg/deepsinus"
	"sinusct/pkg/omc"
	"sinusct/pkg/pathology"
	"sinusct/pkg/regions"
	"sinusct/pkg/scoring"
	"sinusct/pkg/thresholds"
)

// Params holds the settings of every pipeline stage.
type Params struct {
	Calibration calibration.Params        `yaml:"calibration"`
	Thresholds  thresholds.Params         `yaml:"thresholds"`
	OMC         omc.Params                `yaml:"omc"`
	Sclerosis   pathology.SclerosisParams `yaml:"sclerosis"`
	Cysts       pathology.CystParams      `yaml:"cysts"`
	Scoring     scoring.Params            `yaml:"scoring"`
	DeepSinus   deepsinus.Params          `yaml:"deepSinus"`
	Findings    FindingParams             `yaml:"findings"`

	// SkipCalibration analyses the volume as supplied
	SkipCalibration bool `yaml:"skipCalibration"`

	// NumWorkers bounds concurrent volumes in AnalyzeBatch
	NumWorkers int `yaml:"numWorkers"`
}

// DefaultParams returns the standard settings for every stage.
func DefaultParams() Params {
	return Params{
		Calibration: calibration.DefaultParams(),
		Thresholds:  thresholds.DefaultParams(),
		OMC:         omc.DefaultParams(),
		Sclerosis:   pathology.DefaultSclerosisParams(),
		Cysts:       pathology.DefaultCystParams(),
		Scoring:     scoring.DefaultParams(),
		DeepSinus:   deepsinus.DefaultParams(),
		Findings:    DefaultFindingParams(),
		NumWorkers:  1,
	}
}

// Analyzer runs the pipeline:
//
//  1. Calibrate HU against air and bone anchors
//  2. Derive adaptive thresholds
//  3. Measure air and soft tissue volumes
//  4. Search the OMC corridors
//  5. Measure wall sclerosis
//  6. Detect retention cysts
//  7. Score Lund–Mackay under standard and conservative criteria
//  8. Measure the deep sinuses
//  9. Summarise findings
//
// An Analyzer holds no per-volume state and may be shared between
// goroutines.
type Analyzer struct {
	params   Params
	provider regions.Provider
	log      zerolog.Logger
}

// NewAnalyzer creates an analyzer. Structures are resolved through
// provider with the atlas as fallback; a nil provider uses the atlas only.
func NewAnalyzer(params Params, provider regions.Provider) *Analyzer {
	return &Analyzer{
		params:   params,
		provider: regions.NewResolver(provider),
		log:      zerolog.Nop(),
	}
}

// SetLogger replaces the analyzer's logger. Each stage logs under its own
// component name.
func (a *Analyzer) SetLogger(l zerolog.Logger) {
	a.log = l
}

// Analyze runs every stage on v. The label is copied into the report.
func (a *Analyzer) Analyze(v *models.Volume, label string) (*Report, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid volume %q: %w", label, err)
	}
	start := time.Now()
	p := a.params
	log := a.log.With().Str("volume", label).Logger()

	report := &Report{
		ID:        uuid.NewString(),
		Label:     label,
		CreatedAt: start.UTC(),
		Shape:     v.Shape(),
		Spacing:   v.Spacing,
		Provider:  a.provider.Name(),
	}

	log.Info().Msg("Step 1: calibrating HU")
	calibrated := v
	if p.SkipCalibration {
		report.Calibration = calibration.Record{Correction: calibration.Identity(calibration.StatusNotAssessed)}
	} else {
		cal := calibration.NewCalibrator(p.Calibration, a.provider)
		cal.SetLogger(logger.Component(log, "calibration"))
		calibrated, report.Calibration = cal.Calibrate(v)
	}

	log.Info().Msg("Step 2: adaptive thresholds")
	th := thresholds.NewThresholder(p.Thresholds)
	th.SetLogger(logger.Component(log, "thresholds"))
	report.Thresholds = th.Compute(calibrated, a.provider.RegionMask(calibrated, regions.SinusCavity))
	airThreshold := report.Thresholds.AirThreshold

	log.Info().Msg("Step 3: volumetrics")
	report.Volumetrics = MeasureVolumes(calibrated, airThreshold)

	log.Info().Msg("Step 4: OMC patency")
	omcAnalyzer := omc.NewAnalyzer(p.OMC, a.provider)
	omcAnalyzer.SetLogger(logger.Component(log, "omc"))
	report.OMC = omcAnalyzer.Analyze(calibrated, airThreshold)

	log.Info().Msg("Step 5: wall sclerosis")
	sclerosis := pathology.NewSclerosisDetector(p.Sclerosis, a.provider)
	sclerosis.SetLogger(logger.Component(log, "sclerosis"))
	var err error
	if report.Sclerosis, err = sclerosis.DetectAtThreshold(calibrated, airThreshold); err != nil {
		return nil, fmt.Errorf("volume %q: %w", label, err)
	}

	log.Info().Msg("Step 6: retention cysts")
	cysts := pathology.NewCystDetector(p.Cysts)
	cysts.SetLogger(logger.Component(log, "cysts"))
	if report.Cysts, err = cysts.Detect(calibrated, cysts.Cavity(calibrated, a.provider, airThreshold)); err != nil {
		return nil, fmt.Errorf("volume %q: %w", label, err)
	}

	log.Info().Msg("Step 7: Lund-Mackay scoring")
	scorer := scoring.NewScorer(a.provider)
	scorer.SetLogger(logger.Component(log, "scoring"))
	report.LundMackay = LundMackay{
		Standard:     scorer.Score(calibrated, p.Scoring.Standard.WithThresholds(report.Thresholds)),
		Conservative: scorer.Score(calibrated, p.Scoring.Conservative.WithThresholds(report.Thresholds)),
	}

	log.Info().Msg("Step 8: deep sinus")
	deep := deepsinus.NewAnalyzer(p.DeepSinus, a.provider)
	deep.SetLogger(logger.Component(log, "deepsinus"))
	report.DeepSinus = deep.Analyze(calibrated, airThreshold)

	log.Info().Msg("Step 9: findings")
	report.Findings = p.Findings.Summarize(report, p.OMC)
	report.Duration = time.Since(start)

	log.Info().
		Int("findings", len(report.Findings)).
		Int("lm24", report.LundMackay.Standard.Totals.LM24).
		Dur("elapsed", report.Duration).
		Msg("analysis complete")
	return report, nil
}
