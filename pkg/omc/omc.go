// Package omc measures ostiomeatal complex patency.
//
// The drainage corridor position varies between patients, so each side is
// searched over a fixed list of candidate boxes. Every candidate is
// thresholded for air, cleaned with a 2×2×2 opening and a small-component
// filter, and summarised by the median per-slice air fraction. The most
// patent candidate wins; exact ties go to the earlier candidate.
package omc

import (
	"math"

	"github.com/rs/zerolog"

	"sinusct/internal/mathutil"
	"sinusct/internal/models"
	"sinusct/pkg/morphology"
	"sinusct/pkg/regions"
)

// Classification is the three-way patency verdict.
type Classification string

const (
	Patent        Classification = "Patent"
	Indeterminate Classification = "Indeterminate"
	Obstructed    Classification = "Obstructed"
)

// NoCandidate is reported when no candidate box could be resolved.
const NoCandidate = "none"

// Params configures the corridor search.
type Params struct {
	// PatentAbove is the air fraction a corridor must exceed to be Patent
	PatentAbove float64 `yaml:"patentAbove"`

	// IndeterminateAbove is the air fraction a corridor must exceed to be Indeterminate
	IndeterminateAbove float64 `yaml:"indeterminateAbove"`

	// OpeningSize is the edge of the cubic opening element
	OpeningSize int `yaml:"openingSize"`

	// MinComponentSize drops air components smaller than this many voxels
	MinComponentSize int `yaml:"minComponentSize"`

	// ConfidenceStdScale multiplies the per-slice std in the confidence penalty
	ConfidenceStdScale float64 `yaml:"confidenceStdScale"`

	// MaxConfidencePenalty caps the penalty so confidence stays positive
	MaxConfidencePenalty float64 `yaml:"maxConfidencePenalty"`

	// MinPatentConfidence downgrades Patent to Indeterminate below it; 0 disables
	MinPatentConfidence float64 `yaml:"minPatentConfidence"`
}

// DefaultParams returns the standard corridor settings.
func DefaultParams() Params {
	return Params{
		PatentAbove:          0.12,
		IndeterminateAbove:   0.08,
		OpeningSize:          2,
		MinComponentSize:     3,
		ConfidenceStdScale:   2,
		MaxConfidencePenalty: 0.99,
		MinPatentConfidence:  0,
	}
}

// Classify maps an air fraction to a verdict.
func (p Params) Classify(airFraction float64) Classification {
	switch {
	case airFraction > p.PatentAbove:
		return Patent
	case airFraction > p.IndeterminateAbove:
		return Indeterminate
	default:
		return Obstructed
	}
}

// CandidateResult is the measurement of one candidate corridor.
type CandidateResult struct {
	Candidate      string         `json:"candidate"`
	Box            models.Box     `json:"box"`
	AirFraction    float64        `json:"air_fraction"`
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence"`
	Slices         int            `json:"slices"`
	AirVoxels      int            `json:"air_voxels"`
}

// SideResult is the verdict for one side.
type SideResult struct {
	Side             regions.Side      `json:"side"`
	AirFraction      float64           `json:"air_fraction"`
	AirFractionPct   float64           `json:"air_fraction_pct"`
	Classification   Classification    `json:"classification"`
	Confidence       float64           `json:"confidence"`
	WinningCandidate string            `json:"winning_candidate"`
	Candidates       []CandidateResult `json:"candidates"`
}

// Result holds both sides.
type Result struct {
	Left         SideResult `json:"left"`
	Right        SideResult `json:"right"`
	AirThreshold float64    `json:"air_threshold_hu"`
}

// Side returns the result for s.
func (r Result) Side(s regions.Side) SideResult {
	if s == regions.Right {
		return r.Right
	}
	return r.Left
}

// Analyzer runs the corridor search.
type Analyzer struct {
	params   Params
	provider regions.Provider
	log      zerolog.Logger
}

// NewAnalyzer creates an analyzer that resolves candidate boxes through
// provider. A nil provider uses the built-in atlas.
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

// Analyze evaluates both sides at airThreshold.
func (a *Analyzer) Analyze(v *models.Volume, airThreshold float64) Result {
	return Result{
		Left:         a.AnalyzeSide(v, regions.Left, airThreshold),
		Right:        a.AnalyzeSide(v, regions.Right, airThreshold),
		AirThreshold: airThreshold,
	}
}

// AnalyzeSide evaluates every candidate on one side in declared order and
// returns the one with the highest air fraction.
func (a *Analyzer) AnalyzeSide(v *models.Volume, side regions.Side, airThreshold float64) SideResult {
	res := SideResult{
		Side:             side,
		Classification:   Obstructed,
		WinningCandidate: NoCandidate,
	}

	best := -1
	for _, name := range regions.OMCCandidates {
		box, ok := a.provider.RegionBounds(v, regions.OMCCandidate(name, side))
		if !ok {
			a.log.Debug().Str("side", string(side)).Str("candidate", name).Msg("candidate unavailable")
			continue
		}
		cand := a.EvaluateCandidate(v, box, airThreshold)
		cand.Candidate = name
		res.Candidates = append(res.Candidates, cand)

		a.log.Debug().
			Str("side", string(side)).
			Str("candidate", name).
			Float64("air_fraction", cand.AirFraction).
			Float64("confidence", cand.Confidence).
			Msg("omc candidate")

		if best < 0 || cand.AirFraction > res.Candidates[best].AirFraction {
			best = len(res.Candidates) - 1
		}
	}
	if best < 0 {
		return res
	}

	win := res.Candidates[best]
	res.AirFraction = win.AirFraction
	res.AirFractionPct = win.AirFraction * 100
	res.Classification = win.Classification
	res.Confidence = win.Confidence
	res.WinningCandidate = win.Candidate

	a.log.Info().
		Str("side", string(side)).
		Str("candidate", win.Candidate).
		Str("classification", string(win.Classification)).
		Float64("air_fraction", win.AirFraction).
		Msg("omc patency")
	return res
}

// EvaluateCandidate measures the corridor inside box.
func (a *Analyzer) EvaluateCandidate(v *models.Volume, box models.Box, airThreshold float64) CandidateResult {
	p := a.params
	corridor := v.Crop(box)
	box = box.Clip(v.Shape())

	air := corridor.Below(airThreshold)
	air = morphology.Open(air, morphology.Cube(p.OpeningSize))
	air, _ = morphology.RemoveSmall(air, p.MinComponentSize)

	fractions := sliceFractions(air)
	fraction := 0.0
	std := 0.0
	if len(fractions) > 0 {
		fraction = mathutil.Median(fractions)
		_, std = mathutil.PopMeanStd(fractions)
	}
	confidence := 1 - math.Min(p.ConfidenceStdScale*std, p.MaxConfidencePenalty)

	class := p.Classify(fraction)
	if class == Patent && confidence < p.MinPatentConfidence {
		class = Indeterminate
	}

	return CandidateResult{
		Box:            box,
		AirFraction:    fraction,
		Classification: class,
		Confidence:     confidence,
		Slices:         len(fractions),
		AirVoxels:      air.Count(),
	}
}

// sliceFractions returns the air fraction of each axial slice.
func sliceFractions(m *models.Mask) []float64 {
	area := m.Height * m.Width
	fractions := make([]float64, m.Depth)
	for z := 0; z < m.Depth; z++ {
		count := 0
		for _, set := range m.Data[z*area : (z+1)*area] {
			if set {
				count++
			}
		}
		fractions[z] = mathutil.Ratio(float64(count), float64(area))
	}
	return fractions
}
