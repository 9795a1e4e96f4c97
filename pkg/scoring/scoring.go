// Package scoring computes a Lund–Mackay style severity index from
// regional opacification.
package scoring

import (
	"github.com/rs/zerolog"

	"sinusct/internal/mathutil"
	"sinusct/internal/models"
	"sinusct/pkg/regions"
	"sinusct/pkg/thresholds"
)

// Criteria is one set of scoring thresholds.
type Criteria struct {
	Name string `json:"name" yaml:"name"`

	// AirThresholdHU marks air (voxels strictly below it)
	AirThresholdHU float64 `json:"air_threshold_hu" yaml:"airThresholdHU"`

	// AdaptiveAir replaces AirThresholdHU with the scan's adaptive air threshold
	AdaptiveAir bool `json:"adaptive_air" yaml:"adaptiveAir"`

	// SoftTissueMinHU and SoftTissueMaxHU bound opacifying tissue (exclusive)
	SoftTissueMinHU float64 `json:"soft_tissue_min_hu" yaml:"softTissueMinHU"`
	SoftTissueMaxHU float64 `json:"soft_tissue_max_hu" yaml:"softTissueMaxHU"`

	// PartialCut and TotalCut are the opacification fractions for scores 1 and 2
	PartialCut float64 `json:"partial_cut" yaml:"partialCut"`
	TotalCut   float64 `json:"total_cut" yaml:"totalCut"`

	// OMCPatentPct is the corridor air percentage at or above which OMC scores 0
	OMCPatentPct float64 `json:"omc_patent_pct" yaml:"omcPatentPct"`
}

// Standard returns the classic cut points.
func Standard() Criteria {
	return Criteria{
		Name:            "standard",
		AirThresholdHU:  -400,
		SoftTissueMinHU: -100,
		SoftTissueMaxHU: 100,
		PartialCut:      0.10,
		TotalCut:        0.50,
		OMCPatentPct:    60,
	}
}

// Conservative returns stricter cut points that reduce false positives.
func Conservative() Criteria {
	return Criteria{
		Name:            "conservative",
		AirThresholdHU:  -500,
		SoftTissueMinHU: -50,
		SoftTissueMaxHU: 50,
		PartialCut:      0.20,
		TotalCut:        0.70,
		OMCPatentPct:    70,
	}
}

// Params holds both criteria sets.
type Params struct {
	Standard     Criteria `yaml:"standard"`
	Conservative Criteria `yaml:"conservative"`
}

// DefaultParams returns the standard and conservative criteria.
func DefaultParams() Params {
	return Params{Standard: Standard(), Conservative: Conservative()}
}

// ScoreOpacification maps an opacification fraction to 0, 1 or 2.
func (c Criteria) ScoreOpacification(fraction float64) int {
	switch {
	case fraction < c.PartialCut:
		return 0
	case fraction < c.TotalCut:
		return 1
	default:
		return 2
	}
}

// ScoreOMC is 0 for a patent corridor and 2 otherwise.
func (c Criteria) ScoreOMC(patencyPct float64) int {
	if patencyPct >= c.OMCPatentPct {
		return 0
	}
	return 2
}

// WithThresholds resolves AdaptiveAir against a threshold set.
func (c Criteria) WithThresholds(set thresholds.Set) Criteria {
	if c.AdaptiveAir {
		c.AirThresholdHU = set.AirThreshold
	}
	return c
}

// RegionScore is the score of one sinus band on one side.
type RegionScore struct {
	Region                string       `json:"region"`
	Side                  regions.Side `json:"side"`
	Score                 int          `json:"score"`
	OpacificationFraction float64      `json:"opacification_fraction"`
	OpacifiedVoxels       int          `json:"opacified_voxels"`
	CavityVoxels          int          `json:"cavity_voxels"`
}

// OMCScore is the corridor score of one side.
type OMCScore struct {
	Side       regions.Side `json:"side"`
	PatencyPct float64      `json:"patency_pct"`
	Score      int          `json:"score"`
}

// Totals aggregates the scores.
type Totals struct {
	LM20  int `json:"lm20"`
	LM24  int `json:"lm24"`
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Result is the full score under one criteria set.
type Result struct {
	Criteria Criteria      `json:"criteria"`
	Regions  []RegionScore `json:"regions"`
	OMC      []OMCScore    `json:"omc"`
	Totals   Totals        `json:"totals"`
}

// Region returns the score of sinus on side.
func (r Result) Region(sinus string, side regions.Side) (RegionScore, bool) {
	for _, rs := range r.Regions {
		if rs.Region == sinus && rs.Side == side {
			return rs, true
		}
	}
	return RegionScore{}, false
}

// Scorer computes Lund–Mackay scores.
type Scorer struct {
	provider regions.Provider
	log      zerolog.Logger
}

// NewScorer creates a scorer; a nil provider uses the atlas.
func NewScorer(provider regions.Provider) *Scorer {
	if provider == nil {
		provider = regions.NewAtlas()
	}
	return &Scorer{provider: provider, log: zerolog.Nop()}
}

// SetLogger replaces the scorer's logger.
func (s *Scorer) SetLogger(l zerolog.Logger) {
	s.log = l
}

// Score scores every band and both OMC corridors under c.
//
// A band's cavity space is its air voxels plus its soft-tissue voxels;
// the opacification fraction is the soft-tissue share of that space, and
// 0 when the band holds neither. Unresolvable bands score 0.
func (s *Scorer) Score(v *models.Volume, c Criteria) Result {
	res := Result{Criteria: c}

	for _, side := range regions.Sides {
		sideTotal := 0
		for _, sinus := range regions.LundMackaySinuses {
			rs := RegionScore{Region: sinus, Side: side}
			if box, ok := s.provider.RegionBounds(v, regions.LundMackayRegion(sinus, side)); ok {
				rs.OpacifiedVoxels, rs.CavityVoxels = opacification(v, box, c)
				rs.OpacificationFraction = mathutil.Ratio(float64(rs.OpacifiedVoxels), float64(rs.CavityVoxels))
				rs.Score = c.ScoreOpacification(rs.OpacificationFraction)
			}
			sideTotal += rs.Score
			res.Regions = append(res.Regions, rs)
		}
		res.Totals.LM20 += sideTotal

		omc := OMCScore{Side: side}
		if box, ok := s.provider.RegionBounds(v, regions.OMCScoreCorridor(side)); ok {
			omc.PatencyPct = patency(v, box, c.AirThresholdHU)
		}
		omc.Score = c.ScoreOMC(omc.PatencyPct)
		res.OMC = append(res.OMC, omc)

		if side == regions.Left {
			res.Totals.Left = sideTotal + omc.Score
		} else {
			res.Totals.Right = sideTotal + omc.Score
		}
	}
	res.Totals.LM24 = res.Totals.Left + res.Totals.Right

	s.log.Info().
		Str("criteria", c.Name).
		Int("lm20", res.Totals.LM20).
		Int("lm24", res.Totals.LM24).
		Msg("lund-mackay")
	return res
}

func opacification(v *models.Volume, box models.Box, c Criteria) (opacified, cavity int) {
	for _, value := range v.Values(box) {
		switch {
		case value < c.AirThresholdHU:
			cavity++
		case value > c.SoftTissueMinHU && value < c.SoftTissueMaxHU:
			opacified++
			cavity++
		}
	}
	return opacified, cavity
}

func patency(v *models.Volume, box models.Box, airThreshold float64) float64 {
	values := v.Values(box)
	air := 0
	for _, value := range values {
		if value < airThreshold {
			air++
		}
	}
	return mathutil.Ratio(float64(air)*100, float64(len(values)))
}
