// Package thresholds derives patient-specific air, soft-tissue and bone
// cut-offs from a local intensity histogram.
package thresholds

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sinusct/internal/models"
)

// Histogram sources recorded on a Set.
const (
	SourceCavityMask       = "cavity_mask"
	SourceCentralSubvolume = "central_subvolume"
)

// Params configures the histogram and the fallback values.
type Params struct {
	Bins  int     `yaml:"bins"`
	MinHU float64 `yaml:"minHU"`
	MaxHU float64 `yaml:"maxHU"`

	// AirPeakMaxHU bounds the air-peak search (bin centres below it)
	AirPeakMaxHU float64 `yaml:"airPeakMaxHU"`

	// TissuePeakMinHU and TissuePeakMaxHU bound the tissue-peak search
	TissuePeakMinHU float64 `yaml:"tissuePeakMinHU"`
	TissuePeakMaxHU float64 `yaml:"tissuePeakMaxHU"`

	DefaultAirPeak      float64 `yaml:"defaultAirPeak"`
	DefaultTissuePeak   float64 `yaml:"defaultTissuePeak"`
	DefaultAirThreshold float64 `yaml:"defaultAirThreshold"`

	// TissueHalfWidth sets tissue_lower/upper around the tissue peak
	TissueHalfWidth float64 `yaml:"tissueHalfWidth"`

	BoneThreshold      float64 `yaml:"boneThreshold"`
	SclerosisThreshold float64 `yaml:"sclerosisThreshold"`
}

// DefaultParams returns the standard histogram settings.
func DefaultParams() Params {
	return Params{
		Bins:                140,
		MinHU:               -1000,
		MaxHU:               400,
		AirPeakMaxHU:        -600,
		TissuePeakMinHU:     -200,
		TissuePeakMaxHU:     200,
		DefaultAirPeak:      -900,
		DefaultTissuePeak:   0,
		DefaultAirThreshold: -400,
		TissueHalfWidth:     100,
		BoneThreshold:       300,
		SclerosisThreshold:  900,
	}
}

// Set is the threshold set for one volume.
type Set struct {
	AirThreshold       float64 `json:"air_threshold" yaml:"airThreshold"`
	TissueLower        float64 `json:"tissue_lower" yaml:"tissueLower"`
	TissueUpper        float64 `json:"tissue_upper" yaml:"tissueUpper"`
	BoneThreshold      float64 `json:"bone_threshold" yaml:"boneThreshold"`
	SclerosisThreshold float64 `json:"sclerosis_threshold" yaml:"sclerosisThreshold"`
	AirPeak            float64 `json:"air_peak" yaml:"airPeak"`
	TissuePeak         float64 `json:"tissue_peak" yaml:"tissuePeak"`

	Source      string `json:"source" yaml:"source"`
	SampleCount int    `json:"sample_count" yaml:"sampleCount"`
	ValleyFound bool   `json:"valley_found" yaml:"valleyFound"`
}

// Fixed returns a set built from the fallback values alone.
func Fixed(p Params) Set {
	return p.finish(p.DefaultAirPeak, p.DefaultTissuePeak, p.DefaultAirThreshold)
}

func (p Params) finish(airPeak, tissuePeak, airThreshold float64) Set {
	return Set{
		AirThreshold:       airThreshold,
		TissueLower:        tissuePeak - p.TissueHalfWidth,
		TissueUpper:        tissuePeak + p.TissueHalfWidth,
		BoneThreshold:      p.BoneThreshold,
		SclerosisThreshold: p.SclerosisThreshold,
		AirPeak:            airPeak,
		TissuePeak:         tissuePeak,
	}
}

// Thresholder computes threshold sets.
type Thresholder struct {
	params Params
	log    zerolog.Logger
}

// NewThresholder creates a thresholder.
func NewThresholder(params Params) *Thresholder {
	return &Thresholder{params: params, log: zerolog.Nop()}
}

// SetLogger replaces the thresholder's logger.
func (t *Thresholder) SetLogger(l zerolog.Logger) {
	t.log = l
}

// Compute builds the histogram from the voxels under cavity, or from the
// central half of every axis when cavity is nil, and locates the air peak,
// the tissue peak and the valley between them.
func (t *Thresholder) Compute(v *models.Volume, cavity *models.Mask) Set {
	var samples []float64
	source := SourceCentralSubvolume
	if cavity != nil && cavity.CheckShape(v.Shape()) == nil {
		samples = v.Select(cavity)
		source = SourceCavityMask
	} else {
		samples = v.Values(centralBox(v.Shape()))
	}

	counts, centres := t.histogram(samples)
	p := t.params

	airPeak, airFound := peak(counts, centres, func(c float64) bool { return c < p.AirPeakMaxHU })
	if !airFound {
		airPeak = p.DefaultAirPeak
	}
	tissuePeak, tissueFound := peak(counts, centres, func(c float64) bool {
		return c > p.TissuePeakMinHU && c < p.TissuePeakMaxHU
	})
	if !tissueFound {
		tissuePeak = p.DefaultTissuePeak
	}

	// The valley is searched only between observed peaks. A defaulted peak
	// (DefaultAirPeak or DefaultTissuePeak) would place the valley against
	// a bin the histogram never saw, so DefaultAirThreshold is used instead.
	airThreshold, valleyFound := p.DefaultAirThreshold, false
	if airFound && tissueFound {
		airThreshold, valleyFound = valley(counts, centres, airPeak, tissuePeak)
		if !valleyFound {
			airThreshold = p.DefaultAirThreshold
		}
	}

	set := p.finish(airPeak, tissuePeak, airThreshold)
	set.Source = source
	set.SampleCount = len(samples)
	set.ValleyFound = valleyFound

	t.log.Debug().
		Str("source", source).
		Int("samples", len(samples)).
		Float64("air_peak", airPeak).
		Float64("tissue_peak", tissuePeak).
		Float64("air_threshold", airThreshold).
		Bool("valley_found", valleyFound).
		Msg("adaptive thresholds")
	return set
}

// centralBox is [n/4, 3n/4) on every axis.
func centralBox(s models.Shape) models.Box {
	half := func(n int) models.Range { return models.Range{Start: n / 4, End: 3 * n / 4} }
	return models.Box{Z: half(s.Depth), Y: half(s.Height), X: half(s.Width)}.Clamp(s)
}

// histogram bins samples in [MinHU, MaxHU] into equal-width bins. The last
// bin is closed so a sample at exactly MaxHU is counted.
func (t *Thresholder) histogram(samples []float64) (counts, centres []float64) {
	p := t.params
	bins := p.Bins
	if bins < 1 {
		bins = 1
	}
	width := (p.MaxHU - p.MinHU) / float64(bins)

	dividers := make([]float64, bins+1)
	centres = make([]float64, bins)
	for i := range dividers {
		dividers[i] = p.MinHU + float64(i)*width
	}
	dividers[bins] = math.Nextafter(p.MaxHU, math.Inf(1))
	for i := range centres {
		centres[i] = p.MinHU + (float64(i)+0.5)*width
	}

	inRange := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s >= p.MinHU && s <= p.MaxHU {
			inRange = append(inRange, s)
		}
	}
	sort.Float64s(inRange)

	counts = make([]float64, bins)
	stat.Histogram(counts, dividers, inRange, nil)
	return counts, centres
}

// peak returns the centre of the fullest bin whose centre satisfies keep.
// It reports false when those bins are all empty.
func peak(counts, centres []float64, keep func(float64) bool) (float64, bool) {
	var sub, at []float64
	for i, c := range centres {
		if keep(c) {
			sub = append(sub, counts[i])
			at = append(at, c)
		}
	}
	if len(sub) == 0 || floats.Sum(sub) == 0 {
		return 0, false
	}
	return at[floats.MaxIdx(sub)], true
}

// valley returns the centre of the emptiest bin strictly between lo and hi.
func valley(counts, centres []float64, lo, hi float64) (float64, bool) {
	var sub, at []float64
	for i, c := range centres {
		if c > lo && c < hi {
			sub = append(sub, counts[i])
			at = append(at, c)
		}
	}
	if len(sub) == 0 {
		return 0, false
	}
	return at[floats.MinIdx(sub)], true
}
