package regions

import (
	"sinusct/internal/models"
)

// Structure names resolved by the atlas.
const (
	Sphenoid              = "sphenoid"
	PosteriorEthmoid      = "posterior_ethmoid"
	PosteriorEthmoidLeft  = "posterior_ethmoid_left"
	PosteriorEthmoidRight = "posterior_ethmoid_right"
	SkullBase             = "skull_base"

	// HardPalate is the reference cortical bone zone used for sclerosis.
	HardPalate = "hard_palate"

	// PalateAnchor is the wider palate box sampled for calibration.
	PalateAnchor = "palate_anchor"

	// SinusCavity is only available from a segmentation provider.
	SinusCavity = "sinus_cavity"
)

// OMC corridor candidates in evaluation order.
const (
	AnteriorSuperior = "anterior_superior"
	MidAnterior      = "mid_anterior"
	PosteriorMid     = "posterior_mid"
)

// OMCCandidates is the fixed evaluation order of the corridor search.
var OMCCandidates = []string{AnteriorSuperior, MidAnterior, PosteriorMid}

// Lund–Mackay sinus groups in conventional reporting order.
const (
	Maxillary             = "maxillary"
	AnteriorEthmoidSinus  = "anterior_ethmoid"
	PosteriorEthmoidSinus = "posterior_ethmoid"
	SphenoidSinus         = "sphenoid"
	Frontal               = "frontal"
)

// LundMackaySinuses lists the five scored sinus groups.
var LundMackaySinuses = []string{Maxillary, AnteriorEthmoidSinus, PosteriorEthmoidSinus, SphenoidSinus, Frontal}

// OMCCandidate names the corridor box for candidate c on side.
func OMCCandidate(c string, side Side) string {
	return "omc_" + c + "_" + string(side)
}

// OMCScoreCorridor names the fixed corridor used by Lund–Mackay OMC scoring.
func OMCScoreCorridor(side Side) string {
	return "omc_score_" + string(side)
}

// LundMackayRegion names the scoring band of sinus on side.
func LundMackayRegion(sinus string, side Side) string {
	return "lm_" + sinus + "_" + string(side)
}

// Extent describes one axis of a region. Bounds are computed as
//
//	int(n*Anchor) + int(n*Start) + StartOffset
//	int(n*Anchor) + int(n*End)   + EndOffset
//
// so plain fractions use Anchor 0, bands centred on the midline use
// Anchor 0.5 with signed Start/End, and fixed-width corridors use voxel
// offsets.
type Extent struct {
	Anchor      float64
	Start, End  float64
	StartOffset int
	EndOffset   int
}

// Span is the fractional extent [start, end) of the axis.
func Span(start, end float64) Extent {
	return Extent{Start: start, End: end}
}

// Centered is the extent of ±half of the axis around its centre.
func Centered(half float64) Extent {
	return Extent{Anchor: 0.5, Start: -half, End: half}
}

// FromMidline is a fixed voxel band [centre+lo, centre+hi).
func FromMidline(lo, hi int) Extent {
	return Extent{Anchor: 0.5, StartOffset: lo, EndOffset: hi}
}

// Full covers the whole axis.
func Full() Extent {
	return Span(0, 1)
}

// Resolve converts the extent to a clamped voxel range on an axis of n voxels.
func (e Extent) Resolve(n int) models.Range {
	fn := float64(n)
	base := int(fn * e.Anchor)
	r := models.Range{
		Start: base + int(fn*e.Start) + e.StartOffset,
		End:   base + int(fn*e.End) + e.EndOffset,
	}
	return r.Clamp(n)
}

// Region is a named atlas entry.
type Region struct {
	Name    string
	Z, Y, X Extent
}

// Resolve converts the region to a voxel box for shape. Every axis keeps
// at least one voxel, so odd or tiny volumes still get a usable box.
func (r Region) Resolve(shape models.Shape) models.Box {
	return models.Box{
		Z: r.Z.Resolve(shape.Depth),
		Y: r.Y.Resolve(shape.Height),
		X: r.X.Resolve(shape.Width),
	}
}

// Atlas is the heuristic fractional-geometry provider.
type Atlas struct {
	regions map[string]Region
	order   []string
}

// NewAtlas returns the default sinus atlas.
func NewAtlas() *Atlas {
	a := &Atlas{regions: make(map[string]Region)}

	a.Define(Region{Name: Sphenoid, Z: Span(0.30, 0.50), Y: Span(0.35, 0.55), X: Centered(0.2)})
	a.Define(Region{Name: PosteriorEthmoid, Z: Span(0.20, 0.45), Y: Span(0.40, 0.75), X: Full()})
	a.Define(Region{Name: PosteriorEthmoidLeft, Z: Span(0.20, 0.45), Y: Span(0.40, 0.75),
		X: Extent{Anchor: 0.5, Start: -0.10, StartOffset: -10, EndOffset: -10}})
	a.Define(Region{Name: PosteriorEthmoidRight, Z: Span(0.20, 0.45), Y: Span(0.40, 0.75),
		X: Extent{Anchor: 0.5, End: 0.10, StartOffset: 10, EndOffset: 10}})
	a.Define(Region{Name: SkullBase, Z: Extent{Start: 0.25, End: 0.25, EndOffset: 15}, Y: Span(0.30, 0.55), X: Span(0.30, 0.70)})
	a.Define(Region{Name: HardPalate, Z: Span(0.60, 0.80), Y: Centered(0.15), X: Centered(0.15)})
	a.Define(Region{Name: PalateAnchor, Z: Span(0.60, 0.80), Y: Centered(0.20), X: Centered(0.20)})

	// Corridor search candidates: three plausible infundibulum positions,
	// each paired with a 45-voxel lateral band 5 voxels off the midline.
	candidates := map[string][2]Extent{
		AnteriorSuperior: {Span(0.25, 0.45), Span(0.35, 0.55)},
		MidAnterior:      {Span(0.35, 0.55), Span(0.40, 0.60)},
		PosteriorMid:     {Span(0.40, 0.60), Span(0.50, 0.70)},
	}
	for _, c := range OMCCandidates {
		zy := candidates[c]
		a.Define(Region{Name: OMCCandidate(c, Left), Z: zy[0], Y: zy[1], X: FromMidline(-50, -5)})
		a.Define(Region{Name: OMCCandidate(c, Right), Z: zy[0], Y: zy[1], X: FromMidline(5, 50)})
	}

	// Fixed OMC box used by Lund–Mackay scoring.
	scoreZ := FromMidline(-30, -10)
	scoreY := FromMidline(10, 40)
	a.Define(Region{Name: OMCScoreCorridor(Left), Z: scoreZ, Y: scoreY, X: FromMidline(-25, -5)})
	a.Define(Region{Name: OMCScoreCorridor(Right), Z: scoreZ, Y: scoreY, X: FromMidline(5, 25)})

	// Lund–Mackay bands: disjoint axial slabs, full AP extent, one lateral
	// half per side with a one-voxel gap at the midline.
	bands := map[string]Extent{
		Frontal:               Span(0.250, 0.350),
		AnteriorEthmoidSinus:  Span(0.350, 0.425),
		PosteriorEthmoidSinus: Span(0.425, 0.475),
		Maxillary:             Span(0.475, 0.550),
		SphenoidSinus:         Span(0.550, 0.650),
	}
	for _, sinus := range LundMackaySinuses {
		a.Define(Region{Name: LundMackayRegion(sinus, Left), Z: bands[sinus], Y: Full(),
			X: Extent{Anchor: 0.5, Start: -0.25, EndOffset: -1}})
		a.Define(Region{Name: LundMackayRegion(sinus, Right), Z: bands[sinus], Y: Full(),
			X: Extent{Anchor: 0.5, End: 0.25, StartOffset: 1}})
	}
	return a
}

// Define adds or replaces a region.
func (a *Atlas) Define(r Region) {
	if _, exists := a.regions[r.Name]; !exists {
		a.order = append(a.order, r.Name)
	}
	a.regions[r.Name] = r
}

// Lookup returns the named region.
func (a *Atlas) Lookup(name string) (Region, bool) {
	r, ok := a.regions[name]
	return r, ok
}

// Resolve converts the named region to a voxel box for shape.
func (a *Atlas) Resolve(name string, shape models.Shape) (models.Box, bool) {
	r, ok := a.Lookup(name)
	if !ok || shape.Len() == 0 {
		return models.Box{}, false
	}
	return r.Resolve(shape), true
}

// Name returns "atlas".
func (a *Atlas) Name() string {
	return "atlas"
}

// Structures returns region names in definition order.
func (a *Atlas) Structures() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// RegionMask returns the resolved box as a mask.
func (a *Atlas) RegionMask(v *models.Volume, name string) *models.Mask {
	box, ok := a.RegionBounds(v, name)
	if !ok {
		return nil
	}
	return models.BoxMask(v.Shape(), box)
}

// RegionBounds resolves the region against the volume's shape.
func (a *Atlas) RegionBounds(v *models.Volume, name string) (models.Box, bool) {
	if v == nil {
		return models.Box{}, false
	}
	return a.Resolve(name, v.Shape())
}
