// Package regions maps named anatomical structures to voxel boxes and masks.
//
// Measurement code depends only on the Provider interface. Two variants
// exist: Atlas, a fractional-geometry table that assumes a consistently
// oriented head scan, and Segmentation, which serves masks supplied by an
// external segmentation model. Chain combines them so that any structure
// the segmentation lacks falls back to the atlas.
package regions

import (
	"sinusct/internal/models"
)

// Provider resolves anatomical structures for a given volume.
type Provider interface {
	// Name identifies the provider in logs and reports.
	Name() string

	// Structures lists the structure names the provider can resolve.
	Structures() []string

	// RegionMask returns a mask with the volume's shape, or nil when the
	// structure is unknown or unavailable.
	RegionMask(v *models.Volume, name string) *models.Mask

	// RegionBounds returns the structure's bounding box clamped to the
	// volume. The second result is false when the structure is unknown or
	// unavailable.
	RegionBounds(v *models.Volume, name string) (models.Box, bool)
}

// Side is a patient side.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// Sides lists both sides in reporting order.
var Sides = []Side{Left, Right}

// Chain asks each provider in turn and returns the first answer.
type Chain []Provider

// NewResolver returns a provider that consults primary first and falls
// back to the atlas. A nil primary yields the atlas alone.
func NewResolver(primary Provider) Provider {
	if primary == nil {
		return NewAtlas()
	}
	return Chain{primary, NewAtlas()}
}

// Name joins the provider names.
func (c Chain) Name() string {
	name := ""
	for i, p := range c {
		if i > 0 {
			name += "+"
		}
		name += p.Name()
	}
	return name
}

// Structures returns the union of all providers' structures in order of
// first appearance.
func (c Chain) Structures() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c {
		for _, s := range p.Structures() {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// RegionMask returns the first non-nil mask.
func (c Chain) RegionMask(v *models.Volume, name string) *models.Mask {
	for _, p := range c {
		if m := p.RegionMask(v, name); m != nil {
			return m
		}
	}
	return nil
}

// RegionBounds returns the first available bounds.
func (c Chain) RegionBounds(v *models.Volume, name string) (models.Box, bool) {
	for _, p := range c {
		if box, ok := p.RegionBounds(v, name); ok {
			return box, true
		}
	}
	return models.Box{}, false
}
