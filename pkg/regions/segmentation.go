package regions

import (
	"fmt"
	"sort"

	"sinusct/internal/models"
)

// Segmentation serves masks produced by an external segmentation model
// for one specific volume shape.
type Segmentation struct {
	name  string
	shape models.Shape
	masks map[string]*models.Mask
}

// NewSegmentation wraps named masks. Every mask must have the given shape.
func NewSegmentation(name string, shape models.Shape, masks map[string]*models.Mask) (*Segmentation, error) {
	copied := make(map[string]*models.Mask, len(masks))
	for structure, m := range masks {
		if err := m.CheckShape(shape); err != nil {
			return nil, fmt.Errorf("segmentation mask %q: %w", structure, err)
		}
		copied[structure] = m
	}
	return &Segmentation{name: name, shape: shape, masks: copied}, nil
}

// Name returns the segmentation's label.
func (s *Segmentation) Name() string {
	return s.name
}

// Structures returns the segmented structure names, sorted.
func (s *Segmentation) Structures() []string {
	names := make([]string, 0, len(s.masks))
	for name := range s.masks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegionMask returns the supplied mask when the volume matches the
// segmented shape.
func (s *Segmentation) RegionMask(v *models.Volume, name string) *models.Mask {
	if v == nil || v.Shape() != s.shape {
		return nil
	}
	return s.masks[name]
}

// RegionBounds returns the bounding box of the supplied mask. Empty masks
// count as unavailable.
func (s *Segmentation) RegionBounds(v *models.Volume, name string) (models.Box, bool) {
	m := s.RegionMask(v, name)
	if m == nil {
		return models.Box{}, false
	}
	return m.BoundingBox()
}
