package models

// Slice describes one axial CT image of a stack before it is assembled
// into a Volume.
type Slice struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`

	// Thickness and Position are in mm; Position is the slice's offset
	// along the z axis from the first slice.
	Thickness float64 `json:"thickness_mm"`
	Position  float64 `json:"position_mm"`
}
