package models

import "fmt"

// Mask is a boolean grid with the same layout as a Volume.
type Mask struct {
	// Data holds the flags as a 1D array in row-major order (z, y, x)
	Data []bool

	Depth, Height, Width int
}

// NewMask allocates an empty mask.
func NewMask(shape Shape) *Mask {
	return &Mask{
		Data:   make([]bool, shape.Len()),
		Depth:  shape.Depth,
		Height: shape.Height,
		Width:  shape.Width,
	}
}

// BoxMask returns a mask with every voxel inside box set.
func BoxMask(shape Shape, box Box) *Mask {
	m := NewMask(shape)
	box = box.Clip(shape)
	for z := box.Z.Start; z < box.Z.End; z++ {
		for y := box.Y.Start; y < box.Y.End; y++ {
			for x := box.X.Start; x < box.X.End; x++ {
				m.Data[shape.Index(z, y, x)] = true
			}
		}
	}
	return m
}

// Shape returns the extent of the mask.
func (m *Mask) Shape() Shape {
	return Shape{Depth: m.Depth, Height: m.Height, Width: m.Width}
}

// Index converts (z, y, x) coordinates to a flat index into Data.
func (m *Mask) Index(z, y, x int) int {
	return z*m.Width*m.Height + y*m.Width + x
}

// At reports whether (z, y, x) is set.
func (m *Mask) At(z, y, x int) bool {
	return m.Data[m.Index(z, y, x)]
}

// Set stores a flag at (z, y, x).
func (m *Mask) Set(z, y, x int, value bool) {
	m.Data[m.Index(z, y, x)] = value
}

// Count returns the number of set voxels.
func (m *Mask) Count() int {
	n := 0
	for _, set := range m.Data {
		if set {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	data := make([]bool, len(m.Data))
	copy(data, m.Data)
	return &Mask{Data: data, Depth: m.Depth, Height: m.Height, Width: m.Width}
}

// And returns the voxel-wise intersection of m and other.
func (m *Mask) And(other *Mask) *Mask {
	out := NewMask(m.Shape())
	for i := range m.Data {
		out.Data[i] = m.Data[i] && other.Data[i]
	}
	return out
}

// Or returns the voxel-wise union of m and other.
func (m *Mask) Or(other *Mask) *Mask {
	out := NewMask(m.Shape())
	for i := range m.Data {
		out.Data[i] = m.Data[i] || other.Data[i]
	}
	return out
}

// AndNot returns the voxels set in m but not in other.
func (m *Mask) AndNot(other *Mask) *Mask {
	out := NewMask(m.Shape())
	for i := range m.Data {
		out.Data[i] = m.Data[i] && !other.Data[i]
	}
	return out
}

// Crop copies the flags inside box into a new mask.
func (m *Mask) Crop(box Box) *Mask {
	box = box.Clip(m.Shape())
	out := NewMask(box.Shape())
	i := 0
	for z := box.Z.Start; z < box.Z.End; z++ {
		for y := box.Y.Start; y < box.Y.End; y++ {
			row := m.Index(z, y, box.X.Start)
			i += copy(out.Data[i:], m.Data[row:row+box.X.Len()])
		}
	}
	return out
}

// BoundingBox returns the smallest box containing every set voxel.
// The second result is false when the mask is empty.
func (m *Mask) BoundingBox() (Box, bool) {
	shape := m.Shape()
	box := Box{
		Z: Range{shape.Depth, -1},
		Y: Range{shape.Height, -1},
		X: Range{shape.Width, -1},
	}
	found := false
	for i, set := range m.Data {
		if !set {
			continue
		}
		found = true
		z, y, x := shape.Coords(i)
		box.Z = box.Z.include(z)
		box.Y = box.Y.include(y)
		box.X = box.X.include(x)
	}
	if !found {
		return Box{}, false
	}
	return box, true
}

// CheckShape returns ErrShapeMismatch unless the mask matches shape.
func (m *Mask) CheckShape(shape Shape) error {
	if m == nil {
		return fmt.Errorf("%w: nil mask", ErrShapeMismatch)
	}
	if m.Shape() != shape || len(m.Data) != shape.Len() {
		return fmt.Errorf("%w: mask %dx%dx%d, volume %dx%dx%d", ErrShapeMismatch,
			m.Depth, m.Height, m.Width, shape.Depth, shape.Height, shape.Width)
	}
	return nil
}
