// Package morphology implements binary morphology and connected-component
// labelling on 3D masks.
//
// Border handling follows the usual convention for binary morphology:
// voxels outside the grid count as unset, so erosion eats inward from the
// volume faces and dilation never writes outside the grid.
package morphology

import (
	"sinusct/internal/models"
)

// Offset is a voxel displacement relative to a structuring element's origin.
type Offset struct {
	Z, Y, X int
}

// Structure is a structuring element expressed as the offsets it covers.
type Structure []Offset

// Cross returns the 6-connected structuring element (the origin plus its
// face neighbours).
func Cross() Structure {
	return Structure{
		{0, 0, 0},
		{-1, 0, 0}, {1, 0, 0},
		{0, -1, 0}, {0, 1, 0},
		{0, 0, -1}, {0, 0, 1},
	}
}

// Cube returns a size×size×size block. For even sizes the origin sits at
// index size/2, so a 2-cube covers offsets -1 and 0 on each axis.
func Cube(size int) Structure {
	if size < 1 {
		size = 1
	}
	lo := -(size / 2)
	hi := size - 1 - size/2
	s := make(Structure, 0, size*size*size)
	for z := lo; z <= hi; z++ {
		for y := lo; y <= hi; y++ {
			for x := lo; x <= hi; x++ {
				s = append(s, Offset{z, y, x})
			}
		}
	}
	return s
}

// Erode keeps a voxel only when every voxel under the structuring element
// is set. The operation is repeated iterations times.
func Erode(m *models.Mask, s Structure, iterations int) *models.Mask {
	out := m.Clone()
	for it := 0; it < iterations; it++ {
		out = erodeOnce(out, s)
	}
	return out
}

// Dilate sets every voxel reachable from a set voxel through the
// structuring element. The operation is repeated iterations times.
func Dilate(m *models.Mask, s Structure, iterations int) *models.Mask {
	out := m.Clone()
	for it := 0; it < iterations; it++ {
		out = dilateOnce(out, s)
	}
	return out
}

// Open erodes then dilates once, removing features smaller than s.
func Open(m *models.Mask, s Structure) *models.Mask {
	return dilateOnce(erodeOnce(m, s), s)
}

// Close dilates then erodes iterations times each, filling gaps smaller
// than the grown structuring element.
func Close(m *models.Mask, s Structure, iterations int) *models.Mask {
	return Erode(Dilate(m, s, iterations), s, iterations)
}

func erodeOnce(m *models.Mask, s Structure) *models.Mask {
	shape := m.Shape()
	out := models.NewMask(shape)
	for z := 0; z < shape.Depth; z++ {
		for y := 0; y < shape.Height; y++ {
			for x := 0; x < shape.Width; x++ {
				keep := true
				for _, o := range s {
					nz, ny, nx := z+o.Z, y+o.Y, x+o.X
					if !shape.Contains(nz, ny, nx) || !m.Data[shape.Index(nz, ny, nx)] {
						keep = false
						break
					}
				}
				out.Data[shape.Index(z, y, x)] = keep
			}
		}
	}
	return out
}

// dilateOnce scatters every set voxel through the structuring element.
func dilateOnce(m *models.Mask, s Structure) *models.Mask {
	shape := m.Shape()
	out := models.NewMask(shape)
	for i, set := range m.Data {
		if !set {
			continue
		}
		z, y, x := shape.Coords(i)
		for _, o := range s {
			nz, ny, nx := z+o.Z, y+o.Y, x+o.X
			if shape.Contains(nz, ny, nx) {
				out.Data[shape.Index(nz, ny, nx)] = true
			}
		}
	}
	return out
}
