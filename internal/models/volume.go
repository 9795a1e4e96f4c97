package models

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyVolume is returned when a volume has no voxels.
	ErrEmptyVolume = errors.New("volume has no voxels")

	// ErrShapeMismatch is returned when data or masks do not match a volume's shape.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidSpacing is returned when a voxel spacing component is not positive.
	ErrInvalidSpacing = errors.New("voxel spacing must be positive")
)

// Spacing is the physical size of a voxel in mm along each axis.
type Spacing struct {
	Z float64 `json:"z" yaml:"z"`
	Y float64 `json:"y" yaml:"y"`
	X float64 `json:"x" yaml:"x"`
}

// VoxelVolumeMM3 returns the volume of a single voxel in cubic millimetres.
func (s Spacing) VoxelVolumeMM3() float64 {
	return s.Z * s.Y * s.X
}

// Shape is the voxel extent of a volume in (depth, height, width) order.
type Shape struct {
	Depth  int `json:"depth" yaml:"depth"`
	Height int `json:"height" yaml:"height"`
	Width  int `json:"width" yaml:"width"`
}

// Len returns the number of voxels in the shape.
func (s Shape) Len() int {
	return s.Depth * s.Height * s.Width
}

// Index converts (z, y, x) coordinates to a flat row-major index.
func (s Shape) Index(z, y, x int) int {
	return z*s.Width*s.Height + y*s.Width + x
}

// Coords converts a flat index back to (z, y, x) coordinates.
func (s Shape) Coords(idx int) (z, y, x int) {
	plane := s.Width * s.Height
	z = idx / plane
	rem := idx % plane
	return z, rem / s.Width, rem % s.Width
}

// Contains reports whether (z, y, x) lies inside the shape.
func (s Shape) Contains(z, y, x int) bool {
	return z >= 0 && z < s.Depth && y >= 0 && y < s.Height && x >= 0 && x < s.Width
}

// Box returns the box covering the whole shape.
func (s Shape) Box() Box {
	return Box{
		Z: Range{0, s.Depth},
		Y: Range{0, s.Height},
		X: Range{0, s.Width},
	}
}

// Volume is a 3D grid of radiodensity values in Hounsfield units.
//
// Analysis code treats a Volume as immutable: operations that change
// values (calibration, cropping) return a new Volume.
type Volume struct {
	// Data holds the voxels as a 1D array in row-major order (z, y, x)
	Data []float64

	// Depth is the number of axial slices
	Depth int

	// Height is the number of rows per slice
	Height int

	// Width is the number of columns per slice
	Width int

	// Spacing is the physical size of each voxel in mm
	Spacing Spacing
}

// NewVolume allocates a zero-filled volume.
func NewVolume(depth, height, width int, spacing Spacing) *Volume {
	return &Volume{
		Data:    make([]float64, depth*height*width),
		Depth:   depth,
		Height:  height,
		Width:   width,
		Spacing: spacing,
	}
}

// NewVolumeFromData wraps existing voxel data after checking its length.
func NewVolumeFromData(data []float64, depth, height, width int, spacing Spacing) (*Volume, error) {
	if len(data) != depth*height*width {
		return nil, fmt.Errorf("%w: %d values for %dx%dx%d volume", ErrShapeMismatch, len(data), depth, height, width)
	}
	return &Volume{
		Data:    data,
		Depth:   depth,
		Height:  height,
		Width:   width,
		Spacing: spacing,
	}, nil
}

// Validate checks that the volume is usable for analysis.
func (v *Volume) Validate() error {
	if v == nil || v.Depth <= 0 || v.Height <= 0 || v.Width <= 0 {
		return ErrEmptyVolume
	}
	if len(v.Data) != v.Shape().Len() {
		return fmt.Errorf("%w: %d values for %dx%dx%d volume", ErrShapeMismatch, len(v.Data), v.Depth, v.Height, v.Width)
	}
	s := v.Spacing
	if !(s.Z > 0 && s.Y > 0 && s.X > 0) || math.IsInf(s.Z, 0) || math.IsInf(s.Y, 0) || math.IsInf(s.X, 0) {
		return fmt.Errorf("%w: %+v", ErrInvalidSpacing, s)
	}
	return nil
}

// Shape returns the voxel extent of the volume.
func (v *Volume) Shape() Shape {
	return Shape{Depth: v.Depth, Height: v.Height, Width: v.Width}
}

// Index converts (z, y, x) coordinates to a flat index into Data.
func (v *Volume) Index(z, y, x int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the value at (z, y, x).
func (v *Volume) At(z, y, x int) float64 {
	return v.Data[v.Index(z, y, x)]
}

// Set stores a value at (z, y, x). It is meant for building volumes;
// analysis code never calls it on an input volume.
func (v *Volume) Set(z, y, x int, value float64) {
	v.Data[v.Index(z, y, x)] = value
}

// Fill sets every voxel inside box to value.
func (v *Volume) Fill(box Box, value float64) {
	box = box.Clip(v.Shape())
	for z := box.Z.Start; z < box.Z.End; z++ {
		for y := box.Y.Start; y < box.Y.End; y++ {
			for x := box.X.Start; x < box.X.End; x++ {
				v.Data[v.Index(z, y, x)] = value
			}
		}
	}
}

// VoxelVolumeMM3 returns the physical volume of one voxel in mm³.
func (v *Volume) VoxelVolumeMM3() float64 {
	return v.Spacing.VoxelVolumeMM3()
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &Volume{Data: data, Depth: v.Depth, Height: v.Height, Width: v.Width, Spacing: v.Spacing}
}

// Map returns a new volume with fn applied to every voxel.
func (v *Volume) Map(fn func(float64) float64) *Volume {
	out := &Volume{
		Data:    make([]float64, len(v.Data)),
		Depth:   v.Depth,
		Height:  v.Height,
		Width:   v.Width,
		Spacing: v.Spacing,
	}
	for i, value := range v.Data {
		out.Data[i] = fn(value)
	}
	return out
}

// Crop copies the voxels inside box into a new volume. The box is
// clipped to the volume first.
func (v *Volume) Crop(box Box) *Volume {
	box = box.Clip(v.Shape())
	out := NewVolume(box.Z.Len(), box.Y.Len(), box.X.Len(), v.Spacing)
	i := 0
	for z := box.Z.Start; z < box.Z.End; z++ {
		for y := box.Y.Start; y < box.Y.End; y++ {
			row := v.Index(z, y, box.X.Start)
			i += copy(out.Data[i:], v.Data[row:row+box.X.Len()])
		}
	}
	return out
}

// Values returns the voxel values inside box, in raster order.
func (v *Volume) Values(box Box) []float64 {
	return v.Crop(box).Data
}

// Below returns a mask of voxels strictly below threshold.
func (v *Volume) Below(threshold float64) *Mask {
	m := NewMask(v.Shape())
	for i, value := range v.Data {
		m.Data[i] = value < threshold
	}
	return m
}

// Above returns a mask of voxels strictly above threshold.
func (v *Volume) Above(threshold float64) *Mask {
	m := NewMask(v.Shape())
	for i, value := range v.Data {
		m.Data[i] = value > threshold
	}
	return m
}

// Between returns a mask of voxels in the open interval (lo, hi).
func (v *Volume) Between(lo, hi float64) *Mask {
	m := NewMask(v.Shape())
	for i, value := range v.Data {
		m.Data[i] = value > lo && value < hi
	}
	return m
}

// Select returns the values of all voxels set in mask.
func (v *Volume) Select(mask *Mask) []float64 {
	values := make([]float64, 0, mask.Count())
	for i, set := range mask.Data {
		if set {
			values = append(values, v.Data[i])
		}
	}
	return values
}
