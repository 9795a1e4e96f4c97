package models

// Range is a half-open interval [Start, End) of voxel indices along one axis.
type Range struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Clamp limits the range to [0, n) while keeping at least one index.
// n must be positive.
func (r Range) Clamp(n int) Range {
	start := r.Start
	if start < 0 {
		start = 0
	}
	if start > n-1 {
		start = n - 1
	}
	end := r.End
	if end > n {
		end = n
	}
	if end < start+1 {
		end = start + 1
	}
	return Range{Start: start, End: end}
}

// include grows the range to cover index i.
func (r Range) include(i int) Range {
	if i < r.Start {
		r.Start = i
	}
	if i+1 > r.End {
		r.End = i + 1
	}
	return r
}

// Box is an axis-aligned block of voxels.
type Box struct {
	Z Range `json:"z" yaml:"z"`
	Y Range `json:"y" yaml:"y"`
	X Range `json:"x" yaml:"x"`
}

// Clamp limits every axis to shape, keeping a minimum one-voxel extent.
func (b Box) Clamp(shape Shape) Box {
	return Box{
		Z: b.Z.Clamp(shape.Depth),
		Y: b.Y.Clamp(shape.Height),
		X: b.X.Clamp(shape.Width),
	}
}

// Clip intersects the box with shape. Unlike Clamp it may yield an empty box.
func (b Box) Clip(shape Shape) Box {
	clip := func(r Range, n int) Range {
		if r.Start < 0 {
			r.Start = 0
		}
		if r.End > n {
			r.End = n
		}
		if r.End < r.Start {
			r.End = r.Start
		}
		return r
	}
	return Box{
		Z: clip(b.Z, shape.Depth),
		Y: clip(b.Y, shape.Height),
		X: clip(b.X, shape.Width),
	}
}

// Shape returns the extent of the box.
func (b Box) Shape() Shape {
	return Shape{Depth: b.Z.Len(), Height: b.Y.Len(), Width: b.X.Len()}
}

// Len returns the number of voxels in the box.
func (b Box) Len() int {
	return b.Shape().Len()
}
