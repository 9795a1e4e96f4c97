package morphology

import (
	"sinusct/internal/models"
)

// Component is one 6-connected group of set voxels.
type Component struct {
	// Label is the 1-based component number in raster order of first voxel
	Label int

	// Indices are the flat voxel indices belonging to the component
	Indices []int

	// Box is the tight bounding box of the component
	Box models.Box
}

// Size returns the number of voxels in the component.
func (c Component) Size() int {
	return len(c.Indices)
}

// Solidity is the voxel count divided by the bounding-box volume.
func (c Component) Solidity() float64 {
	boxLen := c.Box.Len()
	if boxLen == 0 {
		return 0
	}
	return float64(len(c.Indices)) / float64(boxLen)
}

// Centroid returns the mean (z, y, x) voxel coordinate of the component.
func (c Component) Centroid(shape models.Shape) [3]float64 {
	var sum [3]float64
	for _, idx := range c.Indices {
		z, y, x := shape.Coords(idx)
		sum[0] += float64(z)
		sum[1] += float64(y)
		sum[2] += float64(x)
	}
	n := float64(len(c.Indices))
	if n == 0 {
		return sum
	}
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
}

// Components labels the 6-connected components of m. Components are
// numbered in the raster order of their first voxel.
func Components(m *models.Mask) []Component {
	shape := m.Shape()
	visited := make([]bool, len(m.Data))
	var components []Component
	queue := make([]int, 0, 64)

	neighbours := Cross()[1:]
	for start, set := range m.Data {
		if !set || visited[start] {
			continue
		}

		comp := Component{Label: len(components) + 1}
		sz, sy, sx := shape.Coords(start)
		comp.Box = models.Box{
			Z: models.Range{Start: sz, End: sz + 1},
			Y: models.Range{Start: sy, End: sy + 1},
			X: models.Range{Start: sx, End: sx + 1},
		}

		visited[start] = true
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			comp.Indices = append(comp.Indices, idx)

			z, y, x := shape.Coords(idx)
			comp.Box = grow(comp.Box, z, y, x)
			for _, o := range neighbours {
				nz, ny, nx := z+o.Z, y+o.Y, x+o.X
				if !shape.Contains(nz, ny, nx) {
					continue
				}
				n := shape.Index(nz, ny, nx)
				if m.Data[n] && !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		components = append(components, comp)
	}
	return components
}

// RemoveSmall drops components with fewer than minSize voxels. It returns
// the filtered mask and the components that were kept.
func RemoveSmall(m *models.Mask, minSize int) (*models.Mask, []Component) {
	out := models.NewMask(m.Shape())
	var kept []Component
	for _, c := range Components(m) {
		if c.Size() < minSize {
			continue
		}
		for _, idx := range c.Indices {
			out.Data[idx] = true
		}
		kept = append(kept, c)
	}
	return out, kept
}

func grow(b models.Box, z, y, x int) models.Box {
	extend := func(r models.Range, i int) models.Range {
		if i < r.Start {
			r.Start = i
		}
		if i >= r.End {
			r.End = i + 1
		}
		return r
	}
	b.Z = extend(b.Z, z)
	b.Y = extend(b.Y, y)
	b.X = extend(b.X, x)
	return b
}
