package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeIndexRoundTrip(t *testing.T) {
	shape := Shape{Depth: 4, Height: 5, Width: 6}
	for z := 0; z < shape.Depth; z++ {
		for y := 0; y < shape.Height; y++ {
			for x := 0; x < shape.Width; x++ {
				gz, gy, gx := shape.Coords(shape.Index(z, y, x))
				require.Equal(t, [3]int{z, y, x}, [3]int{gz, gy, gx})
			}
		}
	}
}

func TestRangeClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Range
		n    int
		want Range
	}{
		{"inside", Range{2, 5}, 10, Range{2, 5}},
		{"negative start", Range{-4, 3}, 10, Range{0, 3}},
		{"past end", Range{8, 20}, 10, Range{8, 10}},
		{"empty keeps one voxel", Range{4, 4}, 10, Range{4, 5}},
		{"inverted", Range{6, 2}, 10, Range{6, 7}},
		{"entirely beyond", Range{15, 25}, 10, Range{9, 10}},
		{"entirely before", Range{-9, -3}, 10, Range{0, 1}},
		{"single voxel axis", Range{-1, 40}, 1, Range{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamp(tt.n)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.Len(), 1)
		})
	}
}

func TestVolumeCropAndValues(t *testing.T) {
	v := NewVolume(3, 4, 5, Spacing{1, 1, 1})
	for i := range v.Data {
		v.Data[i] = float64(i)
	}

	box := Box{Z: Range{1, 3}, Y: Range{1, 2}, X: Range{2, 4}}
	crop := v.Crop(box)
	require.Equal(t, Shape{2, 1, 2}, crop.Shape())
	assert.Equal(t, []float64{
		v.At(1, 1, 2), v.At(1, 1, 3),
		v.At(2, 1, 2), v.At(2, 1, 3),
	}, crop.Data)

	// Cropping never aliases the source.
	crop.Data[0] = -1
	assert.NotEqual(t, -1.0, v.At(1, 1, 2))
}

func TestVolumeMapDoesNotMutate(t *testing.T) {
	v := NewVolume(2, 2, 2, Spacing{1, 1, 1})
	v.Fill(v.Shape().Box(), 10)

	doubled := v.Map(func(x float64) float64 { return 2 * x })
	assert.Equal(t, 20.0, doubled.At(1, 1, 1))
	assert.Equal(t, 10.0, v.At(1, 1, 1))
}

func TestVolumeValidate(t *testing.T) {
	assert.ErrorIs(t, (*Volume)(nil).Validate(), ErrEmptyVolume)
	assert.ErrorIs(t, NewVolume(0, 4, 4, Spacing{1, 1, 1}).Validate(), ErrEmptyVolume)
	assert.ErrorIs(t, NewVolume(2, 2, 2, Spacing{1, 0, 1}).Validate(), ErrInvalidSpacing)

	v := NewVolume(2, 2, 2, Spacing{1, 1, 1})
	v.Data = v.Data[:7]
	assert.True(t, errors.Is(v.Validate(), ErrShapeMismatch))

	_, err := NewVolumeFromData(make([]float64, 5), 2, 2, 2, Spacing{1, 1, 1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestMaskBoundingBox(t *testing.T) {
	m := NewMask(Shape{5, 5, 5})
	_, ok := m.BoundingBox()
	assert.False(t, ok)

	m.Set(1, 2, 3, true)
	m.Set(3, 1, 4, true)
	box, ok := m.BoundingBox()
	require.True(t, ok)
	assert.Equal(t, Box{Z: Range{1, 4}, Y: Range{1, 3}, X: Range{3, 5}}, box)
}

func TestMaskSetOperations(t *testing.T) {
	shape := Shape{1, 1, 4}
	a := NewMask(shape)
	b := NewMask(shape)
	a.Data = []bool{true, true, false, false}
	b.Data = []bool{true, false, true, false}

	assert.Equal(t, []bool{true, false, false, false}, a.And(b).Data)
	assert.Equal(t, []bool{true, true, true, false}, a.Or(b).Data)
	assert.Equal(t, []bool{false, true, false, false}, a.AndNot(b).Data)
	assert.Equal(t, 2, a.Count())
}

func TestThresholdMasks(t *testing.T) {
	v, err := NewVolumeFromData([]float64{-1000, -400, 0, 50, 1200}, 1, 1, 5, Spacing{1, 1, 1})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false, false, false, false}, v.Below(-400).Data)
	assert.Equal(t, []bool{false, false, false, false, true}, v.Above(50).Data)
	assert.Equal(t, []bool{false, false, true, false, false}, v.Between(-50, 50).Data)
	assert.Equal(t, []float64{-1000, 1200}, v.Select(v.Below(-400).Or(v.Above(50))))
}

func TestVoxelVolume(t *testing.T) {
	s := Spacing{Z: 2, Y: 0.5, X: 0.5}
	assert.InDelta(t, 0.5, s.VoxelVolumeMM3(), 1e-12)
}
