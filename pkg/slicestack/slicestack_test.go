package slicestack

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinusct/internal/models"
)

// writeSlice stores a 16-bit PNG whose pixels hold value(x, y).
func writeSlice(t *testing.T, dir, name string, w, h int, value func(x, y int) uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value(x, y)})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 12, extractNumber("slice_012.png"))
	assert.Equal(t, 3, extractNumber("/tmp/scan/IM3.tif"))
	assert.Equal(t, 0, extractNumber("axial.png"))
}

func TestLoadOrdersNumerically(t *testing.T) {
	dir := t.TempDir()
	// stored value = HU + 1024, one constant value per slice
	for _, s := range []struct {
		name string
		hu   int
	}{
		{"slice_10.png", 40},
		{"slice_2.png", -1000},
		{"slice_1.png", 1200},
	} {
		stored := uint16(s.hu + 1024)
		writeSlice(t, dir, s.name, 4, 3, func(x, y int) uint16 { return stored })
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	p := DefaultParams()
	p.Dir = dir
	p.PixelSpacing = 0.4
	p.SliceThickness = 1.25

	v, slices, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, models.Shape{Depth: 3, Height: 3, Width: 4}, v.Shape())
	assert.Equal(t, models.Spacing{Z: 1.25, Y: 0.4, X: 0.4}, v.Spacing)

	require.Len(t, slices, 3)
	assert.Equal(t, "slice_1.png", slices[0].Filename)
	assert.Equal(t, "slice_10.png", slices[2].Filename)
	assert.Equal(t, 2.5, slices[2].Position)

	assert.Equal(t, 1200.0, v.At(0, 1, 1))
	assert.Equal(t, -1000.0, v.At(1, 2, 3))
	assert.Equal(t, 40.0, v.At(2, 0, 0))
}

func TestLoadKeepsPixelLayout(t *testing.T) {
	dir := t.TempDir()
	writeSlice(t, dir, "0.png", 3, 2, func(x, y int) uint16 { return uint16(1024 + 10*y + x) })

	p := DefaultParams()
	p.Dir = dir
	v, _, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 10, 11, 12}, v.Data)
}

func TestLoadRejectsMixedSizes(t *testing.T) {
	dir := t.TempDir()
	writeSlice(t, dir, "1.png", 4, 4, func(x, y int) uint16 { return 0 })
	writeSlice(t, dir, "2.png", 5, 4, func(x, y int) uint16 { return 0 })

	p := DefaultParams()
	p.Dir = dir
	_, _, err := Load(p)
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}

func TestLoadEmptyDirectory(t *testing.T) {
	p := DefaultParams()
	p.Dir = t.TempDir()
	_, _, err := Load(p)
	assert.ErrorIs(t, err, ErrNoSlices)
}

func TestLoadRejectsBadSpacing(t *testing.T) {
	dir := t.TempDir()
	writeSlice(t, dir, "1.png", 2, 2, func(x, y int) uint16 { return 0 })
	p := DefaultParams()
	p.Dir = dir
	p.SliceThickness = 0
	_, _, err := Load(p)
	assert.ErrorIs(t, err, models.ErrInvalidSpacing)
}
