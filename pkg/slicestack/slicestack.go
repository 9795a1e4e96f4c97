// Package slicestack assembles a directory of numbered 16-bit grayscale
// slice images into a Hounsfield-unit volume.
package slicestack

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"sinusct/internal/models"
)

// ErrNoSlices is returned when the input directory holds no slice images.
var ErrNoSlices = errors.New("no slice images found")

// Params describes how stored pixel values map to the scan.
type Params struct {
	// Dir is the directory containing the slice images
	Dir string `yaml:"-"`

	// PixelSpacing is the in-plane voxel size in mm
	PixelSpacing float64 `yaml:"pixelSpacing"`

	// SliceThickness is the distance between consecutive slices in mm
	SliceThickness float64 `yaml:"sliceThickness"`

	// RescaleSlope and RescaleIntercept convert stored values to HU
	RescaleSlope     float64 `yaml:"rescaleSlope"`
	RescaleIntercept float64 `yaml:"rescaleIntercept"`

	// Extensions lists the accepted file extensions, lower case with dot
	Extensions []string `yaml:"extensions,flow"`
}

// DefaultParams returns settings for 16-bit PNG/TIFF exports that store
// HU + 1024.
func DefaultParams() Params {
	return Params{
		PixelSpacing:     0.5,
		SliceThickness:   1.0,
		RescaleSlope:     1,
		RescaleIntercept: -1024,
		Extensions:       []string{".png", ".tif", ".tiff"},
	}
}

// Load reads the stack. Slices are ordered by the number embedded in
// their filename, the first slice being the most superior.
func Load(p Params) (*models.Volume, []models.Slice, error) {
	files, err := listSlices(p.Dir, p.Extensions)
	if err != nil {
		return nil, nil, err
	}

	var (
		data          []float64
		width, height int
		slices        = make([]models.Slice, 0, len(files))
	)
	for i, name := range files {
		img, err := imaging.Open(filepath.Join(p.Dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load slice %s: %w", name, err)
		}

		bounds := img.Bounds()
		if i == 0 {
			width, height = bounds.Dx(), bounds.Dy()
			data = make([]float64, 0, width*height*len(files))
		} else if bounds.Dx() != width || bounds.Dy() != height {
			return nil, nil, fmt.Errorf("%w: slice %s is %dx%d, expected %dx%d",
				models.ErrShapeMismatch, name, bounds.Dx(), bounds.Dy(), width, height)
		}

		data = append(data, toHU(img, p.RescaleSlope, p.RescaleIntercept)...)
		slices = append(slices, models.Slice{
			Index:     i,
			Filename:  name,
			Thickness: p.SliceThickness,
			Position:  float64(i) * p.SliceThickness,
		})
	}

	spacing := models.Spacing{Z: p.SliceThickness, Y: p.PixelSpacing, X: p.PixelSpacing}
	v, err := models.NewVolumeFromData(data, len(files), height, width, spacing)
	if err != nil {
		return nil, nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, nil, err
	}
	return v, slices, nil
}

func listSlices(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	accept := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		accept[strings.ToLower(ext)] = true
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if accept[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSlices, dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	return files, nil
}

// extractNumber returns the digits of the filename (without extension)
// as an integer, or 0 when there are none.
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

// toHU converts one slice in row-major order.
func toHU(img image.Image, slope, intercept float64) []float64 {
	bounds := img.Bounds()
	out := make([]float64, 0, bounds.Dx()*bounds.Dy())
	gray16, isGray16 := img.(*image.Gray16)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var raw uint16
			if isGray16 {
				raw = gray16.Gray16At(x, y).Y
			} else {
				raw = color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
			}
			out = append(out, slope*float64(raw)+intercept)
		}
	}
	return out
}
