package regions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinusct/internal/models"
)

func TestAtlasResolveFractions(t *testing.T) {
	a := NewAtlas()
	shape := models.Shape{Depth: 100, Height: 100, Width: 100}

	box, ok := a.Resolve(Sphenoid, shape)
	require.True(t, ok)
	assert.Equal(t, models.Range{Start: 30, End: 50}, box.Z)
	assert.Equal(t, models.Range{Start: 35, End: 55}, box.Y)
	assert.Equal(t, models.Range{Start: 30, End: 70}, box.X)

	box, ok = a.Resolve(OMCCandidate(AnteriorSuperior, Left), shape)
	require.True(t, ok)
	assert.Equal(t, models.Range{Start: 0, End: 45}, box.X)
	assert.Equal(t, 45, box.X.Len())

	box, ok = a.Resolve(OMCCandidate(AnteriorSuperior, Right), shape)
	require.True(t, ok)
	assert.Equal(t, models.Range{Start: 55, End: 100}, box.X)

	box, ok = a.Resolve(SkullBase, shape)
	require.True(t, ok)
	assert.Equal(t, models.Range{Start: 25, End: 40}, box.Z)
}

func TestAtlasUnknownStructure(t *testing.T) {
	a := NewAtlas()
	_, ok := a.Resolve("pituitary", models.Shape{Depth: 10, Height: 10, Width: 10})
	assert.False(t, ok)

	v := models.NewVolume(10, 10, 10, models.Spacing{Z: 1, Y: 1, X: 1})
	assert.Nil(t, a.RegionMask(v, "pituitary"))
}

func TestAtlasClampsTinyVolumes(t *testing.T) {
	a := NewAtlas()
	shapes := []models.Shape{
		{Depth: 1, Height: 1, Width: 1},
		{Depth: 3, Height: 2, Width: 5},
		{Depth: 7, Height: 11, Width: 4},
	}
	for _, shape := range shapes {
		for _, name := range a.Structures() {
			box, ok := a.Resolve(name, shape)
			require.True(t, ok, name)
			for _, r := range []struct {
				rng models.Range
				n   int
			}{{box.Z, shape.Depth}, {box.Y, shape.Height}, {box.X, shape.Width}} {
				assert.GreaterOrEqual(t, r.rng.Start, 0, name)
				assert.LessOrEqual(t, r.rng.End, r.n, name)
				assert.GreaterOrEqual(t, r.rng.Len(), 1, name)
			}
		}
	}
}

func TestAtlasLundMackayBandsAreDisjoint(t *testing.T) {
	a := NewAtlas()
	shape := models.Shape{Depth: 80, Height: 64, Width: 64}
	union := models.NewMask(shape)
	total := 0
	for _, sinus := range LundMackaySinuses {
		for _, side := range Sides {
			box, ok := a.Resolve(LundMackayRegion(sinus, side), shape)
			require.True(t, ok)
			union = union.Or(models.BoxMask(shape, box))
			total += box.Len()
		}
	}
	assert.Equal(t, total, union.Count())
}

func TestAtlasDefineOverrides(t *testing.T) {
	a := NewAtlas()
	n := len(a.Structures())
	a.Define(Region{Name: Sphenoid, Z: Full(), Y: Full(), X: Full()})
	assert.Len(t, a.Structures(), n)

	r, ok := a.Lookup(Sphenoid)
	require.True(t, ok)
	assert.Equal(t, Full(), r.X)
	_, ok = a.Lookup("maxillary_left")
	assert.False(t, ok)

	box, ok := a.Resolve(Sphenoid, models.Shape{Depth: 4, Height: 5, Width: 6})
	require.True(t, ok)
	assert.Equal(t, 4*5*6, box.Len())
}

func TestSegmentationBounds(t *testing.T) {
	shape := models.Shape{Depth: 6, Height: 6, Width: 6}
	cavity := models.BoxMask(shape, models.Box{
		Z: models.Range{Start: 1, End: 3},
		Y: models.Range{Start: 2, End: 5},
		X: models.Range{Start: 0, End: 2},
	})
	seg, err := NewSegmentation("model", shape, map[string]*models.Mask{
		SinusCavity: cavity,
		Sphenoid:    models.NewMask(shape),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{SinusCavity, Sphenoid}, seg.Structures())

	v := models.NewVolume(6, 6, 6, models.Spacing{Z: 1, Y: 1, X: 1})
	box, ok := seg.RegionBounds(v, SinusCavity)
	require.True(t, ok)
	assert.Equal(t, models.Range{Start: 1, End: 3}, box.Z)

	_, ok = seg.RegionBounds(v, Sphenoid)
	assert.False(t, ok, "empty mask counts as unavailable")

	other := models.NewVolume(5, 6, 6, models.Spacing{Z: 1, Y: 1, X: 1})
	assert.Nil(t, seg.RegionMask(other, SinusCavity))
}

func TestSegmentationRejectsMismatchedMask(t *testing.T) {
	shape := models.Shape{Depth: 4, Height: 4, Width: 4}
	_, err := NewSegmentation("bad", shape, map[string]*models.Mask{
		SinusCavity: models.NewMask(models.Shape{Depth: 3, Height: 4, Width: 4}),
	})
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}

func TestResolverFallsBackToAtlas(t *testing.T) {
	shape := models.Shape{Depth: 20, Height: 20, Width: 20}
	v := models.NewVolume(20, 20, 20, models.Spacing{Z: 1, Y: 1, X: 1})
	cavity := models.BoxMask(shape, models.Box{
		Z: models.Range{Start: 2, End: 4},
		Y: models.Range{Start: 2, End: 4},
		X: models.Range{Start: 2, End: 4},
	})
	seg, err := NewSegmentation("model", shape, map[string]*models.Mask{Sphenoid: cavity})
	require.NoError(t, err)

	resolver := NewResolver(seg)
	assert.Equal(t, "model+atlas", resolver.Name())

	box, ok := resolver.RegionBounds(v, Sphenoid)
	require.True(t, ok)
	assert.Equal(t, models.Range{Start: 2, End: 4}, box.Z)

	box, ok = resolver.RegionBounds(v, HardPalate)
	require.True(t, ok)
	assert.Equal(t, models.Range{Start: 12, End: 16}, box.Z)

	assert.Nil(t, resolver.RegionMask(v, SinusCavity))
	assert.Contains(t, resolver.Structures(), SkullBase)

	_, isAtlas := NewResolver(nil).(*Atlas)
	assert.True(t, isAtlas)
}
