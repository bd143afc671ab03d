package biome

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.ai/internal/sim/catalogs"
	"tileworld.ai/internal/sim/world/terrain/noise"
)

type panicSource struct{}

func (panicSource) Eval2(x, y float64) float64 { panic("boom") }

type nanSource struct{}

func (nanSource) Eval2(x, y float64) float64 { return math.NaN() }

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, Bucket(0, 6))
	assert.Equal(t, 2, Bucket(0.5, 6))
	assert.Equal(t, 5, Bucket(1, 6))
	assert.Equal(t, 0, Bucket(-0.2, 6))
	assert.Equal(t, 0, Bucket(0.5, 0))
}

func TestSelectDeterministicAndVaried(t *testing.T) {
	tiles := catalogs.Default().Tiles
	a := NewSelector(noise.NewPerlin(42), 1.0/256, Palette(tiles))
	b := NewSelector(noise.NewPerlin(42), 1.0/256, Palette(tiles))

	seen := map[string]bool{}
	for x := -20000; x < 20000; x += 37 {
		da := a.Select(x, 0)
		require.Equal(t, da, b.Select(x, 0))
		seen[da.Name] = true
	}
	assert.GreaterOrEqual(t, len(seen), 3, "expected several biomes over a wide span, got %v", seen)
}

func TestSelectDegradesToDefault(t *testing.T) {
	pal := Palette(catalogs.Default().Tiles)
	for _, src := range []noise.Source{panicSource{}, nanSource{}} {
		s := NewSelector(src, 0.01, pal)
		assert.Equal(t, "PLAINS", s.Select(5, 5).Name)
	}
	empty := NewSelector(noise.NewPerlin(1), 0.01, nil)
	assert.Equal(t, "NONE", empty.Select(0, 0).Name)
}
