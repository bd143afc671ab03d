// Package biome maps world coordinates to biome parameter sets.
package biome

import (
	"math"

	"tileworld.ai/internal/sim/catalogs"
	"tileworld.ai/internal/sim/world/terrain/noise"
)

type Descriptor struct {
	Name            string
	Surface         uint16
	Soil            uint16
	BaseHeight      int     // surface row offset from sea level (negative = higher)
	HeightVariation float64 // tiles of relief at full noise amplitude
	SoilDepth       int
	TreeDensity     float64 // per-column probability
	OreRarity       float64 // 1 = normal, >1 = rarer
	WaterChance     float64 // multiplier on the world pool rate
	GravelChance    float64 // multiplier on the world gravel rate
}

// Palette returns the fixed ordered biome list, driest/lowest first.
func Palette(t catalogs.Tiles) []Descriptor {
	return []Descriptor{
		{Name: "DESERT", Surface: t.Sand, Soil: t.Sand, BaseHeight: 4, HeightVariation: 6, SoilDepth: 5, TreeDensity: 0, OreRarity: 1.2, WaterChance: 0, GravelChance: 0.5},
		{Name: "PLAINS", Surface: t.Grass, Soil: t.Dirt, BaseHeight: 0, HeightVariation: 8, SoilDepth: 4, TreeDensity: 0.04, OreRarity: 1, WaterChance: 1, GravelChance: 1},
		{Name: "FOREST", Surface: t.Grass, Soil: t.Dirt, BaseHeight: -2, HeightVariation: 12, SoilDepth: 5, TreeDensity: 0.22, OreRarity: 1, WaterChance: 1, GravelChance: 1},
		{Name: "SWAMP", Surface: t.Clay, Soil: t.Dirt, BaseHeight: 6, HeightVariation: 3, SoilDepth: 6, TreeDensity: 0.08, OreRarity: 1.1, WaterChance: 4, GravelChance: 0.5},
		{Name: "HILLS", Surface: t.Grass, Soil: t.Dirt, BaseHeight: -10, HeightVariation: 22, SoilDepth: 3, TreeDensity: 0.06, OreRarity: 0.85, WaterChance: 0.5, GravelChance: 2},
		{Name: "TUNDRA", Surface: t.Snow, Soil: t.Dirt, BaseHeight: -6, HeightVariation: 16, SoilDepth: 2, TreeDensity: 0.02, OreRarity: 0.9, WaterChance: 0, GravelChance: 1.5},
	}
}

// DefaultIndex selects PLAINS when sampling fails.
const DefaultIndex = 1

type Selector struct {
	field   noise.Field
	palette []Descriptor
}

// NewSelector uses one low-frequency single-octave field; biomes span hundreds of tiles.
func NewSelector(src noise.Source, scale float64, palette []Descriptor) *Selector {
	return &Selector{
		field:   noise.NewField(src, scale, 1, 0.5, 2),
		palette: palette,
	}
}

func (s *Selector) Default() Descriptor {
	if len(s.palette) == 0 {
		return Descriptor{Name: "NONE"}
	}
	if DefaultIndex < len(s.palette) {
		return s.palette[DefaultIndex]
	}
	return s.palette[0]
}

// Select buckets the normalized noise sample linearly into the palette.
// It never fails: a sampler panic or a non-finite sample yields Default.
func (s *Selector) Select(wx, wy int) (d Descriptor) {
	defer func() {
		if r := recover(); r != nil {
			d = s.Default()
		}
	}()
	if len(s.palette) == 0 {
		return s.Default()
	}
	// Biomes are mostly vertical bands; y contributes at a quarter of the rate.
	v := s.field.Src.Eval2(float64(wx)*s.field.Scale, float64(wy)*s.field.Scale*0.25)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return s.Default()
	}
	return s.palette[Bucket(noise.Normalize(v), len(s.palette))]
}

// Bucket maps u in [0,1] to one of n equal-width buckets.
func Bucket(u float64, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(u * float64(n))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
