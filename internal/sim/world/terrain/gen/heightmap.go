package gen

import (
	"math"

	"tileworld.ai/internal/sim/world/logic/mathx"
	"tileworld.ai/internal/sim/world/terrain/biome"
)

func (g *Generator) rawHeight(wx int, b biome.Descriptor) float64 {
	x := float64(wx)
	detail := g.height.At(x, 0)
	large := g.large.At(x, 0)
	// Positive noise lifts the surface, i.e. lowers its row index.
	return float64(g.cfg.SeaLevel+b.BaseHeight) - detail*b.HeightVariation - large*g.cfg.LargeAmplitude
}

// columns computes n smoothed surface rows and biomes starting at world
// column x0. Raw heights are sampled HeightPadding columns past both ends
// so the blur never reads outside its own samples.
func (g *Generator) columns(x0, n int) ([]int, []biome.Descriptor) {
	r := g.cfg.HeightPadding
	raw := make([]float64, n+2*r)
	bs := make([]biome.Descriptor, n+2*r)
	for i := range raw {
		wx := x0 - r + i
		bs[i] = g.biomes.Select(wx, 0)
		raw[i] = g.rawHeight(wx, bs[i])
	}
	return g.smooth(raw, n), bs[r : r+n]
}

// smooth applies a symmetric triangular kernel of radius HeightPadding.
// raw holds n+2r samples; output i is centered on raw[i+r].
func (g *Generator) smooth(raw []float64, n int) []int {
	r := g.cfg.HeightPadding
	out := make([]int, n)
	for i := 0; i < n; i++ {
		var sum, wsum float64
		for k := -r; k <= r; k++ {
			w := float64(r + 1 - mathx.AbsInt(k))
			sum += raw[r+i+k] * w
			wsum += w
		}
		out[i] = g.clampSurface(sum / wsum)
	}
	return out
}

func (g *Generator) clampSurface(h float64) int {
	lo := float64(g.cfg.SeaLevel - 4*g.cfg.ChunkSize)
	hi := float64(g.cfg.FloorDepth - 8)
	if math.IsNaN(h) {
		return g.cfg.SeaLevel
	}
	if h < lo {
		h = lo
	}
	if h > hi {
		h = hi
	}
	return int(math.Floor(h + 0.5))
}

func (g *Generator) fillTile(wy, surface int, b biome.Descriptor) uint16 {
	switch {
	case wy >= g.cfg.FloorDepth:
		return g.tiles.Bedrock
	case wy < surface:
		return g.tiles.Air
	case wy == surface:
		return b.Surface
	case wy <= surface+b.SoilDepth:
		return b.Soil
	default:
		return g.tiles.Stone
	}
}

func (g *Generator) fillRow(c *chunk, ly int) {
	wy := c.y0 + ly
	for lx := 0; lx < c.size; lx++ {
		s, b := c.col(lx)
		c.tiles[c.index(lx, ly)] = g.fillTile(wy, s, b)
	}
}

func (g *Generator) baseScalar(cx, cy int) (*chunk, error) {
	c := g.newChunk(cx, cy)
	c.heights, c.biomes = g.columns(c.x0-1, c.size+2)
	for ly := 0; ly < c.size; ly++ {
		g.fillRow(c, ly)
	}
	return c, nil
}
