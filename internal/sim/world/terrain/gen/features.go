package gen

import (
	"tileworld.ai/internal/sim/world/logic/mathx"
	"tileworld.ai/internal/sim/world/terrain/biome"
)

func (g *Generator) caveThreshold(depth int) float64 {
	span := g.cfg.StoneDepth
	if span < 1 {
		span = 1
	}
	frac := float64(depth) / float64(span)
	if frac > 1 {
		frac = 1
	}
	return g.cfg.CaveThreshold - g.cfg.CaveDepthBonus*frac
}

// carveCaves clears soil and stone where any cave field exceeds a
// threshold that drops with depth below the surface.
func (g *Generator) carveCaves(c *chunk) {
	for ly := 0; ly < c.size; ly++ {
		wy := c.y0 + ly
		for lx := 0; lx < c.size; lx++ {
			i := c.index(lx, ly)
			s, b := c.col(lx)
			t := c.tiles[i]
			if t != g.tiles.Stone && t != b.Soil {
				continue
			}
			depth := wy - s
			if depth < g.cfg.CaveMinDepth {
				continue
			}
			thr := g.caveThreshold(depth)
			x, y := float64(c.x0+lx), float64(wy)
			for _, f := range g.caves {
				if f.At(x, y) > thr {
					c.tiles[i] = g.tiles.Air
					break
				}
			}
		}
	}
}

func (g *Generator) oreThreshold(o oreLayer, b biome.Descriptor) float64 {
	rarity := b.OreRarity
	if rarity <= 0 {
		rarity = 1
	}
	thr := o.threshold * rarity
	if thr > 0.97 {
		thr = 0.97
	}
	return thr
}

func (g *Generator) scatterOres(c *chunk) {
	for ly := 0; ly < c.size; ly++ {
		wy := c.y0 + ly
		for lx := 0; lx < c.size; lx++ {
			i := c.index(lx, ly)
			if c.tiles[i] != g.tiles.Stone {
				continue
			}
			s, b := c.col(lx)
			depth := wy - s
			x, y := float64(c.x0+lx), float64(wy)
			for _, o := range g.ores {
				if depth < o.minDepth {
					continue
				}
				if o.field.At(x, y) > g.oreThreshold(o, b) {
					c.tiles[i] = o.tile
					break
				}
			}
		}
	}
}

func (g *Generator) chance(salt uint64, x, y int) float64 {
	return mathx.Unit(mathx.Hash2(mathx.SubSeed(g.cfg.Seed, salt), x, y))
}

func (g *Generator) waterAt(wx, surface int, b biome.Descriptor) bool {
	if surface < g.cfg.SeaLevel || b.WaterChance <= 0 {
		return false
	}
	return g.chance(saltWater, wx, 0) < b.WaterChance*float64(g.cfg.WaterPermille)/1000
}

// treeAt reports the trunk height of a tree rooted on column wx. A column
// is never a tree when its left neighbour also drew one, which keeps
// trunks at least one column apart.
func (g *Generator) treeAt(wx, surface int, b biome.Descriptor) (int, bool) {
	if b.TreeDensity <= 0 || (b.Surface != g.tiles.Grass && b.Surface != g.tiles.Snow) {
		return 0, false
	}
	if g.waterAt(wx, surface, b) {
		return 0, false
	}
	if g.chance(saltTree, wx, 0) >= b.TreeDensity || g.chance(saltTree, wx-1, 0) < b.TreeDensity {
		return 0, false
	}
	h := 3 + int(mathx.Hash2(mathx.SubSeed(g.cfg.Seed, saltTreeHeight), wx, 0)%3)
	return h, true
}

func (g *Generator) setIfAir(c *chunk, lx, wy int, t uint16) {
	ly := wy - c.y0
	if lx < 0 || lx >= c.size || ly < 0 || ly >= c.size {
		return
	}
	i := c.index(lx, ly)
	if c.tiles[i] == g.tiles.Air {
		c.tiles[i] = t
	}
}

func (g *Generator) decorate(c *chunk) {
	// Trunks first, then canopies, so leaves never replace a trunk.
	type tree struct{ lx, top int }
	var trees []tree
	for lx := -1; lx <= c.size; lx++ {
		s, b := c.col(lx)
		h, ok := g.treeAt(c.x0+lx, s, b)
		if !ok {
			continue
		}
		trees = append(trees, tree{lx: lx, top: s - h})
		for wy := s - h; wy < s; wy++ {
			g.setIfAir(c, lx, wy, g.tiles.Log)
		}
	}
	for _, t := range trees {
		for dx := -1; dx <= 1; dx++ {
			g.setIfAir(c, t.lx+dx, t.top-1, g.tiles.Leaves)
			if dx != 0 {
				g.setIfAir(c, t.lx+dx, t.top, g.tiles.Leaves)
			}
		}
		g.setIfAir(c, t.lx, t.top-2, g.tiles.Leaves)
	}

	for lx := 0; lx < c.size; lx++ {
		s, b := c.col(lx)
		if !g.waterAt(c.x0+lx, s, b) {
			continue
		}
		for wy := s; wy <= s+1; wy++ {
			ly := wy - c.y0
			if ly < 0 || ly >= c.size {
				continue
			}
			i := c.index(lx, ly)
			if t := c.tiles[i]; t == b.Surface || t == b.Soil {
				c.tiles[i] = g.tiles.Water
			}
		}
	}

	if g.cfg.GravelPermille <= 0 {
		return
	}
	p := float64(g.cfg.GravelPermille) / 1000
	gravelSeed := mathx.SubSeed(g.cfg.Seed, saltGravel)
	for ly := 0; ly < c.size; ly++ {
		wy := c.y0 + ly
		for lx := 0; lx < c.size; lx++ {
			i := c.index(lx, ly)
			s, b := c.col(lx)
			if wy <= s {
				continue
			}
			if t := c.tiles[i]; t != g.tiles.Stone && t != b.Soil {
				continue
			}
			if mathx.Unit(mathx.Hash3(gravelSeed, c.x0+lx, wy, 0)) < p*b.GravelChance {
				c.tiles[i] = g.tiles.Gravel
			}
		}
	}
}
