// Package gen produces chunk tile grids as a pure function of (seed, chunk).
//
// Rows grow downward: row 0 is the top of chunk row 0, and the surface sits
// near SeaLevel. Every noise lookup uses world coordinates so that adjacent
// chunks agree on shared columns without reading each other's tiles.
package gen

import (
	"fmt"

	"go.uber.org/zap"

	"tileworld.ai/internal/sim/catalogs"
	"tileworld.ai/internal/sim/world/logic/mathx"
	"tileworld.ai/internal/sim/world/terrain/biome"
	"tileworld.ai/internal/sim/world/terrain/noise"
)

type Config struct {
	Seed      int64
	ChunkSize int
	Noise     string

	SeaLevel      int
	FloorDepth    int // rows at or below this are bedrock
	StoneDepth    int // rows below the surface over which caves widen to full size
	HeightPadding int // blur radius; also the margin sampled past each chunk edge

	Octaves        int
	Persistence    float64
	Lacunarity     float64
	HeightScale    float64
	LargeScale     float64
	LargeAmplitude float64
	BiomeScale     float64

	CaveThreshold  float64
	CaveDepthBonus float64
	CaveMinDepth   int

	WaterPermille  int
	GravelPermille int
}

// Sub-seed salts, one per independent field.
const (
	saltHeight uint64 = iota + 1
	saltLarge
	saltBiome
	saltCaveA
	saltCaveB
	saltCaveC
	saltCoal
	saltIron
	saltGold
	saltDiamond
	saltTree
	saltTreeHeight
	saltWater
	saltGravel
)

type Generator struct {
	cfg   Config
	tiles catalogs.Tiles
	valid func(uint16) bool
	log   *zap.Logger

	height noise.Field
	large  noise.Field
	biomes *biome.Selector
	caves  []noise.Field
	ores   []oreLayer

	// stageHook runs before each pipeline stage; tests use it to inject faults.
	stageHook func(stage string)
}

type oreLayer struct {
	tile      uint16
	minDepth  int
	threshold float64
	field     noise.Field
}

// New builds a generator. valid may be nil, in which case every code is accepted.
func New(cfg Config, tiles catalogs.Tiles, valid func(uint16) bool, logger *zap.Logger) (*Generator, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("gen: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.HeightPadding < 1 {
		cfg.HeightPadding = 1
	}
	if cfg.Octaves <= 0 {
		cfg.Octaves = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	heightSrc, err := noise.New(cfg.Noise, mathx.SubSeed(cfg.Seed, saltHeight))
	if err != nil {
		return nil, err
	}
	largeSrc, err := noise.New(cfg.Noise, mathx.SubSeed(cfg.Seed, saltLarge))
	if err != nil {
		return nil, err
	}
	biomeSrc, err := noise.New(cfg.Noise, mathx.SubSeed(cfg.Seed, saltBiome))
	if err != nil {
		return nil, err
	}

	simplex := func(salt uint64) noise.Source {
		return noise.NewSimplex(mathx.SubSeed(cfg.Seed, salt))
	}

	g := &Generator{
		cfg:    cfg,
		tiles:  tiles,
		valid:  valid,
		log:    logger,
		height: noise.NewField(heightSrc, cfg.HeightScale, cfg.Octaves, cfg.Persistence, cfg.Lacunarity),
		large:  noise.NewField(largeSrc, cfg.LargeScale, 1, 0.5, 2),
		biomes: biome.NewSelector(biomeSrc, cfg.BiomeScale, biome.Palette(tiles)),
		caves: []noise.Field{
			noise.NewField(simplex(saltCaveA), 1.0/32, 2, 0.5, 2),
			noise.NewField(simplex(saltCaveB), 1.0/16, 1, 0.5, 2),
			noise.NewField(simplex(saltCaveC), 1.0/9, 1, 0.5, 2),
		},
		// Priority order: the first matching layer wins the tile.
		ores: []oreLayer{
			{tile: tiles.DiamondOre, minDepth: 80, threshold: 0.78, field: noise.NewField(simplex(saltDiamond), 1.0/4, 1, 0.5, 2)},
			{tile: tiles.GoldOre, minDepth: 40, threshold: 0.72, field: noise.NewField(simplex(saltGold), 1.0/4, 1, 0.5, 2)},
			{tile: tiles.IronOre, minDepth: 12, threshold: 0.64, field: noise.NewField(simplex(saltIron), 1.0/5, 1, 0.5, 2)},
			{tile: tiles.CoalOre, minDepth: 3, threshold: 0.56, field: noise.NewField(simplex(saltCoal), 1.0/6, 1, 0.5, 2)},
		},
	}
	return g, nil
}

func (g *Generator) Config() Config        { return g.cfg }
func (g *Generator) Tiles() catalogs.Tiles { return g.tiles }

// Empty returns an all-air grid.
func (g *Generator) Empty() []uint16 {
	n := g.cfg.ChunkSize * g.cfg.ChunkSize
	out := make([]uint16, n)
	for i := range out {
		out[i] = g.tiles.Air
	}
	return out
}

// Generate runs the scalar pipeline. On a wholesale failure it returns an
// all-air grid together with the error; stage failures are absorbed.
func (g *Generator) Generate(cx, cy int) ([]uint16, error) {
	return g.run(cx, cy, g.baseScalar)
}

// HeightAt returns the surface row of world column wx.
func (g *Generator) HeightAt(wx int) int {
	h, _ := g.columns(wx, 1)
	return h[0]
}

// BiomeAt returns the column biome used for world column wx.
func (g *Generator) BiomeAt(wx int) biome.Descriptor {
	return g.biomes.Select(wx, 0)
}

type baseFunc func(cx, cy int) (*chunk, error)

// chunk is the scratch state of one generation. Column arrays carry one
// extra column on each side so decoration can see neighbouring trees.
type chunk struct {
	cx, cy  int
	x0, y0  int
	size    int
	heights []int
	biomes  []biome.Descriptor
	tiles   []uint16
}

func (c *chunk) index(lx, ly int) int { return ly*c.size + lx }

// col maps a chunk-local column (-1..size) to the padded column arrays.
func (c *chunk) col(lx int) (int, biome.Descriptor) {
	return c.heights[lx+1], c.biomes[lx+1]
}

func (g *Generator) newChunk(cx, cy int) *chunk {
	s := g.cfg.ChunkSize
	return &chunk{
		cx:    cx,
		cy:    cy,
		x0:    cx * s,
		y0:    cy * s,
		size:  s,
		tiles: make([]uint16, s*s),
	}
}

func (g *Generator) run(cx, cy int, base baseFunc) (tiles []uint16, err error) {
	defer func() {
		if r := recover(); r != nil {
			tiles = g.Empty()
			err = fmt.Errorf("generate chunk (%d,%d): %v", cx, cy, r)
		}
	}()
	c, err := base(cx, cy)
	if err != nil {
		return g.Empty(), fmt.Errorf("generate chunk (%d,%d): %w", cx, cy, err)
	}
	g.stage(c, "caves", g.carveCaves)
	g.stage(c, "ores", g.scatterOres)
	g.stage(c, "decorate", g.decorate)
	g.sanitize(c)
	return c.tiles, nil
}

// stage runs fn on c; a panic restores the tiles fn started from.
func (g *Generator) stage(c *chunk, name string, fn func(*chunk)) {
	backup := append([]uint16(nil), c.tiles...)
	defer func() {
		if r := recover(); r != nil {
			copy(c.tiles, backup)
			g.log.Warn("terrain stage failed; keeping previous output",
				zap.String("stage", name),
				zap.Int("cx", c.cx),
				zap.Int("cy", c.cy),
				zap.Any("panic", r),
			)
		}
	}()
	if g.stageHook != nil {
		g.stageHook(name)
	}
	fn(c)
}

func (g *Generator) sanitize(c *chunk) {
	if g.valid == nil {
		return
	}
	bad := 0
	for i, t := range c.tiles {
		if !g.valid(t) {
			c.tiles[i] = g.tiles.Air
			bad++
		}
	}
	if bad > 0 {
		g.log.Warn("generated unregistered tile codes; replaced with air",
			zap.Int("cx", c.cx), zap.Int("cy", c.cy), zap.Int("count", bad))
	}
}
