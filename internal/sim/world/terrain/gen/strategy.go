package gen

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tileworld.ai/internal/sim/tuning"
	"tileworld.ai/internal/sim/world/terrain/biome"
)

// Strategy is what the generation workers call. Both implementations run
// the same cave, ore and decoration stages; they differ only in how the
// heightmap and base fill are computed.
type Strategy interface {
	Generate(cx, cy int) ([]uint16, error)
	HeightAt(wx int) int
}

var (
	_ Strategy = (*Generator)(nil)
	_ Strategy = (*Accelerated)(nil)
)

// ConfigFrom maps the worldgen tuning block onto a generator config.
func ConfigFrom(seed int64, chunkSize int, wg tuning.WorldGen) Config {
	return Config{
		Seed:           seed,
		ChunkSize:      chunkSize,
		Noise:          wg.Noise,
		SeaLevel:       wg.SeaLevel,
		FloorDepth:     wg.FloorDepth,
		StoneDepth:     wg.StoneDepth,
		HeightPadding:  wg.HeightPadding,
		Octaves:        wg.Octaves,
		Persistence:    wg.Persistence,
		Lacunarity:     wg.Lacunarity,
		HeightScale:    wg.HeightScale,
		LargeScale:     wg.LargeScale,
		LargeAmplitude: wg.LargeAmplitude,
		BiomeScale:     wg.BiomeScale,
		CaveThreshold:  wg.CaveThreshold,
		CaveDepthBonus: wg.CaveDepthBonus,
		CaveMinDepth:   wg.CaveMinDepth,
		WaterPermille:  wg.WaterPermille,
		GravelPermille: wg.GravelPermille,
	}
}

// Select returns the accelerated strategy when it was asked for and more
// than one CPU is available, else the scalar generator itself.
func Select(g *Generator, accelerated bool) Strategy {
	procs := runtime.GOMAXPROCS(0)
	if !accelerated || procs < 2 {
		return g
	}
	return &Accelerated{g: g, workers: procs}
}

// Accelerated spreads the heightmap and base fill of one chunk across
// goroutines. Any failure there falls back to the scalar base.
type Accelerated struct {
	g       *Generator
	workers int
}

func (a *Accelerated) HeightAt(wx int) int { return a.g.HeightAt(wx) }

func (a *Accelerated) Generate(cx, cy int) ([]uint16, error) {
	return a.g.run(cx, cy, func(cx, cy int) (*chunk, error) {
		c, err := a.base(cx, cy)
		if err != nil {
			a.g.log.Warn("accelerated base fill failed; using scalar path",
				zap.Int("cx", cx), zap.Int("cy", cy), zap.Error(err))
			return a.g.baseScalar(cx, cy)
		}
		return c, nil
	})
}

// guard turns a panic in fn into an error; errgroup does not recover.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}
}

func (a *Accelerated) base(cx, cy int) (*chunk, error) {
	g := a.g
	c := g.newChunk(cx, cy)
	r := g.cfg.HeightPadding
	n := c.size + 2
	x0 := c.x0 - 1

	raw := make([]float64, n+2*r)
	bs := make([]biome.Descriptor, n+2*r)
	span := (len(raw) + a.workers - 1) / a.workers

	var cols errgroup.Group
	cols.SetLimit(a.workers)
	for lo := 0; lo < len(raw); lo += span {
		hi := min(lo+span, len(raw))
		cols.Go(guard(func() error {
			for i := lo; i < hi; i++ {
				wx := x0 - r + i
				bs[i] = g.biomes.Select(wx, 0)
				raw[i] = g.rawHeight(wx, bs[i])
			}
			return nil
		}))
	}
	if err := cols.Wait(); err != nil {
		return nil, err
	}
	c.heights = g.smooth(raw, n)
	c.biomes = bs[r : r+n]

	var rows errgroup.Group
	rows.SetLimit(a.workers)
	for ly := 0; ly < c.size; ly++ {
		rows.Go(guard(func() error {
			g.fillRow(c, ly)
			return nil
		}))
	}
	if err := rows.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}
