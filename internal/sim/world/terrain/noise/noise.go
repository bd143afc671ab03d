// Package noise provides deterministic 2D gradient noise keyed by a world seed.
//
// All samplers are pure functions of (x, y, seed): the permutation tables are
// shuffled once from the seed and never touched again, so the same inputs give
// bit-identical output on every run.
package noise

import (
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"
)

const (
	KindPerlin  = "perlin"
	KindSimplex = "simplex"
)

// Source samples single-octave noise in [-1,1].
type Source interface {
	Eval2(x, y float64) float64
}

// perlinGain stretches classic 2D Perlin output (about ±√½) to ±1.
const perlinGain = math.Sqrt2

// PerlinSource is gradient noise over a seed-shuffled permutation table.
type PerlinSource struct {
	p *perlin.Perlin
}

func NewPerlin(seed int64) *PerlinSource {
	// alpha/beta only matter for n > 1; octaves are summed by Octave instead.
	return &PerlinSource{p: perlin.NewPerlin(2, 2, 1, seed)}
}

func (s *PerlinSource) Eval2(x, y float64) float64 {
	return Clamp(s.p.Noise2D(x, y) * perlinGain)
}

type SimplexSource struct {
	n opensimplex.Noise
}

func NewSimplex(seed int64) *SimplexSource {
	return &SimplexSource{n: opensimplex.New(seed)}
}

func (s *SimplexSource) Eval2(x, y float64) float64 {
	return Clamp(s.n.Eval2(x, y))
}

// New builds a source of the given kind.
func New(kind string, seed int64) (Source, error) {
	switch kind {
	case KindPerlin, "":
		return NewPerlin(seed), nil
	case KindSimplex:
		return NewSimplex(seed), nil
	default:
		return nil, fmt.Errorf("noise: unknown kind %q", kind)
	}
}

// Noise is the seed-keyed form of the default gradient noise, in [-1,1].
// It builds a fresh source per call; hot paths hold a Source instead.
func Noise(x, y float64, seed int64) float64 {
	return NewPerlin(seed).Eval2(x, y)
}

// Octave sums progressively higher-frequency, lower-amplitude samples and
// normalizes by the accumulated amplitude, so the result stays in [-1,1].
func Octave(src Source, x, y float64, octaves int, persistence, lacunarity float64) float64 {
	var total, maxAmp float64
	amp, freq := 1.0, 1.0
	for i := 0; i < octaves; i++ {
		total += src.Eval2(x*freq, y*freq) * amp
		maxAmp += amp
		amp *= persistence
		freq *= lacunarity
	}
	if maxAmp == 0 {
		return 0
	}
	return Clamp(total / maxAmp)
}

// OctaveNoise is Octave over the seed-keyed default source.
func OctaveNoise(x, y float64, seed int64, octaves int, persistence, lacunarity float64) float64 {
	return Octave(NewPerlin(seed), x, y, octaves, persistence, lacunarity)
}

// Normalize maps [-1,1] to [0,1].
func Normalize(v float64) float64 {
	return (Clamp(v) + 1) / 2
}

func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return v
}
