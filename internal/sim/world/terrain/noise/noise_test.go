package noise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcesDeterministic(t *testing.T) {
	for _, kind := range []string{KindPerlin, KindSimplex} {
		a, err := New(kind, 12345)
		require.NoError(t, err)
		b, err := New(kind, 12345)
		require.NoError(t, err)
		for i := 0; i < 200; i++ {
			x := float64(i)*0.137 - 7
			y := float64(i)*0.291 + 3
			require.Equal(t, a.Eval2(x, y), b.Eval2(x, y), "%s at (%f,%f)", kind, x, y)
		}
	}
}

func TestSourcesRange(t *testing.T) {
	for _, kind := range []string{KindPerlin, KindSimplex} {
		src, err := New(kind, 42)
		require.NoError(t, err)
		for i := 0; i < 10000; i++ {
			x := float64(i)*0.37 - 500
			y := float64(i)*0.53 - 500
			v := src.Eval2(x, y)
			require.True(t, v >= -1 && v <= 1, "%s(%f,%f)=%f", kind, x, y, v)
		}
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	different := false
	for i := 0; i < 100; i++ {
		x := float64(i)*0.1 + 0.05
		y := float64(i)*0.2 + 0.05
		if Noise(x, y, 1) != Noise(x, y, 2) {
			different = true
			break
		}
	}
	assert.True(t, different, "different seeds should produce different noise")
}

func TestSeedKeyedHelpersMatchSource(t *testing.T) {
	src := NewPerlin(77)
	for i := 0; i < 50; i++ {
		x, y := float64(i)*0.37+0.1, float64(i)*-0.21+0.3
		assert.Equal(t, src.Eval2(x, y), Noise(x, y, 77))
		assert.Equal(t, Octave(src, x, y, 3, 0.5, 2), OctaveNoise(x, y, 77, 3, 0.5, 2))
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := New("value", 1)
	require.Error(t, err)
}

func TestOctaveNormalizedAndSmooth(t *testing.T) {
	prev := OctaveNoise(0.5, 0.5, 456, 4, 0.5, 2)
	for i := 1; i < 1000; i++ {
		x := 0.5 + float64(i)*0.01
		cur := OctaveNoise(x, 0.5, 456, 4, 0.5, 2)
		require.True(t, cur >= -1 && cur <= 1)
		require.Less(t, math.Abs(cur-prev), 0.15, "noise changed too rapidly at x=%f", x)
		prev = cur
	}
	assert.Equal(t, 0.0, Octave(NewPerlin(1), 1.5, 1.5, 0, 0.5, 2))
}

func TestFieldAt01(t *testing.T) {
	f := NewField(NewSimplex(9), 1.0/64, 3, 0.5, 2)
	for i := -500; i < 500; i += 7 {
		v := f.At01(float64(i), float64(-i))
		require.True(t, v >= 0 && v <= 1)
	}
	assert.Equal(t, 0.0, Field{}.At(1, 2))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(math.NaN()))
	assert.Equal(t, 1.0, Clamp(3))
	assert.Equal(t, -1.0, Clamp(math.Inf(-1)))
	assert.Equal(t, 0.5, Normalize(0))
}
