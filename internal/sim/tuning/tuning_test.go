package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 42
workers: 4
load_radius: 2
unload_distance: 1
worldgen:
  noise: simplex
  octaves: 6
`), 0o644))

	tune, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tune.Seed)
	assert.Equal(t, 4, tune.Workers)
	assert.Equal(t, 16, tune.ChunkSize)
	assert.Equal(t, 2, tune.UnloadDistance, "unload distance is clamped to the load radius")
	assert.Equal(t, "simplex", tune.WorldGen.Noise)
	assert.Equal(t, 6, tune.WorldGen.Octaves)
	assert.Equal(t, Defaults().WorldGen.Persistence, tune.WorldGen.Persistence)
}

func TestNormalizeRejectsBadValues(t *testing.T) {
	tune := Tuning{ChunkSize: -1, Workers: 0, ViewMultiplier: -2}
	tune.WorldGen.Noise = "value"
	tune.WorldGen.Persistence = 3
	tune.Normalize()

	d := Defaults()
	assert.Equal(t, d.ChunkSize, tune.ChunkSize)
	assert.Equal(t, d.Workers, tune.Workers)
	assert.Equal(t, d.ViewMultiplier, tune.ViewMultiplier)
	assert.Equal(t, "perlin", tune.WorldGen.Noise)
	assert.Equal(t, d.WorldGen.Persistence, tune.WorldGen.Persistence)
	assert.Greater(t, tune.WorldGen.FloorDepth, tune.WorldGen.SeaLevel)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.True(t, os.IsNotExist(err))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1,2"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}
