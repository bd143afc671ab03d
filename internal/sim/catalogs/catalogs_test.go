package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPaletteAirIsZero(t *testing.T) {
	c := Default()
	require.Equal(t, "AIR", c.Blocks.Palette[0])
	assert.Equal(t, uint16(0), c.Tiles.Air)
	assert.True(t, c.Valid(c.Tiles.DiamondOre))
	assert.False(t, c.Valid(uint16(len(c.Blocks.Palette))))
	assert.Equal(t, "STONE", c.Name(c.Tiles.Stone))
	assert.NotEmpty(t, c.Blocks.PaletteDigest)
}

func TestOptionalTilesFallBack(t *testing.T) {
	raw := []byte(`[
		{"id":"AIR"},{"id":"DIRT","solid":true},{"id":"STONE","solid":true},{"id":"BEDROCK","solid":true}
	]`)
	c, err := FromJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, c.Tiles.Dirt, c.Tiles.Grass)
	assert.Equal(t, c.Tiles.Dirt, c.Tiles.Snow, "SNOW chains through GRASS to DIRT")
	assert.Equal(t, c.Tiles.Stone, c.Tiles.Gravel)
	assert.Equal(t, c.Tiles.Stone, c.Tiles.GoldOre)
	assert.Equal(t, c.Tiles.Air, c.Tiles.Water)
	assert.Equal(t, c.Tiles.Air, c.Tiles.Log)
}

func TestMissingRequiredTile(t *testing.T) {
	_, err := FromJSON([]byte(`[{"id":"AIR"},{"id":"DIRT"},{"id":"STONE"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BEDROCK")

	_, err = FromJSON([]byte(`[{"id":"DIRT"}]`))
	require.Error(t, err)
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocks.json"), defaultBlocksJSON, 0o644))
	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Tiles, c.Tiles)

	_, err = Load(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
