package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ChunkSize int   `yaml:"chunk_size"`
	Seed      int64 `yaml:"seed"`

	Workers        int     `yaml:"workers"`
	QueueCapacity  int     `yaml:"queue_capacity"`
	PollIntervalMs int     `yaml:"poll_interval_ms"`
	StopTimeoutMs  int     `yaml:"stop_timeout_ms"`
	GenRatePerSec  float64 `yaml:"gen_rate_per_sec"` // 0 = unlimited

	LoadRadius      int     `yaml:"load_radius"`
	UnloadDistance  int     `yaml:"unload_distance"`
	ViewMultiplier  float64 `yaml:"view_multiplier"`
	MaxActiveChunks int     `yaml:"max_active_chunks"`

	// CacheWarnEntries logs a warning once the retained chunk caches grow past it.
	CacheWarnEntries int `yaml:"cache_warn_entries"`
	BackupsKeep      int `yaml:"backups_keep"`

	WorldGen WorldGen `yaml:"worldgen"`
}

type WorldGen struct {
	Noise       string `yaml:"noise"` // "perlin" or "simplex"
	Accelerated bool   `yaml:"accelerated"`

	SeaLevel       int     `yaml:"sea_level"`
	FloorDepth     int     `yaml:"floor_depth"`
	StoneDepth     int     `yaml:"stone_depth"`
	HeightPadding  int     `yaml:"height_padding"`
	Octaves        int     `yaml:"octaves"`
	Persistence    float64 `yaml:"persistence"`
	Lacunarity     float64 `yaml:"lacunarity"`
	HeightScale    float64 `yaml:"height_scale"`
	LargeScale     float64 `yaml:"large_scale"`
	LargeAmplitude float64 `yaml:"large_amplitude"`
	BiomeScale     float64 `yaml:"biome_scale"`

	CaveThreshold  float64 `yaml:"cave_threshold"`
	CaveDepthBonus float64 `yaml:"cave_depth_bonus"`
	CaveMinDepth   int     `yaml:"cave_min_depth"`

	WaterPermille  int `yaml:"water_permille"`
	GravelPermille int `yaml:"gravel_permille"`
}

func Defaults() Tuning {
	return Tuning{
		ChunkSize:        16,
		Seed:             1337,
		Workers:          2,
		QueueCapacity:    1024,
		PollIntervalMs:   50,
		StopTimeoutMs:    2000,
		LoadRadius:       3,
		UnloadDistance:   6,
		ViewMultiplier:   1.5,
		MaxActiveChunks:  64,
		CacheWarnEntries: 50000,
		BackupsKeep:      3,
		WorldGen: WorldGen{
			Noise:          "perlin",
			SeaLevel:       64,
			FloorDepth:     256,
			StoneDepth:     40,
			HeightPadding:  4,
			Octaves:        4,
			Persistence:    0.5,
			Lacunarity:     2.0,
			HeightScale:    1.0 / 48.0,
			LargeScale:     1.0 / 400.0,
			LargeAmplitude: 24,
			BiomeScale:     1.0 / 256.0,
			CaveThreshold:  0.62,
			CaveDepthBonus: 0.22,
			CaveMinDepth:   4,
			WaterPermille:  6,
			GravelPermille: 4,
		},
	}
}

// Load reads a tuning file on top of Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	return t, nil
}

// Normalize replaces out-of-range values with defaults.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.ChunkSize <= 0 {
		t.ChunkSize = d.ChunkSize
	}
	if t.Workers <= 0 {
		t.Workers = d.Workers
	}
	if t.QueueCapacity <= 0 {
		t.QueueCapacity = d.QueueCapacity
	}
	if t.PollIntervalMs <= 0 {
		t.PollIntervalMs = d.PollIntervalMs
	}
	if t.StopTimeoutMs <= 0 {
		t.StopTimeoutMs = d.StopTimeoutMs
	}
	if t.GenRatePerSec < 0 {
		t.GenRatePerSec = 0
	}
	if t.LoadRadius < 0 {
		t.LoadRadius = d.LoadRadius
	}
	if t.UnloadDistance < t.LoadRadius {
		t.UnloadDistance = t.LoadRadius
	}
	if t.ViewMultiplier <= 0 {
		t.ViewMultiplier = d.ViewMultiplier
	}
	if t.MaxActiveChunks <= 0 {
		t.MaxActiveChunks = d.MaxActiveChunks
	}
	if t.BackupsKeep < 0 {
		t.BackupsKeep = 0
	}

	g := &t.WorldGen
	dg := d.WorldGen
	if g.Noise != "perlin" && g.Noise != "simplex" {
		g.Noise = dg.Noise
	}
	if g.FloorDepth <= g.SeaLevel {
		g.FloorDepth = g.SeaLevel + dg.FloorDepth - dg.SeaLevel
	}
	if g.StoneDepth <= 0 {
		g.StoneDepth = dg.StoneDepth
	}
	if g.HeightPadding < 1 {
		g.HeightPadding = dg.HeightPadding
	}
	if g.Octaves <= 0 {
		g.Octaves = dg.Octaves
	}
	if g.Persistence <= 0 || g.Persistence >= 1 {
		g.Persistence = dg.Persistence
	}
	if g.Lacunarity <= 1 {
		g.Lacunarity = dg.Lacunarity
	}
	if g.HeightScale <= 0 {
		g.HeightScale = dg.HeightScale
	}
	if g.LargeScale <= 0 {
		g.LargeScale = dg.LargeScale
	}
	if g.BiomeScale <= 0 {
		g.BiomeScale = dg.BiomeScale
	}
	if g.CaveThreshold <= 0 {
		g.CaveThreshold = dg.CaveThreshold
	}
	if g.CaveMinDepth < 0 {
		g.CaveMinDepth = 0
	}
}
