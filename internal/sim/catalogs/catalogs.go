package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed default_blocks.json
var defaultBlocksJSON []byte

type Catalogs struct {
	Blocks BlockCatalog
	Tiles  Tiles
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID        string `json:"id"`
	Solid     bool   `json:"solid"`
	Breakable bool   `json:"breakable"`
	Liquid    bool   `json:"liquid,omitempty"`
}

// Tiles holds the codes the terrain pipeline writes, resolved once at load.
type Tiles struct {
	Air     uint16
	Dirt    uint16
	Stone   uint16
	Bedrock uint16

	Grass  uint16
	Sand   uint16
	Snow   uint16
	Clay   uint16
	Gravel uint16
	Water  uint16
	Log    uint16
	Leaves uint16

	CoalOre    uint16
	IronOre    uint16
	GoldOre    uint16
	DiamondOre uint16
}

// required tiles must be present in blocks.json.
var required = []string{"AIR", "DIRT", "STONE", "BEDROCK"}

// optional maps a tile to the tile it degrades to when absent.
// Chains resolve in order, so SNOW falls back to GRASS and then to DIRT.
var optional = []struct {
	id       string
	fallback string
}{
	{"GRASS", "DIRT"},
	{"SAND", "DIRT"},
	{"SNOW", "GRASS"},
	{"CLAY", "DIRT"},
	{"GRAVEL", "STONE"},
	{"WATER", "AIR"},
	{"LOG", "AIR"},
	{"LEAVES", "AIR"},
	{"COAL_ORE", "STONE"},
	{"IRON_ORE", "STONE"},
	{"GOLD_ORE", "STONE"},
	{"DIAMOND_ORE", "STONE"},
}

// Load reads <configDir>/blocks.json. An empty configDir selects the embedded table.
func Load(configDir string) (*Catalogs, error) {
	raw := defaultBlocksJSON
	if configDir != "" {
		b, err := os.ReadFile(filepath.Join(configDir, "blocks.json"))
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return FromJSON(raw)
}

// Default returns the embedded tile table.
func Default() *Catalogs {
	c, err := FromJSON(defaultBlocksJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded blocks.json: %v", err))
	}
	return c
}

func FromJSON(raw []byte) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(raw, &c.Blocks); err != nil {
		return nil, err
	}
	tiles, err := resolveTiles(&c.Blocks)
	if err != nil {
		return nil, err
	}
	c.Tiles = tiles
	return &c, nil
}

// Valid reports whether code is a registered tile code.
func (c *Catalogs) Valid(code uint16) bool {
	return int(code) < len(c.Blocks.Palette)
}

func (c *Catalogs) Name(code uint16) string {
	if !c.Valid(code) {
		return fmt.Sprintf("UNKNOWN(%d)", code)
	}
	return c.Blocks.Palette[code]
}

func loadBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)
	if len(ids) > 1<<16 {
		return fmt.Errorf("blocks.json: %d tiles exceed uint16 codes", len(ids))
	}

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func resolveTiles(b *BlockCatalog) (Tiles, error) {
	codes := make(map[string]uint16, len(required)+len(optional))
	for _, id := range required {
		code, ok := b.Index[id]
		if !ok {
			return Tiles{}, fmt.Errorf("blocks.json: missing %s", id)
		}
		codes[id] = code
	}
	for _, o := range optional {
		if code, ok := b.Index[o.id]; ok {
			codes[o.id] = code
			continue
		}
		codes[o.id] = codes[o.fallback]
	}
	return Tiles{
		Air:        codes["AIR"],
		Dirt:       codes["DIRT"],
		Stone:      codes["STONE"],
		Bedrock:    codes["BEDROCK"],
		Grass:      codes["GRASS"],
		Sand:       codes["SAND"],
		Snow:       codes["SNOW"],
		Clay:       codes["CLAY"],
		Gravel:     codes["GRAVEL"],
		Water:      codes["WATER"],
		Log:        codes["LOG"],
		Leaves:     codes["LEAVES"],
		CoalOre:    codes["COAL_ORE"],
		IronOre:    codes["IRON_ORE"],
		GoldOre:    codes["GOLD_ORE"],
		DiamondOre: codes["DIAMOND_ORE"],
	}, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
