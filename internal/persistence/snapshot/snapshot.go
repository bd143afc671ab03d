// Package snapshot reads and writes world save documents.
//
// A save is one JSON document, optionally zstd-compressed when the path
// ends in ".zst". Chunk grids are stored as rows keyed by "cx,cy".
package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const Version = 1

// ErrMalformed wraps every decode or validation failure.
var ErrMalformed = errors.New("snapshot: malformed save")

type Player struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type SaveV1 struct {
	Version   int    `json:"version"`
	SaveID    string `json:"save_id,omitempty"`
	SavedAt   string `json:"saved_at,omitempty"`
	Seed      int64  `json:"seed"`
	ChunkSize int    `json:"chunk_size"`
	Player    Player `json:"player"`

	// Chunks holds resident grids; Retained holds edited or save-loaded
	// grids of chunks that were not resident at save time.
	Chunks   map[string][][]uint16 `json:"chunks"`
	Retained map[string][][]uint16 `json:"retained,omitempty"`

	// Subsystems are opaque to the world core.
	Subsystems map[string]json.RawMessage `json:"subsystems,omitempty"`
}

// New returns an empty save stamped with a fresh id and time.
func New(seed int64, chunkSize int, player Player) SaveV1 {
	return SaveV1{
		Version:    Version,
		SaveID:     uuid.NewString(),
		SavedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Seed:       seed,
		ChunkSize:  chunkSize,
		Player:     player,
		Chunks:     map[string][][]uint16{},
		Retained:   map[string][][]uint16{},
		Subsystems: map[string]json.RawMessage{},
	}
}

func Key(cx, cy int) string {
	return strconv.Itoa(cx) + "," + strconv.Itoa(cy)
}

// ParseKey accepts only the canonical form Key produces, so no two
// distinct strings name the same chunk.
func ParseKey(s string) (cx, cy int, err error) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("chunk key %q: missing comma", s)
	}
	if cx, err = strconv.Atoi(a); err != nil {
		return 0, 0, fmt.Errorf("chunk key %q: %w", s, err)
	}
	if cy, err = strconv.Atoi(b); err != nil {
		return 0, 0, fmt.Errorf("chunk key %q: %w", s, err)
	}
	if Key(cx, cy) != s {
		return 0, 0, fmt.Errorf("chunk key %q: not canonical, want %q", s, Key(cx, cy))
	}
	return cx, cy, nil
}

// Rows splits a row-major grid into size rows.
func Rows(tiles []uint16, size int) [][]uint16 {
	out := make([][]uint16, size)
	for y := 0; y < size; y++ {
		row := make([]uint16, size)
		copy(row, tiles[y*size:(y+1)*size])
		out[y] = row
	}
	return out
}

// Flatten is the inverse of Rows and checks the grid is size x size.
func Flatten(rows [][]uint16, size int) ([]uint16, error) {
	if len(rows) != size {
		return nil, fmt.Errorf("grid has %d rows, want %d", len(rows), size)
	}
	out := make([]uint16, 0, size*size)
	for y, row := range rows {
		if len(row) != size {
			return nil, fmt.Errorf("grid row %d has %d tiles, want %d", y, len(row), size)
		}
		out = append(out, row...)
	}
	return out, nil
}

//go:embed save.schema.json
var schemaText string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("save.schema.json", schemaText)
	})
	return schema, schemaErr
}

// Decode validates raw JSON against the save schema and unmarshals it.
func Decode(raw []byte) (SaveV1, error) {
	var s SaveV1
	sch, err := compiled()
	if err != nil {
		return s, fmt.Errorf("compile save schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := sch.Validate(doc); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

func Encode(w io.Writer, s SaveV1) error {
	enc := json.NewEncoder(w)
	return enc.Encode(s)
}

func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Write stores s at path through a temp file and rename, so a crash never
// leaves a half-written save behind.
func Write(path string, s SaveV1) error {
	if s.Version == 0 {
		s.Version = Version
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}

	if compressed(path) {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			cleanup()
			return err
		}
		if err := Encode(enc, s); err != nil {
			_ = enc.Close()
			cleanup()
			return fmt.Errorf("encode save: %w", err)
		}
		if err := enc.Close(); err != nil {
			cleanup()
			return err
		}
	} else if err := Encode(f, s); err != nil {
		cleanup()
		return fmt.Errorf("encode save: %w", err)
	}

	if err := f.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func readRaw(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !compressed(path) {
		return raw, nil
	}
	dec, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrMalformed, err)
	}
	return out, nil
}

// Read loads and validates a save.
func Read(path string) (SaveV1, error) {
	raw, err := readRaw(path)
	if err != nil {
		return SaveV1{}, err
	}
	return Decode(raw)
}

type Header struct {
	Version   int    `json:"version"`
	SaveID    string `json:"save_id"`
	SavedAt   string `json:"saved_at"`
	Seed      int64  `json:"seed"`
	ChunkSize int    `json:"chunk_size"`
}

// ReadHeader returns the identifying fields of a save without validating grids.
func ReadHeader(path string) (Header, error) {
	var h Header
	raw, err := readRaw(path)
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return h, nil
}
