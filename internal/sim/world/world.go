// Package world ties terrain generation, the chunk store, the generation
// workers and persistence into one world instance. Every collection the
// world needs lives on the World value; there is no package-level state.
package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"tileworld.ai/internal/sim/catalogs"
	"tileworld.ai/internal/sim/tuning"
	"tileworld.ai/internal/sim/world/terrain/gen"
	"tileworld.ai/internal/sim/world/terrain/store"
	"tileworld.ai/internal/sim/world/terrain/stream"
)

type ChunkKey = store.ChunkKey

// Position is a viewer position in world tile units. Rows grow downward.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Tile returns the tile containing p.
func (p Position) Tile() (int, int) {
	return int(math.Floor(p.X)), int(math.Floor(p.Y))
}

var (
	ErrWorkersStopped = errors.New("world: generation workers are not running")
	ErrWorkersRunning = errors.New("world: generation workers are running")
)

// EditLogger receives one entry per tile write that changed something.
type EditLogger interface {
	WriteEdit(entry EditEntry) error
}

type EditEntry struct {
	At   string `json:"at"`
	Seed int64  `json:"seed"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	From uint16 `json:"from"`
	To   uint16 `json:"to"`
}

// SaveRecorder is told about every completed save.
type SaveRecorder interface {
	RecordSave(rec SaveRecord)
}

type SaveRecord struct {
	SaveID    string
	Path      string
	Seed      int64
	ChunkSize int
	Chunks    int
	Retained  int
	Digest    string
	At        time.Time
}

// Subsystem is a dependent system whose state rides along in save files.
// The world never looks inside the blob.
type Subsystem interface {
	SaveState() (json.RawMessage, error)
	LoadState(raw json.RawMessage) error
}

type Config struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Logger   *zap.Logger

	// Optional sinks; nil disables them.
	Edits       EditLogger
	Generations stream.Sink
	Saves       SaveRecorder
}

type World struct {
	tune tuning.Tuning
	cats *catalogs.Catalogs
	log  *zap.Logger

	store *store.Store
	ctl   *stream.Controller

	edits       EditLogger
	generations stream.Sink
	saves       SaveRecorder

	// mu guards the fields below; the store has its own lock.
	mu         sync.Mutex
	seed       int64
	gen        *gen.Generator
	strategy   gen.Strategy
	workers    *stream.Coordinator
	player     Position
	subsystems map[string]Subsystem
	blobs      map[string]json.RawMessage
}

func New(cfg Config) (*World, error) {
	cfg.Tuning.Normalize()
	if cfg.Catalogs == nil {
		cfg.Catalogs = catalogs.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	w := &World{
		tune:        cfg.Tuning,
		cats:        cfg.Catalogs,
		log:         cfg.Logger,
		edits:       cfg.Edits,
		generations: cfg.Generations,
		saves:       cfg.Saves,
		subsystems:  map[string]Subsystem{},
		blobs:       map[string]json.RawMessage{},
	}
	w.store = store.New(cfg.Tuning.ChunkSize, cfg.Catalogs.Tiles.Air, cfg.Tuning.CacheWarnEntries, cfg.Logger.Named("store"))
	w.ctl = stream.NewController(w.store, ChunkKey{}, cfg.Logger.Named("stream"))
	if err := w.reseedLocked(cfg.Tuning.Seed); err != nil {
		return nil, err
	}
	w.player = w.spawnLocked()
	return w, nil
}

// reseedLocked rebuilds the generator and re-pins the origin chunk.
func (w *World) reseedLocked(seed int64) error {
	g, err := gen.New(gen.ConfigFrom(seed, w.tune.ChunkSize, w.tune.WorldGen), w.cats.Tiles, w.cats.Valid, w.log.Named("gen"))
	if err != nil {
		return fmt.Errorf("terrain generator: %w", err)
	}
	w.seed = seed
	w.gen = g
	w.strategy = gen.Select(g, w.tune.WorldGen.Accelerated)
	sx, sy := w.spawnLocked().Tile()
	w.ctl.SetOrigin(w.store.ChunkOf(sx, sy))
	return nil
}

func (w *World) spawnLocked() Position {
	return Position{X: 0, Y: float64(w.gen.HeightAt(0) - 1)}
}

func (w *World) Seed() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seed
}

func (w *World) ChunkSize() int               { return w.tune.ChunkSize }
func (w *World) Tuning() tuning.Tuning        { return w.tune }
func (w *World) Catalogs() *catalogs.Catalogs { return w.cats }
func (w *World) Origin() ChunkKey             { return w.ctl.Origin() }
func (w *World) ChunkOf(wx, wy int) ChunkKey  { return w.store.ChunkOf(wx, wy) }
func (w *World) IsResident(k ChunkKey) bool   { return w.store.IsResident(k) }
func (w *World) ResidentChunks() []ChunkKey   { return w.store.ResidentKeys() }

func (w *World) Digest(k ChunkKey) ([32]byte, bool) {
	return w.store.Digest(k)
}

// Spawn is the tile just above the surface at x = 0.
func (w *World) Spawn() Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spawnLocked()
}

// SurfaceAt returns the generated surface row of column wx, ignoring edits.
func (w *World) SurfaceAt(wx int) int {
	w.mu.Lock()
	g := w.gen
	w.mu.Unlock()
	return g.HeightAt(wx)
}

func (w *World) Player() Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.player
}

func (w *World) SetPlayer(p Position) {
	w.mu.Lock()
	w.player = p
	w.mu.Unlock()
}

// RegisterSubsystem attaches s under name. A blob already loaded for name
// is handed to s immediately.
func (w *World) RegisterSubsystem(name string, s Subsystem) error {
	w.mu.Lock()
	w.subsystems[name] = s
	raw, ok := w.blobs[name]
	delete(w.blobs, name)
	w.mu.Unlock()
	if !ok {
		return nil
	}
	if err := s.LoadState(raw); err != nil {
		return fmt.Errorf("subsystem %s: %w", name, err)
	}
	return nil
}

type Stats struct {
	Seed    int64         `json:"seed"`
	Workers int           `json:"workers"`
	Queue   int           `json:"queue"`
	Store   store.Stats   `json:"store"`
	Stream  *stream.Stats `json:"stream,omitempty"`
}

func (w *World) Stats() Stats {
	w.mu.Lock()
	st := Stats{Seed: w.seed}
	c := w.workers
	w.mu.Unlock()
	st.Store = w.store.Stats()
	if c != nil {
		s := c.Stats()
		st.Stream = &s
		st.Workers = c.Workers()
		st.Queue = c.QueueLen()
	}
	return st
}
