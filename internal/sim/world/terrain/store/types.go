package store

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"go.uber.org/zap"
)

type ChunkKey struct {
	CX int
	CY int
}

// Chunk is a square tile grid, row-major: index = ly*size + lx.
type Chunk struct {
	CX, CY int
	Tiles  []uint16

	size  int
	dirty bool
	hash  [32]byte
}

func newChunk(k ChunkKey, size int, tiles []uint16) *Chunk {
	return &Chunk{CX: k.CX, CY: k.CY, Tiles: tiles, size: size, dirty: true}
}

func (c *Chunk) index(lx, ly int) int {
	return ly*c.size + lx
}

func (c *Chunk) Get(lx, ly int) uint16 {
	return c.Tiles[c.index(lx, ly)]
}

// Set reports whether the tile changed.
func (c *Chunk) Set(lx, ly int, t uint16) bool {
	i := c.index(lx, ly)
	if c.Tiles[i] == t {
		return false
	}
	c.Tiles[i] = t
	c.dirty = true
	return true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty {
		c.hash = DigestTiles(c.Tiles)
		c.dirty = false
	}
	return c.hash
}

// DigestTiles hashes a grid as little-endian uint16s.
func DigestTiles(tiles []uint16) [32]byte {
	h := sha256.New()
	var tmp [2]byte
	for _, v := range tiles {
		binary.LittleEndian.PutUint16(tmp[:], v)
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Source says where a chunk's contents came from.
type Source string

const (
	SourceModified  Source = "modified"
	SourceSaved     Source = "saved"
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Store is the authoritative map of resident chunks plus the bookkeeping
// sets the generation workers coordinate through. Every method takes mu
// exactly once; helpers suffixed Locked expect it held.
type Store struct {
	size   int
	air    uint16
	warnAt int
	log    *zap.Logger

	mu       sync.Mutex
	chunks   map[ChunkKey]*Chunk
	inflight map[ChunkKey]uint64
	queued   map[ChunkKey]struct{}
	modified map[ChunkKey]struct{}

	// Both caches outlive eviction.
	modifiedCache map[ChunkKey][]uint16
	savedCache    map[ChunkKey][]uint16
	warned        bool

	// epoch changes on Reset and Import. A generation started under an
	// older epoch can neither publish nor clear a newer in-flight marker.
	epoch uint64
}

// New creates an empty store. warnAt <= 0 disables the cache growth warning.
func New(size int, air uint16, warnAt int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		size:   size,
		air:    air,
		warnAt: warnAt,
		log:    logger,
	}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.chunks = map[ChunkKey]*Chunk{}
	s.epoch++
	s.inflight = map[ChunkKey]uint64{}
	s.queued = map[ChunkKey]struct{}{}
	s.modified = map[ChunkKey]struct{}{}
	s.modifiedCache = map[ChunkKey][]uint16{}
	s.savedCache = map[ChunkKey][]uint16{}
	s.warned = false
}

func (s *Store) Size() int   { return s.size }
func (s *Store) Air() uint16 { return s.air }

func cloneTiles(in []uint16) []uint16 {
	out := make([]uint16, len(in))
	copy(out, in)
	return out
}

func (s *Store) checkCacheGrowthLocked() {
	if s.warnAt <= 0 || s.warned {
		return
	}
	if n := len(s.modifiedCache) + len(s.savedCache); n > s.warnAt {
		s.warned = true
		s.log.Warn("retained chunk caches are large",
			zap.Int("modified_cache", len(s.modifiedCache)),
			zap.Int("saved_cache", len(s.savedCache)),
			zap.Int("warn_at", s.warnAt),
		)
	}
}

type Stats struct {
	Resident      int `json:"resident"`
	InFlight      int `json:"in_flight"`
	Queued        int `json:"queued"`
	Modified      int `json:"modified"`
	ModifiedCache int `json:"modified_cache"`
	SavedCache    int `json:"saved_cache"`
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Resident:      len(s.chunks),
		InFlight:      len(s.inflight),
		Queued:        len(s.queued),
		Modified:      len(s.modified),
		ModifiedCache: len(s.modifiedCache),
		SavedCache:    len(s.savedCache),
	}
}
