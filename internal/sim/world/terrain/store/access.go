package store

import (
	"sort"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"tileworld.ai/internal/sim/world/logic/mathx"
)

// Locate splits a world tile coordinate into its chunk and local offset.
func (s *Store) Locate(wx, wy int) (ChunkKey, int, int) {
	k := ChunkKey{CX: mathx.FloorDiv(wx, s.size), CY: mathx.FloorDiv(wy, s.size)}
	return k, mathx.Mod(wx, s.size), mathx.Mod(wy, s.size)
}

// ChunkOf returns the chunk containing a world tile coordinate.
func (s *Store) ChunkOf(wx, wy int) ChunkKey {
	k, _, _ := s.Locate(wx, wy)
	return k
}

// SortKeys orders keys by CX then CY.
func SortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CY < keys[j].CY
	})
}

func (s *Store) ResidentKeys() []ChunkKey {
	s.mu.Lock()
	keys := maps.Keys(s.chunks)
	s.mu.Unlock()
	SortKeys(keys)
	return keys
}

func (s *Store) IsResident(k ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chunks[k]
	return ok
}

// GetTile returns air for non-resident chunks; it never waits for generation.
func (s *Store) GetTile(wx, wy int) uint16 {
	k, lx, ly := s.Locate(wx, wy)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chunks[k]
	if !ok {
		return s.air
	}
	return ch.Get(lx, ly)
}

// SetTile writes into a resident chunk and reports whether anything changed.
func (s *Store) SetTile(wx, wy int, t uint16) bool {
	_, changed := s.SwapTile(wx, wy, t)
	return changed
}

// SwapTile is SetTile that also returns the code it replaced, read under
// the same lock as the write.
func (s *Store) SwapTile(wx, wy int, t uint16) (prev uint16, changed bool) {
	k, lx, ly := s.Locate(wx, wy)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chunks[k]
	if !ok {
		return s.air, false
	}
	prev = ch.Get(lx, ly)
	if !ch.Set(lx, ly, t) {
		return prev, false
	}
	s.markModifiedLocked(k, ch)
	return prev, true
}

// MarkModified is idempotent; it reports false for non-resident chunks.
func (s *Store) MarkModified(k ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chunks[k]
	if !ok {
		return false
	}
	s.markModifiedLocked(k, ch)
	return true
}

func (s *Store) markModifiedLocked(k ChunkKey, ch *Chunk) {
	s.modified[k] = struct{}{}
	if prev, ok := s.modifiedCache[k]; ok && len(prev) == len(ch.Tiles) {
		copy(prev, ch.Tiles)
	} else {
		s.modifiedCache[k] = cloneTiles(ch.Tiles)
	}
	// A modification supersedes whatever the save file held.
	delete(s.savedCache, k)
	s.checkCacheGrowthLocked()
}

func (s *Store) IsModified(k ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.modified[k]
	return ok
}

// InsertIfAbsent publishes tiles for k, taking ownership of the slice.
// An existing entry wins and the new data is dropped.
func (s *Store) InsertIfAbsent(k ChunkKey, tiles []uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(k, tiles)
}

func (s *Store) insertLocked(k ChunkKey, tiles []uint16) bool {
	if len(tiles) != s.size*s.size {
		s.log.Error("refusing chunk with wrong grid size",
			zap.Int("cx", k.CX), zap.Int("cy", k.CY),
			zap.Int("len", len(tiles)), zap.Int("want", s.size*s.size))
		return false
	}
	if _, ok := s.chunks[k]; ok {
		return false
	}
	s.chunks[k] = newChunk(k, s.size, tiles)
	return true
}

// Evict drops k from the resident map and the modified set. Its cached
// grids stay so a later request restores the edits.
func (s *Store) Evict(k ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[k]; !ok {
		return false
	}
	delete(s.chunks, k)
	delete(s.modified, k)
	return true
}

// Digest returns the tile digest of a resident chunk.
func (s *Store) Digest(k ChunkKey) ([32]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chunks[k]
	if !ok {
		return [32]byte{}, false
	}
	return ch.Digest(), true
}

// Grid returns a copy of a resident chunk's tiles.
func (s *Store) Grid(k ChunkKey) ([]uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chunks[k]
	if !ok {
		return nil, false
	}
	return cloneTiles(ch.Tiles), true
}
