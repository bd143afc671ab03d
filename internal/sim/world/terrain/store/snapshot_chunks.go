package store

import (
	"fmt"

	"golang.org/x/exp/maps"
)

// Export copies every resident grid and every retained grid whose chunk
// is not resident. Retained grids prefer the modified cache.
func (s *Store) Export() (resident, retained map[ChunkKey][]uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resident = make(map[ChunkKey][]uint16, len(s.chunks))
	for k, ch := range s.chunks {
		resident[k] = cloneTiles(ch.Tiles)
	}
	retained = map[ChunkKey][]uint16{}
	for k, t := range s.savedCache {
		if _, ok := s.chunks[k]; !ok {
			retained[k] = cloneTiles(t)
		}
	}
	for k, t := range s.modifiedCache {
		if _, ok := s.chunks[k]; !ok {
			retained[k] = cloneTiles(t)
		}
	}
	return resident, retained
}

// Import replaces all state with a loaded save. Resident grids become
// resident and seed the saved cache; retained grids seed the saved cache
// only. Grids are copied. Like Reset, it invalidates running generations.
func (s *Store) Import(resident, retained map[ChunkKey][]uint16) error {
	want := s.size * s.size
	for _, m := range []map[ChunkKey][]uint16{resident, retained} {
		for k, t := range m {
			if len(t) != want {
				return fmt.Errorf("chunk %d,%d: grid length %d, want %d", k.CX, k.CY, len(t), want)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	for k, t := range retained {
		s.savedCache[k] = cloneTiles(t)
	}
	for k, t := range resident {
		s.chunks[k] = newChunk(k, s.size, cloneTiles(t))
		s.savedCache[k] = cloneTiles(t)
	}
	s.checkCacheGrowthLocked()
	return nil
}

// Reset drops every chunk, cache and bookkeeping set. Generations still
// running from before the reset are ignored when they finish.
func (s *Store) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

// ModifiedKeys lists chunks edited since they became resident.
func (s *Store) ModifiedKeys() []ChunkKey {
	s.mu.Lock()
	keys := maps.Keys(s.modified)
	s.mu.Unlock()
	SortKeys(keys)
	return keys
}
