package store

// TryQueue records k as queued unless it is already resident, in flight
// or queued. The caller enqueues the request only when it returns true.
func (s *Store) TryQueue(k ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[k]; ok {
		return false
	}
	if _, ok := s.inflight[k]; ok {
		return false
	}
	if _, ok := s.queued[k]; ok {
		return false
	}
	s.queued[k] = struct{}{}
	return true
}

// Unqueue forgets a queued request that will never run.
func (s *Store) Unqueue(k ChunkKey) {
	s.mu.Lock()
	delete(s.queued, k)
	s.mu.Unlock()
}

func (s *Store) IsPending(k ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, q := s.queued[k]
	_, f := s.inflight[k]
	return q || f
}

// BeginGeneration is the check-and-set a worker performs before doing any
// work. It fails if k is resident or another worker already holds it. The
// returned epoch must be passed to FinishGeneration or AbandonGeneration.
func (s *Store) BeginGeneration(k ChunkKey) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queued, k)
	if _, ok := s.chunks[k]; ok {
		return 0, false
	}
	if _, ok := s.inflight[k]; ok {
		return 0, false
	}
	s.inflight[k] = s.epoch
	return s.epoch, true
}

// holdsLocked reports whether epoch still owns the in-flight marker of k.
func (s *Store) holdsLocked(k ChunkKey, epoch uint64) bool {
	e, ok := s.inflight[k]
	return ok && e == epoch && epoch == s.epoch
}

// FinishGeneration publishes tiles if k is still absent and clears the
// in-flight marker. A stale epoch changes nothing.
func (s *Store) FinishGeneration(k ChunkKey, epoch uint64, tiles []uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsLocked(k, epoch) {
		return false
	}
	delete(s.inflight, k)
	if !s.insertLocked(k, tiles) {
		return false
	}
	// A chunk brought back from the modified cache is still modified.
	if _, ok := s.modifiedCache[k]; ok {
		s.modified[k] = struct{}{}
	}
	return true
}

// AbandonGeneration clears the in-flight marker without publishing. A
// stale epoch changes nothing.
func (s *Store) AbandonGeneration(k ChunkKey, epoch uint64) {
	s.mu.Lock()
	if s.holdsLocked(k, epoch) {
		delete(s.inflight, k)
	}
	s.mu.Unlock()
}

// Cached returns a copy of the retained grid for k, preferring the
// modified cache over the saved one.
func (s *Store) Cached(k ChunkKey) ([]uint16, Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.modifiedCache[k]; ok {
		return cloneTiles(t), SourceModified, true
	}
	if t, ok := s.savedCache[k]; ok {
		return cloneTiles(t), SourceSaved, true
	}
	return nil, "", false
}

func (s *Store) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
