package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"tileworld.ai/internal/persistence/archive"
	"tileworld.ai/internal/persistence/snapshot"
	"tileworld.ai/internal/sim/world/terrain/store"
)

// Save writes resident chunks, retained edits, the viewer position and
// every subsystem blob to path. The previous file is backed up first and
// replaced atomically, so a failed save leaves it intact.
func (w *World) Save(path string) error {
	w.mu.Lock()
	seed, player := w.seed, w.player
	subs := make(map[string]Subsystem, len(w.subsystems))
	for name, s := range w.subsystems {
		subs[name] = s
	}
	blobs := make(map[string]json.RawMessage, len(w.blobs))
	for name, raw := range w.blobs {
		blobs[name] = raw
	}
	w.mu.Unlock()

	size := w.tune.ChunkSize
	doc := snapshot.New(seed, size, snapshot.Player{X: player.X, Y: player.Y})
	resident, retained := w.store.Export()
	for k, t := range resident {
		doc.Chunks[snapshot.Key(k.CX, k.CY)] = snapshot.Rows(t, size)
	}
	for k, t := range retained {
		doc.Retained[snapshot.Key(k.CX, k.CY)] = snapshot.Rows(t, size)
	}
	for name, raw := range blobs {
		doc.Subsystems[name] = raw
	}
	for name, s := range subs {
		raw, err := s.SaveState()
		if err != nil {
			w.log.Error("subsystem save failed", zap.String("subsystem", name), zap.Error(err))
			return fmt.Errorf("save subsystem %s: %w", name, err)
		}
		doc.Subsystems[name] = raw
	}

	if _, _, err := archive.BackupSave(path, w.tune.BackupsKeep); err != nil {
		w.log.Warn("save backup failed", zap.String("path", path), zap.Error(err))
	}
	if err := snapshot.Write(path, doc); err != nil {
		w.log.Error("save failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("save %s: %w", path, err)
	}

	digest := gridsDigest(resident)
	w.log.Info("world saved",
		zap.String("path", path),
		zap.String("save_id", doc.SaveID),
		zap.Int("chunks", len(resident)),
		zap.Int("retained", len(retained)),
	)
	if w.saves != nil {
		w.saves.RecordSave(SaveRecord{
			SaveID:    doc.SaveID,
			Path:      path,
			Seed:      seed,
			ChunkSize: size,
			Chunks:    len(resident),
			Retained:  len(retained),
			Digest:    digest,
			At:        time.Now().UTC(),
		})
	}
	return nil
}

// gridsDigest hashes chunk keys and tile digests in key order.
func gridsDigest(grids map[ChunkKey][]uint16) string {
	keys := maps.Keys(grids)
	store.SortKeys(keys)
	h := sha256.New()
	for _, k := range keys {
		d := store.DigestTiles(grids[k])
		h.Write([]byte(snapshot.Key(k.CX, k.CY)))
		h.Write(d[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Load replaces the world with the save at path and returns the saved
// viewer position. The file is fully parsed and checked before anything
// changes; on any failure the world is untouched and the default spawn is
// returned with the error.
func (w *World) Load(path string) (Position, error) {
	spawn := w.Spawn()
	if w.running() != nil {
		return spawn, ErrWorkersRunning
	}
	doc, err := snapshot.Read(path)
	if err != nil {
		w.log.Error("load failed", zap.String("path", path), zap.Error(err))
		return spawn, fmt.Errorf("load %s: %w", path, err)
	}
	resident, err := w.decodeGrids(doc.Chunks, doc.ChunkSize)
	if err == nil {
		var retained map[ChunkKey][]uint16
		retained, err = w.decodeGrids(doc.Retained, doc.ChunkSize)
		if err == nil {
			err = disjoint(resident, retained)
		}
		if err == nil {
			return w.apply(doc, resident, retained)
		}
	}
	w.log.Error("load failed", zap.String("path", path), zap.Error(err))
	return spawn, fmt.Errorf("load %s: %w", path, err)
}

func (w *World) apply(doc snapshot.SaveV1, resident, retained map[ChunkKey][]uint16) (Position, error) {
	w.mu.Lock()
	if doc.Seed != w.seed {
		if err := w.reseedLocked(doc.Seed); err != nil {
			defer w.mu.Unlock()
			return w.spawnLocked(), err
		}
	}
	if err := w.store.Import(resident, retained); err != nil {
		defer w.mu.Unlock()
		return w.spawnLocked(), err
	}
	w.player = Position{X: doc.Player.X, Y: doc.Player.Y}
	w.blobs = map[string]json.RawMessage{}
	pending := map[string]Subsystem{}
	for name, raw := range doc.Subsystems {
		if s, ok := w.subsystems[name]; ok {
			pending[name] = s
			continue
		}
		w.blobs[name] = raw
	}
	player := w.player
	w.mu.Unlock()

	// Subsystems may call back into the world, so they load unlocked.
	for name, s := range pending {
		if err := s.LoadState(doc.Subsystems[name]); err != nil {
			w.log.Warn("subsystem load failed", zap.String("subsystem", name), zap.Error(err))
		}
	}
	w.log.Info("world loaded",
		zap.String("save_id", doc.SaveID),
		zap.Int64("seed", doc.Seed),
		zap.Int("chunks", len(resident)),
		zap.Int("retained", len(retained)),
	)
	return player, nil
}

// disjoint rejects a chunk saved both as resident and as retained.
func disjoint(resident, retained map[ChunkKey][]uint16) error {
	for k := range retained {
		if _, ok := resident[k]; ok {
			return fmt.Errorf("%w: chunk %s is both resident and retained", snapshot.ErrMalformed, snapshot.Key(k.CX, k.CY))
		}
	}
	return nil
}

func (w *World) decodeGrids(in map[string][][]uint16, size int) (map[ChunkKey][]uint16, error) {
	if size != w.tune.ChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d, world uses %d", snapshot.ErrMalformed, size, w.tune.ChunkSize)
	}
	out := make(map[ChunkKey][]uint16, len(in))
	for key, rows := range in {
		cx, cy, err := snapshot.ParseKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", snapshot.ErrMalformed, err)
		}
		tiles, err := snapshot.Flatten(rows, size)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %v", snapshot.ErrMalformed, key, err)
		}
		for _, code := range tiles {
			if !w.cats.Valid(code) {
				return nil, fmt.Errorf("%w: chunk %s: unregistered tile %d", snapshot.ErrMalformed, key, code)
			}
		}
		k := ChunkKey{CX: cx, CY: cy}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%w: chunk %s listed twice", snapshot.ErrMalformed, key)
		}
		out[k] = tiles
	}
	return out, nil
}
