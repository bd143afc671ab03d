package world

import (
	"time"

	"go.uber.org/zap"
)

// ReadTile returns air for chunks that are not resident.
func (w *World) ReadTile(wx, wy int) uint16 {
	return w.store.GetTile(wx, wy)
}

// WriteTile reports whether the tile changed. Writes to non-resident
// chunks and unregistered codes are rejected.
func (w *World) WriteTile(wx, wy int, code uint16) bool {
	if !w.cats.Valid(code) {
		w.log.Warn("rejecting write of unregistered tile", zap.Int("x", wx), zap.Int("y", wy), zap.Uint16("code", code))
		return false
	}
	from, changed := w.store.SwapTile(wx, wy, code)
	if !changed {
		return false
	}
	if w.edits != nil {
		entry := EditEntry{
			At:   time.Now().UTC().Format(time.RFC3339Nano),
			Seed: w.Seed(),
			X:    wx,
			Y:    wy,
			From: from,
			To:   code,
		}
		if err := w.edits.WriteEdit(entry); err != nil {
			w.log.Error("edit log write failed", zap.Error(err))
		}
	}
	return true
}

// MarkModified flags a resident chunk as edited without changing a tile.
func (w *World) MarkModified(k ChunkKey) bool {
	return w.store.MarkModified(k)
}

func (w *World) IsModified(k ChunkKey) bool {
	return w.store.IsModified(k)
}
