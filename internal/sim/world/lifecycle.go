package world

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tileworld.ai/internal/sim/world/terrain/stream"
)

// StartWorkers launches count generation workers for seed. A seed other
// than the current one reseeds the world and drops all chunks and caches.
func (w *World) StartWorkers(count int, seed int64) (*stream.Coordinator, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.workers != nil {
		return nil, ErrWorkersRunning
	}
	if seed != w.seed {
		w.log.Info("reseeding world", zap.Int64("from", w.seed), zap.Int64("to", seed))
		w.store.Reset()
		if err := w.reseedLocked(seed); err != nil {
			return nil, err
		}
		w.player = w.spawnLocked()
	}
	if count <= 0 {
		count = w.tune.Workers
	}
	w.workers = stream.Start(w.store, w.strategy, w.seed, stream.Options{
		Workers:       count,
		QueueCapacity: w.tune.QueueCapacity,
		PollInterval:  time.Duration(w.tune.PollIntervalMs) * time.Millisecond,
		RatePerSec:    w.tune.GenRatePerSec,
		Sink:          w.generations,
		Logger:        w.log.Named("workers"),
	})
	return w.workers, nil
}

// StopWorkers stops h and reports whether it finished within the
// configured timeout.
func (w *World) StopWorkers(h *stream.Coordinator) bool {
	if h == nil {
		return true
	}
	ok := h.Stop(time.Duration(w.tune.StopTimeoutMs) * time.Millisecond)
	w.mu.Lock()
	if w.workers == h {
		w.workers = nil
	}
	w.mu.Unlock()
	return ok
}

func (w *World) running() *stream.Coordinator {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.workers
}

// EnsureLoadedAround requests every chunk within radius of pos.
func (w *World) EnsureLoadedAround(pos Position, radius int) (int, error) {
	c := w.running()
	if c == nil {
		return 0, ErrWorkersStopped
	}
	x, y := pos.Tile()
	return w.ctl.EnsureLoadedAround(c, x, y, radius), nil
}

// UnloadDistant evicts resident chunks farther than keep from pos; the
// origin chunk always stays.
func (w *World) UnloadDistant(pos Position, keep int) []ChunkKey {
	x, y := pos.Tile()
	return w.ctl.UnloadDistant(x, y, keep)
}

// ActiveChunks lists resident chunks inside the viewport scaled by
// multiplier, nearest first, at most limit entries.
func (w *World) ActiveChunks(pos Position, viewW, viewH int, multiplier float64, limit int) []ChunkKey {
	x, y := pos.Tile()
	return w.ctl.ActiveChunks(x, y, viewW, viewH, multiplier, limit)
}

// Update moves the viewer: it requests chunks within the load radius,
// evicts those beyond the unload distance and returns the active set for
// the viewport using the configured multiplier and cap.
func (w *World) Update(pos Position, viewW, viewH int) ([]ChunkKey, error) {
	w.SetPlayer(pos)
	if _, err := w.EnsureLoadedAround(pos, w.tune.LoadRadius); err != nil {
		return nil, err
	}
	w.UnloadDistant(pos, w.tune.UnloadDistance)
	return w.ActiveChunks(pos, viewW, viewH, w.tune.ViewMultiplier, w.tune.MaxActiveChunks), nil
}

// WaitIdle blocks until the running workers have nothing queued or in flight.
func (w *World) WaitIdle(ctx context.Context) error {
	c := w.running()
	if c == nil {
		return ErrWorkersStopped
	}
	return c.WaitIdle(ctx)
}
