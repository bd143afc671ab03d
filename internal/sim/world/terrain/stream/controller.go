package stream

import (
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"tileworld.ai/internal/sim/world/logic/mathx"
	"tileworld.ai/internal/sim/world/terrain/store"
)

// Enqueuer accepts chunk generation requests.
type Enqueuer interface {
	Enqueue(k store.ChunkKey) bool
}

// Controller decides which chunks to request, keep and report around a
// viewer. It never generates anything itself.
type Controller struct {
	store *store.Store
	log   *zap.Logger

	mu     sync.Mutex
	origin store.ChunkKey
}

// NewController pins origin: UnloadDistant never evicts it.
func NewController(st *store.Store, origin store.ChunkKey, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{store: st, origin: origin, log: logger}
}

func (c *Controller) Origin() store.ChunkKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin
}

func (c *Controller) SetOrigin(k store.ChunkKey) {
	c.mu.Lock()
	c.origin = k
	c.mu.Unlock()
}

// NearestFirst orders keys by Chebyshev then Manhattan distance from
// center, breaking ties by row and then column.
func NearestFirst(center store.ChunkKey, keys []store.ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		da := mathx.Chebyshev(a.CX, a.CY, center.CX, center.CY)
		db := mathx.Chebyshev(b.CX, b.CY, center.CX, center.CY)
		if da != db {
			return da < db
		}
		ma := mathx.Manhattan(a.CX, a.CY, center.CX, center.CY)
		mb := mathx.Manhattan(b.CX, b.CY, center.CX, center.CY)
		if ma != mb {
			return ma < mb
		}
		if a.CY != b.CY {
			return a.CY < b.CY
		}
		return a.CX < b.CX
	})
}

// EnsureLoadedAround enqueues every chunk within radius (Chebyshev) of the
// chunk containing (wx, wy) that is neither resident nor pending, nearest
// first. It returns the number of requests accepted.
func (c *Controller) EnsureLoadedAround(q Enqueuer, wx, wy, radius int) int {
	if radius < 0 {
		radius = 0
	}
	center := c.store.ChunkOf(wx, wy)
	want := make([]store.ChunkKey, 0, (2*radius+1)*(2*radius+1))
	for cy := center.CY - radius; cy <= center.CY+radius; cy++ {
		for cx := center.CX - radius; cx <= center.CX+radius; cx++ {
			k := store.ChunkKey{CX: cx, CY: cy}
			if c.store.IsResident(k) || c.store.IsPending(k) {
				continue
			}
			want = append(want, k)
		}
	}
	NearestFirst(center, want)
	n := 0
	for _, k := range want {
		if q.Enqueue(k) {
			n++
		}
	}
	if n > 0 {
		c.log.Debug("requested chunks", zap.Int("count", n), zap.Int("cx", center.CX), zap.Int("cy", center.CY))
	}
	return n
}

// UnloadDistant evicts resident chunks farther than keep (Chebyshev) from
// the chunk containing (wx, wy), except the origin chunk.
func (c *Controller) UnloadDistant(wx, wy, keep int) []store.ChunkKey {
	center := c.store.ChunkOf(wx, wy)
	origin := c.Origin()
	var out []store.ChunkKey
	for _, k := range c.store.ResidentKeys() {
		if k == origin {
			continue
		}
		if mathx.Chebyshev(k.CX, k.CY, center.CX, center.CY) <= keep {
			continue
		}
		if c.store.Evict(k) {
			out = append(out, k)
		}
	}
	if len(out) > 0 {
		c.log.Debug("evicted chunks", zap.Int("count", len(out)), zap.Int("cx", center.CX), zap.Int("cy", center.CY))
	}
	return out
}

// ActiveChunks lists resident chunks overlapping a viewport of viewW by
// viewH tiles centered on (wx, wy) and scaled by multiplier, nearest first
// and at most limit entries. limit <= 0 means no cap.
func (c *Controller) ActiveChunks(wx, wy, viewW, viewH int, multiplier float64, limit int) []store.ChunkKey {
	if multiplier <= 0 {
		multiplier = 1
	}
	hw := int(math.Ceil(float64(viewW) * multiplier / 2))
	hh := int(math.Ceil(float64(viewH) * multiplier / 2))
	lo := c.store.ChunkOf(wx-hw, wy-hh)
	hi := c.store.ChunkOf(wx+hw, wy+hh)
	center := c.store.ChunkOf(wx, wy)

	var out []store.ChunkKey
	for _, k := range c.store.ResidentKeys() {
		if k.CX < lo.CX || k.CX > hi.CX || k.CY < lo.CY || k.CY > hi.CY {
			continue
		}
		out = append(out, k)
	}
	NearestFirst(center, out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
