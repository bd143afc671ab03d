package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const air = 0

func filled(v uint16) []uint16 {
	out := make([]uint16, 16*16)
	for i := range out {
		out[i] = v
	}
	return out
}

func newTestStore(t *testing.T) *Store {
	return New(16, air, 0, zaptest.NewLogger(t))
}

func TestLocateNegative(t *testing.T) {
	s := newTestStore(t)
	k, lx, ly := s.Locate(-1, -1)
	assert.Equal(t, ChunkKey{CX: -1, CY: -1}, k)
	assert.Equal(t, 15, lx)
	assert.Equal(t, 15, ly)

	k, lx, ly = s.Locate(-16, 16)
	assert.Equal(t, ChunkKey{CX: -1, CY: 1}, k)
	assert.Equal(t, 0, lx)
	assert.Equal(t, 0, ly)
}

func TestSwapTileReturnsReplacedCode(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: 0, CY: 0}
	require.True(t, s.InsertIfAbsent(k, filled(2)))

	prev, changed := s.SwapTile(3, 3, 9)
	assert.True(t, changed)
	assert.Equal(t, uint16(2), prev)

	prev, changed = s.SwapTile(3, 3, 9)
	assert.False(t, changed)
	assert.Equal(t, uint16(9), prev)

	prev, changed = s.SwapTile(100, 100, 9)
	assert.False(t, changed)
	assert.Equal(t, uint16(air), prev)
}

func TestGetSetNonResident(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, uint16(air), s.GetTile(5, 5))
	assert.False(t, s.SetTile(5, 5, 3))
	assert.Equal(t, uint16(air), s.GetTile(5, 5))
}

func TestSetTileMarksModified(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: -1, CY: -1}
	require.True(t, s.InsertIfAbsent(k, filled(2)))

	assert.False(t, s.SetTile(-1, -1, 2), "unchanged write")
	assert.False(t, s.IsModified(k))

	require.True(t, s.SetTile(-1, -1, 7))
	assert.Equal(t, uint16(7), s.GetTile(-1, -1))
	assert.True(t, s.IsModified(k))

	grid, ok := s.Grid(k)
	require.True(t, ok)
	assert.Equal(t, uint16(7), grid[15*16+15])

	cached, src, ok := s.Cached(k)
	require.True(t, ok)
	assert.Equal(t, SourceModified, src)
	assert.Equal(t, grid, cached)
}

func TestInsertIfAbsentKeepsExisting(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: 0, CY: 0}
	require.True(t, s.InsertIfAbsent(k, filled(1)))
	assert.False(t, s.InsertIfAbsent(k, filled(9)))
	assert.Equal(t, uint16(1), s.GetTile(3, 3))
	assert.False(t, s.InsertIfAbsent(ChunkKey{CX: 1}, make([]uint16, 10)))
}

func TestEvictRetainsModifiedCache(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: 2, CY: 0}
	require.True(t, s.InsertIfAbsent(k, filled(1)))
	require.True(t, s.SetTile(33, 4, 5))
	require.True(t, s.Evict(k))
	assert.False(t, s.Evict(k))

	assert.False(t, s.IsResident(k))
	assert.False(t, s.IsModified(k))
	cached, src, ok := s.Cached(k)
	require.True(t, ok)
	assert.Equal(t, SourceModified, src)
	assert.Equal(t, uint16(5), cached[4*16+1])
}

func TestMarkModifiedIdempotent(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: 0, CY: 1}
	assert.False(t, s.MarkModified(k))
	require.True(t, s.InsertIfAbsent(k, filled(3)))
	assert.True(t, s.MarkModified(k))
	assert.True(t, s.MarkModified(k))
	st := s.Stats()
	assert.Equal(t, 1, st.Modified)
	assert.Equal(t, 1, st.ModifiedCache)
}

func TestGenerationBookkeeping(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: 4, CY: -4}
	require.True(t, s.TryQueue(k))
	assert.False(t, s.TryQueue(k))
	assert.True(t, s.IsPending(k))

	epoch, ok := s.BeginGeneration(k)
	require.True(t, ok)
	_, ok = s.BeginGeneration(k)
	assert.False(t, ok)
	assert.False(t, s.TryQueue(k))
	assert.Equal(t, 1, s.InFlight())

	require.True(t, s.FinishGeneration(k, epoch, filled(4)))
	assert.Equal(t, 0, s.InFlight())
	assert.False(t, s.TryQueue(k))
	_, ok = s.BeginGeneration(k)
	assert.False(t, ok)
	assert.False(t, s.IsPending(k))
}

func TestResetInvalidatesRunningGeneration(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: 0, CY: 0}
	old, ok := s.BeginGeneration(k)
	require.True(t, ok)

	s.Reset()
	assert.Equal(t, 0, s.InFlight())
	cur, ok := s.BeginGeneration(k)
	require.True(t, ok)
	assert.NotEqual(t, old, cur)

	// The pre-reset worker finishing late must not touch the new marker.
	s.AbandonGeneration(k, old)
	assert.True(t, s.IsPending(k))
	assert.False(t, s.TryQueue(k))
	_, ok = s.BeginGeneration(k)
	assert.False(t, ok)

	assert.False(t, s.FinishGeneration(k, old, filled(7)))
	assert.False(t, s.IsResident(k))
	assert.Equal(t, 1, s.InFlight())

	require.True(t, s.FinishGeneration(k, cur, filled(3)))
	assert.Equal(t, uint16(3), s.GetTile(0, 0))
	assert.Equal(t, 0, s.InFlight())
}

func TestImportInvalidatesRunningGeneration(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: 2, CY: 2}
	old, ok := s.BeginGeneration(k)
	require.True(t, ok)

	require.NoError(t, s.Import(nil, nil))
	assert.Equal(t, 0, s.InFlight())
	assert.False(t, s.FinishGeneration(k, old, filled(1)))
	assert.False(t, s.IsResident(k))
	assert.True(t, s.TryQueue(k))
}

func TestFinishGenerationDiscardsWhenResident(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{}
	epoch, ok := s.BeginGeneration(k)
	require.True(t, ok)
	require.True(t, s.InsertIfAbsent(k, filled(1)))
	assert.False(t, s.FinishGeneration(k, epoch, filled(2)))
	assert.Equal(t, uint16(1), s.GetTile(0, 0))
	assert.Equal(t, 0, s.InFlight())
}

func TestConcurrentBeginGenerationSingleWinner(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{CX: 9, CY: 9}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.BeginGeneration(k); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestExportImport(t *testing.T) {
	s := newTestStore(t)
	a := ChunkKey{CX: 0, CY: 0}
	b := ChunkKey{CX: 1, CY: -2}
	require.True(t, s.InsertIfAbsent(a, filled(1)))
	require.True(t, s.InsertIfAbsent(b, filled(2)))
	require.True(t, s.SetTile(16, -32, 8))
	require.True(t, s.Evict(b))

	resident, retained := s.Export()
	require.Len(t, resident, 1)
	require.Len(t, retained, 1)
	assert.Equal(t, uint16(8), retained[b][0])

	other := newTestStore(t)
	require.NoError(t, other.Import(resident, retained))
	assert.True(t, other.IsResident(a))
	assert.False(t, other.IsResident(b))
	assert.False(t, other.IsModified(a))

	cached, src, ok := other.Cached(b)
	require.True(t, ok)
	assert.Equal(t, SourceSaved, src)
	assert.Equal(t, uint16(8), cached[0])

	// A write supersedes the saved copy.
	require.True(t, other.SetTile(0, 0, 6))
	_, src, _ = other.Cached(a)
	assert.Equal(t, SourceModified, src)
}

func TestImportRejectsBadGrid(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.InsertIfAbsent(ChunkKey{}, filled(1)))
	err := s.Import(map[ChunkKey][]uint16{{CX: 3}: make([]uint16, 5)}, nil)
	require.Error(t, err)
	assert.True(t, s.IsResident(ChunkKey{}), "state untouched on error")
}

func TestDigestTracksEdits(t *testing.T) {
	s := newTestStore(t)
	k := ChunkKey{}
	require.True(t, s.InsertIfAbsent(k, filled(1)))
	d1, ok := s.Digest(k)
	require.True(t, ok)
	assert.Equal(t, DigestTiles(filled(1)), d1)
	require.True(t, s.SetTile(1, 1, 2))
	d2, _ := s.Digest(k)
	assert.NotEqual(t, d1, d2)
}

func TestResidentKeysSorted(t *testing.T) {
	s := newTestStore(t)
	for _, k := range []ChunkKey{{CX: 2, CY: 1}, {CX: -1, CY: 5}, {CX: 2, CY: -3}} {
		require.True(t, s.InsertIfAbsent(k, filled(0)))
	}
	assert.Equal(t, []ChunkKey{{CX: -1, CY: 5}, {CX: 2, CY: -3}, {CX: 2, CY: 1}}, s.ResidentKeys())
}
