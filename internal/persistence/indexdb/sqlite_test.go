package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.ai/internal/sim/catalogs"
	"tileworld.ai/internal/sim/tuning"
	"tileworld.ai/internal/sim/world"
	"tileworld.ai/internal/sim/world/terrain/store"
	"tileworld.ai/internal/sim/world/terrain/stream"
)

func TestDropsWhenQueueFull(t *testing.T) {
	// No writer goroutine: the first record fills the queue.
	s := &SQLiteIndex{ch: make(chan req, 1)}

	s.RecordGeneration(stream.GenerationRecord{Key: store.ChunkKey{CX: 1}})
	s.RecordGeneration(stream.GenerationRecord{Key: store.ChunkKey{CX: 2}})
	s.RecordSave(world.SaveRecord{SaveID: "a"})

	st := s.Stats()
	assert.Equal(t, uint64(1), st.DropGenerationTotal)
	assert.Equal(t, uint64(1), st.DropSaveTotal)
	assert.Equal(t, 1, st.QueueDepth)
	assert.Equal(t, 1, st.QueueCapacity)
}

func TestRecordsAreQueryable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := time.Now()
	s.RecordGeneration(stream.GenerationRecord{Key: store.ChunkKey{CX: 0, CY: 4}, Seed: 7, Source: store.SourceGenerated, Duration: time.Millisecond, At: now})
	s.RecordGeneration(stream.GenerationRecord{Key: store.ChunkKey{CX: 1, CY: 4}, Seed: 7, Source: store.SourceGenerated, At: now})
	s.RecordGeneration(stream.GenerationRecord{Key: store.ChunkKey{CX: -1, CY: 4}, Seed: 7, Source: store.SourceModified, At: now})
	s.RecordSave(world.SaveRecord{SaveID: "old", Path: "w.json", Seed: 7, ChunkSize: 16, Chunks: 3, At: now.Add(-time.Minute)})
	s.RecordSave(world.SaveRecord{SaveID: "new", Path: "w.json", Seed: 7, ChunkSize: 16, Chunks: 5, Retained: 1, Digest: "abc", At: now})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))

	counts, err := s.GenerationCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"generated": 2, "modified": 1}, counts)

	row, ok, err := s.LatestSave(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", row.SaveID)
	assert.Equal(t, 5, row.Chunks)
	assert.Equal(t, 1, row.Retained)
	assert.Equal(t, "abc", row.Digest)
}

func TestLatestSaveEmpty(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, ok, err := s.LatestSave(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseCommitsPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := OpenSQLite(path)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		s.RecordGeneration(stream.GenerationRecord{Key: store.ChunkKey{CX: i}, Seed: 1, Source: store.SourceFallback, At: time.Now()})
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Records after close are ignored.
	s.RecordGeneration(stream.GenerationRecord{})
	require.NoError(t, s.Flush(context.Background()))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM generations WHERE source='fallback'`).Scan(&n))
	assert.Equal(t, 10, n)
}

func TestUpsertCatalogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cats := catalogs.Default()
	require.NoError(t, s.UpsertCatalogs(cats, tuning.Defaults()))
	require.NoError(t, s.UpsertCatalogs(cats, tuning.Defaults()))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n))
	assert.Equal(t, 3, n)

	var digest string
	require.NoError(t, s.db.QueryRow(`SELECT digest FROM catalogs WHERE name='blocks_palette'`).Scan(&digest))
	assert.Equal(t, cats.Blocks.PaletteDigest, digest)
}
