package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.ai/internal/sim/world"
)

var _ world.EditLogger = (*EditLogger)(nil)

func TestEditLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.WriteEdit(world.EditEntry{Seed: 9, X: i, Y: -i, From: 1, To: 2}))
	}
	require.NoError(t, l.Close())

	var got []world.EditEntry
	require.NoError(t, ReadEdits(dir, func(e world.EditEntry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 3)
	assert.Equal(t, -2, got[2].Y)
	assert.Equal(t, uint16(2), got[0].To)
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "edits")
	clock := time.Date(2024, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	require.NoError(t, w.Write(map[string]int{"n": 1}))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, w.Write(map[string]int{"n": 2}))
	require.NoError(t, w.Write(map[string]int{"n": 3}))
	require.NoError(t, w.Close())

	files, err := Files(dir, "edits")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, files[0], "edits-2024-03-01-10")
	assert.Contains(t, files[1], "edits-2024-03-01-11")
}

func TestWriterReopenAppends(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		l := NewEditLogger(dir)
		require.NoError(t, l.WriteEdit(world.EditEntry{X: i}))
		require.NoError(t, l.Close())
	}
	n := 0
	require.NoError(t, ReadEdits(dir, func(world.EditEntry) error { n++; return nil }))
	assert.Equal(t, 2, n)
}
