package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileworld.ai/internal/persistence/snapshot"
)

func TestBackupSaveCopiesAndWritesMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.json")
	save := snapshot.New(42, 16, snapshot.Player{})
	require.NoError(t, snapshot.Write(path, save))

	dst, ok, err := BackupSave(path, 3)
	require.NoError(t, err)
	require.True(t, ok)

	want, _ := os.ReadFile(path)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(dst), "meta.json"))
	require.NoError(t, err)
	var meta BackupMeta
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, save.SaveID, meta.SaveID)
	assert.Equal(t, int64(42), meta.Seed)
	assert.Equal(t, "world.json", meta.File)
}

func TestBackupSaveMissingIsNoop(t *testing.T) {
	_, ok, err := BackupSave(filepath.Join(t.TempDir(), "world.json"), 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackupSavePrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.json")
	require.NoError(t, os.WriteFile(path, []byte("not a save"), 0o644))

	for i := 0; i < 5; i++ {
		_, ok, err := BackupSave(path, 2)
		require.NoError(t, err)
		require.True(t, ok)
		time.Sleep(time.Millisecond)
	}
	dirs, err := Backups(path)
	require.NoError(t, err)
	assert.Len(t, dirs, 2)
}

func TestBackupsArePerSave(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	_, ok, err := BackupSave(b, 1)
	require.NoError(t, err)
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		_, ok, err := BackupSave(a, 1)
		require.NoError(t, err)
		require.True(t, ok)
		time.Sleep(time.Millisecond)
	}

	aDirs, err := Backups(a)
	require.NoError(t, err)
	assert.Len(t, aDirs, 1)
	bDirs, err := Backups(b)
	require.NoError(t, err)
	require.Len(t, bDirs, 1)
	got, err := os.ReadFile(filepath.Join(bDirs[0], "b.json"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}
