package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"tileworld.ai/internal/persistence/snapshot"
)

type BackupMeta struct {
	SaveID    string `json:"save_id,omitempty"`
	Seed      int64  `json:"seed"`
	SavedAt   string `json:"saved_at,omitempty"`
	Source    string `json:"source"`
	File      string `json:"file"`
	CreatedAt string `json:"created_at"`
}

// BackupSave copies an existing save at path into
// `<dir>/backups/<save-name>/<unix-nanos>/` with a meta.json, then prunes
// all but the newest keep backups of that save. Other saves in the same
// directory keep their own backups. A missing save or keep <= 0 is a no-op.
func BackupSave(path string, keep int) (archivedPath string, archived bool, err error) {
	if keep <= 0 {
		return "", false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}

	root := backupRoot(path)
	now := time.Now().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%020d", now.UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if err := copyFile(path, dst); err != nil {
		return "", false, err
	}

	meta := BackupMeta{
		Source:    path,
		File:      filepath.Base(dst),
		CreatedAt: now.Format(time.RFC3339Nano),
	}
	// A corrupt save is still worth keeping; only the meta loses its ids.
	if h, err := snapshot.ReadHeader(path); err == nil {
		meta.SaveID = h.SaveID
		meta.Seed = h.Seed
		meta.SavedAt = h.SavedAt
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}

	if err := prune(root, keep); err != nil {
		return dst, true, err
	}
	return dst, true, nil
}

// Backups lists the backup directories of savePath oldest first.
func Backups(savePath string) ([]string, error) {
	return listDirs(backupRoot(savePath))
}

func backupRoot(savePath string) string {
	return filepath.Join(filepath.Dir(savePath), "backups", filepath.Base(savePath))
}

func listDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func prune(root string, keep int) error {
	dirs, err := listDirs(root)
	if err != nil {
		return err
	}
	for len(dirs) > keep {
		if err := os.RemoveAll(dirs[0]); err != nil {
			return err
		}
		dirs = dirs[1:]
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
