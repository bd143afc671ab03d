package log

import (
	"encoding/json"
	"path/filepath"

	"tileworld.ai/internal/sim/world"
)

// EditLogger writes one compressed JSONL entry per tile change.
type EditLogger struct{ w *JSONLZstdWriter }

func NewEditLogger(dataDir string) *EditLogger {
	return &EditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "edits"), "edits")}
}

func (l *EditLogger) WriteEdit(e world.EditEntry) error { return l.w.Write(e) }
func (l *EditLogger) Close() error                      { return l.w.Close() }

// ReadEdits replays every edit logged under dataDir in file order.
func ReadEdits(dataDir string, fn func(world.EditEntry) error) error {
	files, err := Files(filepath.Join(dataDir, "edits"), "edits")
	if err != nil {
		return err
	}
	for _, path := range files {
		err := ReadJSONL(path, func(raw json.RawMessage) error {
			var e world.EditEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
