package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tileworld.ai/internal/persistence/indexdb"
	"tileworld.ai/internal/sim/catalogs"
	"tileworld.ai/internal/sim/tuning"
	"tileworld.ai/internal/sim/world"
	"tileworld.ai/internal/sim/world/terrain/stream"
)

type runtimeIndex interface {
	stream.Sink
	world.SaveRecorder
	Close() error
	Flush(ctx context.Context) error
	UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "world.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported TW_INDEX_BACKEND: %s", backend)
	}
}
