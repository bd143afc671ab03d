package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	persistlog "tileworld.ai/internal/persistence/log"
	"tileworld.ai/internal/sim/catalogs"
	"tileworld.ai/internal/sim/tuning"
	"tileworld.ai/internal/sim/world"
)

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		savePath   = flag.String("save", "", "save file (default: <data>/world.json.zst)")
		seed       = flag.Int64("seed", 0, "world seed for a fresh world (0: tuning seed)")
		workers    = flag.Int("workers", 0, "generation workers (0: tuning value)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index of saves and generations")
		logDev     = flag.Bool("log_dev", false, "human-readable development logging")

		walkSteps = flag.Int("walk_steps", 0, "viewer steps to walk before exiting (0: until signalled)")
		walkStep  = flag.Float64("walk_step", 4, "tiles moved per step")
		stepEvery = flag.Duration("step_every", 100*time.Millisecond, "delay between viewer steps")
		viewW     = flag.Int("view_w", 64, "viewport width in tiles")
		viewH     = flag.Int("view_h", 36, "viewport height in tiles")
		autosave  = flag.Duration("autosave", time.Minute, "autosave interval (0 disables)")
	)
	flag.Parse()

	logger, err := newLogger(*logDev)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, runConfig{
		ConfigDir:  *configDir,
		DataDir:    *dataDir,
		TuningPath: *tuningPath,
		SavePath:   *savePath,
		Seed:       *seed,
		Workers:    *workers,
		DisableDB:  *disableDB,
		WalkSteps:  *walkSteps,
		WalkStep:   *walkStep,
		StepEvery:  *stepEvery,
		ViewW:      *viewW,
		ViewH:      *viewH,
		Autosave:   *autosave,
	}); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type runConfig struct {
	ConfigDir  string
	DataDir    string
	TuningPath string
	SavePath   string
	Seed       int64
	Workers    int
	DisableDB  bool

	WalkSteps int
	WalkStep  float64
	StepEvery time.Duration
	ViewW     int
	ViewH     int
	Autosave  time.Duration
}

func run(logger *zap.Logger, cfg runConfig) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return err
	}

	tp := strings.TrimSpace(cfg.TuningPath)
	if tp == "" {
		tp = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		logger.Info("tuning not found; using defaults", zap.String("path", tp))
		tune = tuning.Defaults()
	}
	if cfg.Seed != 0 {
		tune.Seed = cfg.Seed
	}
	if cfg.Workers > 0 {
		tune.Workers = cfg.Workers
	}

	save := strings.TrimSpace(cfg.SavePath)
	if save == "" {
		save = filepath.Join(cfg.DataDir, "world.json.zst")
	}

	idx, err := openRuntimeIndex(cfg.DataDir, cfg.DisableDB)
	if err != nil {
		return err
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Warn("index backend: upsert catalogs", zap.Error(err))
		}
	}

	edits := persistlog.NewEditLogger(cfg.DataDir)
	defer edits.Close()

	wcfg := world.Config{
		Tuning:   tune,
		Catalogs: cats,
		Logger:   logger,
		Edits:    edits,
	}
	if idx != nil {
		wcfg.Generations = idx
		wcfg.Saves = idx
	}
	w, err := world.New(wcfg)
	if err != nil {
		return err
	}

	pos := w.Spawn()
	if _, statErr := os.Stat(save); statErr == nil {
		p, err := w.Load(save)
		if err != nil {
			logger.Error("load save; starting fresh", zap.String("path", save), zap.Error(err))
		} else {
			pos = p
			logger.Info("resumed", zap.String("path", save), zap.Int64("seed", w.Seed()))
		}
	}

	h, err := w.StartWorkers(tune.Workers, w.Seed())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	walkErr := walk(ctx, logger, w, pos, cfg, save)

	if !w.StopWorkers(h) {
		logger.Warn("workers did not stop in time")
	}
	if err := w.Save(save); err != nil {
		return errors.Join(walkErr, err)
	}
	logger.Info("saved", zap.String("path", save))
	if idx != nil {
		fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := idx.Flush(fctx); err != nil {
			logger.Warn("index backend: flush", zap.Error(err))
		}
	}
	return walkErr
}

// walk moves the viewer rightwards along the surface, streaming chunks as
// it goes, until the step count runs out or ctx is cancelled.
func walk(ctx context.Context, logger *zap.Logger, w *world.World, pos world.Position, cfg runConfig, save string) error {
	step := time.NewTicker(cfg.StepEvery)
	defer step.Stop()

	var saves <-chan time.Time
	if cfg.Autosave > 0 {
		t := time.NewTicker(cfg.Autosave)
		defer t.Stop()
		saves = t.C
	}

	for i := 0; cfg.WalkSteps <= 0 || i < cfg.WalkSteps; i++ {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			return nil
		case <-saves:
			if err := w.Save(save); err != nil {
				logger.Error("autosave", zap.Error(err))
			}
			i--
			continue
		case <-step.C:
		}

		pos.X += cfg.WalkStep
		tx, _ := pos.Tile()
		pos.Y = float64(w.SurfaceAt(tx) - 1)

		active, err := w.Update(pos, cfg.ViewW, cfg.ViewH)
		if err != nil {
			return err
		}
		if i%50 == 0 {
			st := w.Stats()
			logger.Info("viewer",
				zap.Float64("x", pos.X),
				zap.Float64("y", pos.Y),
				zap.Int("active", len(active)),
				zap.Int("resident", st.Store.Resident),
				zap.Int("queued", st.Store.Queued),
				zap.Int("in_flight", st.Store.InFlight),
			)
		}
	}

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := w.WaitIdle(wctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("wait idle", zap.Error(err))
	}
	return nil
}
