package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uhyunpark/obmonitor/params"
	"github.com/uhyunpark/obmonitor/pkg/api"
	"github.com/uhyunpark/obmonitor/pkg/app/monitor"
	"github.com/uhyunpark/obmonitor/pkg/metrics"
	"github.com/uhyunpark/obmonitor/pkg/storage"
	"github.com/uhyunpark/obmonitor/pkg/util"
)

func main() {
	// OBM_CONFIG points at a YAML file; otherwise .env + environment
	cfg := params.LoadFromEnv("")
	if path := os.Getenv("OBM_CONFIG"); path != "" {
		var err error
		if cfg, err = params.LoadFromFile(path); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	// ---- Storage ----
	fsync, err := storage.ParseFsyncMode(cfg.Storage.Fsync)
	if err != nil {
		sugar.Fatalw("invalid_fsync_mode", "err", err)
	}
	store, err := storage.Open(storage.Options{
		DataDir:       cfg.Storage.DataDir,
		Fsync:         fsync,
		FsyncInterval: cfg.Storage.FsyncInterval,
		CacheSize:     cfg.Storage.CacheSize,
		Metrics:       metrics.StorageHook{},
	})
	if err != nil {
		sugar.Fatalw("storage_open_failed", "dir", cfg.Storage.DataDir, "err", err)
	}
	defer store.Close()

	var wal storage.WAL = storage.NewNopWAL()
	if cfg.Storage.WALFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.WALFile), 0755); err != nil {
			sugar.Fatalw("wal_dir_failed", "err", err)
		}
		fw, err := storage.NewFileWAL(cfg.Storage.WALFile)
		if err != nil {
			sugar.Fatalw("wal_open_failed", "path", cfg.Storage.WALFile, "err", err)
		}
		defer fw.Close()
		wal = fw
	}

	// ---- App ----
	app, err := monitor.NewApp(store, util.RealClock{}, wal, sugar, monitor.Config{
		MaxCapacity:   cfg.Node.MaxCapacity,
		MaxBatchBytes: cfg.Node.MaxBatchBytes,
		BatchInterval: cfg.Node.BatchInterval,
	})
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}
	head, _ := app.Head()
	sugar.Infow("node_starting",
		"height", head.Height,
		"state_root", head.StateRoot.Hex(),
		"batch_interval_ms", cfg.Node.BatchInterval.Milliseconds(),
		"max_capacity", cfg.Node.MaxCapacity,
		"fsync", cfg.Storage.Fsync)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(app, sugar, cfg.API.CORSOrigins)
	go func() {
		if err := apiServer.Start(ctx, cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// ---- Synthetic load (optional) ----
	// Enable with: OBM_TXGEN=true OBM_TXGEN_MODE=default|high
	if os.Getenv("OBM_TXGEN") == "true" {
		feedCfg := monitor.DefaultFeederConfig()
		if os.Getenv("OBM_TXGEN_MODE") == "high" {
			feedCfg = monitor.HighLoadConfig()
		}
		if feedCfg.Capacity > cfg.Node.MaxCapacity {
			feedCfg.Capacity = cfg.Node.MaxCapacity
		}
		cancelFeeder, err := monitor.StartFeeder(ctx, app, feedCfg, sugar)
		if err != nil {
			sugar.Fatalw("feeder_start_failed", "err", err)
		}
		defer cancelFeeder()
	}

	// ---- Batch loop ----
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	sugar.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	<-done

	head, _ = app.Head()
	sugar.Infow("node_stopped", "height", head.Height)
}
