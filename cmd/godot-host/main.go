package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daehyeonmun2021/react-native-godot/internal/api"
	"github.com/daehyeonmun2021/react-native-godot/internal/config"
	"github.com/daehyeonmun2021/react-native-godot/internal/engine"
	"github.com/daehyeonmun2021/react-native-godot/internal/runtime"
	"github.com/daehyeonmun2021/react-native-godot/internal/runtime/headless"
	"github.com/daehyeonmun2021/react-native-godot/internal/store"
	"github.com/daehyeonmun2021/react-native-godot/internal/telemetry"
)

const closeTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("godot-host: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.Level())

	logger.Info("godot-host: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"driver", cfg.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "godot-host", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := runtime.NewRegistry()
	reg.Register(headless.Driver, headless.Factory)
	if cfg.Driver != runtime.DriverAuto {
		if err := reg.SetDefault(cfg.Driver); err != nil {
			logger.Error("configured driver unavailable", "driver", cfg.Driver, "error", err)
		}
	}

	host := engine.NewHost(reg,
		engine.WithLogger(logger),
		engine.WithStore(db),
		engine.WithQueueSize(cfg.QueueSize),
		engine.WithFrameInterval(cfg.FrameInterval),
	)
	if err := host.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := host.Close(closeCtx); err != nil {
			logger.Error("engine close failed", "error", err)
		}
	}()

	var opts []api.Option
	if cfg.EnableCrash {
		logger.Warn("crash endpoint enabled")
		opts = append(opts, api.WithCrashEndpoint())
	}
	srv := api.NewServer(cfg.ListenAddr, host, db, logger, opts...)

	return srv.Run(ctx)
}
