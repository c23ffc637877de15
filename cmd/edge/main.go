package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/springcloudnative/edge-service/internal/config"
	"github.com/springcloudnative/edge-service/internal/gateway"
	"github.com/springcloudnative/edge-service/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/edge.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Edge Service %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("starting edge service",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.Int("routes", len(cfg.Routes)))

	gw, err := gateway.New(cfg)
	if err != nil {
		logging.Error("failed to assemble gateway", zap.Error(err))
		os.Exit(1)
	}

	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		logging.Error("failed to create config watcher", zap.Error(err))
		os.Exit(1)
	}
	watcher.OnChange(func(newCfg *config.Config) {
		if err := gw.Reload(newCfg); err != nil {
			logging.Error("config reload failed, keeping previous routes", zap.Error(err))
		}
	})
	if err := watcher.Start(); err != nil {
		logging.Warn("config watching disabled", zap.Error(err))
	}
	defer watcher.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := gateway.NewServer(cfg, gw)
	if err := srv.Run(ctx); err != nil {
		logging.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logging.Info("shutdown complete")
}
