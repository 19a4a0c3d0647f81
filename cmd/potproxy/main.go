// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Command potproxy is the telemetry message broker proxy: it
// multiplexes external request/reply and publish/subscribe traffic
// across a fleet of per-store backend worker processes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/potproxy/potproxy/internal/config"
	"github.com/potproxy/potproxy/internal/configcache"
	"github.com/potproxy/potproxy/internal/server"
	"github.com/potproxy/potproxy/internal/socketx"
	"github.com/potproxy/potproxy/internal/supervisor"
	"github.com/potproxy/potproxy/lib/clock"
	"github.com/potproxy/potproxy/lib/process"
	"github.com/potproxy/potproxy/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the potproxy YAML configuration file (required)")
	overridesPath := flag.String("overrides", "", "optional path to a JSONC per-store overrides file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *configPath == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if *overridesPath != "" {
		overrides, err := config.LoadOverrides(*overridesPath)
		if err != nil {
			return err
		}
		for name, override := range overrides {
			logger.Info("store override loaded", "store", name, "owner", override.Owner)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, clock.Real(), logger)
}

func serve(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) error {
	router := socketx.NewRequestRouter(cfg.RequestSocketPath, logger)
	broadcaster := socketx.NewPublishBroadcaster(cfg.PublishSocketPath, logger)
	cache := configcache.New()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); logFatalExit(router.Serve(ctx), "request router", logger) }()
	go func() { defer wg.Done(); logFatalExit(broadcaster.Serve(ctx), "publish broadcaster", logger) }()

	stores := make(map[string]server.StoreRelay, len(cfg.Stores))
	supervisors := make([]*supervisor.Supervisor, 0, len(cfg.Stores))
	for name, storeCfg := range cfg.Stores {
		sup := supervisor.New(name, storeCfg.Binary, storeCfg.Args, cfg.EphemeralDir, router, broadcaster, cache, clk, logger)
		stores[name] = sup.Relay()
		supervisors = append(supervisors, sup)

		wg.Add(1)
		go func(sup *supervisor.Supervisor) {
			defer wg.Done()
			if err := sup.Run(ctx); err != nil {
				logger.Error("supervisor exited", "error", err)
			}
		}(sup)
	}

	srv := server.New(router, cache, stores, clk, logger)
	wg.Add(1)
	go func() { defer wg.Done(); srv.Run() }()

	logger.Info("potproxy started", "stores", len(cfg.Stores), "request_socket", cfg.RequestSocketPath, "publish_socket", cfg.PublishSocketPath)

	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()
	return nil
}

// logFatalExit logs a non-shutdown-related error from a long-running
// socket server. A nil error (clean shutdown via context cancellation)
// produces no log line.
func logFatalExit(err error, component string, logger *slog.Logger) {
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component exited with error", "component", component, "error", err)
	}
}
