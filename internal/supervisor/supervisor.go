// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/potproxy/potproxy/internal/configcache"
	"github.com/potproxy/potproxy/internal/relay"
	"github.com/potproxy/potproxy/internal/socketx"
	"github.com/potproxy/potproxy/internal/wire"
	"github.com/potproxy/potproxy/lib/clock"
)

// restartPause is the fixed pause between a worker's exit and its
// respawn, per spec.
const restartPause = 10 * time.Second

// configFetchAttempts bounds how many times Supervisor retries the
// start-up CONFIG request against one worker incarnation before
// surfacing the failure and waiting for the next restart cycle.
const configFetchAttempts = 5

// Supervisor is C7 for one store: it owns the worker's ephemeral
// socket directory, its Publish Relay and Request Relay, and the
// worker process's spawn/restart loop.
type Supervisor struct {
	store        string
	binary       string
	args         []string
	ephemeralDir string

	router      *socketx.RequestRouter
	broadcaster *socketx.PublishBroadcaster
	cache       *configcache.Cache
	clock       clock.Clock
	logger      *slog.Logger

	duplex    *socketx.DuplexEndpoint
	collector *socketx.CollectorEndpoint
	relay     *relay.RequestRelay
	publish   *relay.PublishRelay
}

// New creates a Supervisor for store. baseDir is the configured
// ephemeral-directory root (internal/config.Config.EphemeralDir);
// router and broadcaster are the shared external sockets owned by
// the Process Controller.
func New(store, binary string, args []string, baseDir string, router *socketx.RequestRouter, broadcaster *socketx.PublishBroadcaster, cache *configcache.Cache, clk clock.Clock, logger *slog.Logger) *Supervisor {
	storeLogger := logger.With("store", store)
	dir := filepath.Join(baseDir, store)
	reqSock := filepath.Join(dir, "req.sock")
	pubSock := filepath.Join(dir, "pub.sock")

	duplex := socketx.NewDuplexEndpoint(reqSock, storeLogger)
	collector := socketx.NewCollectorEndpoint(pubSock, storeLogger)

	return &Supervisor{
		store:        store,
		binary:       binary,
		args:         args,
		ephemeralDir: dir,
		router:       router,
		broadcaster:  broadcaster,
		cache:        cache,
		clock:        clk,
		logger:       storeLogger,
		duplex:       duplex,
		collector:    collector,
		relay:        relay.NewRequestRelay(store, duplex, router, storeLogger),
		publish:      relay.NewPublishRelay(store, collector, broadcaster, storeLogger),
	}
}

// Relay returns the store's Request Relay, satisfying
// server.StoreRelay so the Request Server can dispatch READ/WRITE
// requests directly to it.
func (s *Supervisor) Relay() *relay.RequestRelay {
	return s.relay
}

// Run creates the ephemeral directory, starts the socket endpoints
// and relays, and then spawns and respawns the worker process until
// ctx is cancelled. The ephemeral directory is removed on return.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.ephemeralDir, 0o700); err != nil {
		return fmt.Errorf("creating ephemeral directory for store %s: %w", s.store, err)
	}
	defer os.RemoveAll(s.ephemeralDir)

	go s.duplex.Run(ctx)
	go s.collector.Run(ctx)
	go s.relay.Run(ctx)
	go s.publish.Run(ctx)

	for {
		generation := uuid.New().String()
		s.runOneIncarnation(ctx, generation)

		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(restartPause):
		}
	}
}

// runOneIncarnation spawns the worker once, fetches its CONFIG block,
// and blocks until the process exits or ctx is cancelled.
func (s *Supervisor) runOneIncarnation(ctx context.Context, generation string) {
	args := append([]string{s.duplex.SocketPath(), s.collector.SocketPath(), s.store}, s.args...)
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout

	if err := cmd.Start(); err != nil {
		s.logger.Error("starting worker process", "generation", generation, "error", err)
		return
	}
	s.logger.Info("worker process started", "generation", generation, "pid", cmd.Process.Pid)

	processDone := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(processDone)
	}()

	go s.fetchConfig(ctx, generation, processDone)

	select {
	case <-processDone:
		exitCode := 0
		var exitErr *exec.ExitError
		if waitErr != nil {
			if errors.As(waitErr, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
		s.logger.Warn("worker process exited", "generation", generation, "exit_code", exitCode, "error", waitErr)
	case <-ctx.Done():
		<-processDone
	}
}

// fetchConfig waits for the worker to connect, then issues the
// internal CONFIG request, retrying up to configFetchAttempts times
// paced by a rate limiter so a worker stuck crash-looping on CONFIG
// does not drive the proxy into a hot retry loop.
func (s *Supervisor) fetchConfig(ctx context.Context, generation string, processDone <-chan struct{}) {
	select {
	case <-s.duplex.Connected():
	case <-processDone:
		return
	case <-ctx.Done():
		return
	}

	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	for attempt := 1; attempt <= configFetchAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		resp, err := s.relay.InternalRequest(ctx, wire.Request{Kind: wire.KindConfig, Name: s.store})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("internal CONFIG request failed", "generation", generation, "attempt", attempt, "error", err)
			continue
		}
		if resp.Error != nil {
			s.logger.Warn("worker rejected CONFIG request", "generation", generation, "attempt", attempt, "error", resp.Error)
			continue
		}

		var peek struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(resp.Data, &peek); err != nil {
			s.logger.Error("parsing CONFIG response", "generation", generation, "error", err)
			continue
		}

		s.cache.Set(s.store, configcache.Block{ID: peek.ID, Raw: resp.Data})
		s.logger.Info("configuration cached", "generation", generation, "id", peek.ID)
		return
	}
	s.logger.Error("giving up on CONFIG fetch for this incarnation", "generation", generation, "attempts", configFetchAttempts)
}
