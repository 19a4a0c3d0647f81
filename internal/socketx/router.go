// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package socketx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
)

// Route identifies one connected client of a RequestRouter. It is
// opaque to callers beyond equality and is the handle a reply must be
// addressed back to.
type Route struct {
	id      uint64
	conn    net.Conn
	writeMu sync.Mutex
}

// String returns a short diagnostic identifier, not the underlying
// address (request-routing code should never need the client's
// network identity, only its route).
func (r *Route) String() string {
	return fmt.Sprintf("route-%d", r.id)
}

// Envelope pairs a frame read from a client with the Route it arrived
// on, so a reply can be addressed back to the same client.
type Envelope struct {
	Route *Route
	Frame []byte
}

// RequestRouter accepts many concurrent client connections on a single
// Unix socket and multiplexes frames read from any of them onto one
// channel, tagging each with the Route it came from. It is the external
// request socket's transport: every external client request and ID/
// CONFIG query arrives through a RequestRouter.
type RequestRouter struct {
	socketPath string
	logger     *slog.Logger

	listener net.Listener
	incoming chan Envelope

	mu          sync.Mutex
	routes      map[uint64]*Route
	nextRouteID uint64

	active sync.WaitGroup
}

// NewRequestRouter creates a router that will listen on socketPath
// once Serve is called.
func NewRequestRouter(socketPath string, logger *slog.Logger) *RequestRouter {
	return &RequestRouter{
		socketPath: socketPath,
		logger:     logger,
		incoming:   make(chan Envelope, 64),
		routes:     make(map[uint64]*Route),
	}
}

// Frames returns the channel of frames received from any connected
// client. Closed once Serve returns.
func (router *RequestRouter) Frames() <-chan Envelope {
	return router.incoming
}

// Serve binds the Unix socket and accepts connections until ctx is
// cancelled. Any stale socket file at socketPath is removed first. The
// socket file is removed again on return.
func (router *RequestRouter) Serve(ctx context.Context) error {
	if err := os.Remove(router.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", router.socketPath, err)
	}
	listener, err := net.Listen("unix", router.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", router.socketPath, err)
	}
	router.listener = listener
	defer func() {
		listener.Close()
		os.Remove(router.socketPath)
		close(router.incoming)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	router.logger.Info("request router listening", "path", router.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			router.logger.Error("accept failed", "path", router.socketPath, "error", err)
			continue
		}

		route := &Route{id: atomic.AddUint64(&router.nextRouteID, 1), conn: conn}
		router.mu.Lock()
		router.routes[route.id] = route
		router.mu.Unlock()

		router.active.Add(1)
		go router.readLoop(route)
	}

	// Close every remaining client connection so each readLoop returns.
	router.mu.Lock()
	for _, route := range router.routes {
		route.conn.Close()
	}
	router.mu.Unlock()

	router.active.Wait()
	return nil
}

func (router *RequestRouter) readLoop(route *Route) {
	defer router.active.Done()
	defer router.drop(route)

	for {
		frame, err := ReadFrame(route.conn)
		if err != nil {
			return
		}
		router.incoming <- Envelope{Route: route, Frame: frame}
	}
}

func (router *RequestRouter) drop(route *Route) {
	router.mu.Lock()
	delete(router.routes, route.id)
	router.mu.Unlock()
	route.conn.Close()
}

// Send writes a single frame back to the client identified by route.
// Returns an error if the client has disconnected.
func (router *RequestRouter) Send(route *Route, frame []byte) error {
	route.writeMu.Lock()
	defer route.writeMu.Unlock()
	return WriteFrame(route.conn, frame)
}

// SendPair writes two frames back to back under the same write lock,
// so a REP+B descriptor-then-bulk pair can never be interleaved with
// another reply to the same client.
func (router *RequestRouter) SendPair(route *Route, first, second []byte) error {
	route.writeMu.Lock()
	defer route.writeMu.Unlock()
	if err := WriteFrame(route.conn, first); err != nil {
		return err
	}
	return WriteFrame(route.conn, second)
}
