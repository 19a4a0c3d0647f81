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
	"strings"
	"sync"
	"sync/atomic"
)

// Subscription control bytes, mirroring the ZeroMQ SUB socket wire
// convention: a subscriber connection sends a control frame whose
// first byte is subscribeByte or unsubscribeByte, followed by the
// topic prefix to add or remove. A subscriber that has never sent a
// subscribeByte frame receives nothing — there is no implicit
// subscribe-all, matching ZeroMQ's own default.
const (
	subscribeByte   byte = 0x01
	unsubscribeByte byte = 0x00
)

type subscriber struct {
	id   uint64
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	prefixes map[string]struct{}
}

func (s *subscriber) matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for prefix := range s.prefixes {
		if strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

func (s *subscriber) subscribe(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes[prefix] = struct{}{}
}

func (s *subscriber) unsubscribe(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prefixes, prefix)
}

// PublishBroadcaster accepts many concurrent subscriber connections on
// a single Unix socket and fans broadcast frames out to every
// subscriber whose subscribed prefix set matches the frame's topic. It
// is the external publish socket's transport: every PUB/PUB+B/bundle
// broadcast potproxy sends to external clients goes through a
// PublishBroadcaster.
type PublishBroadcaster struct {
	socketPath string
	logger     *slog.Logger

	listener net.Listener

	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextSubID   uint64

	active sync.WaitGroup
}

// NewPublishBroadcaster creates a broadcaster that will listen on
// socketPath once Serve is called.
func NewPublishBroadcaster(socketPath string, logger *slog.Logger) *PublishBroadcaster {
	return &PublishBroadcaster{
		socketPath:  socketPath,
		logger:      logger,
		subscribers: make(map[uint64]*subscriber),
	}
}

// Serve binds the Unix socket and accepts subscriber connections until
// ctx is cancelled.
func (broadcaster *PublishBroadcaster) Serve(ctx context.Context) error {
	if err := os.Remove(broadcaster.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", broadcaster.socketPath, err)
	}
	listener, err := net.Listen("unix", broadcaster.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", broadcaster.socketPath, err)
	}
	broadcaster.listener = listener
	defer func() {
		listener.Close()
		os.Remove(broadcaster.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	broadcaster.logger.Info("publish broadcaster listening", "path", broadcaster.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			broadcaster.logger.Error("accept failed", "path", broadcaster.socketPath, "error", err)
			continue
		}

		sub := &subscriber{
			id:       atomic.AddUint64(&broadcaster.nextSubID, 1),
			conn:     conn,
			prefixes: make(map[string]struct{}),
		}
		broadcaster.mu.Lock()
		broadcaster.subscribers[sub.id] = sub
		broadcaster.mu.Unlock()

		broadcaster.active.Add(1)
		go broadcaster.readControlFrames(sub)
	}

	// Close every remaining subscriber connection so each
	// readControlFrames loop returns.
	broadcaster.mu.Lock()
	for _, sub := range broadcaster.subscribers {
		sub.conn.Close()
	}
	broadcaster.mu.Unlock()

	broadcaster.active.Wait()
	return nil
}

func (broadcaster *PublishBroadcaster) readControlFrames(sub *subscriber) {
	defer broadcaster.active.Done()
	defer func() {
		broadcaster.mu.Lock()
		delete(broadcaster.subscribers, sub.id)
		broadcaster.mu.Unlock()
		sub.conn.Close()
	}()

	for {
		frame, err := ReadFrame(sub.conn)
		if err != nil {
			return
		}
		if len(frame) == 0 {
			continue
		}
		prefix := string(frame[1:])
		switch frame[0] {
		case subscribeByte:
			sub.subscribe(prefix)
		case unsubscribeByte:
			sub.unsubscribe(prefix)
		}
	}
}

// Publish sends frame to every subscriber whose subscription prefix
// set matches topic. A subscriber that fails to accept the write is
// left for its own read loop to detect and drop; Publish never blocks
// waiting for a slow subscriber beyond the single write call.
func (broadcaster *PublishBroadcaster) Publish(topic string, frame []byte) {
	for _, sub := range broadcaster.matchingSubscribers(topic) {
		sub.writeMu.Lock()
		err := WriteFrame(sub.conn, frame)
		sub.writeMu.Unlock()
		if err != nil {
			broadcaster.logger.Debug("publish write failed", "subscriber", sub.id, "error", err)
		}
	}
}

// PublishPair sends two frames back to back to every matching
// subscriber, under the same write lock, so a PUB+B descriptor-then-
// bulk pair is never interleaved with another broadcast to the same
// subscriber.
func (broadcaster *PublishBroadcaster) PublishPair(topic string, first, second []byte) {
	for _, sub := range broadcaster.matchingSubscribers(topic) {
		sub.writeMu.Lock()
		err := WriteFrame(sub.conn, first)
		if err == nil {
			err = WriteFrame(sub.conn, second)
		}
		sub.writeMu.Unlock()
		if err != nil {
			broadcaster.logger.Debug("publish pair write failed", "subscriber", sub.id, "error", err)
		}
	}
}

func (broadcaster *PublishBroadcaster) matchingSubscribers(topic string) []*subscriber {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()

	matched := make([]*subscriber, 0, len(broadcaster.subscribers))
	for _, sub := range broadcaster.subscribers {
		if sub.matches(topic) {
			matched = append(matched, sub)
		}
	}
	return matched
}
