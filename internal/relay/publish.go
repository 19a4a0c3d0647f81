// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"

	"github.com/potproxy/potproxy/internal/socketx"
	"github.com/potproxy/potproxy/internal/wire"
)

// PublishRelay is C4: a background forwarder that copies every
// broadcast frame received on one worker's publish connection to the
// external publish socket, unmodified.
type PublishRelay struct {
	store       string
	collector   *socketx.CollectorEndpoint
	broadcaster *socketx.PublishBroadcaster
	logger      *slog.Logger
}

// NewPublishRelay creates a relay that reads from collector and writes
// to broadcaster. Both are expected to already be running (the
// collector's Run and the broadcaster's Serve started) by the caller —
// typically the Worker Supervisor.
func NewPublishRelay(store string, collector *socketx.CollectorEndpoint, broadcaster *socketx.PublishBroadcaster, logger *slog.Logger) *PublishRelay {
	return &PublishRelay{store: store, collector: collector, broadcaster: broadcaster, logger: logger}
}

// Run forwards frames until ctx is cancelled or the collector's frame
// channel is exhausted. A PUB+B descriptor is paired with its
// immediately following bulk continuation frame and forwarded
// together via PublishPair, so the two are never split by an
// unrelated broadcast to the same subscriber.
func (relay *PublishRelay) Run(ctx context.Context) {
	for {
		frame, ok := recvFrame(ctx, relay.collector.Frames())
		if !ok {
			return
		}

		topic, body, err := wire.ParseBroadcastFrame(frame)
		if err != nil {
			// A frame with no space is all topic; forward it unchanged.
			relay.logger.Debug("forwarding broadcast frame without payload separator", "store", relay.store, "error", err)
			relay.broadcaster.Publish(string(frame), frame)
			continue
		}

		if wire.IsBundleTopic(topic) {
			relay.broadcaster.Publish(topic, frame)
			continue
		}

		descriptor, err := wire.ParseResponse(body)
		if err != nil {
			relay.logger.Debug("forwarding broadcast frame with unparsed body", "store", relay.store, "topic", topic, "error", err)
			relay.broadcaster.Publish(topic, frame)
			continue
		}

		if !wire.HasBulkFollowup(descriptor.Message) {
			relay.broadcaster.Publish(topic, frame)
			continue
		}

		bulkFrame, ok := recvFrame(ctx, relay.collector.Frames())
		if !ok {
			return
		}
		relay.broadcaster.PublishPair(topic, frame, bulkFrame)
	}
}

// recvFrame reads one frame from ch, returning ok=false if ctx is
// cancelled first.
func recvFrame(ctx context.Context, ch <-chan []byte) ([]byte, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case frame, open := <-ch:
		return frame, open
	}
}
