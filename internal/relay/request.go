// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/potproxy/potproxy/internal/idalloc"
	"github.com/potproxy/potproxy/internal/pending"
	"github.com/potproxy/potproxy/internal/socketx"
	"github.com/potproxy/potproxy/internal/wire"
)

// RequestRelay is C5: the per-worker bidirectional multiplexer. It
// owns the id space and Pending Table for exactly one worker, rewrites
// outbound ids, restores inbound ids, and dispatches worker responses
// either back to an external client (through router) or to a waiting
// internal caller (through a Pending Table completion channel).
type RequestRelay struct {
	store  string
	duplex *socketx.DuplexEndpoint
	router *socketx.RequestRouter
	logger *slog.Logger

	allocator *idalloc.Allocator
	table     *pending.Table
}

// NewRequestRelay creates a relay for one worker. router is the single
// external request socket shared by every store; duplex is this
// worker's dedicated request connection.
func NewRequestRelay(store string, duplex *socketx.DuplexEndpoint, router *socketx.RequestRouter, logger *slog.Logger) *RequestRelay {
	return &RequestRelay{
		store:     store,
		duplex:    duplex,
		router:    router,
		logger:    logger,
		allocator: idalloc.New(),
		table:     pending.New(),
	}
}

// PendingCount reports the number of in-flight transactions. Exposed
// for tests verifying the Pending Table drains to empty.
func (relay *RequestRelay) PendingCount() int {
	return relay.table.Len()
}

// ExternalRequest forwards a client-originated READ/WRITE request to
// the worker, remapping req.ID (which must already be set — the
// Request Server assigns one before dispatch) to a freshly allocated
// internal id and recording route and original id in the Pending
// Table so the dispatcher can restore it on the way back.
func (relay *RequestRelay) ExternalRequest(route *socketx.Route, req wire.Request) error {
	if req.ID == "" {
		return fmt.Errorf("relay: external request missing id")
	}

	internalID, err := relay.reserveSlot(&pending.Entry{
		Kind:       pending.External,
		Route:      route,
		OriginalID: req.ID,
	})
	if err != nil {
		return err
	}

	encoded, err := wire.EncodeForWorker(req, wire.FormatID(internalID))
	if err != nil {
		relay.table.Remove(internalID)
		return fmt.Errorf("encoding request for worker %s: %w", relay.store, err)
	}
	if err := relay.duplex.Send(encoded); err != nil {
		relay.table.Remove(internalID)
		return fmt.Errorf("sending request to worker %s: %w", relay.store, err)
	}
	return nil
}

// InternalRequest issues a request on the relay's own behalf (used by
// the Worker Supervisor to fetch CONFIG at startup) and blocks until
// the terminal REP arrives or ctx is cancelled.
func (relay *RequestRelay) InternalRequest(ctx context.Context, req wire.Request) (*wire.Response, error) {
	completion := make(chan *wire.Response, 1)

	internalID, err := relay.reserveSlot(&pending.Entry{
		Kind:       pending.Internal,
		Completion: completion,
	})
	if err != nil {
		return nil, err
	}

	encoded, err := wire.EncodeForWorker(req, wire.FormatID(internalID))
	if err != nil {
		relay.table.Remove(internalID)
		return nil, fmt.Errorf("encoding internal request for worker %s: %w", relay.store, err)
	}
	if err := relay.duplex.Send(encoded); err != nil {
		relay.table.Remove(internalID)
		return nil, fmt.Errorf("sending internal request to worker %s: %w", relay.store, err)
	}

	select {
	case resp := <-completion:
		return resp, nil
	case <-ctx.Done():
		relay.table.Remove(internalID)
		return nil, ctx.Err()
	}
}

// reserveSlot allocates an id and inserts entry under it, retrying
// with the next id on collision (the allocator wraps after 2^32-1
// allocations; a collision only occurs against a transaction that has
// been outstanding for the entire wrap).
func (relay *RequestRelay) reserveSlot(entry *pending.Entry) (uint32, error) {
	for attempts := 0; attempts < maxProbeAttempts; attempts++ {
		id := relay.allocator.Next()
		entry.InternalID = id
		if relay.table.Insert(entry) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("relay: could not find a free transaction id for worker %s after %d attempts", relay.store, maxProbeAttempts)
}

// maxProbeAttempts bounds the wrap-and-probe retry loop. The full
// 32-bit space would need this many concurrent outstanding
// transactions to exhaust — far beyond any realistic client load.
const maxProbeAttempts = 1 << 20

// Run is the dispatcher: it reads every frame the worker sends and
// routes it either to a waiting internal caller or back to the
// external client that issued the transaction, restoring the
// client's original id in the latter case. Blocks until ctx is
// cancelled or the worker connection's frame channel is exhausted.
func (relay *RequestRelay) Run(ctx context.Context) {
	for {
		frame, ok := recvFrame(ctx, relay.duplex.Frames())
		if !ok {
			return
		}
		relay.dispatch(ctx, frame)
	}
}

func (relay *RequestRelay) dispatch(ctx context.Context, frame []byte) {
	resp, err := wire.ParseResponse(frame)
	if err != nil {
		relay.logger.Warn("dropping malformed worker response", "store", relay.store, "error", err)
		return
	}

	internalID, err := wire.ParseID(resp.ID)
	if err != nil {
		relay.logger.Warn("dropping worker response with malformed id", "store", relay.store, "id", resp.ID, "error", err)
		return
	}

	entry, ok := relay.table.Lookup(internalID)
	if !ok {
		relay.logger.Debug("no pending entry for worker response", "store", relay.store, "internal_id", resp.ID)
		return
	}

	if entry.Kind == pending.Internal {
		relay.dispatchInternal(internalID, entry, resp)
		return
	}
	relay.dispatchExternal(ctx, internalID, entry, resp)
}

func (relay *RequestRelay) dispatchInternal(internalID uint32, entry *pending.Entry, resp *wire.Response) {
	if resp.Message == wire.MessageACK {
		return
	}
	relay.table.Remove(internalID)
	entry.Completion <- resp
}

func (relay *RequestRelay) dispatchExternal(ctx context.Context, internalID uint32, entry *pending.Entry, resp *wire.Response) {
	resp.ID = entry.OriginalID
	encoded, err := resp.Encode()
	if err != nil {
		relay.logger.Warn("encoding restored response", "store", relay.store, "error", err)
		relay.table.Remove(internalID)
		return
	}

	if !wire.HasBulkFollowup(resp.Message) {
		if err := relay.router.Send(entry.Route, encoded); err != nil {
			relay.logger.Debug("sending response to client", "store", relay.store, "error", err)
		}
		if resp.Message != wire.MessageACK {
			relay.table.Remove(internalID)
		}
		return
	}

	bulkFrame, ok := recvFrame(ctx, relay.duplex.Frames())
	if !ok {
		relay.table.Remove(internalID)
		return
	}
	rewritten, err := wire.RewriteBulkID(bulkFrame, entry.OriginalID)
	if err != nil {
		relay.logger.Warn("rewriting bulk frame id", "store", relay.store, "error", err)
		relay.table.Remove(internalID)
		return
	}
	if err := relay.router.SendPair(entry.Route, encoded, rewritten); err != nil {
		relay.logger.Debug("sending bulk response to client", "store", relay.store, "error", err)
	}
	relay.table.Remove(internalID)
}
