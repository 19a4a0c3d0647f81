// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/potproxy/potproxy/internal/configcache"
	"github.com/potproxy/potproxy/internal/socketx"
	"github.com/potproxy/potproxy/internal/wire"
	"github.com/potproxy/potproxy/lib/clock"
)

// StoreRelay is the subset of *relay.RequestRelay the server needs,
// narrowed to an interface so tests can supply a fake worker relay.
type StoreRelay interface {
	ExternalRequest(route *socketx.Route, req wire.Request) error
}

// Server is C6. It owns no socket transport of its own — the caller
// supplies a running *socketx.RequestRouter and reads its Frames()
// channel via Run.
type Server struct {
	router *socketx.RequestRouter
	cache  *configcache.Cache
	stores map[string]StoreRelay
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Request Server. stores maps store name to the
// RequestRelay that owns that store's worker.
func New(router *socketx.RequestRouter, cache *configcache.Cache, stores map[string]StoreRelay, clk clock.Clock, logger *slog.Logger) *Server {
	return &Server{router: router, cache: cache, stores: stores, clock: clk, logger: logger}
}

// Run reads every frame from router.Frames() and dispatches it until
// the channel closes (the router's Serve returned).
func (s *Server) Run() {
	for envelope := range s.router.Frames() {
		s.dispatch(envelope.Route, envelope.Frame)
	}
}

func (s *Server) dispatch(route *socketx.Route, frame []byte) {
	req, err := wire.ParseRequest(frame)
	if err != nil {
		s.respondToParseError(route, err)
		return
	}
	if req.ID == "" {
		req.ID = wire.GenerateID()
	}

	switch req.Kind {
	case wire.KindRead, wire.KindWrite:
		s.dispatchToStore(route, req)
	case wire.KindID:
		s.answerID(route, req)
	case wire.KindConfig:
		s.answerConfig(route, req)
	}
}

// respondToParseError replies on the wire when the request carries a
// *wire.Error (a recognized domain failure like a missing field) with
// a freshly generated id, since a malformed request has no id of its
// own to echo. A plain ErrBadFrame (an empty frame or malformed JSON)
// is logged and dropped — there is no reliable id to address a reply
// to.
func (s *Server) respondToParseError(route *socketx.Route, err error) {
	wireErr, ok := err.(*wire.Error)
	if !ok {
		s.logger.Warn("dropping malformed request frame", "error", err)
		return
	}
	s.sendREP(route, wire.GenerateID(), "", nil, wireErr)
}

func (s *Server) dispatchToStore(route *socketx.Route, req wire.Request) {
	store := storeOf(req.Name)
	relay, ok := s.stores[store]
	if !ok {
		s.sendREP(route, req.ID, req.Name, nil, wire.KeyError("no local store for "+store))
		return
	}
	if err := relay.ExternalRequest(route, req); err != nil {
		s.logger.Error("dispatching request to store", "store", store, "error", err)
		s.sendREP(route, req.ID, req.Name, nil, wire.RuntimeError(err.Error()))
	}
}

func (s *Server) answerID(route *socketx.Route, req wire.Request) {
	s.sendACK(route, req.ID)

	var entries []configcache.Entry
	if req.Name == "" {
		entries = s.cache.All()
	} else if block, ok := s.cache.Get(req.Name); ok {
		entries = []configcache.Entry{{Name: req.Name, ID: block.ID}}
	} else {
		entries = []configcache.Entry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		s.sendREP(route, req.ID, "", nil, wire.RuntimeError("encoding id list: "+err.Error()))
		return
	}
	s.sendREP(route, req.ID, "", data, nil)
}

func (s *Server) answerConfig(route *socketx.Route, req wire.Request) {
	s.sendACK(route, req.ID)

	if req.Name == "" {
		s.sendREP(route, req.ID, "", nil, wire.KeyError("missing required field: name"))
		return
	}
	block, ok := s.cache.Get(req.Name)
	if !ok {
		s.sendREP(route, req.ID, req.Name, nil, wire.KeyError("no local configuration for '"+req.Name+"'"))
		return
	}
	s.sendREP(route, req.ID, req.Name, block.Raw, nil)
}

func (s *Server) sendACK(route *socketx.Route, id string) {
	s.send(route, &wire.Response{Message: wire.MessageACK, ID: id, Time: s.timestamp()})
}

func (s *Server) sendREP(route *socketx.Route, id, name string, data json.RawMessage, wireErr *wire.Error) {
	s.send(route, &wire.Response{Message: wire.MessageREP, ID: id, Time: s.timestamp(), Name: name, Data: data, Error: wireErr})
}

func (s *Server) send(route *socketx.Route, resp *wire.Response) {
	encoded, err := resp.Encode()
	if err != nil {
		s.logger.Error("encoding response", "error", err)
		return
	}
	if err := s.router.Send(route, encoded); err != nil {
		s.logger.Debug("sending response to client", "error", err)
	}
}

func (s *Server) timestamp() float64 {
	return float64(s.clock.Now().UnixNano()) / 1e9
}

// storeOf extracts the store name from a dotted element name: the
// segment before the first '.'. A name with no dot is returned
// unchanged.
func storeOf(name string) string {
	store, _, found := strings.Cut(name, ".")
	if !found {
		return name
	}
	return store
}
