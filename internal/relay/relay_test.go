// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/potproxy/potproxy/internal/socketx"
	"github.com/potproxy/potproxy/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never became ready", path)
}

// harness wires a RequestRelay to a real external RequestRouter socket
// (standing in for C6) and a real worker DuplexEndpoint socket, each
// dialable by a test client or fake worker.
type harness struct {
	router       *socketx.RequestRouter
	duplex       *socketx.DuplexEndpoint
	relay        *RequestRelay
	cancel       context.CancelFunc
	duplexSock   string
	externalSock string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := discardLogger()

	externalSock := filepath.Join(dir, "external.sock")
	duplexSock := filepath.Join(dir, "worker.sock")

	router := socketx.NewRequestRouter(externalSock, logger)
	duplex := socketx.NewDuplexEndpoint(duplexSock, logger)
	r := NewRequestRelay("kpfguide", duplex, router, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go router.Serve(ctx)
	go duplex.Run(ctx)
	go r.Run(ctx)

	waitForSocket(t, externalSock)
	waitForSocket(t, duplexSock)

	return &harness{router: router, duplex: duplex, relay: r, cancel: cancel, duplexSock: duplexSock, externalSock: externalSock}
}

func TestExternalRequestRoundTripRestoresClientID(t *testing.T) {
	dir := t.TempDir()
	logger := discardLogger()
	router := socketx.NewRequestRouter(filepath.Join(dir, "external.sock"), logger)
	duplex := socketx.NewDuplexEndpoint(filepath.Join(dir, "worker.sock"), logger)
	r := NewRequestRelay("kpfguide", duplex, router, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Serve(ctx)
	go duplex.Run(ctx)
	go r.Run(ctx)

	waitForSocket(t, filepath.Join(dir, "external.sock"))
	waitForSocket(t, filepath.Join(dir, "worker.sock"))

	client, err := net.Dial("unix", filepath.Join(dir, "external.sock"))
	if err != nil {
		t.Fatalf("client dial: %v", err)
	}
	defer client.Close()

	worker, err := net.Dial("unix", filepath.Join(dir, "worker.sock"))
	if err != nil {
		t.Fatalf("worker dial: %v", err)
	}
	defer worker.Close()

	routerEnvelope := make(chan socketx.Envelope, 1)
	go func() {
		envelope := <-router.Frames()
		routerEnvelope <- envelope
	}()

	// Emulate the Request Server (C6): ExternalRequest is invoked
	// directly, as C6 would invoke it after parsing the client's
	// request.
	req := wire.Request{Kind: wire.KindRead, Name: "kpfguide.DISP2MSG", ID: "0000000a"}

	// We need the Route identity to call ExternalRequest, which the
	// router only produces upon accepting a frame from that
	// connection. Send a throwaway frame to mint the route.
	if err := socketx.WriteFrame(client, []byte("READ kpfguide.DISP2MSG 0000000a")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	envelope := <-routerEnvelope
	if string(envelope.Frame) != "READ kpfguide.DISP2MSG 0000000a" {
		t.Fatalf("unexpected frame: %q", envelope.Frame)
	}

	if err := r.ExternalRequest(envelope.Route, req); err != nil {
		t.Fatalf("ExternalRequest: %v", err)
	}

	workerFrame, err := socketx.ReadFrame(worker)
	if err != nil {
		t.Fatalf("worker read: %v", err)
	}
	workerReq, err := wire.ParseRequest(workerFrame)
	if err != nil {
		t.Fatalf("parsing worker-side request: %v", err)
	}
	if workerReq.ID == "0000000a" {
		t.Fatal("internal id must not equal the client's original id verbatim by coincidence of remapping logic")
	}
	if workerReq.Name != "kpfguide.DISP2MSG" {
		t.Fatalf("unexpected name forwarded to worker: %q", workerReq.Name)
	}

	ack := &wire.Response{Message: wire.MessageACK, ID: workerReq.ID, Time: 1}
	ackEncoded, _ := ack.Encode()
	if err := socketx.WriteFrame(worker, ackEncoded); err != nil {
		t.Fatalf("worker write ack: %v", err)
	}

	rep := &wire.Response{Message: wire.MessageREP, ID: workerReq.ID, Time: 2, Name: "kpfguide.DISP2MSG", Data: []byte("42")}
	repEncoded, _ := rep.Encode()
	if err := socketx.WriteFrame(worker, repEncoded); err != nil {
		t.Fatalf("worker write rep: %v", err)
	}

	clientAck, err := socketx.ReadFrame(client)
	if err != nil {
		t.Fatalf("client read ack: %v", err)
	}
	parsedAck, err := wire.ParseResponse(clientAck)
	if err != nil {
		t.Fatalf("parsing client ack: %v", err)
	}
	if parsedAck.ID != "0000000a" {
		t.Fatalf("ack id = %q, want original client id", parsedAck.ID)
	}

	clientRep, err := socketx.ReadFrame(client)
	if err != nil {
		t.Fatalf("client read rep: %v", err)
	}
	parsedRep, err := wire.ParseResponse(clientRep)
	if err != nil {
		t.Fatalf("parsing client rep: %v", err)
	}
	if parsedRep.ID != "0000000a" {
		t.Fatalf("rep id = %q, want original client id", parsedRep.ID)
	}
	if string(parsedRep.Data) != "42" {
		t.Fatalf("rep data = %q, want 42", parsedRep.Data)
	}

	deadline := time.Now().Add(time.Second)
	for r.PendingCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.PendingCount() != 0 {
		t.Fatalf("pending table did not drain: %d entries remain", r.PendingCount())
	}
}

func TestExternalRequestBulkPairForwardedAtomically(t *testing.T) {
	dir := t.TempDir()
	logger := discardLogger()
	router := socketx.NewRequestRouter(filepath.Join(dir, "external.sock"), logger)
	duplex := socketx.NewDuplexEndpoint(filepath.Join(dir, "worker.sock"), logger)
	r := NewRequestRelay("kpfguide", duplex, router, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Serve(ctx)
	go duplex.Run(ctx)
	go r.Run(ctx)

	waitForSocket(t, filepath.Join(dir, "external.sock"))
	waitForSocket(t, filepath.Join(dir, "worker.sock"))

	client, err := net.Dial("unix", filepath.Join(dir, "external.sock"))
	if err != nil {
		t.Fatalf("client dial: %v", err)
	}
	defer client.Close()
	worker, err := net.Dial("unix", filepath.Join(dir, "worker.sock"))
	if err != nil {
		t.Fatalf("worker dial: %v", err)
	}
	defer worker.Close()

	routerEnvelope := make(chan socketx.Envelope, 1)
	go func() {
		routerEnvelope <- <-router.Frames()
	}()

	if err := socketx.WriteFrame(client, []byte("READ kpfguide.LASTIMAGE 0000000c")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	envelope := <-routerEnvelope

	req := wire.Request{Kind: wire.KindRead, Name: "kpfguide.LASTIMAGE", ID: "0000000c"}
	if err := r.ExternalRequest(envelope.Route, req); err != nil {
		t.Fatalf("ExternalRequest: %v", err)
	}

	workerFrame, err := socketx.ReadFrame(worker)
	if err != nil {
		t.Fatalf("worker read: %v", err)
	}
	workerReq, err := wire.ParseRequest(workerFrame)
	if err != nil {
		t.Fatalf("parsing worker request: %v", err)
	}

	descriptor := &wire.Response{Message: wire.MessageREPBulk, ID: workerReq.ID, Time: 1, Name: "kpfguide.LASTIMAGE"}
	descEncoded, _ := descriptor.Encode()
	bulkFrame := wire.BuildBulkFrame("kpfguide.LASTIMAGE", workerReq.ID, []byte("raw image bytes"))

	if err := socketx.WriteFrame(worker, descEncoded); err != nil {
		t.Fatalf("worker write descriptor: %v", err)
	}
	if err := socketx.WriteFrame(worker, bulkFrame); err != nil {
		t.Fatalf("worker write bulk: %v", err)
	}

	clientDescriptor, err := socketx.ReadFrame(client)
	if err != nil {
		t.Fatalf("client read descriptor: %v", err)
	}
	parsedDescriptor, err := wire.ParseResponse(clientDescriptor)
	if err != nil {
		t.Fatalf("parsing descriptor: %v", err)
	}
	if parsedDescriptor.ID != "0000000c" || parsedDescriptor.Message != wire.MessageREPBulk {
		t.Fatalf("unexpected descriptor: %+v", parsedDescriptor)
	}

	clientBulk, err := socketx.ReadFrame(client)
	if err != nil {
		t.Fatalf("client read bulk: %v", err)
	}
	name, id, payload, err := wire.ParseBulkFrame(clientBulk)
	if err != nil {
		t.Fatalf("parsing bulk frame: %v", err)
	}
	if name != "kpfguide.LASTIMAGE" || id != "0000000c" {
		t.Fatalf("unexpected bulk header: name=%q id=%q", name, id)
	}
	if !bytes.Equal(payload, []byte("raw image bytes")) {
		t.Fatalf("bulk payload mismatch: %q", payload)
	}
}

func TestInternalRequestCompletesOnREP(t *testing.T) {
	h := newHarness(t)
	defer h.cancel()

	worker, err := net.Dial("unix", h.duplexSock)
	if err != nil {
		t.Fatalf("worker dial: %v", err)
	}
	defer worker.Close()

	go func() {
		frame, err := socketx.ReadFrame(worker)
		if err != nil {
			return
		}
		req, err := wire.ParseRequest(frame)
		if err != nil {
			return
		}
		ack := &wire.Response{Message: wire.MessageACK, ID: req.ID, Time: 1}
		ackEncoded, _ := ack.Encode()
		socketx.WriteFrame(worker, ackEncoded)

		rep := &wire.Response{Message: wire.MessageREP, ID: req.ID, Time: 2, Data: []byte(`{"name":"kpfguide","id":"0000000f","elements":[]}`)}
		repEncoded, _ := rep.Encode()
		socketx.WriteFrame(worker, repEncoded)
	}()

	// Sending fails until the endpoint has accepted the worker, so wait
	// for that first, as the supervisor's fetchConfig does. The pause
	// lets the endpoint finish with newHarness's probe connection.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-h.duplex.Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("worker connection was never accepted")
	}

	resp, err := h.relay.InternalRequest(context.Background(), wire.Request{Kind: wire.KindConfig, Name: "kpfguide"})
	if err != nil {
		t.Fatalf("InternalRequest: %v", err)
	}
	if resp.Message != wire.MessageREP {
		t.Fatalf("unexpected response message: %q", resp.Message)
	}
}
