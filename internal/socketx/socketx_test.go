// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package socketx

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("hello world")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %q", got)
	}
}

func TestRequestRouterRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "router.sock")
	router := NewRequestRouter(socketPath, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- router.Serve(ctx) }()
	waitForSocket(t, socketPath)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, []byte("READ kpfguide.DISP2MSG")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	envelope := <-router.Frames()
	if string(envelope.Frame) != "READ kpfguide.DISP2MSG" {
		t.Fatalf("unexpected frame: %q", envelope.Frame)
	}

	if err := router.Send(envelope.Route, []byte(`{"message":"ACK","id":"0000000a","time":1.0}`)); err != nil {
		t.Fatalf("router.Send: %v", err)
	}

	reply, err := ReadFrame(conn)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if !bytes.Contains(reply, []byte(`"message":"ACK"`)) {
		t.Fatalf("unexpected reply: %q", reply)
	}

	cancel()
	if err := <-serveErr; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestPublishBroadcasterFiltersBySubscription(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "pub.sock")
	broadcaster := NewPublishBroadcaster(socketPath, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- broadcaster.Serve(ctx) }()
	waitForSocket(t, socketPath)

	subscribed, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial subscribed: %v", err)
	}
	defer subscribed.Close()
	unsubscribed, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial unsubscribed: %v", err)
	}
	defer unsubscribed.Close()

	subscribeFrame := append([]byte{subscribeByte}, []byte("kpfguide.")...)
	if err := WriteFrame(subscribed, subscribeFrame); err != nil {
		t.Fatalf("subscribe write: %v", err)
	}
	// give the broadcaster's read loop a moment to register the
	// subscription before publishing.
	time.Sleep(20 * time.Millisecond)

	broadcaster.Publish("kpfguide.DISP2MSG", []byte("kpfguide.DISP2MSG {}"))

	subscribed.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := ReadFrame(subscribed)
	if err != nil {
		t.Fatalf("subscribed read: %v", err)
	}
	if string(frame) != "kpfguide.DISP2MSG {}" {
		t.Fatalf("unexpected frame: %q", frame)
	}

	unsubscribed.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := ReadFrame(unsubscribed); err == nil {
		t.Fatal("unsubscribed connection should not have received a frame")
	}

	cancel()
	<-serveErr
}

func TestDuplexEndpointAcceptsWorkerConnection(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "duplex.sock")
	endpoint := NewDuplexEndpoint(socketPath, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- endpoint.Run(ctx) }()
	waitForSocket(t, socketPath)

	worker, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("worker dial: %v", err)
	}
	defer worker.Close()
	if err := WriteFrame(worker, []byte("hello")); err != nil {
		t.Fatalf("worker write: %v", err)
	}

	select {
	case <-endpoint.Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint never connected")
	}

	select {
	case frame := <-endpoint.Frames():
		if string(frame) != "hello" {
			t.Fatalf("unexpected frame: %q", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	if err := endpoint.Send([]byte("world")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	reply, err := ReadFrame(worker)
	if err != nil {
		t.Fatalf("worker read: %v", err)
	}
	if string(reply) != "world" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	cancel()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDuplexEndpointReconnectsAfterWorkerRestart(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "duplex-restart.sock")
	endpoint := NewDuplexEndpoint(socketPath, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go endpoint.Run(ctx)
	waitForSocket(t, socketPath)

	first, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	<-endpoint.Connected()
	first.Close()

	// Give the endpoint's accept loop a moment to notice the drop and
	// return to Accept before the second worker connects.
	time.Sleep(20 * time.Millisecond)

	second, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer second.Close()

	select {
	case <-endpoint.Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint never reconnected")
	}
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
