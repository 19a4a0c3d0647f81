// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package socketx

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderLength is the size of the length prefix: a 4-byte
// big-endian frame length.
const frameHeaderLength = 4

// maxFrameLength bounds a single frame. 64 MB comfortably covers a
// bulk image payload while still catching a desynchronized stream
// early instead of attempting a multi-gigabyte allocation.
const maxFrameLength = 64 * 1024 * 1024

// WriteFrame writes one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameLength {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d", length, maxFrameLength)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return payload, nil
}
