// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// StreamConn frames newline-delimited JSON over a byte stream
type StreamConn struct {
	rwc io.ReadWriteCloser
	enc *json.Encoder
	dec *json.Decoder
}

// NewStreamConn wraps rwc. The caller hands ownership of rwc to the conn.
func NewStreamConn(rwc io.ReadWriteCloser) *StreamConn {
	return &StreamConn{
		rwc: rwc,
		enc: json.NewEncoder(rwc),
		dec: json.NewDecoder(bufio.NewReader(rwc)),
	}
}

// WriteFrame encodes frame followed by a newline
func (c *StreamConn) WriteFrame(frame Frame) error {
	if err := c.enc.Encode(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame decodes the next frame
func (c *StreamConn) ReadFrame() (Frame, error) {
	var frame Frame
	if err := c.dec.Decode(&frame); err != nil {
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}
	return frame, nil
}

// Close closes the underlying stream
func (c *StreamConn) Close() error {
	return c.rwc.Close()
}

// Pipe returns two connected in-memory conns
func Pipe() (client, server *StreamConn) {
	a, b := net.Pipe()
	return NewStreamConn(a), NewStreamConn(b)
}
