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

// Package uart connects to the driver daemon over a serial line carrying
// newline-delimited JSON frames.
package uart

import (
	"errors"
	"fmt"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/bridge"
)

// DefaultBaudRate is the daemon console speed
const DefaultBaudRate = 115200

// Transport is a bridge.Conn over a serial port
type Transport struct {
	*bridge.StreamConn
	port     serial.Port
	portName string
}

// Option configures the serial mode
type Option func(*serial.Mode)

// WithBaudRate overrides DefaultBaudRate
func WithBaudRate(rate int) Option {
	return func(m *serial.Mode) {
		if rate > 0 {
			m.BaudRate = rate
		}
	}
}

// New opens portName
func New(portName string, opts ...Option) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	for _, opt := range opts {
		opt(mode)
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}
	return newTransport(port, portName)
}

func newTransport(port serial.Port, portName string) (*Transport, error) {
	// stale console output would desynchronise the frame decoder
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to reset UART port %s: %w", portName, err)
	}
	flowbird.Debugf("uart: opened %s", portName)
	return &Transport{
		StreamConn: bridge.NewStreamConn(port),
		port:       port,
		portName:   portName,
	}, nil
}

// PortName returns the serial device path
func (t *Transport) PortName() string {
	return t.portName
}

// Close flushes pending output and closes the port
func (t *Transport) Close() error {
	drainErr := t.port.Drain()
	return errors.Join(drainErr, t.StreamConn.Close())
}
