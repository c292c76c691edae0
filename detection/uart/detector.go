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

// Package uart detects driver daemons reachable over USB serial adapters.
// Importing it registers the detector.
package uart

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/detection"
	"github.com/ZaparooProject/go-flowbird/transport/uart"
)

// console adapters fitted to validators
var knownAdapters = []string{
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
	"067B:2303", // Prolific PL2303
}

var productKeywords = []string{"flowbird", "parkeon", "validator"}

type detector struct {
	list  func() ([]*enumerator.PortDetails, error)
	probe func(ctx context.Context, path string) bool
}

// New creates a serial detector
func New() detection.Detector {
	return &detector{list: enumerator.GetDetailedPortsList, probe: probePort}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return detection.TransportUART
}

// Detect lists serial ports and keeps those likely to carry the daemon
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.Endpoint, error) {
	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var endpoints []detection.Endpoint
	for _, port := range ports {
		select {
		case <-ctx.Done():
			return endpoints, nil
		default:
		}
		vidpid := detection.VIDPID(port.VID, port.PID)
		if vidpid != "" && detection.IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		if detection.IsAddressIgnored(port.Name, opts.IgnoreAddresses) {
			continue
		}
		if endpoint, ok := d.processPort(ctx, port, opts.Mode); ok {
			endpoints = append(endpoints, endpoint)
		}
	}

	if len(endpoints) == 0 {
		return nil, detection.ErrNoEndpointsFound
	}
	return endpoints, nil
}

// processPort rates one port. In Safe mode only likely ports are opened and
// a likely port that cannot be opened is dropped.
func (d *detector) processPort(ctx context.Context, port *enumerator.PortDetails, mode detection.Mode) (detection.Endpoint, bool) {
	likely := isLikelyDaemon(port)
	endpoint := newEndpoint(port)

	switch mode {
	case detection.Passive:
		if !likely {
			return detection.Endpoint{}, false
		}
		endpoint.Confidence = detection.Medium
		return endpoint, true

	case detection.Safe:
		if !likely {
			return detection.Endpoint{}, false
		}
		if !d.probe(ctx, port.Name) {
			flowbird.Debugf("detection: %s matched but could not be opened", port.Name)
			return detection.Endpoint{}, false
		}
		endpoint.Confidence = detection.High
		return endpoint, true

	default:
		if !d.probe(ctx, port.Name) {
			return detection.Endpoint{}, false
		}
		endpoint.Confidence = detection.Low
		if likely {
			endpoint.Confidence = detection.High
		}
		return endpoint, true
	}
}

func newEndpoint(port *enumerator.PortDetails) detection.Endpoint {
	endpoint := detection.Endpoint{
		Transport: detection.TransportUART,
		Address:   port.Name,
		Name:      port.Name,
		Metadata:  make(map[string]string),
	}
	if port.Product != "" {
		endpoint.Name = port.Product
		endpoint.Metadata["product"] = port.Product
	}
	if vidpid := detection.VIDPID(port.VID, port.PID); vidpid != "" {
		endpoint.Metadata["vidpid"] = vidpid
	}
	if port.SerialNumber != "" {
		endpoint.Metadata["serial"] = port.SerialNumber
	}
	return endpoint
}

func isLikelyDaemon(port *enumerator.PortDetails) bool {
	if !port.IsUSB {
		return false
	}
	vidpid := detection.VIDPID(port.VID, port.PID)
	for _, known := range knownAdapters {
		if vidpid == known {
			return true
		}
	}
	product := strings.ToLower(port.Product)
	for _, keyword := range productKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// probePort opens the port once. Detection never retries: ports that are
// not daemon consoles must not be hammered.
func probePort(_ context.Context, path string) bool {
	transport, err := uart.New(path)
	if err != nil {
		return false
	}
	_ = transport.Close()
	return true
}
