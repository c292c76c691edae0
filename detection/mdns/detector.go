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

// Package mdns discovers driver daemons announced on the local network and
// announces simulated ones. Importing it registers the detector.
package mdns

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/detection"
	"github.com/ZaparooProject/go-flowbird/transport/ws"
)

const (
	// ServiceType is the DNS-SD service of the driver daemon
	ServiceType = "_flowbird-driver._tcp"
	// Domain is the mDNS browse domain
	Domain = "local."

	defaultBrowseWindow = 2 * time.Second
)

type browseFunc func(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error

type detector struct {
	browse browseFunc
}

// New creates an mDNS detector
func New() detection.Detector {
	return &detector{browse: browse}
}

func init() {
	detection.RegisterDetector(New())
}

func browse(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return fmt.Errorf("failed to browse %s: %w", ServiceType, err)
	}
	return nil
}

// Transport returns the transport type
func (*detector) Transport() string {
	return detection.TransportWebsocket
}

// Detect browses for announcements during the detection timeout
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.Endpoint, error) {
	window := opts.Timeout
	if window <= 0 {
		window = defaultBrowseWindow
	}
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := d.browse(ctx, entries); err != nil {
		return nil, err
	}

	var endpoints []detection.Endpoint
	seen := make(map[string]bool)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return finish(endpoints)
			}
			endpoint, valid := entryToEndpoint(entry)
			if !valid || seen[endpoint.Address] {
				continue
			}
			if detection.IsAddressIgnored(endpoint.Address, opts.IgnoreAddresses) {
				continue
			}
			seen[endpoint.Address] = true
			flowbird.Debugf("detection: found %s", endpoint)
			endpoints = append(endpoints, endpoint)
		case <-ctx.Done():
			return finish(endpoints)
		}
	}
}

func finish(endpoints []detection.Endpoint) ([]detection.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, detection.ErrNoEndpointsFound
	}
	return endpoints, nil
}

// entryToEndpoint builds the websocket URL of an announcement. TXT records
// "path" and "tls" select the endpoint path and scheme.
func entryToEndpoint(entry *zeroconf.ServiceEntry) (detection.Endpoint, bool) {
	if entry == nil || entry.Port <= 0 {
		return detection.Endpoint{}, false
	}
	host := entry.HostName
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return detection.Endpoint{}, false
	}

	metadata := parseText(entry.Text)
	metadata["instance"] = entry.Instance
	path := metadata["path"]
	if path == "" {
		path = ws.Path
	}
	scheme := "ws"
	if metadata["tls"] == "1" || metadata["tls"] == "true" {
		scheme = "wss"
	}

	return detection.Endpoint{
		Transport:  detection.TransportWebsocket,
		Address:    scheme + "://" + net.JoinHostPort(host, strconv.Itoa(entry.Port)) + path,
		Name:       entry.Instance,
		Metadata:   metadata,
		Confidence: detection.Medium,
	}, true
}

func parseText(records []string) map[string]string {
	metadata := make(map[string]string, len(records)+1)
	for _, record := range records {
		key, value, ok := strings.Cut(record, "=")
		if ok && key != "" {
			metadata[key] = value
		}
	}
	return metadata
}

// Announcement is a registered daemon service
type Announcement struct {
	server *zeroconf.Server
}

// Announce registers a daemon listening on port under instance
func Announce(instance string, port int, text ...string) (*Announcement, error) {
	records := append([]string{"protocol=websocket", "path=" + ws.Path}, text...)
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, records, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	flowbird.Debugf("mdns: announced %s on port %d", instance, port)
	return &Announcement{server: server}, nil
}

// Shutdown withdraws the announcement
func (a *Announcement) Shutdown() {
	a.server.Shutdown()
}
