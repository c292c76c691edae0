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

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/detection"
	_ "github.com/ZaparooProject/go-flowbird/detection/mdns"
	_ "github.com/ZaparooProject/go-flowbird/detection/uart"
	"github.com/ZaparooProject/go-flowbird/internal/bridge"
	testutil "github.com/ZaparooProject/go-flowbird/internal/testing"
	"github.com/ZaparooProject/go-flowbird/transport/uart"
	"github.com/ZaparooProject/go-flowbird/transport/ws"
)

const simulatedEndpoint = "sim"

// connect returns a binder talking to the selected daemon and a cleanup func
func connect(ctx context.Context, cfg *config, cfgStore flowbird.ConfigStore) (flowbird.Binder, func(), error) {
	if cfg.endpoint == simulatedEndpoint {
		return startSimulator(ctx, cfgStore, cfg.simulateTaps)
	}

	address := cfg.endpoint
	if address == "" {
		endpoint, err := detectEndpoint(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		address = endpoint.Address
	}

	conn, err := dialWithRetry(ctx, address, cfg)
	if err != nil {
		return nil, nil, err
	}
	client := bridge.NewClient(conn)
	return client, func() { _ = client.Close() }, nil
}

func detectEndpoint(ctx context.Context, cfg *config) (detection.Endpoint, error) {
	if cfg.debug {
		_, _ = fmt.Println("Auto-detecting driver daemons...")
	}
	opts := detection.DefaultOptions()
	endpoints, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return detection.Endpoint{}, fmt.Errorf("failed to detect a driver daemon: %w", err)
	}
	if cfg.debug {
		for _, e := range endpoints {
			_, _ = fmt.Printf("  %s\n", e)
		}
	}
	return endpoints[0], nil
}

// dialWithRetry keeps dialing while the daemon is unreachable. Rejected
// credentials are not retried.
func dialWithRetry(ctx context.Context, address string, cfg *config) (bridge.Conn, error) {
	retry := flowbird.DefaultRetryConfig()
	retry.Retryable = isTransientDialError
	var conn bridge.Conn
	err := flowbird.Retry(ctx, retry, func(ctx context.Context) error {
		c, err := dial(ctx, address, cfg)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

func isTransientDialError(err error) bool {
	return !errors.Is(err, ws.ErrUnauthorized) && !errors.Is(err, context.Canceled)
}

// dial picks the transport from the address form
func dial(ctx context.Context, address string, cfg *config) (bridge.Conn, error) {
	if isWebsocketAddress(address) {
		var opts []ws.DialOption
		if cfg.tokenKey != "" {
			opts = append(opts, ws.WithSigner(ws.Signer{Key: []byte(cfg.tokenKey), Subject: cfg.tokenSubject}))
		}
		conn, err := ws.Dial(ctx, address, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
		}
		return conn, nil
	}

	transport, err := uart.New(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport: %w", err)
	}
	return transport, nil
}

func isWebsocketAddress(address string) bool {
	lower := strings.ToLower(address)
	return strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://")
}

// simulatedATR is reported by the simulated SAM in slot 1
const simulatedATR = "3B8F8001804F0CA000000306"

// startSimulator runs a simulated driver behind an in-memory bridge and taps
// a card every interval
func startSimulator(ctx context.Context, cfgStore flowbird.ConfigStore, interval time.Duration) (flowbird.Binder, func(), error) {
	key := flowbird.SAMATRKey(flowbird.SamSlotOne)
	if cfgStore.Get(key) == "" {
		if err := cfgStore.Set(key, simulatedATR); err != nil {
			return nil, nil, err
		}
	}

	binder, _, hunt := testutil.NewDriver()
	clientConn, serverConn := bridge.Pipe()
	simCtx, cancel := context.WithCancel(ctx)
	go func() { _ = bridge.NewServer(serverConn, binder).Serve(simCtx) }()
	if interval > 0 {
		go simulateTaps(simCtx, hunt, interval)
	}

	client := bridge.NewClient(clientConn)
	return client, func() {
		_ = client.Close()
		cancel()
	}, nil
}

func simulateTaps(ctx context.Context, hunt *testutil.FakeHunt, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for cardID := int64(1); ; cardID++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !hunt.Hunting() {
			continue
		}
		hunt.EmitDetected(testutil.ContactlessPayload(cardID, "3B8E800180318066B1840C016E0183"))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval / 2):
		}
		hunt.EmitRemoved()
	}
}
