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

package detection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	err       error
	transport string
	endpoints []Endpoint
	delay     time.Duration
	calls     atomic.Int32
}

func (d *fakeDetector) Transport() string { return d.transport }

func (d *fakeDetector) Detect(ctx context.Context, _ *Options) ([]Endpoint, error) {
	d.calls.Add(1)
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.endpoints, d.err
}

func register(t *testing.T, d *fakeDetector) {
	t.Helper()
	RegisterDetector(d)
	t.Cleanup(func() { ClearDetectionCacheForTransport(d.transport) })
}

func TestDetectAll_MergesByConfidence(t *testing.T) {
	t.Parallel()
	serial := &fakeDetector{transport: "test-merge-a", endpoints: []Endpoint{
		{Transport: "test-merge-a", Address: "/dev/ttyUSB0", Confidence: Low},
	}}
	network := &fakeDetector{transport: "test-merge-b", endpoints: []Endpoint{
		{Transport: "test-merge-b", Address: "ws://validator.local:7070/driver", Confidence: Medium},
	}}
	register(t, serial)
	register(t, network)

	got, err := DetectAll(context.Background(), &Options{Transports: []string{"test-merge-a", "test-merge-b"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ws://validator.local:7070/driver", got[0].Address)
	assert.Equal(t, "/dev/ttyUSB0", got[1].Address)
}

func TestDetectAll_PartialFailureStillReturnsEndpoints(t *testing.T) {
	t.Parallel()
	register(t, &fakeDetector{transport: "test-partial-ok", endpoints: []Endpoint{{Address: "/dev/ttyS1"}}})
	register(t, &fakeDetector{transport: "test-partial-bad", err: errors.New("permission denied")})

	got, err := DetectAll(context.Background(), &Options{Transports: []string{"test-partial-ok", "test-partial-bad"}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDetectAll_Errors(t *testing.T) {
	t.Parallel()
	register(t, &fakeDetector{transport: "test-none", err: ErrNoEndpointsFound})
	register(t, &fakeDetector{transport: "test-fail", err: errors.New("bus error")})

	_, err := DetectAll(context.Background(), &Options{Transports: []string{"test-none"}})
	require.ErrorIs(t, err, ErrNoEndpointsFound)

	_, err = DetectAll(context.Background(), &Options{Transports: []string{"test-fail"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test-fail detection")

	_, err = DetectAll(context.Background(), &Options{Transports: []string{"test-unregistered"}})
	require.Error(t, err)
}

func TestDetectAll_Timeout(t *testing.T) {
	t.Parallel()
	register(t, &fakeDetector{transport: "test-slow", delay: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := DetectAll(ctx, &Options{Transports: []string{"test-slow"}})
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestDetectAll_CachesAndFiltersCachedResults(t *testing.T) {
	t.Parallel()
	d := &fakeDetector{transport: "test-cache", endpoints: []Endpoint{
		{Address: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "0403:6001"}},
		{Address: "/dev/ttyUSB1"},
	}}
	register(t, d)
	opts := &Options{Transports: []string{"test-cache"}, EnableCache: true, CacheTTL: time.Minute}

	got, err := DetectAll(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	opts.IgnoreAddresses = []string{"/dev/ttyUSB1"}
	opts.Blocklist = []string{"0403:6001"}
	_, err = DetectAll(context.Background(), opts)
	require.ErrorIs(t, err, ErrNoEndpointsFound)
	assert.Equal(t, int32(1), d.calls.Load(), "second run is served from cache")
}

func TestDetectAll_EmptyResultClearsCache(t *testing.T) {
	t.Parallel()
	d := &fakeDetector{transport: "test-vanish", endpoints: []Endpoint{{Address: "/dev/ttyACM0"}}}
	register(t, d)
	setCached("test-vanish", []Endpoint{{Address: "/dev/ttyACM0"}})

	_, found := getCached("test-vanish", time.Minute)
	require.True(t, found)

	d.endpoints = nil
	d.err = ErrNoEndpointsFound
	_, err := DetectAll(context.Background(), &Options{Transports: []string{"test-vanish"}, EnableCache: true})
	require.ErrorIs(t, err, ErrNoEndpointsFound)
	_, found = getCached("test-vanish", time.Minute)
	assert.False(t, found)
}

func TestEndpoint_String(t *testing.T) {
	t.Parallel()
	e := Endpoint{Transport: TransportUART, Address: "/dev/ttyUSB0", Confidence: High}
	assert.Equal(t, "uart endpoint at /dev/ttyUSB0 (confidence: high)", e.String())
	assert.Equal(t, "unknown", Confidence(9).String())
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()
	assert.True(t, IsBlocked("0403:6001", []string{" 0403:6001 "}))
	assert.True(t, IsBlocked("10c4:ea60", []string{"10C4:EA60"}))
	assert.False(t, IsBlocked("1A86:7523", []string{"10C4:EA60"}))
	assert.False(t, IsBlocked("1A86:7523", nil))
}

func TestVIDPID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "10C4:EA60", VIDPID("10c4", "ea60"))
	assert.Empty(t, VIDPID("10c4", ""))
}

func TestIsAddressIgnored(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		address string
		ignore  []string
		want    bool
	}{
		{name: "exact path", address: "/dev/ttyUSB0", ignore: []string{"/dev/ttyUSB0"}, want: true},
		{name: "unclean path", address: "/dev/ttyUSB0", ignore: []string{"/dev/../dev/ttyUSB0"}, want: true},
		{name: "windows case", address: "COM3", ignore: []string{"com3"}, want: true},
		{name: "url host case", address: "ws://Validator.local:7070/driver", ignore: []string{"ws://validator.local:7070/driver/"}, want: true},
		{name: "other path", address: "/dev/ttyUSB1", ignore: []string{"/dev/ttyUSB0"}},
		{name: "empty entries", address: "/dev/ttyUSB0", ignore: []string{""}},
		{name: "empty address", address: "", ignore: []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsAddressIgnored(tt.address, tt.ignore))
		})
	}
}
