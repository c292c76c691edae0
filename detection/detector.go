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

// Package detection discovers driver daemon endpoints. Detectors for each
// transport register themselves on import.
package detection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// Transport names
const (
	TransportUART      = "uart"
	TransportWebsocket = "ws"
)

// Mode represents the level of invasiveness for endpoint detection
type Mode int

const (
	// Passive mode only inspects descriptors and announcements
	Passive Mode = iota
	// Safe mode opens candidate serial ports once
	Safe
	// Full mode opens every serial port, not only likely candidates
	Full
)

// Confidence represents the confidence level of a detection
type Confidence int

const (
	// Low confidence - a generic port that might carry the daemon
	Low Confidence = iota
	// Medium confidence - descriptor or announcement matches the daemon
	Medium
	// High confidence - the endpoint answered a probe
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Endpoint is a place the driver daemon can be reached
type Endpoint struct {
	// Additional metadata (vidpid for serial adapters, TXT records for mDNS)
	Metadata map[string]string
	// Transport type: "uart" or "ws"
	Transport string
	// Serial device path or websocket URL
	Address string
	// Human-readable name
	Name       string
	Confidence Confidence
}

// String returns a human-readable representation of the endpoint
func (e Endpoint) String() string {
	return fmt.Sprintf("%s endpoint at %s (confidence: %s)", e.Transport, e.Address, e.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678"])
	Blocklist []string
	// Addresses to explicitly ignore (e.g., ["/dev/ttyUSB0", "ws://10.0.0.2:7070/driver"])
	IgnoreAddresses []string
	// Which transports to check (empty = all)
	Transports []string
	CacheTTL   time.Duration
	// Maximum time to wait for detection, also the mDNS browse window
	Timeout     time.Duration
	Mode        Mode
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:        Safe,
		Timeout:     3 * time.Second,
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector searches one transport
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]Endpoint, error)
	Transport() string
}

var (
	// ErrNoEndpointsFound indicates no daemon endpoint was detected
	ErrNoEndpointsFound = errors.New("no driver endpoints found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
)

var registry struct {
	detectors []Detector
	mu        syncutil.Mutex
}

// RegisterDetector adds a detector to the registry
func RegisterDetector(d Detector) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.detectors = append(registry.detectors, d)
}

// getDetectors returns detectors filtered by transport types
func getDetectors(transports []string) []Detector {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if len(transports) == 0 {
		return append([]Detector(nil), registry.detectors...)
	}

	var filtered []Detector
	for _, d := range registry.detectors {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectionResult struct {
	err       error
	endpoints []Endpoint
}

// DetectAll runs every selected detector in parallel. Endpoints are
// returned even if some detectors failed.
func DetectAll(ctx context.Context, opts *Options) ([]Endpoint, error) {
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout+time.Second)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, detector := range detectors {
		go func(d Detector) {
			results <- runSingleDetector(ctx, d, opts)
		}(detector)
	}
	return collectDetectionResults(ctx, results, len(detectors))
}

func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, found := getCached(detector.Transport(), opts.CacheTTL); found {
			// cached results bypass Detect and its filtering
			return detectionResult{endpoints: filterEndpoints(cached, opts)}
		}
	}

	endpoints, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoEndpointsFound) {
		return detectionResult{err: fmt.Errorf("%s detection: %w", detector.Transport(), err)}
	}

	if opts.EnableCache {
		if len(endpoints) > 0 {
			setCached(detector.Transport(), endpoints)
		} else {
			// a vanished daemon must not be served from cache
			clearCacheForTransport(detector.Transport())
		}
	}
	return detectionResult{endpoints: filterEndpoints(endpoints, opts)}
}

func collectDetectionResults(ctx context.Context, results chan detectionResult, n int) ([]Endpoint, error) {
	var all []Endpoint
	var errs []error

	for range n {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				all = append(all, res.endpoints...)
			}
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(all) > 0 {
		sortByConfidence(all)
		return all, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoEndpointsFound
}

// sortByConfidence orders endpoints best first, keeping detector order for ties
func sortByConfidence(endpoints []Endpoint) {
	slices.SortStableFunc(endpoints, func(a, b Endpoint) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
}

func filterEndpoints(endpoints []Endpoint, opts *Options) []Endpoint {
	if len(opts.IgnoreAddresses) == 0 && len(opts.Blocklist) == 0 {
		return endpoints
	}

	var filtered []Endpoint
	for _, e := range endpoints {
		if IsAddressIgnored(e.Address, opts.IgnoreAddresses) {
			continue
		}
		if vidpid, ok := e.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}

// ClearDetectionCacheForTransport removes cached results for a specific transport
func ClearDetectionCacheForTransport(transport string) {
	clearCacheForTransport(transport)
}
