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
	"slices"
	"time"

	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

type cacheEntry struct {
	timestamp time.Time
	endpoints []Endpoint
}

// endpointCache holds the last results per transport
type endpointCache struct {
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &endpointCache{
	entries: make(map[string]cacheEntry),
}

// getCached returns a copy of the cached endpoints when younger than ttl
func getCached(transport string, ttl time.Duration) ([]Endpoint, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	entry, ok := cache.entries[transport]
	if !ok || time.Since(entry.timestamp) > ttl {
		return nil, false
	}
	return slices.Clone(entry.endpoints), true
}

func setCached(transport string, endpoints []Endpoint) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries[transport] = cacheEntry{
		endpoints: slices.Clone(endpoints),
		timestamp: time.Now(),
	}
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries = make(map[string]cacheEntry)
}

func clearCacheForTransport(transport string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	delete(cache.entries, transport)
}
