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

package flowbird

import (
	"fmt"
	"slices"

	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// Persisted configuration keys
const (
	// KeyCurrentProtocol holds the protocol selected through ActivateProtocol
	KeyCurrentProtocol = "/contactless/hunt/pollscript/modes/current"
	// KeyActiveProtocol holds the protocol the hunter poll script runs, changed externally
	KeyActiveProtocol = "/contactless/hunt/pollscript/modes/active"
)

// SAMATRKey returns the key holding the hex encoded ATR of a SAM slot
func SAMATRKey(slot SamSlot) string {
	return fmt.Sprintf("/contactless/sam%d/atr", slot)
}

type observer struct {
	fn func(key, value string)
	id uint64
}

// MemoryStore is an in-process ConfigStore. Observers run synchronously
// after Set, outside the store lock.
type MemoryStore struct {
	values    map[string]string
	observers map[string][]observer
	nextID    uint64
	mu        syncutil.Mutex
}

// NewMemoryStore creates a store seeded with the given values
func NewMemoryStore(values map[string]string) *MemoryStore {
	s := &MemoryStore{
		values:    make(map[string]string, len(values)),
		observers: make(map[string][]observer),
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Get returns the value of key, empty when unset
func (s *MemoryStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores value and notifies the observers of key
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	obs := slices.Clone(s.observers[key])
	s.mu.Unlock()

	for _, o := range obs {
		o.fn(key, value)
	}
	return nil
}

// Observe registers fn for changes of key
func (s *MemoryStore) Observe(key string, fn func(key, value string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.observers[key] = append(s.observers[key], observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.observers[key] = slices.DeleteFunc(s.observers[key], func(o observer) bool {
			return o.id == id
		})
	}
}
