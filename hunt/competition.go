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

package hunt

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// CompetitionHunter runs several hunt sub-services at once. The first one to
// detect media wins and the others are stopped until the next start.
// It is itself a flowbird.HuntService.
type CompetitionHunter struct {
	hunters   map[string]flowbird.HuntService
	members   map[string]*member
	listeners []flowbird.HuntListener
	mu        syncutil.Mutex
}

var _ flowbird.HuntService = (*CompetitionHunter)(nil)

// NewCompetitionHunter creates a hunter with no members
func NewCompetitionHunter() *CompetitionHunter {
	return &CompetitionHunter{
		hunters: make(map[string]flowbird.HuntService),
		members: make(map[string]*member),
	}
}

// member relays the events of one competing hunter
type member struct {
	owner *CompetitionHunter
	name  string
}

func (m *member) ListenerID() string { return ListenerID + "/" + m.name }

func (m *member) OnDetected(data flowbird.Payload) {
	m.owner.stopOthers(m.name)
	for _, l := range m.owner.snapshot() {
		l.OnDetected(data)
	}
}

func (m *member) OnRemoved(data flowbird.Payload) {
	for _, l := range m.owner.snapshot() {
		l.OnRemoved(data)
	}
}

func (m *member) OnError(data flowbird.Payload) {
	for _, l := range m.owner.snapshot() {
		l.OnError(data)
	}
}

// Reset detaches and forgets every member hunter
func (c *CompetitionHunter) Reset() {
	c.mu.Lock()
	hunters, members := c.hunters, c.members
	c.hunters = make(map[string]flowbird.HuntService)
	c.members = make(map[string]*member)
	c.mu.Unlock()

	for name, hunter := range hunters {
		if err := hunter.RemoveEventListener(members[name]); err != nil {
			flowbird.Debugf("hunt: failed to detach %s: %v", name, err)
		}
	}
}

// SetHunters replaces the member hunters. Nil entries are skipped, matching
// sub-services the driver did not provide.
func (c *CompetitionHunter) SetHunters(hunters map[string]flowbird.HuntService) error {
	c.Reset()

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(hunters)) {
		hunter := hunters[name]
		if hunter == nil {
			flowbird.Debugf("hunt: hunter %q unavailable", name)
			continue
		}
		m := &member{owner: c, name: name}
		if err := hunter.AddEventListener(m); err != nil {
			errs = append(errs, fmt.Errorf("failed to attach hunter %q: %w", name, err))
			continue
		}
		c.mu.Lock()
		c.hunters[name] = hunter
		c.members[name] = m
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Hunters returns the sorted names of the member hunters
func (c *CompetitionHunter) Hunters() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.hunters))
}

// StartDetection starts every member with config
func (c *CompetitionHunter) StartDetection(config flowbird.Payload) error {
	hunters := c.hunterSnapshot()
	if len(hunters) == 0 {
		return fmt.Errorf("%w: no hunter to start", flowbird.ErrServiceUnavailable)
	}
	var errs []error
	for name, hunter := range hunters {
		if err := hunter.StartDetection(config); err != nil {
			errs = append(errs, fmt.Errorf("hunter %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// StopDetection stops every member
func (c *CompetitionHunter) StopDetection() error {
	var errs []error
	for name, hunter := range c.hunterSnapshot() {
		if err := hunter.StopDetection(); err != nil {
			errs = append(errs, fmt.Errorf("hunter %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// AddEventListener implements flowbird.HuntService
func (c *CompetitionHunter) AddEventListener(listener flowbird.HuntListener) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.listeners {
		if l.ListenerID() == listener.ListenerID() {
			return nil
		}
	}
	c.listeners = append(c.listeners, listener)
	return nil
}

// RemoveEventListener implements flowbird.HuntService
func (c *CompetitionHunter) RemoveEventListener(listener flowbird.HuntListener) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = slices.DeleteFunc(c.listeners, func(l flowbird.HuntListener) bool {
		return l.ListenerID() == listener.ListenerID()
	})
	return nil
}

// Destroy stops and detaches every member and drops the listeners
func (c *CompetitionHunter) Destroy() {
	if err := c.StopDetection(); err != nil {
		flowbird.Debugf("hunt: stop on destroy: %v", err)
	}
	c.Reset()
	c.mu.Lock()
	c.listeners = nil
	c.mu.Unlock()
}

func (c *CompetitionHunter) stopOthers(winner string) {
	for name, hunter := range c.hunterSnapshot() {
		if name == winner {
			continue
		}
		if err := hunter.StopDetection(); err != nil {
			flowbird.Debugf("hunt: failed to stop %s: %v", name, err)
		}
	}
}

func (c *CompetitionHunter) hunterSnapshot() map[string]flowbird.HuntService {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.hunters)
}

func (c *CompetitionHunter) snapshot() []flowbird.HuntListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.listeners)
}
