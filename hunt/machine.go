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

// Package hunt turns the events of the vendor card hunting service into
// card inserted and card removed transitions of the contactless reader.
package hunt

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// ErrClosed is returned by operations on a closed machine
var ErrClosed = errors.New("hunt machine closed")

// FeedbackSource lends the UI feedback of the current binding
type FeedbackSource interface {
	Feedback() flowbird.Feedback
}

// Machine is the detection state machine of the contactless antenna.
//
// Every transition happens under one lock. Observer callbacks run after the
// lock is released, with panic recovery, on the goroutine that delivered the
// hunt event.
type Machine struct {
	handles        flowbird.HandleProvider
	store          flowbird.ConfigStore
	feedback       FeedbackSource
	config         *Config
	hunter         *CompetitionHunter
	listener       *listener
	onInserted     func(flowbird.Tag)
	onRemoved      func()
	cancelObserver func()
	tag            flowbird.Tag
	protocol       flowbird.Protocol
	generation     uint64
	state          State
	mu             syncutil.Mutex
	activateMu     syncutil.Mutex
	hasTag         bool
	hasProtocol    bool
	closed         bool
}

var _ flowbird.PresenceSource = (*Machine)(nil)

// NewMachine creates a machine in the Idle state with a fresh hunter
func NewMachine(
	handles flowbird.HandleProvider,
	store flowbird.ConfigStore,
	feedback FeedbackSource,
	config *Config,
) *Machine {
	if config == nil {
		config = DefaultConfig()
	}
	m := &Machine{
		handles:  handles,
		store:    store,
		feedback: feedback,
		config:   config,
		listener: newListener(config.ErrorBackoff),
	}
	m.listener.setSink(m.handleEvent)
	if err := m.Restart(false); err != nil {
		flowbird.Debugf("hunt: initial restart: %v", err)
	}
	return m
}

// SetOnCardInserted sets the callback for when a tag is decoded while hunting
func (m *Machine) SetOnCardInserted(callback func(flowbird.Tag)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInserted = callback
}

// SetOnCardRemoved sets the callback for when the present tag leaves the antenna
func (m *Machine) SetOnCardRemoved(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRemoved = callback
}

// State returns the current detection state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentTag returns the tag on the antenna, ok is false when none is present
func (m *Machine) CurrentTag() (tag flowbird.Tag, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tag, m.hasTag
}

// Restart replaces the hunter with a fresh one, returning to Idle, and
// starts hunting again when start is true. A tag present before the restart
// is reported as removed.
func (m *Machine) Restart(start bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.generation++
	hadCard := m.state == StateCardPresent
	onRemoved := m.onRemoved
	err := m.restartLocked(start)
	m.mu.Unlock()

	if hadCard && onRemoved != nil {
		safeCall("OnCardRemoved", onRemoved)
	}
	if err == nil && start {
		m.display(flowbird.SituationWaiting)
	}
	return err
}

// StartDetection starts hunting from Idle or Hunting. A present or
// undecodable tag must be cleared with StopDetection or Restart first.
func (m *Machine) StartDetection() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.state {
	case StateCardPresent, StateError:
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: start detection from %s", flowbird.ErrInvalidTransition, state)
	case StateIdle, StateHunting:
	}
	m.generation++
	err := m.startLocked()
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.display(flowbird.SituationWaiting)
	return nil
}

// StopDetection stops hunting and forgets the present tag. It does nothing when Idle.
func (m *Machine) StopDetection() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.generation++
	if m.state == StateIdle {
		return nil
	}
	err := m.hunter.StopDetection()
	m.enterIdleLocked()
	if err != nil {
		return fmt.Errorf("failed to stop hunting: %w", err)
	}
	return nil
}

// ActivateProtocol persists key as the current protocol and remembers it.
// Unknown keys fail with ErrUnsupportedProtocol and change nothing.
// Activations are serialised so the store and the machine always agree on
// the last one; it must not be called from a store observer.
func (m *Machine) ActivateProtocol(key string) error {
	protocol, err := flowbird.LookupProtocol(key)
	if err != nil {
		return fmt.Errorf("%w: %w", flowbird.ErrUnsupportedProtocol, err)
	}

	m.activateMu.Lock()
	defer m.activateMu.Unlock()
	if err := m.store.Set(flowbird.KeyCurrentProtocol, protocol.Key()); err != nil {
		return fmt.Errorf("failed to persist protocol %s: %w", protocol, err)
	}

	m.mu.Lock()
	m.protocol = protocol
	m.hasProtocol = true
	m.mu.Unlock()
	flowbird.Debugf("hunt: protocol %s activated", protocol)
	return nil
}

// CurrentProtocol returns the activated protocol, ok is false before any activation
func (m *Machine) CurrentProtocol() (protocol flowbird.Protocol, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.protocol, m.hasProtocol
}

// IsCurrentProtocol reports whether key names the activated protocol
func (m *Machine) IsCurrentProtocol(key string) bool {
	protocol, ok := m.CurrentProtocol()
	return ok && protocol.Key() == key
}

// EnableConfigObserver watches the poll script protocol key. When it changes
// while the persisted current protocol matches the activated one, hunting is
// restarted so that the hunter uses the new poll script.
func (m *Machine) EnableConfigObserver() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.cancelObserver != nil {
		return
	}
	m.cancelObserver = m.store.Observe(flowbird.KeyActiveProtocol, m.onActiveProtocolChanged)
}

func (m *Machine) onActiveProtocolChanged(_, value string) {
	protocol, ok := m.CurrentProtocol()
	if !ok || m.store.Get(flowbird.KeyCurrentProtocol) != protocol.Key() {
		return
	}
	flowbird.Debugf("hunt: poll script switched to %q, restarting", value)
	if err := m.Restart(true); err != nil {
		flowbird.Debugf("hunt: restart after poll script change: %v", err)
	}
}

// Close cancels the config observer, stops hunting and destroys the hunter.
// It is safe to call more than once.
func (m *Machine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.generation++
	if m.cancelObserver != nil {
		m.cancelObserver()
		m.cancelObserver = nil
	}
	m.listener.setSink(nil)
	err := m.hunter.StopDetection()
	_ = m.hunter.RemoveEventListener(m.listener)
	m.hunter.Destroy()
	m.enterIdleLocked()
	if err != nil {
		return fmt.Errorf("failed to stop hunting: %w", err)
	}
	return nil
}

// restartLocked tears the current hunter down and installs a new one
func (m *Machine) restartLocked(start bool) error {
	if m.hunter != nil {
		if err := m.hunter.StopDetection(); err != nil {
			flowbird.Debugf("hunt: stop before restart: %v", err)
		}
		m.hunter.Destroy()
	}
	m.hunter = NewCompetitionHunter()
	_ = m.hunter.AddEventListener(m.listener)
	m.enterIdleLocked()

	if !start {
		return nil
	}
	return m.startLocked()
}

// startLocked joins the bound hunt sub-service to the competition and starts it
func (m *Machine) startLocked() error {
	handle := m.handles.Handle()
	if handle == nil {
		return flowbird.ErrNoHandle
	}
	if err := m.hunter.SetHunters(map[string]flowbird.HuntService{
		m.config.HunterName: handle.Hunter(),
	}); err != nil {
		return fmt.Errorf("failed to configure hunter: %w", err)
	}
	if err := m.hunter.StartDetection(flowbird.Payload{}); err != nil {
		return fmt.Errorf("failed to start hunting: %w", err)
	}
	m.state = StateHunting
	return nil
}

func (m *Machine) enterIdleLocked() {
	m.state = StateIdle
	m.tag = flowbird.Tag{}
	m.hasTag = false
}

// handleEvent applies one hunt event. It runs on the driver's callback goroutine.
func (m *Machine) handleEvent(ev event) {
	switch ev.kind {
	case eventDetected:
		m.handleDetected(ev.tag)
	case eventDecodeFailed:
		m.mu.Lock()
		if m.state == StateHunting {
			m.state = StateError
		}
		m.mu.Unlock()
	case eventRemoved:
		m.handleRemoved()
	}
}

func (m *Machine) handleDetected(tag flowbird.Tag) {
	m.mu.Lock()
	if m.state != StateHunting {
		state := m.state
		m.mu.Unlock()
		flowbird.Debugf("hunt: ignoring detection in state %s", state)
		return
	}
	m.state = StateCardPresent
	m.tag = tag
	m.hasTag = true
	onInserted := m.onInserted
	m.mu.Unlock()

	if onInserted != nil {
		safeCall("OnCardInserted", func() { onInserted(tag) })
	}
}

func (m *Machine) handleRemoved() {
	m.mu.Lock()
	if m.state != StateCardPresent {
		m.mu.Unlock()
		return
	}
	m.enterIdleLocked()
	generation := m.generation
	onRemoved := m.onRemoved
	m.mu.Unlock()

	if onRemoved != nil {
		safeCall("OnCardRemoved", onRemoved)
	}

	// Rearm only if nobody stopped, restarted or closed the machine meanwhile
	m.mu.Lock()
	if m.closed || m.generation != generation {
		m.mu.Unlock()
		return
	}
	m.generation++
	rearm := m.config.RearmOnRemoval
	err := m.restartLocked(rearm)
	m.mu.Unlock()

	if err != nil {
		flowbird.Debugf("hunt: rearm after removal: %v", err)
		return
	}
	if rearm {
		m.display(flowbird.SituationWaiting)
	}
}

func (m *Machine) display(situation string) {
	if m.feedback == nil {
		return
	}
	m.feedback.Feedback().Display(situation)
}

// safeCall executes a callback with panic recovery
func safeCall(name string, callback func()) {
	defer func() {
		if r := recover(); r != nil {
			flowbird.Debugf("hunt: %s callback panicked: %v", name, r)
		}
	}()
	callback()
}
