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

// Package testing provides a simulated Flowbird vendor driver: a binder,
// an APDU exchange service, a hunt service and the UI sub-services.
package testing

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// ErrSimulated is returned by fakes configured to fail
var ErrSimulated = errors.New("simulated driver failure")

// FakeBinder simulates the asynchronous service binder
type FakeBinder struct {
	services  map[string]any
	requested map[string]flowbird.ServiceRequest
	callbacks flowbird.BindCallbacks
	// JoinDelay is how long after Bind the join callback fires
	JoinDelay time.Duration
	// BindErr is returned by Bind when set
	BindErr error
	// LoseService makes the binder report the loss of this service instead of joining
	LoseService string
	// NeverJoin keeps the binder silent after Bind
	NeverJoin bool
	binds     int
	unbinds   int
	mu        syncutil.Mutex
}

// NewFakeBinder creates a binder that joins services
func NewFakeBinder(services map[string]any) *FakeBinder {
	return &FakeBinder{services: services}
}

// NewDriver creates a binder joining a complete simulated driver
func NewDriver() (*FakeBinder, *FakeAPDUReader, *FakeHunt) {
	reader := NewFakeAPDUReader()
	hunt := NewFakeHunt()
	binder := NewFakeBinder(map[string]any{
		flowbird.ServiceAPDUReader: reader,
		flowbird.ServiceHunter:     hunt,
		flowbird.ServiceLEDs:       &FakeLED{},
		flowbird.ServiceSound:      &FakeSound{},
	})
	return binder, reader, hunt
}

// Bind implements flowbird.Binder
func (b *FakeBinder) Bind(services map[string]flowbird.ServiceRequest, callbacks flowbird.BindCallbacks) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.binds++
	if b.BindErr != nil {
		return b.BindErr
	}
	b.requested = services
	b.callbacks = callbacks
	if b.NeverJoin {
		return nil
	}

	initDone := true
	for name := range services {
		if _, ok := b.services[name]; !ok {
			initDone = false
		}
	}
	delay, lost := b.JoinDelay, b.LoseService
	go func() {
		time.Sleep(delay)
		if lost != "" {
			if callbacks.OnBindLost != nil {
				callbacks.OnBindLost(lost)
			}
			return
		}
		if callbacks.OnJoined != nil {
			callbacks.OnJoined(initDone)
		}
	}()
	return nil
}

// Unbind implements flowbird.Binder
func (b *FakeBinder) Unbind() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbinds++
	return nil
}

// Service implements flowbird.Binder
func (b *FakeBinder) Service(name string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	svc, ok := b.services[name]
	if !ok {
		return nil
	}
	return svc
}

// DropService removes a service from the simulated driver
func (b *FakeBinder) DropService(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.services, name)
}

// LoseBinding fires the bind-lost callback of the last Bind
func (b *FakeBinder) LoseBinding(service string) {
	b.mu.Lock()
	cb := b.callbacks.OnBindLost
	b.mu.Unlock()
	if cb != nil {
		cb(service)
	}
}

// Requested returns the service requests of the last Bind
func (b *FakeBinder) Requested() map[string]flowbird.ServiceRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requested
}

// Binds returns how many times Bind was called
func (b *FakeBinder) Binds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.binds
}

// Unbinds returns how many times Unbind was called
func (b *FakeBinder) Unbinds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unbinds
}

// Exchange is one call received by FakeAPDUReader
type Exchange struct {
	Endpoint string
	Commands [][]byte
	ID       int64
}

// Responder computes the reply of an exchange. ok is passed through to the
// callback. Returning deliver=false drops the callback entirely.
type Responder func(ex Exchange) (responses [][]byte, ok, deliver bool)

// HeldExchange is an exchange whose callback waits for the test to release it
type HeldExchange struct {
	callback flowbird.ExchangeCallback
	reader   *FakeAPDUReader
	Exchange
}

// Deliver fires the held callback with responses
func (h HeldExchange) Deliver(responses [][]byte) {
	h.reader.finish(h.Endpoint)
	h.callback(h.ID, true, responses)
}

// FakeAPDUReader simulates the asynchronous APDU exchange service.
// By default every command is echoed back with 9000 appended.
type FakeAPDUReader struct {
	respond   Responder
	delays    map[string]time.Duration
	inFlight  map[string]int
	maxFlight map[string]int
	submitErr error
	calls     []Exchange
	held      []HeldExchange
	hold      bool
	mu        syncutil.Mutex
}

// NewFakeAPDUReader creates an exchange service answering immediately
func NewFakeAPDUReader() *FakeAPDUReader {
	return &FakeAPDUReader{
		respond:   EchoResponder,
		delays:    make(map[string]time.Duration),
		inFlight:  make(map[string]int),
		maxFlight: make(map[string]int),
	}
}

// EchoResponder answers every command with itself followed by 9000
func EchoResponder(ex Exchange) (responses [][]byte, ok, deliver bool) {
	for _, cmd := range ex.Commands {
		responses = append(responses, append(slices.Clone(cmd), 0x90, 0x00))
	}
	return responses, true, true
}

// SAMEndpoint returns the endpoint name of a SAM slot
func SAMEndpoint(slot int64) string {
	return fmt.Sprintf("sam%d", slot)
}

// CardEndpoint is the endpoint name of the contactless antenna
const CardEndpoint = "card"

// SetResponder replaces the reply function
func (r *FakeAPDUReader) SetResponder(respond Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.respond = respond
}

// SetDelay delays the callbacks of an endpoint
func (r *FakeAPDUReader) SetDelay(endpoint string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays[endpoint] = delay
}

// SetSubmitError makes every exchange call fail synchronously
func (r *FakeAPDUReader) SetSubmitError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitErr = err
}

// Hold queues callbacks instead of delivering them
func (r *FakeAPDUReader) Hold(hold bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hold = hold
}

// Held returns and clears the queued callbacks
func (r *FakeAPDUReader) Held() []HeldExchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	held := r.held
	r.held = nil
	return held
}

// Calls returns every exchange received so far
func (r *FakeAPDUReader) Calls() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// MaxInFlight returns the highest number of concurrent exchanges seen on an endpoint
func (r *FakeAPDUReader) MaxInFlight(endpoint string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxFlight[endpoint]
}

// ExchangeWithCard implements flowbird.APDUReader
func (r *FakeAPDUReader) ExchangeWithCard(cardID int64, commands [][]byte, cb flowbird.ExchangeCallback) error {
	return r.submit(Exchange{Endpoint: CardEndpoint, ID: cardID, Commands: commands}, cb)
}

// ExchangeWithSAM implements flowbird.APDUReader
func (r *FakeAPDUReader) ExchangeWithSAM(slotID int64, commands [][]byte, cb flowbird.ExchangeCallback) error {
	return r.submit(Exchange{Endpoint: SAMEndpoint(slotID), ID: slotID, Commands: commands}, cb)
}

func (r *FakeAPDUReader) submit(ex Exchange, cb flowbird.ExchangeCallback) error {
	r.mu.Lock()
	r.calls = append(r.calls, ex)
	if r.submitErr != nil {
		err := r.submitErr
		r.mu.Unlock()
		return err
	}
	r.inFlight[ex.Endpoint]++
	r.maxFlight[ex.Endpoint] = max(r.maxFlight[ex.Endpoint], r.inFlight[ex.Endpoint])
	if r.hold {
		r.held = append(r.held, HeldExchange{Exchange: ex, callback: cb, reader: r})
		r.mu.Unlock()
		return nil
	}
	respond, delay := r.respond, r.delays[ex.Endpoint]
	r.mu.Unlock()

	go func() {
		time.Sleep(delay)
		responses, ok, deliver := respond(ex)
		r.finish(ex.Endpoint)
		if deliver {
			cb(ex.ID, ok, responses)
		}
	}()
	return nil
}

func (r *FakeAPDUReader) finish(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[endpoint]--
}

// FakeHunt simulates the card hunting service
type FakeHunt struct {
	listeners []flowbird.HuntListener
	configs   []flowbird.Payload
	startErr  error
	stops     int
	hunting   bool
	mu        syncutil.Mutex
}

// NewFakeHunt creates an idle hunt service
func NewFakeHunt() *FakeHunt {
	return &FakeHunt{}
}

// StartDetection implements flowbird.HuntService
func (h *FakeHunt) StartDetection(config flowbird.Payload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startErr != nil {
		return h.startErr
	}
	h.configs = append(h.configs, config)
	h.hunting = true
	return nil
}

// StopDetection implements flowbird.HuntService
func (h *FakeHunt) StopDetection() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.hunting = false
	return nil
}

// AddEventListener implements flowbird.HuntService
func (h *FakeHunt) AddEventListener(listener flowbird.HuntListener) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.listeners {
		if l.ListenerID() == listener.ListenerID() {
			return nil
		}
	}
	h.listeners = append(h.listeners, listener)
	return nil
}

// RemoveEventListener implements flowbird.HuntService
func (h *FakeHunt) RemoveEventListener(listener flowbird.HuntListener) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = slices.DeleteFunc(h.listeners, func(l flowbird.HuntListener) bool {
		return l.ListenerID() == listener.ListenerID()
	})
	return nil
}

// SetStartError makes StartDetection fail
func (h *FakeHunt) SetStartError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startErr = err
}

// Hunting reports whether detection is running
func (h *FakeHunt) Hunting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hunting
}

// Starts returns how many times detection was started
func (h *FakeHunt) Starts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.configs)
}

// Stops returns how many times detection was stopped
func (h *FakeHunt) Stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

// Listeners returns how many listeners are registered
func (h *FakeHunt) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// EmitDetected delivers a detection event to every listener
func (h *FakeHunt) EmitDetected(data flowbird.Payload) {
	for _, l := range h.snapshot() {
		l.OnDetected(data)
	}
}

// EmitRemoved delivers a removal event to every listener
func (h *FakeHunt) EmitRemoved() {
	for _, l := range h.snapshot() {
		l.OnRemoved(flowbird.Payload{})
	}
}

// EmitError delivers an error event to every listener
func (h *FakeHunt) EmitError(data flowbird.Payload) {
	for _, l := range h.snapshot() {
		l.OnError(data)
	}
}

func (h *FakeHunt) snapshot() []flowbird.HuntListener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.listeners)
}

// ContactlessPayload builds a contactless detection payload
func ContactlessPayload(cardID int64, atr string) flowbird.Payload {
	return flowbird.Payload{
		flowbird.PayloadKeyType:       string(flowbird.CustomerContactless),
		flowbird.PayloadKeyPeripheral: "CLESS",
		flowbird.PayloadKeyID:         cardID,
		flowbird.PayloadKeyATR:        atr,
	}
}

// recorder keeps the values passed to a UI sub-service
type recorder struct {
	values []string
	err    error
	mu     syncutil.Mutex
}

func (r *recorder) record(value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, value)
	return r.err
}

// Values returns the recorded values
func (r *recorder) Values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.values)
}

// Fail makes later calls return err after recording
func (r *recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// FakeLED records LED patterns
type FakeLED struct{ recorder }

// SetPattern implements flowbird.LEDService
func (l *FakeLED) SetPattern(pattern string) error { return l.record(pattern) }

// FakeSound records played sounds
type FakeSound struct{ recorder }

// Play implements flowbird.SoundService
func (s *FakeSound) Play(sound string) error { return s.record(sound) }

// FakeText records displayed texts
type FakeText struct{ recorder }

// Show implements flowbird.TextDisplay
func (t *FakeText) Show(text string) error { return t.record(text) }
