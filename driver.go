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

// Sub-service names requested from the vendor binder
const (
	ServiceAPDUReader     = "cless"
	ServiceHunter         = "cards"
	ServiceLEDPatterns    = "led_patterns"
	ServiceLEDs           = "leds"
	ServiceSound          = "sound"
	ServiceTextDisplay    = "textDisplay"
	ServiceAuthentication = "authentication"
)

// ExchangeCallback receives the outcome of an asynchronous exchange.
// responses holds one entry per submitted command, possibly none.
type ExchangeCallback func(id int64, ok bool, responses [][]byte)

// APDUReader is the vendor exchange sub-service. Calls return as soon as the
// command is queued; the callback fires later on a driver goroutine, or never.
type APDUReader interface {
	ExchangeWithCard(cardID int64, commands [][]byte, callback ExchangeCallback) error
	ExchangeWithSAM(slotID int64, commands [][]byte, callback ExchangeCallback) error
}

// Payload is the key/value bundle attached to hunt events and hunt configuration
type Payload map[string]any

// HuntListener receives hunt events. The driver delivers one event at a time.
type HuntListener interface {
	ListenerID() string
	OnDetected(data Payload)
	OnRemoved(data Payload)
	OnError(data Payload)
}

// HuntService is the vendor card hunting sub-service
type HuntService interface {
	StartDetection(config Payload) error
	StopDetection() error
	AddEventListener(listener HuntListener) error
	RemoveEventListener(listener HuntListener) error
}

// LEDService drives the validator LEDs
type LEDService interface {
	SetPattern(pattern string) error
}

// SoundService plays validator sounds
type SoundService interface {
	Play(sound string) error
}

// TextDisplay shows customer-facing text
type TextDisplay interface {
	Show(text string) error
}

// ServiceRequest describes one sub-service to join
type ServiceRequest struct {
	Action string
	Type   string
}

// BindCallbacks are invoked by the binder, at most once each
type BindCallbacks struct {
	// OnJoined fires once every requested service has been joined.
	// initDone is false when the driver joined only part of them.
	OnJoined func(initDone bool)
	// OnBindLost fires when the driver drops the binding
	OnBindLost func(service string)
}

// Binder joins the vendor sub-services asynchronously
type Binder interface {
	Bind(services map[string]ServiceRequest, callbacks BindCallbacks) error
	Unbind() error
	// Service returns the joined sub-service, nil when absent
	Service(name string) any
}

// ConfigStore is the persisted device configuration
type ConfigStore interface {
	Get(key string) string
	Set(key, value string) error
	// Observe calls fn after every change of key until cancel is called
	Observe(key string, fn func(key, value string)) (cancel func())
}

// DefaultServiceRequests returns the sub-services the reader binds to
func DefaultServiceRequests() map[string]ServiceRequest {
	return map[string]ServiceRequest{
		ServiceLEDPatterns:    {Action: "com.parkeon.intent.LEDS_PATTERN", Type: "all/all"},
		ServiceLEDs:           {Action: "com.parkeon.intent.LEDS", Type: "all/all"},
		ServiceAuthentication: {Action: "com.parkeon.intent.AUTHENTICATION_SERVICE", Type: "agent/maintenance"},
		ServiceSound:          {Action: "com.parkeon.intent.SOUND_SERVICE"},
		ServiceAPDUReader:     {Action: "com.parkeon.services.card.apdu"},
		ServiceHunter:         {Action: "com.parkeon.intent.HUNT", Type: "hunt/card"},
	}
}
