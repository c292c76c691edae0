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

// Package bridge carries the vendor driver interfaces over a framed
// connection to the driver daemon running on the validator.
package bridge

import (
	"encoding/base64"
	"errors"

	"github.com/ZaparooProject/go-flowbird"
)

// FrameType classifies a frame
type FrameType string

const (
	// FrameRequest asks the daemon to perform a method
	FrameRequest FrameType = "request"
	// FrameResponse completes a request with the same id
	FrameResponse FrameType = "response"
	// FrameCallback delivers the asynchronous outcome of an exchange request
	FrameCallback FrameType = "callback"
	// FrameEvent is an unsolicited daemon notification
	FrameEvent FrameType = "event"
)

// Methods understood by the daemon
const (
	MethodBind                = "bind"
	MethodUnbind              = "unbind"
	MethodExchangeWithCard    = "exchangeWithCard"
	MethodExchangeWithSAM     = "exchangeWithSam"
	MethodStartDetection      = "startDetection"
	MethodStopDetection       = "stopDetection"
	MethodAddEventListener    = "addEventListener"
	MethodRemoveEventListener = "removeEventListener"
	MethodSetPattern          = "setPattern"
	MethodPlay                = "play"
	MethodShow                = "show"
)

// Event names carried in the Method field of event frames
const (
	EventBindLost = "bindLost"
	EventDetected = "detected"
	EventRemoved  = "removed"
	EventError    = "error"
)

// Frame is the unit exchanged with the daemon. Byte slices travel as base64.
type Frame struct {
	Payload   map[string]any                     `json:"payload,omitempty"`
	Services  map[string]flowbird.ServiceRequest `json:"services,omitempty"`
	ID        string                             `json:"id"`
	Type      FrameType                          `json:"type"`
	Service   string                             `json:"service,omitempty"`
	Method    string                             `json:"method,omitempty"`
	Listener  string                             `json:"listener,omitempty"`
	Error     string                             `json:"error,omitempty"`
	Value     string                             `json:"value,omitempty"`
	Joined    []string                           `json:"joined,omitempty"`
	Commands  [][]byte                           `json:"commands,omitempty"`
	Responses [][]byte                           `json:"responses,omitempty"`
	Target    int64                              `json:"target,omitempty"`
	InitDone  bool                               `json:"initDone,omitempty"`
	OK        bool                               `json:"ok,omitempty"`
}

// Conn is a framed, full-duplex connection. WriteFrame may be called
// concurrently with ReadFrame but not with itself.
type Conn interface {
	WriteFrame(frame Frame) error
	ReadFrame() (Frame, error)
	Close() error
}

// ErrClosed is returned by operations on a closed client or connection
var ErrClosed = errors.New("bridge connection closed")

// RemoteError is an error reported by the daemon
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return "daemon " + e.Method + ": " + e.Message
}

// decodeEventPayload restores the values JSON cannot carry natively. DDM
// magnetic tracks arrive as base64 strings.
func decodeEventPayload(data map[string]any) flowbird.Payload {
	payload := flowbird.Payload(data)
	if payload == nil {
		return flowbird.Payload{}
	}
	if payload[flowbird.PayloadKeyPeripheral] == flowbird.PeripheralDDM {
		if track, ok := payload[flowbird.PayloadKeyTrack].(string); ok {
			if raw, err := base64.StdEncoding.DecodeString(track); err == nil {
				payload[flowbird.PayloadKeyTrack] = raw
			}
		}
	}
	return payload
}
