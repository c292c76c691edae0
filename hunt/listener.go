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
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-flowbird"
)

// eventKind classifies the events delivered to the machine
type eventKind int

const (
	eventDetected eventKind = iota
	eventDecodeFailed
	eventRemoved
)

// event is the result of one hunt callback
type event struct {
	err  error
	tag  flowbird.Tag
	kind eventKind
}

// listener adapts the hunt service callbacks to machine events. The sink
// may be swapped while the driver is delivering.
type listener struct {
	sink    atomic.Pointer[func(event)]
	backoff time.Duration
}

var _ flowbird.HuntListener = (*listener)(nil)

func newListener(backoff time.Duration) *listener {
	return &listener{backoff: backoff}
}

func (l *listener) setSink(sink func(event)) {
	if sink == nil {
		l.sink.Store(nil)
		return
	}
	l.sink.Store(&sink)
}

func (l *listener) deliver(ev event) {
	if sink := l.sink.Load(); sink != nil {
		(*sink)(ev)
	}
}

// ListenerID implements flowbird.HuntListener
func (*listener) ListenerID() string { return ListenerID }

// OnDetected implements flowbird.HuntListener
func (l *listener) OnDetected(data flowbird.Payload) {
	tag, err := flowbird.DecodeTag(data)
	if err != nil {
		flowbird.Debugf("hunt: undecodable detection: %v", err)
		l.deliver(event{kind: eventDecodeFailed, err: err})
		return
	}
	flowbird.Debugf("hunt: detected %s", tag)
	l.deliver(event{kind: eventDetected, tag: tag})
}

// OnRemoved implements flowbird.HuntListener
func (l *listener) OnRemoved(flowbird.Payload) {
	flowbird.Debugln("hunt: media removed")
	l.deliver(event{kind: eventRemoved})
}

// OnError implements flowbird.HuntListener. The driver reports transient
// antenna errors here; they are throttled and logged, never acted upon.
func (l *listener) OnError(data flowbird.Payload) {
	time.Sleep(l.backoff)
	flowbird.Debugf("hunt: driver error event %v", map[string]any(data))
}
