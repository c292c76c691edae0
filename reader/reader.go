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

// Package reader exposes the Flowbird SAM bank and contactless antenna as
// five logical readers registered by one plugin.
package reader

import (
	"context"
	"time"
)

// Reader is the behaviour shared by the SAM and contactless readers
type Reader interface {
	Name() string
	OpenPhysicalChannel() error
	ClosePhysicalChannel() error
	IsPhysicalChannelOpen() bool
	CheckCardPresence() (bool, error)
	IsContactless() bool
	// PowerOnData returns the card's power-on data as uppercase hex
	PowerOnData() string
	// TransmitAPDU sends apdu and returns the response. A successful call
	// never returns a nil slice.
	TransmitAPDU(ctx context.Context, apdu []byte) ([]byte, error)
	OnUnregister()
}

// Observer receives the card events of the contactless reader.
// Calls arrive on driver goroutines.
type Observer interface {
	OnCardInserted(readerName string)
	OnCardRemoved(readerName string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Inserted func(readerName string)
	Removed  func(readerName string)
}

// OnCardInserted implements Observer
func (o ObserverFuncs) OnCardInserted(readerName string) {
	if o.Inserted != nil {
		o.Inserted(readerName)
	}
}

// OnCardRemoved implements Observer
func (o ObserverFuncs) OnCardRemoved(readerName string) {
	if o.Removed != nil {
		o.Removed(readerName)
	}
}

// MonitoringCycleDuration is how often the host should poll reader presence
const MonitoringCycleDuration = 1000 * time.Millisecond
