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
)

// PresenceSource reports the tag currently on the antenna
type PresenceSource interface {
	CurrentTag() (Tag, bool)
}

// SlotRegistry maps logical reader names to exchange targets and answers
// presence queries for them.
type SlotRegistry struct {
	handles  HandleProvider
	presence PresenceSource
}

// NewSlotRegistry creates a registry. presence may be nil when no hunt
// machine is available, in which case the contactless reader never resolves.
func NewSlotRegistry(handles HandleProvider, presence PresenceSource) *SlotRegistry {
	return &SlotRegistry{handles: handles, presence: presence}
}

// Resolve returns the target serving the named reader. The contactless
// reader only resolves while a tag with a card id is present.
func (r *SlotRegistry) Resolve(name string) (Target, error) {
	if slot, ok := parseSAMReaderName(name); ok {
		return SAMTarget(slot), nil
	}
	if name != ContactlessReaderName {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownReader, name)
	}

	tag, ok := r.currentTag()
	if !ok {
		return Target{}, ErrTagNotPresent
	}
	cardID, ok := tag.CardID()
	if !ok {
		return Target{}, fmt.Errorf("%w: %s tag has no card id", ErrTagNotPresent, tag.CustomerType())
	}
	return ContactlessTarget(cardID), nil
}

// IsPresent reports whether a card sits behind target. A SAM is present
// when the binding is up and its slot reported a non-empty ATR.
func (r *SlotRegistry) IsPresent(target Target) bool {
	switch target.Kind() {
	case TargetSAM:
		handle := r.handles.Handle()
		return handle != nil && target.Slot().Valid() && len(handle.ATR(target.Slot())) > 0
	case TargetContactless:
		_, ok := r.currentTag()
		return ok
	default:
		return false
	}
}

// Names returns every logical reader name, SAM slots first
func (*SlotRegistry) Names() []string {
	names := make([]string, 0, len(SamSlots())+1)
	for _, slot := range SamSlots() {
		names = append(names, SAMReaderName(slot))
	}
	return append(names, ContactlessReaderName)
}

func (r *SlotRegistry) currentTag() (Tag, bool) {
	if r.presence == nil {
		return Tag{}, false
	}
	return r.presence.CurrentTag()
}
