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
	"maps"
	"slices"
)

// Handle references every bound vendor sub-service. It is created by
// Lifecycle.Initialize and never modified afterwards, so it can be shared
// by concurrent callers without locking.
type Handle struct {
	binder   Binder
	reader   APDUReader
	services map[string]any
	atrs     map[SamSlot][]byte
}

// HandleProvider lends the current handle. Handle returns nil once the
// binding is torn down; callers must not cache it.
type HandleProvider interface {
	Handle() *Handle
}

// Reader returns the mandatory APDU exchange sub-service
func (h *Handle) Reader() APDUReader {
	return h.reader
}

// Service returns the sub-service bound under name, nil if the driver did not provide it
func (h *Handle) Service(name string) any {
	return h.services[name]
}

// Hunter returns the card hunting sub-service, nil if unavailable
func (h *Handle) Hunter() HuntService {
	hunter, _ := h.services[ServiceHunter].(HuntService)
	return hunter
}

// ATR returns a copy of the Answer-To-Reset of a SAM slot, empty when unknown
func (h *Handle) ATR(slot SamSlot) []byte {
	return append([]byte{}, h.atrs[slot]...)
}

// ServiceNames returns the sorted names of the resolved sub-services
func (h *Handle) ServiceNames() []string {
	return slices.Sorted(maps.Keys(h.services))
}
