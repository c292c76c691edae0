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
	"strconv"
	"strings"
)

const (
	// ContactReaderName is the family name of the SAM readers, suffixed with _<slot>.
	ContactReaderName = "FlowbirdContactReader"
	// ContactlessReaderName is the fixed name of the contactless reader.
	ContactlessReaderName = "FlowbirdContactlessReader"
	// PluginName is the name the plugin registers under.
	PluginName = "FlowbirdPlugin"
)

// SamSlot identifies one of the four SAM slots of the contact bank
type SamSlot int

const (
	SamSlotOne   SamSlot = 1
	SamSlotTwo   SamSlot = 2
	SamSlotThree SamSlot = 3
	SamSlotFour  SamSlot = 4
)

// SamSlots lists every SAM slot in ascending order
func SamSlots() []SamSlot {
	return []SamSlot{SamSlotOne, SamSlotTwo, SamSlotThree, SamSlotFour}
}

// Valid returns true for slots 1 to 4
func (s SamSlot) Valid() bool {
	return s >= SamSlotOne && s <= SamSlotFour
}

// TargetKind discriminates the Target union
type TargetKind int

const (
	// TargetSAM addresses a SAM slot
	TargetSAM TargetKind = iota + 1
	// TargetContactless addresses the currently hunted contactless tag
	TargetContactless
)

// Target identifies the physical endpoint an exchange addresses.
// The zero value is invalid.
type Target struct {
	kind   TargetKind
	slot   SamSlot
	cardID int64
}

// SAMTarget returns the target of a SAM slot
func SAMTarget(slot SamSlot) Target {
	return Target{kind: TargetSAM, slot: slot}
}

// ContactlessTarget returns the target of the discovered tag with the given card id
func ContactlessTarget(cardID int64) Target {
	return Target{kind: TargetContactless, cardID: cardID}
}

// Kind returns the target kind
func (t Target) Kind() TargetKind { return t.kind }

// Slot returns the SAM slot, zero for contactless targets
func (t Target) Slot() SamSlot { return t.slot }

// CardID returns the card id used by the contactless exchange entry point
func (t Target) CardID() int64 { return t.cardID }

// Valid returns true if the target addresses a real endpoint
func (t Target) Valid() bool {
	switch t.kind {
	case TargetSAM:
		return t.slot.Valid()
	case TargetContactless:
		return true
	default:
		return false
	}
}

// endpoint is the single-flight key: one SAM slot or the contactless antenna.
// The card id is not part of the key.
type endpoint struct {
	kind TargetKind
	slot SamSlot
}

func (t Target) endpoint() endpoint {
	return endpoint{kind: t.kind, slot: t.slot}
}

func (t Target) String() string {
	switch t.kind {
	case TargetSAM:
		return fmt.Sprintf("sam[%d]", t.slot)
	case TargetContactless:
		return fmt.Sprintf("contactless[%d]", t.cardID)
	default:
		return "invalid"
	}
}

// ReaderName returns the stable logical reader name of the target
func (t Target) ReaderName() string {
	if t.kind == TargetContactless {
		return ContactlessReaderName
	}
	return SAMReaderName(t.slot)
}

// SAMReaderName returns the logical reader name of a SAM slot
func SAMReaderName(slot SamSlot) string {
	return ContactReaderName + "_" + strconv.Itoa(int(slot))
}

// parseSAMReaderName extracts the slot from a <family>_<slot> reader name
func parseSAMReaderName(name string) (SamSlot, bool) {
	suffix, ok := strings.CutPrefix(name, ContactReaderName+"_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	slot := SamSlot(n)
	return slot, slot.Valid()
}
