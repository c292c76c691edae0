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

package reader

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-flowbird"
)

// SAMReader is the contact reader of one SAM slot
type SAMReader struct {
	handles  flowbird.HandleProvider
	tx       *flowbird.Transceiver
	registry *flowbird.SlotRegistry
	slot     flowbird.SamSlot
	timeout  time.Duration
	open     atomic.Bool
}

var _ Reader = (*SAMReader)(nil)

func newSAMReader(
	slot flowbird.SamSlot,
	handles flowbird.HandleProvider,
	tx *flowbird.Transceiver,
	registry *flowbird.SlotRegistry,
	timeout time.Duration,
) *SAMReader {
	return &SAMReader{slot: slot, handles: handles, tx: tx, registry: registry, timeout: timeout}
}

// Name returns FlowbirdContactReader_<slot>
func (r *SAMReader) Name() string {
	return flowbird.SAMReaderName(r.slot)
}

// Slot returns the SAM slot served by the reader
func (r *SAMReader) Slot() flowbird.SamSlot {
	return r.slot
}

// OpenPhysicalChannel marks the channel open. The SAM is powered by the driver.
func (r *SAMReader) OpenPhysicalChannel() error {
	r.open.Store(true)
	return nil
}

// ClosePhysicalChannel marks the channel closed
func (r *SAMReader) ClosePhysicalChannel() error {
	r.open.Store(false)
	return nil
}

// IsPhysicalChannelOpen reports the channel flag
func (r *SAMReader) IsPhysicalChannelOpen() bool {
	return r.open.Load()
}

// CheckCardPresence reports whether the slot holds a SAM with a known ATR
func (r *SAMReader) CheckCardPresence() (bool, error) {
	return r.registry.IsPresent(flowbird.SAMTarget(r.slot)), nil
}

// IsContactless returns false
func (*SAMReader) IsContactless() bool {
	return false
}

// PowerOnData returns the SAM ATR as uppercase hex, empty when unbound or unknown
func (r *SAMReader) PowerOnData() string {
	handle := r.handles.Handle()
	if handle == nil {
		return ""
	}
	return fmt.Sprintf("%X", handle.ATR(r.slot))
}

// TransmitAPDU exchanges apdu with the SAM
func (r *SAMReader) TransmitAPDU(ctx context.Context, apdu []byte) ([]byte, error) {
	resp, err := r.tx.Transmit(ctx, flowbird.SAMTarget(r.slot), apdu, r.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Name(), err)
	}
	return resp, nil
}

// OnUnregister does nothing; the contactless reader owns the binding teardown
func (*SAMReader) OnUnregister() {}
