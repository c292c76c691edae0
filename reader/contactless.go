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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/hunt"
)

// ContactlessReader is the reader of the contactless antenna. Card
// detection is autonomous: the hunt machine notifies the observer.
type ContactlessReader struct {
	lifecycle *flowbird.Lifecycle
	machine   *hunt.Machine
	tx        *flowbird.Transceiver
	registry  *flowbird.SlotRegistry
	observer  atomic.Pointer[Observer]
	timeout   time.Duration
	open      atomic.Bool
}

var _ Reader = (*ContactlessReader)(nil)

func newContactlessReader(
	lifecycle *flowbird.Lifecycle,
	machine *hunt.Machine,
	tx *flowbird.Transceiver,
	registry *flowbird.SlotRegistry,
	timeout time.Duration,
) *ContactlessReader {
	r := &ContactlessReader{
		lifecycle: lifecycle,
		machine:   machine,
		tx:        tx,
		registry:  registry,
		timeout:   timeout,
	}
	machine.SetOnCardInserted(func(tag flowbird.Tag) {
		flowbird.Debugf("%s: card inserted %s", r.Name(), tag)
		if o := r.observer.Load(); o != nil {
			(*o).OnCardInserted(r.Name())
		}
	})
	machine.SetOnCardRemoved(func() {
		flowbird.Debugf("%s: card removed", r.Name())
		if o := r.observer.Load(); o != nil {
			(*o).OnCardRemoved(r.Name())
		}
	})
	return r
}

// Name returns FlowbirdContactlessReader
func (*ContactlessReader) Name() string {
	return flowbird.ContactlessReaderName
}

// SetObserver replaces the card event observer, nil removes it
func (r *ContactlessReader) SetObserver(observer Observer) {
	if observer == nil {
		r.observer.Store(nil)
		return
	}
	r.observer.Store(&observer)
}

// OpenPhysicalChannel marks the channel open
func (r *ContactlessReader) OpenPhysicalChannel() error {
	r.open.Store(true)
	return nil
}

// ClosePhysicalChannel marks the channel closed
func (r *ContactlessReader) ClosePhysicalChannel() error {
	r.open.Store(false)
	return nil
}

// IsPhysicalChannelOpen reports the channel flag
func (r *ContactlessReader) IsPhysicalChannelOpen() bool {
	return r.open.Load()
}

// CheckCardPresence reports whether a tag is on the antenna
func (r *ContactlessReader) CheckCardPresence() (bool, error) {
	return r.registry.IsPresent(flowbird.ContactlessTarget(0)), nil
}

// IsContactless returns true
func (*ContactlessReader) IsContactless() bool {
	return true
}

// PowerOnData is empty; the contactless ATR is reported through CurrentTag
func (*ContactlessReader) PowerOnData() string {
	return ""
}

// CurrentTag returns the tag on the antenna
func (r *ContactlessReader) CurrentTag() (flowbird.Tag, bool) {
	return r.machine.CurrentTag()
}

// TransmitAPDU exchanges apdu with the tag on the antenna
func (r *ContactlessReader) TransmitAPDU(ctx context.Context, apdu []byte) ([]byte, error) {
	target, err := r.registry.Resolve(r.Name())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Name(), err)
	}
	resp, err := r.tx.Transmit(ctx, target, apdu, r.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Name(), err)
	}
	return resp, nil
}

// IsProtocolSupported reports whether protocol is one of ALL, A and B
func (*ContactlessReader) IsProtocolSupported(protocol string) bool {
	return flowbird.IsProtocolSupported(protocol)
}

// ActivateProtocol selects and persists the hunt protocol
func (r *ContactlessReader) ActivateProtocol(protocol string) error {
	return r.machine.ActivateProtocol(protocol)
}

// DeactivateProtocol does nothing; the last activated protocol stays current
func (*ContactlessReader) DeactivateProtocol(string) error {
	return nil
}

// IsCurrentProtocol reports whether protocol is the activated one
func (r *ContactlessReader) IsCurrentProtocol(protocol string) bool {
	return r.machine.IsCurrentProtocol(protocol)
}

// StartDetection starts hunting. After an undecodable detection the hunter
// is rebuilt first.
func (r *ContactlessReader) StartDetection() error {
	if r.machine.State() == hunt.StateError {
		return r.machine.Restart(true)
	}
	err := r.machine.StartDetection()
	if errors.Is(err, flowbird.ErrInvalidTransition) && r.machine.State() == hunt.StateError {
		return r.machine.Restart(true)
	}
	return err
}

// StopDetection stops hunting
func (r *ContactlessReader) StopDetection() error {
	return r.machine.StopDetection()
}

// OnUnregister closes the hunt machine and tears the driver binding down
func (r *ContactlessReader) OnUnregister() {
	if err := r.machine.Close(); err != nil {
		flowbird.Debugf("%s: close hunt: %v", r.Name(), err)
	}
	if err := r.lifecycle.Teardown(); err != nil {
		flowbird.Debugf("%s: teardown: %v", r.Name(), err)
	}
}
