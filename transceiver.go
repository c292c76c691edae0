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
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

const (
	// DefaultExchangeTimeout bounds a single card or SAM exchange
	DefaultExchangeTimeout = 1000 * time.Millisecond
	// DefaultBindTimeout bounds the one-time binding to the vendor services
	DefaultBindTimeout = 2000 * time.Millisecond
)

// TransceiverStats counts exchange outcomes
type TransceiverStats struct {
	Exchanges     int64 // Calls submitted to the driver
	Timeouts      int64 // Calls abandoned after their timeout
	LateResponses int64 // Callbacks dropped because their call was already over
}

// Transceiver turns the callback-based exchange entry points of the driver
// into blocking calls with a deadline. At most one exchange is in flight per
// endpoint; exchanges on different endpoints run independently.
type Transceiver struct {
	handles HandleProvider
	slots   map[endpoint]chan struct{}
	stats   struct {
		exchanges     atomic.Int64
		timeouts      atomic.Int64
		lateResponses atomic.Int64
	}
	mu syncutil.Mutex
}

// NewTransceiver creates a transceiver borrowing the handle from handles
func NewTransceiver(handles HandleProvider) *Transceiver {
	return &Transceiver{
		handles: handles,
		slots:   make(map[endpoint]chan struct{}),
	}
}

// Stats returns a snapshot of the exchange counters
func (t *Transceiver) Stats() TransceiverStats {
	return TransceiverStats{
		Exchanges:     t.stats.exchanges.Load(),
		Timeouts:      t.stats.timeouts.Load(),
		LateResponses: t.stats.lateResponses.Load(),
	}
}

// Transmit sends command to target and waits up to timeout for the response.
// A timeout of zero or less selects DefaultExchangeTimeout.
//
// Transmit must not be called from the UI loop; doing so returns
// ErrWrongThread without touching the hardware.
func (t *Transceiver) Transmit(ctx context.Context, target Target, command []byte, timeout time.Duration) ([]byte, error) {
	if onUIThread(ctx) {
		return nil, ErrWrongThread
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: invalid target %s", ErrInvalidCommand, target)
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: empty command for %s", ErrInvalidCommand, target)
	}
	handle := t.handles.Handle()
	if handle == nil {
		return nil, ErrNoHandle
	}
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}

	if err := t.acquire(ctx, target.endpoint()); err != nil {
		return nil, err
	}
	defer t.release(target.endpoint())

	return t.exchange(ctx, handle.Reader(), target, command, timeout)
}

// exchange submits one command and waits for its delivery slot.
// The caller holds the endpoint.
func (t *Transceiver) exchange(
	ctx context.Context,
	reader APDUReader,
	target Target,
	command []byte,
	timeout time.Duration,
) ([]byte, error) {
	delivery := newDelivery()
	callback := func(_ int64, ok bool, responses [][]byte) {
		if !delivery.deliver(firstResponse(responses)) {
			t.stats.lateResponses.Add(1)
			Debugf("%s: dropped late response (%d entries)", target, len(responses))
			return
		}
		Debugf("%s: exchange result %t [number of responses: %d]", target, ok, len(responses))
	}

	Debugf("%s: SEND --> [%s]", target, hexUpper(command))
	start := time.Now()
	t.stats.exchanges.Add(1)

	commands := [][]byte{append([]byte{}, command...)}
	var err error
	op := "ExchangeWithSAM"
	if target.Kind() == TargetSAM {
		err = reader.ExchangeWithSAM(int64(target.Slot()), commands, callback)
	} else {
		op = "ExchangeWithCard"
		err = reader.ExchangeWithCard(target.CardID(), commands, callback)
	}
	if err != nil {
		delivery.retire()
		return nil, &ExchangeError{Op: op, Target: target, Err: fmt.Errorf("%w: %w", ErrExchangeFailed, err)}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-delivery.ch:
		Debugf("%s: RECV <-- [%s] in %v", target, hexUpper(response), time.Since(start))
		return response, nil
	case <-timer.C:
		if delivery.retire() {
			t.stats.timeouts.Add(1)
			return nil, fmt.Errorf("%w: %s after %v", ErrExchangeTimeout, target, timeout)
		}
		// The callback won the race against the timer
		return <-delivery.ch, nil
	case <-ctx.Done():
		if delivery.retire() {
			return nil, fmt.Errorf("exchange with %s cancelled: %w", target, ctx.Err())
		}
		return <-delivery.ch, nil
	}
}

// acquire takes the single-flight slot of an endpoint
func (t *Transceiver) acquire(ctx context.Context, ep endpoint) error {
	t.mu.Lock()
	slot, ok := t.slots[ep]
	if !ok {
		slot = make(chan struct{}, 1)
		t.slots[ep] = slot
	}
	t.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pending exchange: %w", ctx.Err())
	}
}

func (t *Transceiver) release(ep endpoint) {
	t.mu.Lock()
	slot := t.slots[ep]
	t.mu.Unlock()
	<-slot
}

// delivery is the single-slot channel of one exchange. Exactly one of
// deliver or retire wins; a value is sent only when deliver wins.
type delivery struct {
	ch   chan []byte
	used atomic.Bool
}

func newDelivery() *delivery {
	return &delivery{ch: make(chan []byte, 1)}
}

func (d *delivery) deliver(response []byte) bool {
	if !d.used.CompareAndSwap(false, true) {
		return false
	}
	d.ch <- response
	return true
}

func (d *delivery) retire() bool {
	return d.used.CompareAndSwap(false, true)
}

// firstResponse keeps the first entry of the response list. An empty list
// yields a zero-length APDU; some firmware answers this way.
func firstResponse(responses [][]byte) []byte {
	if len(responses) == 0 || responses[0] == nil {
		return []byte{}
	}
	return append([]byte{}, responses[0]...)
}

func hexUpper(data []byte) string {
	return fmt.Sprintf("%X", data)
}
