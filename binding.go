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
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// joinResult is what the binder callbacks report to Initialize
type joinResult struct {
	service  string
	joined   bool
	initDone bool
}

// Lifecycle owns the one binding to the vendor driver. It publishes the
// resulting Handle to every component that needs the hardware.
type Lifecycle struct {
	binder      Binder
	store       ConfigStore
	handle      atomic.Pointer[Handle]
	feedback    Feedback
	config      lifecycleConfig
	initialized atomic.Bool
	mu          syncutil.Mutex
}

// NewLifecycle creates an unbound lifecycle
func NewLifecycle(binder Binder, store ConfigStore, opts ...Option) (*Lifecycle, error) {
	if binder == nil {
		return nil, errors.New("binder is required")
	}
	if store == nil {
		return nil, errors.New("config store is required")
	}
	config := defaultLifecycleConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, fmt.Errorf("invalid lifecycle option: %w", err)
		}
	}
	return &Lifecycle{binder: binder, store: store, config: config}, nil
}

// Handle returns the bound handle, nil before Initialize succeeds or after Teardown
func (l *Lifecycle) Handle() *Handle {
	return l.handle.Load()
}

// SubService returns a bound sub-service, nil when unbound or absent
func (l *Lifecycle) SubService(name string) any {
	handle := l.Handle()
	if handle == nil {
		return nil
	}
	return handle.Service(name)
}

// Feedback returns the UI feedback of the binding. It never returns nil.
func (l *Lifecycle) Feedback() Feedback {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.feedback == nil {
		return NopFeedback{}
	}
	return l.feedback
}

// Initialize reads the SAM ATRs, deploys the resource files and binds every
// sub-service. It runs once: later calls fail with ErrAlreadyInitialized,
// including after a failed bind. Only a Teardown of a bound lifecycle
// allows another Initialize.
func (l *Lifecycle) Initialize(ctx context.Context, files ResourceFiles) (*Handle, error) {
	if !l.initialized.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}
	return l.initialize(ctx, files)
}

func (l *Lifecycle) initialize(ctx context.Context, files ResourceFiles) (*Handle, error) {
	atrs := l.readATRs()

	if l.config.deployer != nil {
		if _, err := l.config.deployer.Deploy(files); err != nil {
			return nil, fmt.Errorf("failed to deploy resources: %w", err)
		}
	}

	result, err := l.join(ctx)
	if err != nil {
		return nil, err
	}
	if result.initDone {
		Debugln("bind: all services bound")
	} else {
		Debugln("bind: failed to bind all services")
	}

	handle, err := l.resolve(atrs)
	if err != nil {
		_ = l.binder.Unbind()
		return nil, err
	}

	feedback := l.buildFeedback(handle)
	l.mu.Lock()
	l.feedback = feedback
	l.mu.Unlock()
	l.handle.Store(handle)

	Debugf("bind: handle ready with services %v", handle.ServiceNames())
	return handle, nil
}

// readATRs decodes the four persisted SAM ATRs. A missing or malformed
// value leaves the slot empty.
func (l *Lifecycle) readATRs() map[SamSlot][]byte {
	atrs := make(map[SamSlot][]byte, len(SamSlots()))
	for _, slot := range SamSlots() {
		value := l.store.Get(SAMATRKey(slot))
		if value == "" {
			atrs[slot] = []byte{}
			continue
		}
		atr, err := hex.DecodeString(value)
		if err != nil {
			Debugf("bind: ignoring malformed ATR of sam%d: %v", slot, err)
			atr = []byte{}
		}
		atrs[slot] = atr
	}
	return atrs
}

// join issues the asynchronous bind and waits for its outcome
func (l *Lifecycle) join(ctx context.Context) (joinResult, error) {
	results := make(chan joinResult, 2)
	callbacks := BindCallbacks{
		OnJoined: func(initDone bool) {
			Debugln("bind: got all services")
			select {
			case results <- joinResult{joined: true, initDone: initDone}:
			default:
			}
		},
		OnBindLost: func(service string) {
			Debugf("bind: lost %q", service)
			select {
			case results <- joinResult{service: service}:
			default:
			}
		},
	}

	if err := l.binder.Bind(l.config.requests, callbacks); err != nil {
		return joinResult{}, &BindError{Reason: "bind call failed", Err: err}
	}

	timer := time.NewTimer(l.config.bindTimeout)
	defer timer.Stop()

	select {
	case result := <-results:
		if !result.joined {
			_ = l.binder.Unbind()
			return joinResult{}, &BindError{Reason: fmt.Sprintf("binding lost on %q", result.service)}
		}
		return result, nil
	case <-timer.C:
		_ = l.binder.Unbind()
		return joinResult{}, &BindError{
			Reason: fmt.Sprintf("no join within %v", l.config.bindTimeout),
			Err:    context.DeadlineExceeded,
		}
	case <-ctx.Done():
		_ = l.binder.Unbind()
		return joinResult{}, &BindError{Reason: "bind cancelled", Err: ctx.Err()}
	}
}

// resolve collects the joined sub-services into a handle
func (l *Lifecycle) resolve(atrs map[SamSlot][]byte) (*Handle, error) {
	reader, ok := l.binder.Service(ServiceAPDUReader).(APDUReader)
	if !ok {
		return nil, &BindError{
			Reason: fmt.Sprintf("sub-service %q not joined", ServiceAPDUReader),
			Err:    ErrServiceUnavailable,
		}
	}

	services := make(map[string]any, len(l.config.requests)+1)
	for name := range l.config.requests {
		if svc := l.binder.Service(name); svc != nil {
			services[name] = svc
		} else {
			Debugf("bind: failed to join the %q interface", name)
		}
	}
	// The text display is never requested but some drivers announce it
	if svc := l.binder.Service(ServiceTextDisplay); svc != nil {
		services[ServiceTextDisplay] = svc
	}

	return &Handle{binder: l.binder, reader: reader, services: services, atrs: atrs}, nil
}

func (l *Lifecycle) buildFeedback(handle *Handle) Feedback {
	if l.config.feedback != nil {
		return l.config.feedback
	}
	ui := NewUIManagerFromHandle(handle)
	if l.config.deployer != nil {
		if err := ui.LoadSituations(l.config.deployer.Dir(SituationsDir)); err != nil {
			Debugf("bind: keeping default situations: %v", err)
		}
	}
	return ui
}

// Teardown shows the idle situation, unbinds the driver and clears the
// handle. It is safe to call more than once.
func (l *Lifecycle) Teardown() error {
	handle := l.handle.Swap(nil)
	if handle == nil {
		return nil
	}

	l.Feedback().Display(SituationHuntingNone)
	l.mu.Lock()
	l.feedback = nil
	l.mu.Unlock()

	err := handle.binder.Unbind()
	l.initialized.Store(false)
	if err != nil {
		return fmt.Errorf("failed to unbind: %w", err)
	}
	return nil
}
