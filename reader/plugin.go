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
	"maps"
	"slices"
	"time"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/hunt"
)

// Option configures a Plugin
type Option func(*pluginConfig) error

type pluginConfig struct {
	huntConfig       *hunt.Config
	lifecycleOptions []flowbird.Option
	files            flowbird.ResourceFiles
	exchangeTimeout  time.Duration
}

// WithLifecycleOptions adds binding lifecycle options
func WithLifecycleOptions(opts ...flowbird.Option) Option {
	return func(c *pluginConfig) error {
		c.lifecycleOptions = append(c.lifecycleOptions, opts...)
		return nil
	}
}

// WithExchangeTimeout sets the APDU exchange timeout of every reader
func WithExchangeTimeout(timeout time.Duration) Option {
	return func(c *pluginConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("exchange timeout must be positive, got %v", timeout)
		}
		c.exchangeTimeout = timeout
		return nil
	}
}

// WithHuntConfig sets the hunt machine configuration
func WithHuntConfig(config *hunt.Config) Option {
	return func(c *pluginConfig) error {
		c.huntConfig = config
		return nil
	}
}

// WithResourceFiles sets the media, situation and translation files deployed at bind time
func WithResourceFiles(files flowbird.ResourceFiles) Option {
	return func(c *pluginConfig) error {
		c.files = files
		return nil
	}
}

// Plugin owns the binding and the five readers built on it
type Plugin struct {
	lifecycle   *flowbird.Lifecycle
	tx          *flowbird.Transceiver
	machine     *hunt.Machine
	registry    *flowbird.SlotRegistry
	readers     map[string]Reader
	contactless *ContactlessReader
}

// New binds the vendor driver and builds the readers. A binding failure is
// fatal: no reader is created and the error matches flowbird.ErrBind.
func New(ctx context.Context, binder flowbird.Binder, store flowbird.ConfigStore, opts ...Option) (*Plugin, error) {
	config := pluginConfig{
		exchangeTimeout: flowbird.DefaultExchangeTimeout,
		huntConfig:      hunt.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, fmt.Errorf("invalid plugin option: %w", err)
		}
	}

	lifecycle, err := flowbird.NewLifecycle(binder, store, config.lifecycleOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", flowbird.PluginName, err)
	}
	if _, err := lifecycle.Initialize(ctx, config.files); err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", flowbird.PluginName, err)
	}

	p := &Plugin{
		lifecycle: lifecycle,
		tx:        flowbird.NewTransceiver(lifecycle),
		readers:   make(map[string]Reader, len(flowbird.SamSlots())+1),
	}
	p.machine = hunt.NewMachine(lifecycle, store, lifecycle, config.huntConfig)
	p.machine.EnableConfigObserver()
	p.registry = flowbird.NewSlotRegistry(lifecycle, p.machine)

	for _, slot := range flowbird.SamSlots() {
		sam := newSAMReader(slot, lifecycle, p.tx, p.registry, config.exchangeTimeout)
		p.readers[sam.Name()] = sam
	}
	p.contactless = newContactlessReader(lifecycle, p.machine, p.tx, p.registry, config.exchangeTimeout)
	p.readers[p.contactless.Name()] = p.contactless

	flowbird.Debugf("%s: registered readers %v", flowbird.PluginName, p.ReaderNames())
	return p, nil
}

// Name returns FlowbirdPlugin
func (*Plugin) Name() string {
	return flowbird.PluginName
}

// Readers returns every reader sorted by name
func (p *Plugin) Readers() []Reader {
	readers := make([]Reader, 0, len(p.readers))
	for _, name := range p.ReaderNames() {
		readers = append(readers, p.readers[name])
	}
	return readers
}

// Reader returns the named reader
func (p *Plugin) Reader(name string) (Reader, error) {
	r, ok := p.readers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", flowbird.ErrUnknownReader, name)
	}
	return r, nil
}

// SAM returns the reader of a SAM slot
func (p *Plugin) SAM(slot flowbird.SamSlot) (*SAMReader, error) {
	r, err := p.Reader(flowbird.SAMReaderName(slot))
	if err != nil {
		return nil, err
	}
	return r.(*SAMReader), nil
}

// Contactless returns the contactless reader
func (p *Plugin) Contactless() *ContactlessReader {
	return p.contactless
}

// ReaderNames returns the sorted reader names
func (p *Plugin) ReaderNames() []string {
	return slices.Sorted(maps.Keys(p.readers))
}

// MonitoringCycleDuration returns how often the host should poll presence
func (*Plugin) MonitoringCycleDuration() time.Duration {
	return MonitoringCycleDuration
}

// Stats returns the exchange counters shared by every reader
func (p *Plugin) Stats() flowbird.TransceiverStats {
	return p.tx.Stats()
}

// Feedback returns the UI feedback of the binding
func (p *Plugin) Feedback() flowbird.Feedback {
	return p.lifecycle.Feedback()
}

// Unregister notifies every reader and releases the binding
func (p *Plugin) Unregister() error {
	for _, r := range p.Readers() {
		r.OnUnregister()
	}
	if err := p.lifecycle.Teardown(); err != nil {
		return fmt.Errorf("failed to unregister %s: %w", flowbird.PluginName, err)
	}
	return nil
}
