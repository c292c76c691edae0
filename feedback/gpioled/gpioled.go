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

// Package gpioled drives validator LEDs wired to GPIO pins. An LED
// implements flowbird.LEDService.
package gpioled

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v2"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// Config maps LED colours to pins and patterns to the colours they light
type Config struct {
	Pins     map[string]string   `yaml:"pins"`
	Patterns map[string][]string `yaml:"patterns"`
}

// DefaultConfig matches the patterns of flowbird.DefaultSituations
func DefaultConfig() Config {
	return Config{
		Pins: map[string]string{
			"green": "GPIO17",
			"red":   "GPIO27",
			"blue":  "GPIO22",
		},
		Patterns: map[string][]string{
			"green":   {"green"},
			"red":     {"red"},
			"hunting": {"blue"},
			"off":     {},
		},
	}
}

// LoadConfig reads a YAML config file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return Config{}, fmt.Errorf("read LED config: %w", err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse LED config %s: %w", path, err)
	}
	return cfg, nil
}

// LED lights the colours of the current pattern
type LED struct {
	pins     map[string]gpio.PinOut
	patterns map[string][]string
	current  string
	mu       syncutil.Mutex
}

var _ flowbird.LEDService = (*LED)(nil)

// Open initializes the host drivers and claims the configured pins
func Open(cfg Config) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pins := make(map[string]gpio.PinOut, len(cfg.Pins))
	for colour, name := range cfg.Pins {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("GPIO pin %s for %s LED not found", name, colour)
		}
		pins[colour] = pin
	}
	return New(pins, cfg.Patterns)
}

// New builds an LED over already opened pins
func New(pins map[string]gpio.PinOut, patterns map[string][]string) (*LED, error) {
	if len(pins) == 0 {
		return nil, errors.New("no LED pins configured")
	}
	for pattern, colours := range patterns {
		for _, colour := range colours {
			if _, ok := pins[colour]; !ok {
				return nil, fmt.Errorf("pattern %q uses unknown colour %q", pattern, colour)
			}
		}
	}
	return &LED{pins: pins, patterns: maps.Clone(patterns)}, nil
}

// SetPattern lights the colours of pattern and turns the others off
func (l *LED) SetPattern(pattern string) error {
	colours, ok := l.patterns[pattern]
	if !ok {
		return fmt.Errorf("unknown LED pattern %q", pattern)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.applyLocked(colours); err != nil {
		return fmt.Errorf("set LED pattern %q: %w", pattern, err)
	}
	l.current = pattern
	flowbird.Debugf("gpioled: pattern %s", pattern)
	return nil
}

// Pattern returns the last pattern set
func (l *LED) Pattern() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Patterns returns the sorted pattern names
func (l *LED) Patterns() []string {
	return slices.Sorted(maps.Keys(l.patterns))
}

// Off turns every LED off
func (l *LED) Off() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = ""
	return l.applyLocked(nil)
}

func (l *LED) applyLocked(lit []string) error {
	var errs []error
	for colour, pin := range l.pins {
		level := gpio.Low
		if slices.Contains(lit, colour) {
			level = gpio.High
		}
		if err := pin.Out(level); err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", colour, pin.Name(), err))
		}
	}
	return errors.Join(errs...)
}
