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
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
	"gopkg.in/yaml.v2"
)

// Functional situations shown on the validator
const (
	SituationSuccess     = "customer.media.validation.cless.granted"
	SituationFailed      = "customer.media.validation.cless.denied"
	SituationWaiting     = "customer.media.hunting.all"
	SituationHuntingNone = "customer.media.hunting.none"
)

// Feedback renders a functional situation to the traveller
type Feedback interface {
	Display(situation string)
}

// NopFeedback discards every situation
type NopFeedback struct{}

// Display implements Feedback
func (NopFeedback) Display(string) {}

// Media is what the validator plays for one situation. Empty fields are skipped.
type Media struct {
	LED   string `yaml:"led"`
	Sound string `yaml:"sound"`
	Text  string `yaml:"text"`
}

// situationFile is the layout of a situation YAML file
type situationFile struct {
	Situations map[string]Media `yaml:"situations"`
}

// DefaultSituations returns the built-in situation table
func DefaultSituations() map[string]Media {
	return map[string]Media{
		SituationSuccess:     {LED: "green", Sound: "granted"},
		SituationFailed:      {LED: "red", Sound: "denied"},
		SituationWaiting:     {LED: "hunting"},
		SituationHuntingNone: {LED: "off"},
	}
}

// LoadSituations reads every .yaml and .yml file of dir, in name order, and
// returns the merged situation table. Later files override earlier ones.
func LoadSituations(dir string) (map[string]Media, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read situation directory: %w", err)
	}

	table := make(map[string]Media)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the deployed resource directory
		if err != nil {
			return nil, fmt.Errorf("failed to read situation file %s: %w", path, err)
		}
		var file situationFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse situation file %s: %w", path, err)
		}
		maps.Copy(table, file.Situations)
	}
	return table, nil
}

// UIManager plays situations on the LED, sound and text sub-services.
// Any of them may be nil.
type UIManager struct {
	led        LEDService
	sound      SoundService
	text       TextDisplay
	situations map[string]Media
	current    string
	mu         syncutil.Mutex
}

// NewUIManager creates a manager using the default situation table
func NewUIManager(led LEDService, sound SoundService, text TextDisplay) *UIManager {
	return &UIManager{
		led:        led,
		sound:      sound,
		text:       text,
		situations: DefaultSituations(),
	}
}

// NewUIManagerFromHandle creates a manager on the sub-services bound in handle
func NewUIManagerFromHandle(handle *Handle) *UIManager {
	led, _ := handle.Service(ServiceLEDs).(LEDService)
	sound, _ := handle.Service(ServiceSound).(SoundService)
	text, _ := handle.Service(ServiceTextDisplay).(TextDisplay)
	return NewUIManager(led, sound, text)
}

// LoadSituations merges the situation files of dir over the current table
func (m *UIManager) LoadSituations(dir string) error {
	table, err := LoadSituations(dir)
	if err != nil {
		return err
	}
	m.mu.Lock()
	maps.Copy(m.situations, table)
	m.mu.Unlock()
	return nil
}

// Situations returns the sorted names of the known situations
func (m *UIManager) Situations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.situations))
}

// Current returns the last displayed situation
func (m *UIManager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Display implements Feedback. Unknown situations and sub-service failures
// are logged and otherwise ignored.
func (m *UIManager) Display(situation string) {
	m.mu.Lock()
	media, ok := m.situations[situation]
	m.current = situation
	m.mu.Unlock()

	if !ok {
		Debugf("ui: unknown situation %q", situation)
		return
	}
	if media.LED != "" && m.led != nil {
		if err := m.led.SetPattern(media.LED); err != nil {
			Debugf("ui: led pattern %q failed: %v", media.LED, err)
		}
	}
	if media.Sound != "" && m.sound != nil {
		if err := m.sound.Play(media.Sound); err != nil {
			Debugf("ui: sound %q failed: %v", media.Sound, err)
		}
	}
	if media.Text != "" && m.text != nil {
		if err := m.text.Show(media.Text); err != nil {
			Debugf("ui: text %q failed: %v", media.Text, err)
		}
	}
}
