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

package gpioled

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func testPins() (map[string]gpio.PinOut, map[string]*gpiotest.Pin) {
	raw := map[string]*gpiotest.Pin{
		"green": {N: "GPIO17", Num: 17},
		"red":   {N: "GPIO27", Num: 27},
		"blue":  {N: "GPIO22", Num: 22},
	}
	pins := make(map[string]gpio.PinOut, len(raw))
	for colour, pin := range raw {
		pins[colour] = pin
	}
	return pins, raw
}

func levels(raw map[string]*gpiotest.Pin) map[string]gpio.Level {
	out := make(map[string]gpio.Level, len(raw))
	for colour, pin := range raw {
		out[colour] = pin.Read()
	}
	return out
}

func TestLED_SetPattern(t *testing.T) {
	t.Parallel()
	pins, raw := testPins()
	led, err := New(pins, DefaultConfig().Patterns)
	require.NoError(t, err)

	require.NoError(t, led.SetPattern("green"))
	assert.Equal(t, map[string]gpio.Level{"green": gpio.High, "red": gpio.Low, "blue": gpio.Low}, levels(raw))
	assert.Equal(t, "green", led.Pattern())

	require.NoError(t, led.SetPattern("hunting"))
	assert.Equal(t, map[string]gpio.Level{"green": gpio.Low, "red": gpio.Low, "blue": gpio.High}, levels(raw))

	require.NoError(t, led.SetPattern("off"))
	assert.Equal(t, map[string]gpio.Level{"green": gpio.Low, "red": gpio.Low, "blue": gpio.Low}, levels(raw))

	err = led.SetPattern("rainbow")
	require.Error(t, err)
	assert.Equal(t, "off", led.Pattern(), "failed pattern leaves state unchanged")
}

func TestLED_Off(t *testing.T) {
	t.Parallel()
	pins, raw := testPins()
	led, err := New(pins, DefaultConfig().Patterns)
	require.NoError(t, err)
	require.NoError(t, led.SetPattern("red"))

	require.NoError(t, led.Off())
	assert.Equal(t, gpio.Low, raw["red"].Read())
	assert.Empty(t, led.Pattern())
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(nil, nil)
	require.Error(t, err)

	pins, _ := testPins()
	_, err = New(pins, map[string][]string{"amber": {"amber"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amber")
}

type brokenPin struct {
	*gpiotest.Pin
}

func (brokenPin) Out(gpio.Level) error { return errors.New("pin busy") }

func TestLED_PinErrorsAreReported(t *testing.T) {
	t.Parallel()
	pins, _ := testPins()
	pins["red"] = brokenPin{&gpiotest.Pin{N: "GPIO27", Num: 27}}
	led, err := New(pins, DefaultConfig().Patterns)
	require.NoError(t, err)

	err = led.SetPattern("red")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GPIO27")
}

func TestLED_DrivesSituations(t *testing.T) {
	t.Parallel()
	pins, raw := testPins()
	led, err := New(pins, DefaultConfig().Patterns)
	require.NoError(t, err)
	ui := flowbird.NewUIManager(led, nil, nil)

	ui.Display(flowbird.SituationSuccess)
	assert.Equal(t, gpio.High, raw["green"].Read())
	ui.Display(flowbird.SituationFailed)
	assert.Equal(t, gpio.High, raw["red"].Read())
	assert.Equal(t, gpio.Low, raw["green"].Read())
	ui.Display(flowbird.SituationHuntingNone)
	assert.Equal(t, "off", led.Pattern())
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "leds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pins:
  green: GPIO5
patterns:
  green: [green]
  off: []
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"green": "GPIO5"}, cfg.Pins)
	assert.Equal(t, []string{"green"}, cfg.Patterns["green"])

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("colours: {}\n"), 0o600))
	_, err = LoadConfig(bad)
	require.Error(t, err)
}
