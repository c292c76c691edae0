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

package uart

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-flowbird/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func fakeDetector(ports []*enumerator.PortDetails, opens map[string]bool) *detector {
	return &detector{
		list:  func() ([]*enumerator.PortDetails, error) { return ports, nil },
		probe: func(_ context.Context, path string) bool { return opens[path] },
	}
}

var testPorts = []*enumerator.PortDetails{
	{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", SerialNumber: "A1"},
	{Name: "/dev/ttyUSB1", IsUSB: true, VID: "aaaa", PID: "bbbb", Product: "Flowbird Validator Console"},
	{Name: "/dev/ttyUSB2", IsUSB: true, VID: "aaaa", PID: "cccc", Product: "Keyboard"},
	{Name: "/dev/ttyS0"},
}

func TestDetect_PassiveUsesDescriptorsOnly(t *testing.T) {
	t.Parallel()
	d := fakeDetector(testPorts, nil)

	got, err := d.Detect(context.Background(), &detection.Options{Mode: detection.Passive})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/dev/ttyUSB0", got[0].Address)
	assert.Equal(t, "1A86:7523", got[0].Metadata["vidpid"])
	assert.Equal(t, "A1", got[0].Metadata["serial"])
	assert.Equal(t, detection.Medium, got[0].Confidence)
	assert.Equal(t, "Flowbird Validator Console", got[1].Name)
}

func TestDetect_SafeDropsLikelyPortsThatFailToOpen(t *testing.T) {
	t.Parallel()
	d := fakeDetector(testPorts, map[string]bool{"/dev/ttyUSB1": true, "/dev/ttyUSB2": true})

	got, err := d.Detect(context.Background(), &detection.Options{Mode: detection.Safe})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/dev/ttyUSB1", got[0].Address)
	assert.Equal(t, detection.High, got[0].Confidence)
}

func TestDetect_FullOpensEveryPort(t *testing.T) {
	t.Parallel()
	d := fakeDetector(testPorts, map[string]bool{"/dev/ttyUSB0": true, "/dev/ttyS0": true})

	got, err := d.Detect(context.Background(), &detection.Options{Mode: detection.Full})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, detection.High, got[0].Confidence)
	assert.Equal(t, "/dev/ttyS0", got[1].Address)
	assert.Equal(t, detection.Low, got[1].Confidence)
}

func TestDetect_Filters(t *testing.T) {
	t.Parallel()
	d := fakeDetector(testPorts, nil)

	_, err := d.Detect(context.Background(), &detection.Options{
		Mode:            detection.Passive,
		Blocklist:       []string{"1A86:7523"},
		IgnoreAddresses: []string{"/dev/ttyUSB1"},
	})
	require.ErrorIs(t, err, detection.ErrNoEndpointsFound)
}

func TestDetect_EnumerationError(t *testing.T) {
	t.Parallel()
	d := &detector{list: func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no sysfs") }}

	_, err := d.Detect(context.Background(), &detection.Options{})
	require.Error(t, err)
	assert.Equal(t, detection.TransportUART, d.Transport())
}
