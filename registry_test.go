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

package flowbird_test

import (
	"testing"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotRegistry_ResolveSAM(t *testing.T) {
	t.Parallel()
	registry := flowbird.NewSlotRegistry(nilHandles{}, nil)

	for _, slot := range flowbird.SamSlots() {
		target, err := registry.Resolve(flowbird.SAMReaderName(slot))
		require.NoError(t, err)
		assert.Equal(t, flowbird.SAMTarget(slot), target)
	}

	_, err := registry.Resolve("FlowbirdContactReader_9")
	require.ErrorIs(t, err, flowbird.ErrUnknownReader)
	_, err = registry.Resolve("PcscReader")
	require.ErrorIs(t, err, flowbird.ErrUnknownReader)
}

func TestSlotRegistry_ResolveContactless(t *testing.T) {
	t.Parallel()
	tag, err := flowbird.NewContactlessTag(31, "CLESS", "0102030405060708090A0B0C0D0E")
	require.NoError(t, err)

	absent := flowbird.NewSlotRegistry(nilHandles{}, fixedPresence{})
	_, err = absent.Resolve(flowbird.ContactlessReaderName)
	require.ErrorIs(t, err, flowbird.ErrTagNotPresent)
	assert.False(t, absent.IsPresent(flowbird.ContactlessTarget(31)))

	present := flowbird.NewSlotRegistry(nilHandles{}, fixedPresence{tag: tag, present: true})
	target, err := present.Resolve(flowbird.ContactlessReaderName)
	require.NoError(t, err)
	assert.Equal(t, flowbird.ContactlessTarget(31), target)
	assert.True(t, present.IsPresent(target))
}

func TestSlotRegistry_SAMPresenceFollowsATR(t *testing.T) {
	t.Parallel()
	drv := newBoundDriver(t, map[string]string{
		flowbird.SAMATRKey(flowbird.SamSlotOne): "3B8F8001",
	})
	registry := flowbird.NewSlotRegistry(drv.lifecycle, nil)

	assert.True(t, registry.IsPresent(flowbird.SAMTarget(flowbird.SamSlotOne)))
	assert.False(t, registry.IsPresent(flowbird.SAMTarget(flowbird.SamSlotTwo)))
	assert.False(t, registry.IsPresent(flowbird.Target{}))

	require.NoError(t, drv.lifecycle.Teardown())
	assert.False(t, registry.IsPresent(flowbird.SAMTarget(flowbird.SamSlotOne)))
}

func TestSlotRegistry_Names(t *testing.T) {
	t.Parallel()
	registry := flowbird.NewSlotRegistry(nilHandles{}, nil)

	assert.Equal(t, []string{
		"FlowbirdContactReader_1",
		"FlowbirdContactReader_2",
		"FlowbirdContactReader_3",
		"FlowbirdContactReader_4",
		"FlowbirdContactlessReader",
	}, registry.Names())
}
