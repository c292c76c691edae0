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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupProtocol(t *testing.T) {
	t.Parallel()

	for _, p := range SupportedProtocols() {
		got, err := LookupProtocol(p.Key())
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.True(t, IsProtocolSupported(p.Key()))
	}

	_, err := LookupProtocol("FELICA")
	require.ErrorIs(t, err, ErrUnknownProtocol)
	assert.False(t, IsProtocolSupported("FELICA"))
	assert.False(t, IsProtocolSupported("a"))
}
