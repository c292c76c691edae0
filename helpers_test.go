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
	"context"
	"testing"

	"github.com/ZaparooProject/go-flowbird"
	testutil "github.com/ZaparooProject/go-flowbird/internal/testing"
	"github.com/stretchr/testify/require"
)

type boundDriver struct {
	lifecycle *flowbird.Lifecycle
	binder    *testutil.FakeBinder
	reader    *testutil.FakeAPDUReader
	hunt      *testutil.FakeHunt
	store     *flowbird.MemoryStore
}

// newBoundDriver binds a lifecycle to a simulated driver
func newBoundDriver(t *testing.T, values map[string]string) *boundDriver {
	t.Helper()
	binder, reader, hunt := testutil.NewDriver()
	store := flowbird.NewMemoryStore(values)
	lifecycle, err := flowbird.NewLifecycle(binder, store)
	require.NoError(t, err)

	_, err = lifecycle.Initialize(context.Background(), flowbird.ResourceFiles{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lifecycle.Teardown() })

	return &boundDriver{lifecycle: lifecycle, binder: binder, reader: reader, hunt: hunt, store: store}
}

type nilHandles struct{}

func (nilHandles) Handle() *flowbird.Handle { return nil }

type fixedPresence struct {
	tag     flowbird.Tag
	present bool
}

func (p fixedPresence) CurrentTag() (flowbird.Tag, bool) { return p.tag, p.present }
