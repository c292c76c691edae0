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

package hunt_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/hunt"
	testutil "github.com/ZaparooProject/go-flowbird/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testATR = "0102030405060708090A0B0C0D0E0F10"

type machineFixture struct {
	machine   *hunt.Machine
	lifecycle *flowbird.Lifecycle
	hunt      *testutil.FakeHunt
	store     *flowbird.MemoryStore
	feedback  *recordingFeedback
	inserted  chan flowbird.Tag
	removed   chan struct{}
}

type recordingFeedback struct {
	situations []string
	mu         sync.Mutex
}

func (f *recordingFeedback) Feedback() flowbird.Feedback { return f }

func (f *recordingFeedback) Display(situation string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.situations = append(f.situations, situation)
}

func (f *recordingFeedback) count(situation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.situations {
		if s == situation {
			n++
		}
	}
	return n
}

func newMachineFixture(t *testing.T, config *hunt.Config) *machineFixture {
	t.Helper()
	binder, _, fakeHunt := testutil.NewDriver()
	store := flowbird.NewMemoryStore(nil)
	lifecycle, err := flowbird.NewLifecycle(binder, store)
	require.NoError(t, err)
	_, err = lifecycle.Initialize(context.Background(), flowbird.ResourceFiles{})
	require.NoError(t, err)

	if config == nil {
		config = hunt.DefaultConfig()
		config.ErrorBackoff = 10 * time.Millisecond
	}
	f := &machineFixture{
		lifecycle: lifecycle,
		hunt:      fakeHunt,
		store:     store,
		feedback:  &recordingFeedback{},
		inserted:  make(chan flowbird.Tag, 8),
		removed:   make(chan struct{}, 8),
	}
	f.machine = hunt.NewMachine(lifecycle, store, f.feedback, config)
	f.machine.SetOnCardInserted(func(tag flowbird.Tag) { f.inserted <- tag })
	f.machine.SetOnCardRemoved(func() { f.removed <- struct{}{} })
	t.Cleanup(func() {
		_ = f.machine.Close()
		_ = lifecycle.Teardown()
	})
	return f
}

func TestMachine_StartsIdle(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)

	assert.Equal(t, hunt.StateIdle, f.machine.State())
	_, ok := f.machine.CurrentTag()
	assert.False(t, ok)
	assert.Zero(t, f.hunt.Starts())
}

func TestMachine_DetectionLifecycle(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)

	require.NoError(t, f.machine.StartDetection())
	assert.Equal(t, hunt.StateHunting, f.machine.State())
	assert.True(t, f.hunt.Hunting())
	assert.Equal(t, 1, f.feedback.count(flowbird.SituationWaiting))

	f.hunt.EmitDetected(testutil.ContactlessPayload(77, testATR))

	assert.Equal(t, hunt.StateCardPresent, f.machine.State())
	tag := <-f.inserted
	id, _ := tag.CardID()
	assert.Equal(t, int64(77), id)
	assert.Equal(t, "08090A0B0C0D0E0F10", tag.ReadableData())
	current, ok := f.machine.CurrentTag()
	require.True(t, ok)
	assert.Equal(t, tag, current)

	// A second detection of the same media does not notify again
	f.hunt.EmitDetected(testutil.ContactlessPayload(77, testATR))
	assert.Empty(t, f.inserted)

	f.hunt.EmitRemoved()
	<-f.removed
	_, ok = f.machine.CurrentTag()
	assert.False(t, ok)
	assert.Equal(t, hunt.StateHunting, f.machine.State())
	assert.Equal(t, 2, f.hunt.Starts())
	assert.Equal(t, 2, f.feedback.count(flowbird.SituationWaiting))
}

func TestMachine_RemovalWithoutRearm(t *testing.T) {
	t.Parallel()
	config := hunt.DefaultConfig()
	config.RearmOnRemoval = false
	f := newMachineFixture(t, config)

	require.NoError(t, f.machine.StartDetection())
	f.hunt.EmitDetected(testutil.ContactlessPayload(1, testATR))
	f.hunt.EmitRemoved()

	<-f.removed
	assert.Equal(t, hunt.StateIdle, f.machine.State())
	assert.False(t, f.hunt.Hunting())
}

func TestMachine_StopDuringRemovalCallbackWins(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	f.machine.SetOnCardRemoved(func() {
		assert.NoError(t, f.machine.StopDetection())
	})

	require.NoError(t, f.machine.StartDetection())
	f.hunt.EmitDetected(testutil.ContactlessPayload(1, testATR))
	f.hunt.EmitRemoved()

	assert.Equal(t, hunt.StateIdle, f.machine.State())
	assert.Equal(t, 1, f.hunt.Starts())
}

func TestMachine_DecodeFailureEntersError(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	require.NoError(t, f.machine.StartDetection())

	f.hunt.EmitDetected(flowbird.Payload{flowbird.PayloadKeyType: "CLESS"})

	assert.Equal(t, hunt.StateError, f.machine.State())
	assert.Empty(t, f.inserted)
	require.ErrorIs(t, f.machine.StartDetection(), flowbird.ErrInvalidTransition)

	require.NoError(t, f.machine.Restart(true))
	assert.Equal(t, hunt.StateHunting, f.machine.State())
}

func TestMachine_ErrorEventKeepsState(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	require.NoError(t, f.machine.StartDetection())

	start := time.Now()
	f.hunt.EmitError(flowbird.Payload{"code": 3})

	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, hunt.StateHunting, f.machine.State())

	f.hunt.EmitDetected(testutil.ContactlessPayload(5, testATR))
	f.hunt.EmitError(flowbird.Payload{})
	assert.Equal(t, hunt.StateCardPresent, f.machine.State())
}

func TestMachine_StartFromCardPresentIsRejected(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	require.NoError(t, f.machine.StartDetection())
	f.hunt.EmitDetected(testutil.ContactlessPayload(5, testATR))

	require.ErrorIs(t, f.machine.StartDetection(), flowbird.ErrInvalidTransition)
	assert.Equal(t, hunt.StateCardPresent, f.machine.State())
}

func TestMachine_StopDetection(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)

	require.NoError(t, f.machine.StopDetection())
	assert.Zero(t, f.hunt.Stops(), "stop from Idle is a no-op")

	require.NoError(t, f.machine.StartDetection())
	f.hunt.EmitDetected(testutil.ContactlessPayload(5, testATR))
	require.NoError(t, f.machine.StopDetection())

	assert.Equal(t, hunt.StateIdle, f.machine.State())
	_, ok := f.machine.CurrentTag()
	assert.False(t, ok)
	assert.False(t, f.hunt.Hunting())

	// Events of the stopped hunt are ignored
	f.hunt.EmitDetected(testutil.ContactlessPayload(6, testATR))
	assert.Equal(t, hunt.StateIdle, f.machine.State())
}

func TestMachine_StartWithoutHandle(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	require.NoError(t, f.lifecycle.Teardown())

	require.ErrorIs(t, f.machine.StartDetection(), flowbird.ErrNoHandle)
	assert.Equal(t, hunt.StateIdle, f.machine.State())
}

func TestMachine_StartFailure(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	f.hunt.SetStartError(testutil.ErrSimulated)

	require.ErrorIs(t, f.machine.StartDetection(), testutil.ErrSimulated)
	assert.Equal(t, hunt.StateIdle, f.machine.State())
	assert.Zero(t, f.feedback.count(flowbird.SituationWaiting))
}

func TestMachine_ActivateProtocol(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)

	_, ok := f.machine.CurrentProtocol()
	assert.False(t, ok)

	require.NoError(t, f.machine.ActivateProtocol("B"))
	assert.Equal(t, "B", f.store.Get(flowbird.KeyCurrentProtocol))
	assert.True(t, f.machine.IsCurrentProtocol("B"))
	assert.False(t, f.machine.IsCurrentProtocol("A"))

	err := f.machine.ActivateProtocol("FELICA")
	require.ErrorIs(t, err, flowbird.ErrUnsupportedProtocol)
	require.ErrorIs(t, err, flowbird.ErrUnknownProtocol)
	assert.Equal(t, "B", f.store.Get(flowbird.KeyCurrentProtocol), "unknown protocol must not persist")
	assert.True(t, f.machine.IsCurrentProtocol("B"))
}

func TestMachine_ConfigObserverRestartsHunt(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	f.machine.EnableConfigObserver()
	f.machine.EnableConfigObserver()

	// No protocol activated: external changes are ignored
	require.NoError(t, f.store.Set(flowbird.KeyActiveProtocol, "A"))
	assert.Zero(t, f.hunt.Starts())

	require.NoError(t, f.machine.ActivateProtocol("A"))
	require.NoError(t, f.store.Set(flowbird.KeyActiveProtocol, "A"))
	assert.Equal(t, 1, f.hunt.Starts())
	assert.Equal(t, hunt.StateHunting, f.machine.State())

	// Persisted protocol drifted from the activated one
	require.NoError(t, f.store.Set(flowbird.KeyCurrentProtocol, "B"))
	require.NoError(t, f.store.Set(flowbird.KeyActiveProtocol, "B"))
	assert.Equal(t, 1, f.hunt.Starts())
}

func TestMachine_ConcurrentActivationsAgree(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.store.Observe(flowbird.KeyCurrentProtocol, func(_, value string) {
		if value == "A" {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.machine.ActivateProtocol("A"))
	}()
	<-entered
	go func() {
		defer wg.Done()
		assert.NoError(t, f.machine.ActivateProtocol("B"))
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	current, ok := f.machine.CurrentProtocol()
	require.True(t, ok)
	assert.Equal(t, f.store.Get(flowbird.KeyCurrentProtocol), current.Key())
	assert.Equal(t, "B", current.Key())
}

func TestMachine_ResyncReportsRemoval(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	f.machine.EnableConfigObserver()
	require.NoError(t, f.machine.ActivateProtocol("A"))
	require.NoError(t, f.machine.StartDetection())

	f.hunt.EmitDetected(testutil.ContactlessPayload(5, testATR))
	<-f.inserted

	require.NoError(t, f.store.Set(flowbird.KeyActiveProtocol, "B"))
	select {
	case <-f.removed:
	case <-time.After(time.Second):
		t.Fatal("restart cleared the tag without reporting its removal")
	}
	_, ok := f.machine.CurrentTag()
	assert.False(t, ok)
	assert.Equal(t, hunt.StateHunting, f.machine.State())
}

func TestMachine_RestartWithoutCardReportsNothing(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	require.NoError(t, f.machine.StartDetection())

	require.NoError(t, f.machine.Restart(true))
	assert.Empty(t, f.removed)
}

func TestMachine_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	f.machine.EnableConfigObserver()
	require.NoError(t, f.machine.ActivateProtocol("ALL"))
	require.NoError(t, f.machine.StartDetection())
	require.Equal(t, 1, f.hunt.Listeners())

	require.NoError(t, f.machine.Close())
	require.NoError(t, f.machine.Close())

	assert.False(t, f.hunt.Hunting())
	assert.Zero(t, f.hunt.Listeners())
	require.ErrorIs(t, f.machine.StartDetection(), hunt.ErrClosed)

	// The observer is gone
	require.NoError(t, f.store.Set(flowbird.KeyActiveProtocol, "ALL"))
	assert.Equal(t, 1, f.hunt.Starts())
}

func TestMachine_CallbackPanicIsRecovered(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	f.machine.SetOnCardInserted(func(flowbird.Tag) { panic("observer bug") })

	require.NoError(t, f.machine.StartDetection())
	assert.NotPanics(t, func() {
		f.hunt.EmitDetected(testutil.ContactlessPayload(5, testATR))
	})
	assert.Equal(t, hunt.StateCardPresent, f.machine.State())
}

func TestMachine_ConcurrentEventsAndStops(t *testing.T) {
	t.Parallel()
	f := newMachineFixture(t, nil)
	var inserted atomic.Int32
	f.machine.SetOnCardInserted(func(flowbird.Tag) { inserted.Add(1) })
	f.machine.SetOnCardRemoved(func() {})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 50 {
			f.hunt.EmitDetected(testutil.ContactlessPayload(9, testATR))
			f.hunt.EmitRemoved()
		}
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			_ = f.machine.StartDetection()
			_ = f.machine.StopDetection()
		}
	}()
	wg.Wait()

	state := f.machine.State()
	assert.Contains(t, []hunt.State{hunt.StateIdle, hunt.StateHunting, hunt.StateCardPresent}, state)
	assert.LessOrEqual(t, inserted.Load(), int32(50))
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Idle", hunt.StateIdle.String())
	assert.Equal(t, "Hunting", hunt.StateHunting.String())
	assert.Equal(t, "CardPresent", hunt.StateCardPresent.String())
	assert.Equal(t, "Error", hunt.StateError.String())
	assert.Equal(t, "Unknown", hunt.State(42).String())
}
