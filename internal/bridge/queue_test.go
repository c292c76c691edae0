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


package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameQueue_PushNeverBlocks(t *testing.T) {
	t.Parallel()
	q := newFrameQueue()
	release := make(chan struct{})
	handled := make(chan string, 200)
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.run(func(f Frame) {
			<-release
			handled <- f.ID
		})
	}()

	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for i := range 200 {
			q.push(Frame{ID: string(rune('a' + i%26))})
		}
	}()
	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push blocked behind a busy consumer")
	}

	close(release)
	q.close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after close")
	}
	require.Len(t, handled, 200)
	assert.Equal(t, "a", <-handled)
	assert.Equal(t, "b", <-handled)
}

func TestFrameQueue_PushAfterCloseIsDropped(t *testing.T) {
	t.Parallel()
	q := newFrameQueue()
	q.close()
	q.push(Frame{ID: "late"})

	var got []string
	q.run(func(f Frame) { got = append(got, f.ID) })
	assert.Empty(t, got)
}
