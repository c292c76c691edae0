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

import "github.com/ZaparooProject/go-flowbird/internal/syncutil"

// frameQueue is an unbounded FIFO drained by one goroutine. push never
// blocks, so the read loop keeps routing responses while a consumer is busy.
type frameQueue struct {
	ready  chan struct{}
	items  []Frame
	mu     syncutil.Mutex
	closed bool
}

func newFrameQueue() *frameQueue {
	return &frameQueue{ready: make(chan struct{}, 1)}
}

func (q *frameQueue) push(frame Frame) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, frame)
	q.mu.Unlock()
	q.signal()
}

// close lets run return once the queued frames are handled
func (q *frameQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *frameQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// run hands every frame to handle, in order, until the queue is closed and empty
func (q *frameQueue) run(handle func(Frame)) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.ready
			continue
		}
		frame := q.items[0]
		q.items[0] = Frame{}
		q.items = q.items[1:]
		q.mu.Unlock()
		handle(frame)
	}
}
