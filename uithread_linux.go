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

//go:build linux

package flowbird

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// uiThreadID is the kernel thread id of the UI loop, zero when unbound
var uiThreadID atomic.Int64

// BindUIThread locks the calling goroutine to its OS thread and registers
// that thread as the UI thread. Exchanges issued from it fail with
// ErrWrongThread. The returned function releases the binding.
func BindUIThread() (release func()) {
	runtime.LockOSThread()
	tid := int64(unix.Gettid())
	uiThreadID.Store(tid)
	return func() {
		uiThreadID.CompareAndSwap(tid, 0)
		runtime.UnlockOSThread()
	}
}

func onBoundUIThread() bool {
	tid := uiThreadID.Load()
	return tid != 0 && tid == int64(unix.Gettid())
}
