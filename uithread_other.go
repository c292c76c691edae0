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

//go:build !linux

package flowbird

import "runtime"

// BindUIThread locks the calling goroutine to its OS thread. Thread
// identity is not available on this platform, so only WithUIContext
// markers are detected.
func BindUIThread() (release func()) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

func onBoundUIThread() bool {
	return false
}
