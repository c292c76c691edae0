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

import "context"

type uiContextKey struct{}

// WithUIContext marks ctx as belonging to the UI dispatch loop. Exchanges
// started with such a context fail with ErrWrongThread.
func WithUIContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, uiContextKey{}, true)
}

// IsUIContext reports whether ctx was marked by WithUIContext
func IsUIContext(ctx context.Context) bool {
	marked, _ := ctx.Value(uiContextKey{}).(bool)
	return marked
}

// onUIThread reports whether the caller runs on the UI loop, either by
// context marker or on the OS thread registered with BindUIThread.
func onUIThread(ctx context.Context) bool {
	return IsUIContext(ctx) || onBoundUIThread()
}
