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
	"context"
	"errors"
	"fmt"
)

// Error categories for the reader core
var (
	// Binding errors - fatal, the plugin must not be registered
	ErrBind               = errors.New("reader binding failed")
	ErrAlreadyInitialized = errors.New("reader binding already initialized")
	ErrNoHandle           = errors.New("hardware handle not bound")
	ErrServiceUnavailable = errors.New("hardware sub-service unavailable")

	// Exchange errors - scoped to a single call
	ErrExchangeTimeout = errors.New("APDU exchange timeout")
	ErrExchangeFailed  = errors.New("APDU exchange failed")
	ErrInvalidCommand  = errors.New("invalid command APDU")

	// Programming errors - fail fast
	ErrWrongThread = errors.New("APDU exchange must not run on the UI thread")

	// Caller input errors - no side effects
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrUnknownProtocol     = errors.New("unknown protocol")
	ErrUnknownReader       = errors.New("unknown reader name")

	// Detection errors
	ErrTagNotPresent     = errors.New("no tag present")
	ErrMalformedEvent    = errors.New("malformed hunt event")
	ErrInvalidTransition = errors.New("invalid detection state transition")
)

// BindError reports why the one-time binding to the vendor services failed.
type BindError struct {
	Err    error  // Underlying error, may be nil
	Reason string // What went wrong (timeout, bind lost, ...)
}

func (e *BindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrBind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrBind, e.Reason)
}

// Unwrap returns the underlying errors so that both ErrBind and the cause match errors.Is.
func (e *BindError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBind, e.Err}
	}
	return []error{ErrBind}
}

// ExchangeError wraps a failed hardware exchange call with its target
type ExchangeError struct {
	Err    error  // Underlying error
	Op     string // Driver entry point that failed
	Target Target // Endpoint addressed by the call
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the caller may reasonably retry the operation.
// Only timeouts and hardware call errors qualify; no retry happens automatically.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	switch {
	case errors.Is(err, ErrExchangeTimeout),
		errors.Is(err, ErrExchangeFailed),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// IsFatal returns true for errors that leave the reader unusable
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrBind) || errors.Is(err, ErrNoHandle)
}
