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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()
	config := DefaultRetryConfig()
	assert.Positive(t, config.MaxAttempts)
	assert.Greater(t, config.MaxBackoff, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.Nil(t, config.Retryable)
}

func TestNextBackoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		current time.Duration
		want    time.Duration
		config  RetryConfig
	}{
		{"doubles", 100 * time.Millisecond, 200 * time.Millisecond, RetryConfig{BackoffMultiplier: 2, MaxBackoff: time.Second}},
		{"capped", 800 * time.Millisecond, time.Second, RetryConfig{BackoffMultiplier: 2, MaxBackoff: time.Second}},
		{"uncapped", time.Second, 3 * time.Second, RetryConfig{BackoffMultiplier: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, nextBackoff(tt.current, &tt.config))
		})
	}
}

func TestJittered(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond
	assert.Equal(t, base, jittered(base, 0))
	for range 50 {
		got := jittered(base, 0.5)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/2)
	}
}

func TestRetry_SucceedsAfterRetryableErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrExchangeTimeout
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return ErrBind
	})
	require.ErrorIs(t, err, ErrBind)
	assert.Equal(t, 1, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return ErrExchangeFailed
	})
	require.ErrorIs(t, err, ErrExchangeFailed)
	assert.Equal(t, 3, calls)
}

func TestRetry_CustomPredicate(t *testing.T) {
	t.Parallel()
	refused := errors.New("connection refused")
	config := fastRetry(4)
	config.Retryable = func(err error) bool { return errors.Is(err, refused) }

	calls := 0
	err := Retry(context.Background(), config, func(context.Context) error {
		calls++
		return refused
	})
	require.ErrorIs(t, err, refused)
	assert.Equal(t, 4, calls)
}

func TestRetry_SingleAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), &RetryConfig{}, func(context.Context) error {
		calls++
		return ErrExchangeTimeout
	})
	require.ErrorIs(t, err, ErrExchangeTimeout)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(3), func(context.Context) error {
		t.Fatal("fn must not run on a cancelled context")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	config := &RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, BackoffMultiplier: 1}

	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, config, func(context.Context) error { return ErrExchangeTimeout })
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrExchangeTimeout)
	case <-time.After(time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
}
