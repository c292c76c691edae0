//go:build deadlock

// Package syncutil holds the lock types shared by the reader, hunt and
// transceiver code. This variant reports lock-order inversions and
// long-held locks through github.com/sasha-s/go-deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

func init() {
	// An exchange holds its endpoint for at most the exchange timeout; anything
	// far beyond the bind timeout is a stuck lock.
	deadlock.Opts.DeadlockTimeout = 10 * time.Second
}

// Mutex is a deadlock.Mutex in deadlock-detecting builds.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock.RWMutex in deadlock-detecting builds.
type RWMutex struct {
	deadlock.RWMutex
}
