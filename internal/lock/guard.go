// Package lock provides the run-lock liveness guard used by the orchestrator.
//
// The per-user mutual-exclusion lock is acquired and heartbeated outside the
// orchestration core. The core cooperates by invoking an injected Guard
// between every network-bound step. This is cooperative cancellation: an
// in-flight exchange call is never interrupted, but no further step starts
// once the guard trips.
package lock

import (
	"context"
	"errors"
)

// ErrLockLost is returned by a Guard when the run lock is no longer held.
// Callers stop remaining steps; already-persisted trades are not rolled back.
var ErrLockLost = errors.New("run lock no longer held")

// Guard asserts that the run lock is still held. It returns ErrLockLost
// (possibly wrapped) when it is not.
type Guard func(ctx context.Context) error

// Noop returns a guard that always passes. Used by tests and single-process
// deployments that do not share state.
func Noop() Guard {
	return func(context.Context) error { return nil }
}
