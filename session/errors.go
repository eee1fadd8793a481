// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "errors"

// ErrCapacityExceeded is returned by Registry.Create when the
// configured concurrent-session ceiling is reached. User-visible: the
// session is not created.
var ErrCapacityExceeded = errors.New("session: registry is at capacity")

// ErrOwnerHasSession is returned by Registry.Create when the owner
// already has a live session and single-session-per-owner is enforced.
var ErrOwnerHasSession = errors.New("session: owner already has an active session")

// ErrNotFound is returned by Registry.Get for an absent or expired
// session ID. Treated as a stale reference: logged, not escalated.
var ErrNotFound = errors.New("session: not found")

// ErrQueueFull is returned by Enqueue under the reject-newest
// overflow policy when the input queue is at capacity.
var ErrQueueFull = errors.New("session: input queue is full")

// ErrTerminated is returned for operations on a session that has
// already reached the Terminated state.
var ErrTerminated = errors.New("session: terminated")

// ErrSinkAlreadySet is returned by SetSink when the session's display
// message has already been assigned. The sink is created exactly once
// and is stable for the session's lifetime.
var ErrSinkAlreadySet = errors.New("session: output sink already set")
