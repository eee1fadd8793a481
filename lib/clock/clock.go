// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. The update scheduler,
// input debounce, and idle-timeout logic all run off a Clock instead
// of the time package directly: production code injects Real(), tests
// inject Fake() and drive ticks deterministically with Advance.
package clock

import "time"

// Clock is the time source for tick loops, debounce windows, and
// timestamps. Any production function that would call time.Now,
// time.After, time.NewTicker, or time.Sleep takes a Clock instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once, after d elapses.
	// If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1,
// matching time.Ticker: if the consumer falls behind, ticks are
// dropped rather than queued. Call Stop to release resources; Stop
// does not close C.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop turns the ticker off. No ticks arrive on C after Stop returns.
func (t *Ticker) Stop() { t.stop() }

// Reset changes the interval and restarts the tick cycle; the next
// tick arrives after the new duration.
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }
