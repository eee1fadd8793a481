// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"

	"github.com/eapache/queue"

	"github.com/playgrid/playgrid/engine"
)

// OverflowPolicy defines what happens when a command arrives at a
// full input queue. Both policies are deterministic: the queue never
// loses a command silently in an unspecified way.
type OverflowPolicy uint8

const (
	// DropOldest evicts the oldest pending command to make room. The
	// newest input wins: a stale "forward" from seconds ago matters
	// less than the "fire" just pressed.
	DropOldest OverflowPolicy = iota

	// RejectNewest refuses the incoming command with ErrQueueFull,
	// preserving the pending backlog.
	RejectNewest
)

// ParseOverflowPolicy parses the config file spelling of a policy.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch name {
	case "drop-oldest":
		return DropOldest, nil
	case "reject-newest":
		return RejectNewest, nil
	default:
		return 0, fmt.Errorf("session: unknown overflow policy %q", name)
	}
}

// commandQueue is a bounded FIFO of pending control commands, backed
// by a growable ring buffer capped at the configured capacity.
//
// commandQueue is not safe for concurrent use; Session guards it with
// its own mutex so that enqueue (transport goroutine) and drain
// (scheduler tick) never interleave incoherently.
type commandQueue struct {
	ring     *queue.Queue
	capacity int
	policy   OverflowPolicy
	dropped  uint64
}

func newCommandQueue(capacity int, policy OverflowPolicy) *commandQueue {
	if capacity < 1 {
		panic(fmt.Sprintf("session: queue capacity must be positive, got %d", capacity))
	}
	return &commandQueue{
		ring:     queue.New(),
		capacity: capacity,
		policy:   policy,
	}
}

// push appends a command, applying the overflow policy at capacity.
func (q *commandQueue) push(command engine.Command) error {
	if q.ring.Length() >= q.capacity {
		switch q.policy {
		case DropOldest:
			q.ring.Remove()
			q.dropped++
		case RejectNewest:
			return ErrQueueFull
		}
	}
	q.ring.Add(command)
	return nil
}

// drain removes and returns up to n commands in arrival order.
func (q *commandQueue) drain(n int) []engine.Command {
	count := q.ring.Length()
	if count > n {
		count = n
	}
	if count == 0 {
		return nil
	}
	commands := make([]engine.Command, count)
	for i := range count {
		commands[i] = q.ring.Remove().(engine.Command)
	}
	return commands
}

func (q *commandQueue) len() int { return q.ring.Length() }
