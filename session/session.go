// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the per-player game state: one engine
// instance, its pending input queue, the last transmitted grid, and
// the display-message handle. The Registry creates, looks up, and
// destroys sessions under a configured concurrency ceiling.
//
// Concurrency contract: the update scheduler is the only caller of
// Step, so an engine is never advanced concurrently with itself.
// Enqueue is called from the transport's sync goroutine at any time;
// the session's mutex makes each enqueue atomic with respect to the
// drain at the start of a step.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playgrid/playgrid/engine"
	"github.com/playgrid/playgrid/grid"
	"github.com/playgrid/playgrid/lib/clock"
	"github.com/playgrid/playgrid/lib/ref"
)

// State is a session's lifecycle state.
type State uint8

const (
	// Starting is the initial state: created, display message not yet
	// established.
	Starting State = iota
	// Running sessions are ticked and rendered by the scheduler.
	Running
	// Paused sessions keep their engine and queue but are excluded
	// from ticking and rendering.
	Paused
	// Saving sessions are excluded from ticking while the persistence
	// gateway serializes the engine; input stays queued.
	Saving
	// Terminated is final: the engine handle is released.
	Terminated
)

// String returns the state's display name.
func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Saving:
		return "saving"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Config holds the per-session parameters fixed at creation.
type Config struct {
	// GridWidth and GridHeight are the display grid dimensions.
	GridWidth  int
	GridHeight int

	// NoiseThreshold is the changed-cell count a render must exceed
	// to mark the session dirty.
	NoiseThreshold int

	// QueueCapacity bounds the pending input queue.
	QueueCapacity int

	// Overflow is the queue overflow policy.
	Overflow OverflowPolicy

	// CommandsPerTick caps how many queued commands one step feeds to
	// the engine.
	CommandsPerTick int

	// StatusLine includes the HUD line in the display payload.
	StatusLine bool

	// StartPaused creates the session in Paused state. Used by the
	// persistence load path: a restored session requires an explicit
	// resume.
	StartPaused bool
}

// Session is one player's isolated game instance.
type Session struct {
	id      ref.SessionID
	owner   ref.UserID
	seq     uint64
	created time.Time
	config  Config
	clock   clock.Clock
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	savedFrom State // state to restore when Saving completes
	engine    engine.Engine
	queue     *commandQueue
	sink      ref.EventID

	lastGrid grid.Grid // most recently transmitted
	pending  grid.Grid // most recently quantized
	hud      engine.HUD
	dirty    bool
	gameOver bool

	lastTickAt   time.Time
	lastEditAt   time.Time
	lastInputAt  time.Time
	idleTicks    int
	editFailures int
}

// ID returns the session's identifier.
func (s *Session) ID() ref.SessionID { return s.id }

// Owner returns the controlling user.
func (s *Session) Owner() ref.UserID { return s.owner }

// Seq returns the session's creation sequence number. It is the
// deterministic tie-break when two sessions share the same
// last-served time.
func (s *Session) Seq() uint64 { return s.seq }

// CreatedAt returns the session's creation time.
func (s *Session) CreatedAt() time.Time { return s.created }

// Config returns the session's creation-time parameters.
func (s *Session) Config() Config { return s.config }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSink assigns the session's display message. The sink is set
// exactly once; a second call returns ErrSinkAlreadySet. Setting the
// sink moves a Starting session to Running (unless it was created
// paused).
func (s *Session) SetSink(sink ref.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sink.IsZero() {
		return ErrSinkAlreadySet
	}
	s.sink = sink
	if s.state == Starting {
		s.state = Running
	}
	return nil
}

// Sink returns the display message handle, zero before SetSink.
func (s *Session) Sink() ref.EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// Enqueue adds a control command to the pending queue, applying the
// overflow policy at capacity. Commands are accepted in every state
// except Terminated; input arriving while Paused or Saving stays
// queued until the session runs again.
func (s *Session) Enqueue(command engine.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return ErrTerminated
	}
	if err := s.queue.push(command); err != nil {
		return err
	}
	s.lastInputAt = s.clock.Now()
	return nil
}

// QueueLen returns the number of pending commands.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Step runs one simulation step: drain a bounded batch of commands,
// advance the engine, quantize the frame, and compare against the
// last transmitted grid. A material difference (changed cells above
// the noise threshold) marks the session dirty; the dirty flag is
// retained across steps until the scheduler serves the session.
//
// Step is a no-op unless the session is Running. An engine fault
// terminates the session and is returned to the caller; the same step
// is never retried.
func (s *Session) Step(ctx context.Context, dt time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return nil
	}

	commands := s.queue.drain(s.config.CommandsPerTick)
	if len(commands) == 0 {
		s.idleTicks++
	} else {
		s.idleTicks = 0
	}

	frame, err := s.engine.Advance(ctx, dt, commands)
	if err != nil {
		s.terminateLocked()
		return fmt.Errorf("session %s: engine advance: %w", s.id, err)
	}

	rendered, err := grid.Quantize(frame, s.config.GridWidth, s.config.GridHeight)
	if err != nil {
		s.terminateLocked()
		return fmt.Errorf("session %s: %w", s.id, err)
	}

	s.pending = rendered
	s.hud = frame.HUD
	s.lastTickAt = s.clock.Now()

	if frame.GameOver {
		s.gameOver = true
		s.dirty = true
	} else if s.lastGrid.IsZero() || s.lastGrid.Diff(rendered) > s.config.NoiseThreshold {
		s.dirty = true
	}
	return nil
}

// Dirty reports whether the latest render differs materially from the
// last transmitted grid.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// GameOver reports whether the engine declared the episode finished.
func (s *Session) GameOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameOver
}

// IdleTicks returns the number of consecutive steps that drained no
// input. The scheduler renders long-idle sessions at reduced cadence.
func (s *Session) IdleTicks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleTicks
}

// LastEditAt returns when the session's sink was last edited. Zero
// before the first serve, which sorts first in starvation order, so
// fresh sessions get their initial frame promptly.
func (s *Session) LastEditAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEditAt
}

// LastInputAt returns when input last arrived, for idle-timeout
// enforcement. Zero if the session has never received input; idle
// timeout then measures from creation.
func (s *Session) LastInputAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastInputAt.IsZero() {
		return s.created
	}
	return s.lastInputAt
}

// Payload returns the current display payload: the bordered grid,
// the HUD status line when configured, and a terminal banner once the
// engine declares the episode over.
func (s *Session) Payload() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.pending
	if g.IsZero() {
		g = s.lastGrid
	}
	var body string
	if s.config.StatusLine {
		hud := s.hud
		body = grid.Compose(g, &hud)
	} else {
		body = grid.Compose(g, nil)
	}
	if s.gameOver {
		body += "\n*** GAME OVER ***"
	}
	return body
}

// MarkServed records a successful sink edit: the pending grid becomes
// the transmitted grid, the dirty flag clears, and the edit-failure
// counter resets.
func (s *Session) MarkServed(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGrid = s.pending
	s.dirty = false
	s.lastEditAt = at
	s.editFailures = 0
}

// MarkEditFailed records a failed sink edit and returns the number of
// consecutive failures. The dirty flag is retained so the scheduler
// retries next tick.
func (s *Session) MarkEditFailed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editFailures++
	return s.editFailures
}

// Pause excludes the session from ticking and rendering. The engine
// handle and queue are retained. Pausing a Terminated session returns
// ErrTerminated; pausing a Paused session is a no-op.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Terminated:
		return ErrTerminated
	case Saving:
		return fmt.Errorf("session %s: cannot pause while saving", s.id)
	}
	s.state = Paused
	return nil
}

// Resume re-enters Running from Paused without state loss.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Terminated:
		return ErrTerminated
	case Saving:
		return fmt.Errorf("session %s: cannot resume while saving", s.id)
	}
	s.state = Running
	return nil
}

// BeginSave moves the session into Saving, excluding it from ticking
// so the engine snapshot cannot race an advance. Input arriving
// during the save stays queued. EndSave restores the prior state.
func (s *Session) BeginSave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Terminated:
		return ErrTerminated
	case Saving:
		return fmt.Errorf("session %s: save already in progress", s.id)
	}
	s.savedFrom = s.state
	s.state = Saving
	return nil
}

// EndSave returns the session to its pre-save state. Called whether
// the save succeeded or failed; a failed save leaves the session
// exactly as it was.
func (s *Session) EndSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Saving {
		s.state = s.savedFrom
	}
}

// Snapshot serializes the engine state. Valid only in Saving state
// (call BeginSave first). The engine call runs without the session
// lock held (ticking is already excluded by the state), so queued
// input keeps flowing in during a slow save.
func (s *Session) Snapshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.state != Saving {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s: snapshot requires Saving state, session is %s", s.id, state)
	}
	eng := s.engine
	s.mu.Unlock()

	blob, err := eng.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("session %s: engine save: %w", s.id, err)
	}
	return blob, nil
}

// RestoreFrom loads an engine-state blob into the session's engine.
// Valid only before the session has started running (Starting or a
// paused fresh session).
func (s *Session) RestoreFrom(ctx context.Context, blob []byte) error {
	s.mu.Lock()
	if s.state != Starting && s.state != Paused {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session %s: restore requires a fresh session, session is %s", s.id, state)
	}
	eng := s.engine
	s.mu.Unlock()

	if err := eng.Load(ctx, blob); err != nil {
		return fmt.Errorf("session %s: engine load: %w", s.id, err)
	}
	return nil
}

// Terminate releases the engine handle and moves the session to its
// final state. Idempotent.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked()
}

func (s *Session) terminateLocked() {
	if s.state == Terminated {
		return
	}
	s.state = Terminated
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("closing engine", "session", s.id, "error", err)
	}
}
