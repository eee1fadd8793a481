// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler drives every live session from a single tick
// loop: advance the engines, pick the sessions whose display changed
// materially, and spend a bounded per-tick edit budget on the most
// starved of them. The budget is what keeps N sessions inside one
// rate-limited messaging channel.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/playgrid/playgrid/lib/clock"
	"github.com/playgrid/playgrid/lib/ref"
	"github.com/playgrid/playgrid/session"
)

// Editor applies display updates. The messaging client implements it;
// tests substitute a recorder.
type Editor interface {
	// EditMessage replaces the body of an existing message.
	EditMessage(ctx context.Context, event ref.EventID, body string) error
}

// EndReason says why the scheduler destroyed a session.
type EndReason uint8

const (
	// EndGameOver: the engine declared the episode finished and the
	// final frame was delivered.
	EndGameOver EndReason = iota
	// EndEngineFault: the engine returned an error from an advance.
	EndEngineFault
	// EndTransportFailure: consecutive display edits failed past the
	// retry limit.
	EndTransportFailure
	// EndIdleTimeout: no input arrived within the idle window.
	EndIdleTimeout
)

// String returns the reason's display name.
func (r EndReason) String() string {
	switch r {
	case EndGameOver:
		return "game over"
	case EndEngineFault:
		return "engine fault"
	case EndTransportFailure:
		return "transport failure"
	case EndIdleTimeout:
		return "idle timeout"
	default:
		return "unknown"
	}
}

// Config holds the scheduler's tuning knobs and collaborators.
type Config struct {
	Registry *session.Registry
	Editor   Editor

	// TickInterval is the simulation step period.
	TickInterval time.Duration

	// SendBudget caps display edits per tick.
	SendBudget int

	// RetryLimit is the consecutive-edit-failure count that
	// terminates a session. Failures below the limit leave the
	// session dirty for a retry next tick.
	RetryLimit int

	// IdleRenderDivisor reduces render cadence for sessions with no
	// recent input: an idle session is only considered for an edit
	// every Nth tick. Zero or one disables the reduction.
	IdleRenderDivisor int

	// IdleTimeout destroys sessions with no input for this long.
	// Zero disables the timeout.
	IdleTimeout time.Duration

	// OnEnd, if set, is called after the scheduler destroys a
	// session, with the reason. The callback runs on the tick
	// goroutine; it must not block.
	OnEnd func(s *session.Session, reason EndReason)

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Scheduler is the single driver loop for all sessions.
type Scheduler struct {
	registry *session.Registry
	editor   Editor
	config   Config
	clock    clock.Clock
	logger   *slog.Logger

	ticks uint64
}

// New constructs a scheduler. Registry and Editor are required.
func New(config Config) *Scheduler {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.SendBudget <= 0 {
		config.SendBudget = 1
	}
	return &Scheduler{
		registry: config.Registry,
		editor:   config.Editor,
		config:   config,
		clock:    config.Clock,
		logger:   config.Logger,
	}
}

// Run ticks until the context is cancelled.
func (sc *Scheduler) Run(ctx context.Context) error {
	ticker := sc.clock.NewTicker(sc.config.TickInterval)
	defer ticker.Stop()
	sc.logger.Info("scheduler running",
		"tick", sc.config.TickInterval, "budget", sc.config.SendBudget)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sc.Tick(ctx)
		}
	}
}

// Tick runs one scheduling round: step every running session, then
// serve the most starved dirty sessions within the send budget.
// Exported so tests can drive rounds without the ticker.
func (sc *Scheduler) Tick(ctx context.Context) {
	sc.ticks++
	now := sc.clock.Now()

	var candidates []*session.Session
	for _, s := range sc.registry.List() {
		if !sc.step(ctx, s, now) {
			continue
		}
		if sc.wantsEdit(s) {
			candidates = append(candidates, s)
		}
	}

	// Oldest edit first; creation order breaks ties so the rotation
	// is deterministic. Sessions beyond the budget keep their dirty
	// flag and win next tick by construction.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.LastEditAt().Equal(b.LastEditAt()) {
			return a.LastEditAt().Before(b.LastEditAt())
		}
		return a.Seq() < b.Seq()
	})
	if len(candidates) > sc.config.SendBudget {
		candidates = candidates[:sc.config.SendBudget]
	}
	for _, s := range candidates {
		sc.serve(ctx, s, now)
	}
}

// step advances one session, isolating its faults from the rest of
// the tick. Returns false if the session ended this step.
func (sc *Scheduler) step(ctx context.Context, s *session.Session, now time.Time) bool {
	if s.State() == session.Terminated {
		// Destroyed mid-tick by a command handler; the registry
		// already dropped it or will.
		return false
	}

	if sc.config.IdleTimeout > 0 && now.Sub(s.LastInputAt()) >= sc.config.IdleTimeout {
		sc.logger.Info("session idle, destroying",
			"session", s.ID(), "owner", s.Owner(), "idle", now.Sub(s.LastInputAt()))
		sc.end(s, EndIdleTimeout)
		return false
	}

	if err := s.Step(ctx, sc.config.TickInterval); err != nil {
		sc.logger.Error("engine fault", "session", s.ID(), "error", err)
		sc.end(s, EndEngineFault)
		return false
	}
	return true
}

// wantsEdit reports whether a session should compete for this tick's
// edit budget.
func (sc *Scheduler) wantsEdit(s *session.Session) bool {
	if s.State() != session.Running {
		// Paused and Saving sessions retain their dirty flag but are
		// not rendered until they run again.
		return false
	}
	if !s.Dirty() || s.Sink().IsZero() {
		return false
	}
	if s.GameOver() || s.LastEditAt().IsZero() {
		// Final frames and initial frames bypass the idle reduction.
		return true
	}
	if d := sc.config.IdleRenderDivisor; d > 1 && s.IdleTicks() > 0 {
		return sc.ticks%uint64(d) == 0
	}
	return true
}

// serve spends one unit of the edit budget on a session.
func (sc *Scheduler) serve(ctx context.Context, s *session.Session, now time.Time) {
	err := sc.editor.EditMessage(ctx, s.Sink(), s.Payload())
	if err != nil {
		failures := s.MarkEditFailed()
		sc.logger.Warn("display edit failed",
			"session", s.ID(), "failures", failures, "error", err)
		if failures >= sc.config.RetryLimit && sc.config.RetryLimit > 0 {
			sc.end(s, EndTransportFailure)
		}
		return
	}
	s.MarkServed(now)
	if s.GameOver() {
		sc.logger.Info("game over", "session", s.ID(), "owner", s.Owner())
		sc.end(s, EndGameOver)
	}
}

func (sc *Scheduler) end(s *session.Session, reason EndReason) {
	sc.registry.Destroy(s.ID())
	if sc.config.OnEnd != nil {
		sc.config.OnEnd(s, reason)
	}
}
