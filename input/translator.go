// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package input translates reaction events from the messaging
// transport into engine control commands.
//
// Translation is lossy on purpose: unrecognized symbols are ignored
// without surfacing an error to the user, and repeated identical
// commands from one user inside the debounce window coalesce to a
// single enqueued command so a rapid-fire user cannot starve other
// sessions of the engine input budget.
//
// Removing a consumed reaction from the message (so the same press
// cannot be reapplied, and the user can press it again) is the
// translator's job, not the session's.
package input

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/playgrid/playgrid/engine"
	"github.com/playgrid/playgrid/lib/clock"
	"github.com/playgrid/playgrid/lib/ref"
)

// Event is one reaction arriving from the transport.
type Event struct {
	// Sender is the user who pressed the reaction.
	Sender ref.UserID

	// Symbol is the reaction key (emoji).
	Symbol string

	// Reaction is the event ID of the reaction itself, used to redact
	// it after consumption.
	Reaction ref.EventID

	// Target is the event ID the reaction was attached to (a
	// session's display message).
	Target ref.EventID
}

// Remover redacts a consumed reaction from the event source. The bot
// adapts its transport to this; tests use a recorder.
type Remover interface {
	RemoveReaction(ctx context.Context, reaction ref.EventID) error
}

// Translator maps reaction events to commands with per-user debounce.
// Safe for concurrent use: reaction events arrive from the transport
// sync loop while the scheduler may be mid-tick.
type Translator struct {
	keymap   Keymap
	debounce time.Duration
	clock    clock.Clock
	remover  Remover
	logger   *slog.Logger

	mu   sync.Mutex
	last map[ref.UserID]lastCommand
}

type lastCommand struct {
	command engine.Command
	at      time.Time
}

// Config holds the parameters for creating a Translator.
type Config struct {
	// Keymap maps symbols to commands. If nil, DefaultKeymap() is used.
	Keymap Keymap
	// Debounce is the per-user identical-command coalescing window.
	// Zero disables debouncing.
	Debounce time.Duration
	// Remover redacts consumed reactions. Required.
	Remover Remover
	// Clock is the time source. If nil, clock.Real() is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// New creates a Translator.
func New(config Config) *Translator {
	keymap := config.Keymap
	if keymap == nil {
		keymap = DefaultKeymap()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		keymap:   keymap,
		debounce: config.Debounce,
		clock:    clk,
		remover:  config.Remover,
		logger:   logger,
		last:     make(map[ref.UserID]lastCommand),
	}
}

// Translate maps a reaction event to a command. The second return is
// false when the event is ignored: unrecognized symbol, or an
// identical command from the same user inside the debounce window.
//
// Recognized reactions are redacted from the source whether or not
// they were debounced: the reaction has been consumed either way.
// Redaction failures are logged, not escalated: the reaction may have
// been removed externally already.
func (t *Translator) Translate(ctx context.Context, event Event) (engine.Command, bool) {
	command, known := t.keymap[event.Symbol]
	if !known {
		return 0, false
	}

	if err := t.remover.RemoveReaction(ctx, event.Reaction); err != nil {
		t.logger.Debug("removing consumed reaction failed",
			"reaction", event.Reaction,
			"sender", event.Sender,
			"error", err,
		)
	}

	if t.debounced(event.Sender, command) {
		return 0, false
	}
	return command, true
}

// debounced reports whether the command repeats the sender's last
// accepted one inside the debounce window. Only accepted commands are
// recorded: the window is anchored to the last command that went
// through, so sustained pressing still admits one command per window
// instead of freezing out the sender entirely.
func (t *Translator) debounced(sender ref.UserID, command engine.Command) bool {
	if t.debounce <= 0 {
		return false
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	previous, seen := t.last[sender]
	if seen && previous.command == command && now.Sub(previous.at) < t.debounce {
		return true
	}
	t.last[sender] = lastCommand{command: command, at: now}
	return false
}

// Forget drops the debounce state for a user. Called when the user's
// session is destroyed so a later session starts fresh.
func (t *Translator) Forget(user ref.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, user)
}
