// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot wires the pieces into a service: it watches one room,
// turns chat commands into session lifecycle operations, routes
// reaction events through the input translator into session queues,
// and runs the update scheduler that renders every live session back
// into its display message.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playgrid/playgrid/engine"
	"github.com/playgrid/playgrid/input"
	"github.com/playgrid/playgrid/lib/clock"
	"github.com/playgrid/playgrid/lib/ref"
	"github.com/playgrid/playgrid/messaging"
	"github.com/playgrid/playgrid/persist"
	"github.com/playgrid/playgrid/scheduler"
	"github.com/playgrid/playgrid/session"
)

// commandWord is the chat trigger. Bare "!play" starts a game;
// subcommands manage it.
const commandWord = "!play"

// Transport is the messaging surface the bot uses.
// *messaging.Session implements it; tests use a recorder.
type Transport interface {
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	EditMessage(ctx context.Context, roomID ref.RoomID, target ref.EventID, content messaging.MessageContent) (ref.EventID, error)
	React(ctx context.Context, roomID ref.RoomID, target ref.EventID, key string) (ref.EventID, error)
	RedactEvent(ctx context.Context, roomID ref.RoomID, target ref.EventID, reason string) error
}

// EventSource delivers room timeline events in arrival order.
// *messaging.RoomWatcher implements it.
type EventSource interface {
	Next(ctx context.Context) (messaging.Event, error)
}

// Config holds the bot's collaborators and tuning.
type Config struct {
	Transport Transport
	Events    EventSource

	// Room is the game room. Self is the bot's own user ID, used to
	// ignore its own timeline echoes.
	Room ref.RoomID
	Self ref.UserID

	// Registry, Gateway, and Keymap come pre-built from main.
	Registry *session.Registry
	Gateway  *persist.Gateway
	Keymap   input.Keymap

	// NewEngine creates a fresh engine per session.
	NewEngine func() engine.Engine

	// SessionConfig is the per-session template: grid size, noise
	// threshold, queue bounds, command batch size.
	SessionConfig session.Config

	// Scheduler tuning. Registry, Editor, OnEnd, Clock, and Logger
	// are filled in by New.
	Scheduler scheduler.Config

	// Debounce is the translator's per-user repeat window.
	Debounce time.Duration

	// Clock defaults to the real clock; Logger to slog.Default.
	Clock  clock.Clock
	Logger *slog.Logger
}

// Bot is the orchestrating service.
type Bot struct {
	transport     Transport
	events        EventSource
	room          ref.RoomID
	self          ref.UserID
	registry      *session.Registry
	gateway       *persist.Gateway
	keymap        input.Keymap
	translator    *input.Translator
	scheduler     *scheduler.Scheduler
	newEngine     func() engine.Engine
	sessionConfig session.Config
	clock         clock.Clock
	logger        *slog.Logger

	notices chan notice
}

type notice struct {
	owner  ref.UserID
	reason scheduler.EndReason
}

// New assembles a Bot with its translator and scheduler.
func New(config Config) *Bot {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	b := &Bot{
		transport:     config.Transport,
		events:        config.Events,
		room:          config.Room,
		self:          config.Self,
		registry:      config.Registry,
		gateway:       config.Gateway,
		keymap:        config.Keymap,
		newEngine:     config.NewEngine,
		sessionConfig: config.SessionConfig,
		clock:         config.Clock,
		logger:        config.Logger,
		notices:       make(chan notice, 16),
	}

	b.translator = input.New(input.Config{
		Keymap:   config.Keymap,
		Debounce: config.Debounce,
		Remover:  reactionRemover{bot: b},
		Clock:    config.Clock,
		Logger:   config.Logger,
	})

	schedulerConfig := config.Scheduler
	schedulerConfig.Registry = config.Registry
	schedulerConfig.Editor = displayEditor{bot: b}
	schedulerConfig.Clock = config.Clock
	schedulerConfig.Logger = config.Logger
	schedulerConfig.OnEnd = b.sessionEnded
	b.scheduler = scheduler.New(schedulerConfig)

	return b
}

// displayEditor adapts the transport to the scheduler's Editor: every
// frame is an in-place edit of the session's display message,
// formatted as a monospace block.
type displayEditor struct {
	bot *Bot
}

func (e displayEditor) EditMessage(ctx context.Context, target ref.EventID, body string) error {
	_, err := e.bot.transport.EditMessage(ctx, e.bot.room, target, messaging.NewCodeMessage(body))
	return err
}

// reactionRemover adapts the transport to the translator's Remover.
type reactionRemover struct {
	bot *Bot
}

func (r reactionRemover) RemoveReaction(ctx context.Context, reaction ref.EventID) error {
	return r.bot.transport.RedactEvent(ctx, r.bot.room, reaction, "input consumed")
}

// sessionEnded runs on the scheduler's tick goroutine; it must not
// block, so the notice goes into a buffered channel drained by Run's
// notifier goroutine. A full channel drops the notice; the log line
// still records the end.
func (b *Bot) sessionEnded(s *session.Session, reason scheduler.EndReason) {
	b.translator.Forget(s.Owner())
	select {
	case b.notices <- notice{owner: s.Owner(), reason: reason}:
	default:
		b.logger.Warn("notice channel full, dropping", "owner", s.Owner(), "reason", reason)
	}
}

// Run starts the scheduler and processes room events until the
// context is cancelled or the event source fails permanently.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedulerDone := make(chan error, 1)
	go func() { schedulerDone <- b.scheduler.Run(ctx) }()
	go b.drainNotices(ctx)

	b.logger.Info("bot running", "room", b.room, "self", b.self)
	for {
		event, err := b.events.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				<-schedulerDone
				return ctx.Err()
			}
			cancel()
			<-schedulerDone
			return fmt.Errorf("bot: event stream: %w", err)
		}
		b.dispatch(ctx, event)
	}
}

// dispatch routes one timeline event. Own echoes are dropped here so
// seeded reactions and frame edits never feed back into input.
func (b *Bot) dispatch(ctx context.Context, event messaging.Event) {
	if event.Sender == b.self {
		return
	}
	if key, target, ok := event.ReactionKey(); ok {
		b.handleReaction(ctx, event, key, target)
		return
	}
	if body, ok := event.MessageBody(); ok {
		b.handleCommand(ctx, event.Sender, body)
	}
}

// handleReaction feeds a control press into the owning session's
// queue. Reactions on unknown messages and presses by anyone but the
// session owner are ignored.
func (b *Bot) handleReaction(ctx context.Context, event messaging.Event, key string, target ref.EventID) {
	s := b.sessionBySink(target)
	if s == nil {
		return
	}
	if event.Sender != s.Owner() {
		return
	}

	command, ok := b.translator.Translate(ctx, input.Event{
		Sender:   event.Sender,
		Symbol:   key,
		Reaction: event.EventID,
		Target:   target,
	})
	if !ok {
		return
	}
	if err := s.Enqueue(command); err != nil {
		// Queue full under RejectNewest, or a quit raced the press.
		b.logger.Debug("input dropped", "session", s.ID(), "command", command, "error", err)
	}
}

func (b *Bot) sessionBySink(target ref.EventID) *session.Session {
	for _, s := range b.registry.List() {
		if s.Sink() == target {
			return s
		}
	}
	return nil
}

// drainNotices posts end-of-session notices to the room.
func (b *Bot) drainNotices(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-b.notices:
			body := endNoticeBody(n)
			if _, err := b.transport.SendMessage(ctx, b.room, messaging.NewTextMessage(body)); err != nil {
				b.logger.Warn("posting end notice", "owner", n.owner, "error", err)
			}
		}
	}
}

func endNoticeBody(n notice) string {
	name := n.owner.Localpart()
	switch n.reason {
	case scheduler.EndGameOver:
		return fmt.Sprintf("%s: game over. %s to start again.", name, commandWord)
	case scheduler.EndEngineFault:
		return fmt.Sprintf("%s: your game crashed and the session was closed. %s starts a fresh one.", name, commandWord)
	case scheduler.EndTransportFailure:
		return fmt.Sprintf("%s: the display could not be updated and the session was closed.", name)
	case scheduler.EndIdleTimeout:
		return fmt.Sprintf("%s: session closed after inactivity. %s load restores a save.", name, commandWord)
	default:
		return fmt.Sprintf("%s: session ended.", name)
	}
}
