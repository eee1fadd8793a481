// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playgrid/playgrid/lib/ref"
	"github.com/playgrid/playgrid/messaging"
	"github.com/playgrid/playgrid/persist"
	"github.com/playgrid/playgrid/session"
)

// defaultSlot is the save slot used when the player does not name one.
const defaultSlot = "default"

// handleCommand parses and executes a "!play" chat command. Anything
// that does not start with the command word is ordinary chat and is
// ignored.
func (b *Bot) handleCommand(ctx context.Context, sender ref.UserID, body string) {
	fields := strings.Fields(body)
	if len(fields) == 0 || fields[0] != commandWord {
		return
	}

	subcommand := "start"
	if len(fields) > 1 {
		subcommand = fields[1]
	}
	argument := ""
	if len(fields) > 2 {
		argument = fields[2]
	}

	switch subcommand {
	case "start":
		b.handleStart(ctx, sender)
	case "quit", "stop":
		b.handleQuit(ctx, sender)
	case "pause":
		b.handlePause(ctx, sender)
	case "resume":
		b.handleResume(ctx, sender)
	case "save":
		b.handleSave(ctx, sender, argument)
	case "load":
		b.handleLoad(ctx, sender, argument)
	case "saves":
		b.handleSaves(ctx, sender)
	case "help":
		b.reply(ctx, helpText())
	default:
		b.reply(ctx, fmt.Sprintf("%s: unknown subcommand %q. %s help lists them.",
			sender.Localpart(), subcommand, commandWord))
	}
}

// handleStart creates a session, its display message, and the control
// reactions. Any transport failure during setup rolls the session
// back so a half-wired game never ticks.
func (b *Bot) handleStart(ctx context.Context, sender ref.UserID) {
	s, err := b.registry.Create(sender, b.newEngine(), b.sessionConfig)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrOwnerHasSession):
			b.reply(ctx, fmt.Sprintf("%s: you already have an active game. %s quit ends it.",
				sender.Localpart(), commandWord))
		case errors.Is(err, session.ErrCapacityExceeded):
			b.reply(ctx, fmt.Sprintf("%s: all game slots are busy, try again in a bit.",
				sender.Localpart()))
		default:
			b.logger.Error("creating session", "owner", sender, "error", err)
			b.reply(ctx, fmt.Sprintf("%s: could not start a game.", sender.Localpart()))
		}
		return
	}

	if err := b.attachDisplay(ctx, s); err != nil {
		b.registry.Destroy(s.ID())
		b.logger.Error("attaching display", "session", s.ID(), "error", err)
		b.reply(ctx, fmt.Sprintf("%s: could not start a game.", sender.Localpart()))
	}
}

// attachDisplay sends the display message, registers it as the
// session's sink, and seeds the control reactions in command order.
func (b *Bot) attachDisplay(ctx context.Context, s *session.Session) error {
	sink, err := b.transport.SendMessage(ctx, b.room,
		messaging.NewCodeMessage("Starting up... react to this message to play."))
	if err != nil {
		return fmt.Errorf("bot: sending display message: %w", err)
	}
	if err := s.SetSink(sink); err != nil {
		return err
	}
	for _, symbol := range b.keymap.Symbols() {
		if _, err := b.transport.React(ctx, b.room, sink, symbol); err != nil {
			return fmt.Errorf("bot: seeding control %q: %w", symbol, err)
		}
	}
	return nil
}

func (b *Bot) handleQuit(ctx context.Context, sender ref.UserID) {
	s, ok := b.registry.FindByOwner(sender)
	if !ok {
		b.reply(ctx, fmt.Sprintf("%s: no active game.", sender.Localpart()))
		return
	}
	b.registry.Destroy(s.ID())
	b.translator.Forget(sender)
	b.reply(ctx, fmt.Sprintf("%s: session ended.", sender.Localpart()))
}

func (b *Bot) handlePause(ctx context.Context, sender ref.UserID) {
	s, ok := b.registry.FindByOwner(sender)
	if !ok {
		b.reply(ctx, fmt.Sprintf("%s: no active game.", sender.Localpart()))
		return
	}
	if err := s.Pause(); err != nil {
		b.reply(ctx, fmt.Sprintf("%s: cannot pause right now.", sender.Localpart()))
		return
	}
	b.reply(ctx, fmt.Sprintf("%s: paused. %s resume continues.", sender.Localpart(), commandWord))
}

func (b *Bot) handleResume(ctx context.Context, sender ref.UserID) {
	s, ok := b.registry.FindByOwner(sender)
	if !ok {
		b.reply(ctx, fmt.Sprintf("%s: no active game.", sender.Localpart()))
		return
	}
	if err := s.Resume(); err != nil {
		b.reply(ctx, fmt.Sprintf("%s: cannot resume right now.", sender.Localpart()))
		return
	}
	b.reply(ctx, fmt.Sprintf("%s: resumed.", sender.Localpart()))
}

func (b *Bot) handleSave(ctx context.Context, sender ref.UserID, slot string) {
	s, ok := b.registry.FindByOwner(sender)
	if !ok {
		b.reply(ctx, fmt.Sprintf("%s: no active game to save.", sender.Localpart()))
		return
	}
	if slot == "" {
		slot = defaultSlot
	}
	if err := b.gateway.Save(ctx, s, slot); err != nil {
		b.logger.Error("saving session", "session", s.ID(), "slot", slot, "error", err)
		b.reply(ctx, fmt.Sprintf("%s: save failed, your game is unaffected.", sender.Localpart()))
		return
	}
	b.reply(ctx, fmt.Sprintf("%s: saved to slot %q.", sender.Localpart(), slot))
}

// handleLoad restores a save into a fresh session that starts paused;
// the player resumes explicitly once the display is in place.
func (b *Bot) handleLoad(ctx context.Context, sender ref.UserID, slot string) {
	if slot == "" {
		slot = defaultSlot
	}
	if _, ok := b.registry.FindByOwner(sender); ok {
		b.reply(ctx, fmt.Sprintf("%s: quit your current game before loading.", sender.Localpart()))
		return
	}

	snapshot, err := b.gateway.Load(ctx, sender, slot)
	if err != nil {
		if errors.Is(err, persist.ErrNoSave) {
			b.reply(ctx, fmt.Sprintf("%s: no save in slot %q.", sender.Localpart(), slot))
			return
		}
		b.logger.Error("loading save", "owner", sender, "slot", slot, "error", err)
		b.reply(ctx, fmt.Sprintf("%s: that save could not be loaded.", sender.Localpart()))
		return
	}

	config := b.sessionConfig
	config.GridWidth = snapshot.GridWidth
	config.GridHeight = snapshot.GridHeight
	config.StartPaused = true

	s, err := b.registry.Create(sender, b.newEngine(), config)
	if err != nil {
		b.logger.Error("creating restored session", "owner", sender, "error", err)
		b.reply(ctx, fmt.Sprintf("%s: could not start a game.", sender.Localpart()))
		return
	}
	if err := s.RestoreFrom(ctx, snapshot.Engine); err != nil {
		b.registry.Destroy(s.ID())
		b.logger.Error("restoring engine state", "owner", sender, "slot", slot, "error", err)
		b.reply(ctx, fmt.Sprintf("%s: that save could not be loaded.", sender.Localpart()))
		return
	}
	if err := b.attachDisplay(ctx, s); err != nil {
		b.registry.Destroy(s.ID())
		b.logger.Error("attaching display", "session", s.ID(), "error", err)
		b.reply(ctx, fmt.Sprintf("%s: could not start a game.", sender.Localpart()))
		return
	}
	b.reply(ctx, fmt.Sprintf("%s: loaded slot %q (saved %s). %s resume starts play.",
		sender.Localpart(), slot, snapshot.SavedTime().Format("2006-01-02 15:04"), commandWord))
}

func (b *Bot) handleSaves(ctx context.Context, sender ref.UserID) {
	slots, err := b.gateway.List(ctx, sender)
	if err != nil {
		b.logger.Error("listing saves", "owner", sender, "error", err)
		b.reply(ctx, fmt.Sprintf("%s: could not list saves.", sender.Localpart()))
		return
	}
	if len(slots) == 0 {
		b.reply(ctx, fmt.Sprintf("%s: no saves yet. %s save makes one.", sender.Localpart(), commandWord))
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s's saves:", sender.Localpart())
	for _, info := range slots {
		fmt.Fprintf(&sb, "\n  %s (saved %s)", info.Slot,
			time.UnixMilli(info.SavedAt).UTC().Format("2006-01-02 15:04"))
	}
	b.reply(ctx, sb.String())
}

func (b *Bot) reply(ctx context.Context, body string) {
	if _, err := b.transport.SendMessage(ctx, b.room, messaging.NewTextMessage(body)); err != nil {
		b.logger.Warn("sending reply", "error", err)
	}
}

func helpText() string {
	return strings.Join([]string{
		commandWord + " — start a game (controls appear as reactions on the display message)",
		commandWord + " pause / resume — suspend and continue",
		commandWord + " save [slot] — save the current game",
		commandWord + " load [slot] — restore a save into a paused session",
		commandWord + " saves — list your save slots",
		commandWord + " quit — end your session",
	}, "\n")
}
