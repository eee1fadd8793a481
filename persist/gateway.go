// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playgrid/playgrid/lib/clock"
	"github.com/playgrid/playgrid/lib/ref"
	"github.com/playgrid/playgrid/session"
)

// SnapshotStore is the storage half of the gateway. *Store implements
// it; tests substitute stubs.
type SnapshotStore interface {
	Put(ctx context.Context, snapshot *Snapshot) error
	Get(ctx context.Context, owner ref.UserID, slot string) (*Snapshot, error)
	Delete(ctx context.Context, owner ref.UserID, slot string) error
	List(ctx context.Context, owner ref.UserID) ([]SlotInfo, error)
}

// Gateway bridges sessions and the save-slot store. It owns the save
// protocol: park the session so the engine cannot advance mid-
// serialization, snapshot, write, and put the session back exactly as
// it was. A failure at any point leaves both the session and the
// previously stored save untouched.
type Gateway struct {
	store  SnapshotStore
	clock  clock.Clock
	logger *slog.Logger
}

// NewGateway constructs a gateway. Store is required; clock and
// logger default to the real clock and slog.Default.
func NewGateway(store SnapshotStore, clk clock.Clock, logger *slog.Logger) *Gateway {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, clock: clk, logger: logger}
}

// Save writes the session's current engine state to the owner's slot.
// The session keeps accepting input throughout; it resumes ticking
// once the snapshot is taken.
func (g *Gateway) Save(ctx context.Context, s *session.Session, slot string) error {
	if err := s.BeginSave(); err != nil {
		return err
	}
	defer s.EndSave()

	engineState, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	snapshot := &Snapshot{
		Owner:      s.Owner(),
		Slot:       slot,
		SavedAt:    g.clock.Now().UnixMilli(),
		GridWidth:  s.Config().GridWidth,
		GridHeight: s.Config().GridHeight,
		Engine:     engineState,
	}
	if err := g.store.Put(ctx, snapshot); err != nil {
		return fmt.Errorf("persist: saving %s/%s: %w", s.Owner(), slot, err)
	}
	g.logger.Info("session saved", "session", s.ID(), "owner", s.Owner(), "slot", slot)
	return nil
}

// Load reads the owner's save slot. The caller builds a fresh paused
// session around the returned snapshot and feeds Snapshot.Engine to
// its engine; queued input is never part of a save.
func (g *Gateway) Load(ctx context.Context, owner ref.UserID, slot string) (*Snapshot, error) {
	return g.store.Get(ctx, owner, slot)
}

// Delete removes the owner's save slot.
func (g *Gateway) Delete(ctx context.Context, owner ref.UserID, slot string) error {
	return g.store.Delete(ctx, owner, slot)
}

// List returns the owner's save slots, newest first.
func (g *Gateway) List(ctx context.Context, owner ref.UserID) ([]SlotInfo, error) {
	return g.store.List(ctx, owner)
}
