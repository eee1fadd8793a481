// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/playgrid/playgrid/engine"
	"github.com/playgrid/playgrid/lib/clock"
	"github.com/playgrid/playgrid/lib/ref"
)

// RegistryConfig holds the registry-wide limits and shared
// facilities.
type RegistryConfig struct {
	// MaxSessions is the concurrency ceiling. Zero means unlimited.
	MaxSessions int

	// SinglePerOwner rejects a second concurrent session for the same
	// user.
	SinglePerOwner bool

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Registry is the authoritative map of live sessions. All admission
// checks, the concurrency ceiling and the per-owner limit, are
// atomic with the insert, so concurrent creates cannot overshoot.
type Registry struct {
	maxSessions    int
	singlePerOwner bool
	clock          clock.Clock
	logger         *slog.Logger

	mu       sync.Mutex
	sessions map[ref.SessionID]*Session
	byOwner  map[ref.UserID]ref.SessionID
	nextSeq  uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry(config RegistryConfig) *Registry {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Registry{
		maxSessions:    config.MaxSessions,
		singlePerOwner: config.SinglePerOwner,
		clock:          config.Clock,
		logger:         config.Logger,
		sessions:       make(map[ref.SessionID]*Session),
		byOwner:        make(map[ref.UserID]ref.SessionID),
	}
}

// Create admits a new session for owner wrapping the given engine.
// Returns ErrCapacityExceeded at the concurrency ceiling and
// ErrOwnerHasSession when the per-owner limit applies; neither
// leaves any partial state behind. The engine is NOT closed on
// rejection; it still belongs to the caller.
func (r *Registry) Create(owner ref.UserID, eng engine.Engine, config Config) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return nil, fmt.Errorf("registry: %d sessions live: %w", len(r.sessions), ErrCapacityExceeded)
	}
	if r.singlePerOwner {
		if existing, ok := r.byOwner[owner]; ok {
			return nil, fmt.Errorf("registry: %s already owns session %s: %w", owner, existing, ErrOwnerHasSession)
		}
	}

	id := ref.NewSessionID()
	r.nextSeq++

	s := &Session{
		id:      id,
		owner:   owner,
		seq:     r.nextSeq,
		created: r.clock.Now(),
		config:  config,
		clock:   r.clock,
		logger:  r.logger.With("session", id),
		engine:  eng,
		queue:   newCommandQueue(config.QueueCapacity, config.Overflow),
	}
	if config.StartPaused {
		s.state = Paused
	}

	r.sessions[id] = s
	r.byOwner[owner] = id
	r.logger.Info("session created",
		"session", id, "owner", owner, "live", len(r.sessions))
	return s, nil
}

// Get looks up a live session.
func (r *Registry) Get(id ref.SessionID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("registry: session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// FindByOwner returns the owner's live session, if any.
func (r *Registry) FindByOwner(owner ref.UserID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOwner[owner]
	if !ok {
		return nil, false
	}
	return r.sessions[id], true
}

// Destroy terminates and removes a session. Destroying an unknown or
// already destroyed session is a no-op: destruction can race
// idle-timeout cleanup and user quit commands, and the loser of the
// race must not fail.
func (r *Registry) Destroy(id ref.SessionID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		if r.byOwner[s.owner] == id {
			delete(r.byOwner, s.owner)
		}
	}
	live := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	// Terminate outside the registry lock: closing an engine can
	// block, and ticking must not stall on it.
	s.Terminate()
	r.logger.Info("session destroyed", "session", id, "owner", s.owner, "live", live)
}

// List returns all live sessions in creation order.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the live session count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
