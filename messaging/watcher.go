// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playgrid/playgrid/lib/ref"
)

// watchedEventTypes is the timeline slice the bot cares about:
// reactions (game input), redactions (reaction cleanup echoes), and
// messages (chat commands).
var watchedEventTypes = []string{"m.reaction", "m.room.redaction", "m.room.message"}

// buildInlineFilter scopes /sync to the game room's timeline and
// suppresses everything else: state, presence, account data.
func buildInlineFilter(roomID ref.RoomID) string {
	top := map[string]any{
		"room": map[string]any{
			"rooms": []string{roomID.String()},
			"timeline": map[string]any{
				"types": watchedEventTypes,
			},
			"state": map[string]any{"types": []string{}},
		},
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}
	data, _ := json.Marshal(top)
	return string(data)
}

// maxSyncRetries is the number of consecutive /sync failures allowed
// before Next returns an error. Each retry uses a short server-side
// timeout so the round-trip itself provides backoff.
const maxSyncRetries = 5

// longPollTimeout is the server-side hold time in milliseconds for
// normal /sync calls, per the client-server spec recommendation.
const longPollTimeout = 30000

// retryTimeout is the server-side timeout in milliseconds after a
// /sync error.
const retryTimeout = 1000

// RoomWatcher follows one room's timeline over long-poll /sync,
// delivering events one at a time in arrival order. Create it before
// the first game session exists so no input is missed.
//
// Not safe for concurrent use. The bot runs a single watcher on its
// input goroutine.
type RoomWatcher struct {
	session   *Session
	roomID    ref.RoomID
	filter    string
	nextBatch string
	pending   []Event
}

// WatchRoom captures the current position in the room's timeline.
// Only events arriving after this call are delivered: history replay
// would press year-old buttons.
func WatchRoom(ctx context.Context, session *Session, roomID ref.RoomID) (*RoomWatcher, error) {
	if roomID.IsZero() {
		return nil, fmt.Errorf("messaging: WatchRoom requires a room ID")
	}
	inlineFilter := buildInlineFilter(roomID)
	response, err := session.Sync(ctx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     inlineFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: initial sync for room watch: %w", err)
	}
	return &RoomWatcher{
		session:   session,
		roomID:    roomID,
		filter:    inlineFilter,
		nextBatch: response.NextBatch,
	}, nil
}

// Next blocks until the next timeline event arrives. Events the
// watcher's own user sent are delivered too; callers filter by
// sender. On transient /sync errors, retries up to maxSyncRetries
// with a short server timeout, dropping idle connections so retries
// get a fresh socket. Bounded by ctx.
func (w *RoomWatcher) Next(ctx context.Context) (Event, error) {
	if len(w.pending) > 0 {
		event := w.pending[0]
		w.pending = w.pending[1:]
		return event, nil
	}

	var syncRetries int
	for {
		syncTimeout := longPollTimeout
		if syncRetries > 0 {
			syncTimeout = retryTimeout
		}
		response, err := w.session.Sync(ctx, SyncOptions{
			Since:      w.nextBatch,
			SetTimeout: true,
			Timeout:    syncTimeout,
			Filter:     w.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, fmt.Errorf("messaging: waiting for events in %s: %w", w.roomID, ctx.Err())
			}
			syncRetries++
			// Connection resets often mean a poisoned socket in the
			// HTTP pool; the next attempt should dial fresh.
			w.session.CloseIdleConnections()
			if syncRetries > maxSyncRetries {
				return Event{}, fmt.Errorf("messaging: sync failed %d consecutive times in %s: %w",
					syncRetries, w.roomID, err)
			}
			w.session.client.logger.Debug("sync error, retrying",
				"room", w.roomID, "attempt", syncRetries, "error", err)
			continue
		}
		syncRetries = 0
		w.nextBatch = response.NextBatch

		joined, ok := response.Rooms.Join[w.roomID]
		if !ok || len(joined.Timeline.Events) == 0 {
			continue
		}

		w.pending = append(w.pending, joined.Timeline.Events...)
		event := w.pending[0]
		w.pending = w.pending[1:]
		return event, nil
	}
}
