// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/playgrid/playgrid/lib/ref"
)

// Session is an authenticated connection to the homeserver as one
// user. Safe for concurrent use; the transaction counter is atomic
// and everything else is immutable.
type Session struct {
	client      *Client
	userID      ref.UserID
	accessToken string

	transactionCounter atomic.Uint64
}

// UserID returns the authenticated user.
func (s *Session) UserID() ref.UserID { return s.userID }

// CloseIdleConnections drops idle pooled connections on the shared
// client.
func (s *Session) CloseIdleConnections() { s.client.CloseIdleConnections() }

// WhoAmI asks the server which user this token belongs to. Useful as
// a startup credential check.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami: %w", err)
	}
	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: parsing whoami response: %w", err)
	}
	return response.UserID, nil
}

// JoinRoom joins the given room. Idempotent on the server side.
func (s *Session) JoinRoom(ctx context.Context, roomID ref.RoomID) error {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, map[string]any{}, nil); err != nil {
		return fmt.Errorf("messaging: joining %s: %w", roomID, err)
	}
	return nil
}

// SendMessage sends an m.room.message and returns its event ID. This
// is how a session's display message comes into being; everything
// after that is edits.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.sendEvent(ctx, roomID, "m.room.message", content)
}

// EditMessage replaces the body of an existing message using the
// m.replace relation. Returns the edit event's ID; the original
// event ID remains the stable handle for future edits.
func (s *Session) EditMessage(ctx context.Context, roomID ref.RoomID, target ref.EventID, content MessageContent) (ref.EventID, error) {
	return s.sendEvent(ctx, roomID, "m.room.message", NewEdit(target, content))
}

// React annotates an event with a reaction key. Used to seed the
// control emoji on a fresh display message so players have buttons to
// press.
func (s *Session) React(ctx context.Context, roomID ref.RoomID, target ref.EventID, key string) (ref.EventID, error) {
	content := ReactionContent{
		RelatesTo: RelatesTo{RelType: "m.annotation", EventID: target, Key: key},
	}
	return s.sendEvent(ctx, roomID, "m.reaction", content)
}

// RedactEvent removes an event. The bot redacts each player reaction
// after translating it, resetting the button for the next press.
func (s *Session) RedactEvent(ctx context.Context, roomID ref.RoomID, target ref.EventID, reason string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(target.String()),
		url.PathEscape(s.nextTransactionID()),
	)
	var requestBody map[string]any
	if reason != "" {
		requestBody = map[string]any{"reason": reason}
	} else {
		requestBody = map[string]any{}
	}
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, requestBody, nil); err != nil {
		return fmt.Errorf("messaging: redacting %s: %w", target, err)
	}
	return nil
}

// Sync performs one /sync call. Stateless: the position travels in
// options.Since, so independent pollers can share a Session.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync: %w", err)
	}
	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: parsing sync response: %w", err)
	}
	return &response, nil
}

// sendEvent sends an event via Matrix's idempotent PUT with a
// transaction ID.
func (s *Session) sendEvent(ctx context.Context, roomID ref.RoomID, eventType string, content any) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType),
		url.PathEscape(s.nextTransactionID()),
	)
	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content, nil)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: sending %s to %s: %w", eventType, roomID, err)
	}
	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: parsing send response: %w", err)
	}
	return response.EventID, nil
}

// nextTransactionID generates a transaction ID unique across restarts.
func (s *Session) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("playgrid-%d-%d", time.Now().UnixMilli(), counter)
}
