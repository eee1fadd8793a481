// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "github.com/playgrid/playgrid/lib/ref"

// MessageContent is the content of an m.room.message event. Edits
// carry the replacement in NewContent and point at the original via
// RelatesTo with rel_type m.replace.
type MessageContent struct {
	MsgType    string          `json:"msgtype"`
	Body       string          `json:"body"`
	Format     string          `json:"format,omitempty"`
	Formatted  string          `json:"formatted_body,omitempty"`
	NewContent *MessageContent `json:"m.new_content,omitempty"`
	RelatesTo  *RelatesTo      `json:"m.relates_to,omitempty"`
}

// RelatesTo expresses a relationship to another event: m.replace for
// edits, m.annotation for reactions.
type RelatesTo struct {
	RelType string      `json:"rel_type"`
	EventID ref.EventID `json:"event_id"`
	Key     string      `json:"key,omitempty"`
}

// ReactionContent is the content of an m.reaction event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: "m.text", Body: body}
}

// NewCodeMessage creates a message whose formatted body renders as a
// monospace block. The plain body carries the same text for clients
// without HTML rendering; both need the fixed-pitch framing for the
// grid to line up.
func NewCodeMessage(body string) MessageContent {
	return MessageContent{
		MsgType:   "m.text",
		Body:      body,
		Format:    "org.matrix.custom.html",
		Formatted: "<pre><code>" + htmlEscape(body) + "</code></pre>",
	}
}

// NewEdit creates the replacement content for an existing message.
// The top-level body carries the conventional "* " fallback prefix;
// clients that understand m.replace render NewContent instead.
func NewEdit(target ref.EventID, replacement MessageContent) MessageContent {
	edited := replacement
	return MessageContent{
		MsgType:    replacement.MsgType,
		Body:       "* " + replacement.Body,
		Format:     replacement.Format,
		Formatted:  replacement.Formatted,
		NewContent: &edited,
		RelatesTo:  &RelatesTo{RelType: "m.replace", EventID: target},
	}
}

func htmlEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

// Event is a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	Redacts        ref.EventID    `json:"redacts,omitempty"`
}

// ReactionKey extracts the annotation key and target from an
// m.reaction event. ok is false for anything else.
func (e Event) ReactionKey() (key string, target ref.EventID, ok bool) {
	if e.Type != "m.reaction" {
		return "", ref.EventID{}, false
	}
	relates, _ := e.Content["m.relates_to"].(map[string]any)
	if relates == nil || relates["rel_type"] != "m.annotation" {
		return "", ref.EventID{}, false
	}
	key, _ = relates["key"].(string)
	rawTarget, _ := relates["event_id"].(string)
	parsed, err := ref.ParseEventID(rawTarget)
	if err != nil || key == "" {
		return "", ref.EventID{}, false
	}
	return key, parsed, true
}

// MessageBody extracts the plain body of an m.room.message event.
// ok is false for other event types and empty bodies.
func (e Event) MessageBody() (string, bool) {
	if e.Type != "m.room.message" {
		return "", false
	}
	body, _ := e.Content["body"].(string)
	return body, body != ""
}

// SyncOptions controls the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch from the previous sync; empty for initial
	Timeout    int    // long-poll hold in milliseconds
	SetTimeout bool   // send the timeout parameter even when zero
	Filter     string // inline JSON filter
}

// SyncResponse is the top-level /sync response.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups per-room sync data by membership state. Map
// keys decode through ref.RoomID's TextUnmarshaler.
type RoomsSection struct {
	Join map[ref.RoomID]JoinedRoom `json:"join,omitempty"`
}

// JoinedRoom is the sync data for a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection holds timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// SendEventResponse is returned by event-sending endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID ref.UserID `json:"user_id"`
}

// JoinRoomResponse is returned by JoinRoom.
type JoinRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}
