// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SessionID identifies one game session for its lifetime. IDs are
// assigned by the session registry at creation and are unique across
// the process lifetime; a destroyed session's ID is never handed to
// a new session while any reference to the old one may still be live.
//
// The format is "g-" followed by 16 lowercase hex characters (8 random
// bytes). The prefix keeps session IDs visually distinct from Matrix
// identifiers in logs.
type SessionID struct {
	id string
}

// NewSessionID generates a fresh random session ID.
func NewSessionID() SessionID {
	var raw [8]byte
	// crypto/rand.Read never fails on supported platforms.
	if _, err := rand.Read(raw[:]); err != nil {
		panic(fmt.Sprintf("ref.NewSessionID: reading random bytes: %v", err))
	}
	return SessionID{id: "g-" + hex.EncodeToString(raw[:])}
}

// ParseSessionID validates and wraps a raw session ID string.
// Returns an error if the string is empty, lacks the "g-" prefix, or
// carries a non-hex payload.
func ParseSessionID(raw string) (SessionID, error) {
	if raw == "" {
		return SessionID{}, fmt.Errorf("empty session ID")
	}
	if len(raw) < 3 || raw[:2] != "g-" {
		return SessionID{}, fmt.Errorf("session ID must start with \"g-\": %q", raw)
	}
	if _, err := hex.DecodeString(raw[2:]); err != nil {
		return SessionID{}, fmt.Errorf("session ID has non-hex payload: %q", raw)
	}
	return SessionID{id: raw}, nil
}

// MustParseSessionID is like ParseSessionID but panics on error. Use
// in tests where the input is known-valid.
func MustParseSessionID(raw string) SessionID {
	s, err := ParseSessionID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseSessionID(%q): %v", raw, err))
	}
	return s
}

// String returns the full session ID string (e.g., "g-1a2b3c4d5e6f7a8b").
func (s SessionID) String() string { return s.id }

// IsZero reports whether the SessionID is the zero value (uninitialized).
func (s SessionID) IsZero() bool { return s.id == "" }

// MarshalText implements encoding.TextMarshaler. Returns an error for
// the zero value: serializing an empty session ID would produce
// ambiguous output.
func (s SessionID) MarshalText() ([]byte, error) {
	if s.id == "" {
		return nil, fmt.Errorf("cannot marshal zero SessionID")
	}
	return []byte(s.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*s = SessionID{}
		return nil
	}
	parsed, err := ParseSessionID(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
