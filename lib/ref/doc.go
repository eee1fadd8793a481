// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references
// for Playgrid. Sessions, players, rooms, and timeline events are all
// identified by validated value types rather than bare strings, so a
// session ID can never be confused with a message event ID at compile
// time.
//
// Matrix-shaped identifiers (UserID, RoomID, EventID) are parsed into
// these types at the transport boundary and validated structurally.
// SessionID is Playgrid's own identifier, assigned by the session
// registry at creation time and never reused while the session is
// active.
//
// All types are immutable value types whose zero value is invalid;
// use IsZero to check. JSON and CBOR marshaling use the canonical
// string form via encoding.TextMarshaler.
package ref
