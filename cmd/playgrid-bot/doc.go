// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Playgrid-bot runs game sessions inside a Matrix room. Each player's
// game renders as a text grid in a message the bot edits in place;
// emoji reactions on that message are the controls. One bot process
// multiplexes every concurrent session onto a single rate-limited
// homeserver connection.
package main
