// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the Matrix client-server API surface the bot
// needs: send a message, edit it in place, seed and redact reactions,
// and follow a room's timeline over long-poll /sync.
//
// A display message is created once per game session and then edited
// for every frame, so the room history stays one message per session
// instead of thousands. Reactions are the input device: the bot seeds
// the control emoji on the display message, players tap them, and the
// bot redacts each tap so the button can be pressed again.
//
// Errors from the homeserver are returned as *MatrixError carrying
// the errcode and HTTP status; use errors.As or IsMatrixError to
// branch on specific codes (M_LIMIT_EXCEEDED is the one the update
// scheduler's budget exists to avoid).
package messaging
