// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool used by the
// save-slot store.
//
// It wraps zombiezen.com/go/sqlite with production defaults: WAL
// journal mode, NORMAL synchronous (durable across process crashes,
// which is the failure mode that matters for saved games the server
// can re-create), a busy timeout so concurrent save commands wait for
// the write lock instead of failing, and memory-mapped reads.
//
// Callers [Pool.Take] a connection, perform work, and [Pool.Put] it
// back. Connections are not safe for concurrent use; each goroutine
// holds its own for the duration of its work.
//
// The package is intentionally thin: it applies the pragmas and
// exposes the zombiezen types directly. Callers write SQL, use
// sqlitex.Execute for cached statements, and manage transactions with
// sqlitex.ImmediateTransaction.
package sqlitepool
