// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/playgrid/playgrid/lib/ref"
	"github.com/playgrid/playgrid/lib/sqlitepool"
)

// ErrNoSave reports a missing save slot.
var ErrNoSave = errors.New("persist: no such save")

// SlotInfo describes one save slot in a listing.
type SlotInfo struct {
	Slot    string
	SavedAt int64 // Unix milliseconds
}

const schema = `
CREATE TABLE IF NOT EXISTS saves (
	owner    TEXT    NOT NULL,
	slot     TEXT    NOT NULL,
	saved_at INTEGER NOT NULL,
	blob     BLOB    NOT NULL,
	PRIMARY KEY (owner, slot)
);
`

// StoreConfig holds the parameters for opening a save-slot store.
type StoreConfig struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Compression applies to newly written snapshots. Existing saves
	// decode by their own header regardless.
	Compression Compression

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Store is the SQLite-backed save-slot store. Saves overwrite by
// (owner, slot); slots are independent per owner.
type Store struct {
	pool        *sqlitepool.Pool
	compression Compression
	logger      *slog.Logger
}

// OpenStore opens the database, creating the file and schema as
// needed.
func OpenStore(cfg StoreConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	return &Store{pool: pool, compression: cfg.Compression, logger: logger}, nil
}

// Close closes the underlying pool.
func (st *Store) Close() error {
	return st.pool.Close()
}

// Put writes a snapshot to its slot, overwriting any previous save.
func (st *Store) Put(ctx context.Context, snapshot *Snapshot) error {
	blob, err := EncodeSnapshot(snapshot, st.compression)
	if err != nil {
		return err
	}

	conn, err := st.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("persist: put: %w", err)
	}
	defer st.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO saves (owner, slot, saved_at, blob) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner, slot) DO UPDATE SET saved_at = excluded.saved_at, blob = excluded.blob`,
		&sqlitex.ExecOptions{
			Args: []any{snapshot.Owner.String(), snapshot.Slot, snapshot.SavedAt, blob},
		})
	if err != nil {
		return fmt.Errorf("persist: put %s/%s: %w", snapshot.Owner, snapshot.Slot, err)
	}
	st.logger.Info("snapshot saved",
		"owner", snapshot.Owner, "slot", snapshot.Slot, "bytes", len(blob))
	return nil
}

// Get reads and decodes one save slot. Returns ErrNoSave if the slot
// is empty and ErrCorrupt if the stored blob fails validation.
func (st *Store) Get(ctx context.Context, owner ref.UserID, slot string) (*Snapshot, error) {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("persist: get: %w", err)
	}
	defer st.pool.Put(conn)

	var blob []byte
	err = sqlitex.Execute(conn,
		"SELECT blob FROM saves WHERE owner = ? AND slot = ?",
		&sqlitex.ExecOptions{
			Args: []any{owner.String(), slot},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, blob)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("persist: get %s/%s: %w", owner, slot, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("persist: %s/%s: %w", owner, slot, ErrNoSave)
	}
	return DecodeSnapshot(blob)
}

// Delete removes a save slot. Deleting an empty slot is a no-op.
func (st *Store) Delete(ctx context.Context, owner ref.UserID, slot string) error {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("persist: delete: %w", err)
	}
	defer st.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"DELETE FROM saves WHERE owner = ? AND slot = ?",
		&sqlitex.ExecOptions{Args: []any{owner.String(), slot}})
	if err != nil {
		return fmt.Errorf("persist: delete %s/%s: %w", owner, slot, err)
	}
	return nil
}

// List returns the owner's save slots, newest first.
func (st *Store) List(ctx context.Context, owner ref.UserID) ([]SlotInfo, error) {
	conn, err := st.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("persist: list: %w", err)
	}
	defer st.pool.Put(conn)

	var slots []SlotInfo
	err = sqlitex.Execute(conn,
		"SELECT slot, saved_at FROM saves WHERE owner = ? ORDER BY saved_at DESC",
		&sqlitex.ExecOptions{
			Args: []any{owner.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				slots = append(slots, SlotInfo{
					Slot:    stmt.ColumnText(0),
					SavedAt: stmt.ColumnInt64(1),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("persist: list %s: %w", owner, err)
	}
	return slots, nil
}
